// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio/internal"
)

const (
	// MaxPackedItems defines the max items that can be packed into a
	// single block.
	MaxPackedItems = uint32(10 * 1024 * 1024)
	// DefaultPackedItems defines the default number of items packed
	// into a single block.
	DefaultPackedItems = uint32(16 * 1024)
	// DefaultBlockBytes is the default payload size at which a block is
	// flushed.
	DefaultBlockBytes = 1 << 20
)

// WriterOpts defines options used when creating a new writer.
type WriterOpts struct {
	// Transformers specifies a list of functions to compress or otherwise
	// modify body and trailer blocks just before they are written.
	//
	// Each entry must be of form "name" or "name config..". The "name" is
	// matched against the registry (see RegisterTransformer). The "config" part
	// is passed to the transformer factory function. If "name" is not
	// registered, the writer fails immediately.
	//
	// If Transformers contains multiple strings, Transformers[0] is invoked
	// first, then its results are passed to Transformers[1], so on.
	//
	// The following standard transformers are provided:
	//
	//  "zstd N" (N is -1 or an integer from 0 to 22): zstd compression level N.
	//  Call recordiozstd.Init() to register it.
	//
	//  "flate N" (N is -1 or an integer from 0 to 9): flate compression level N.
	//  Call recordioflate.Init() to register it.
	//
	//  "snappy": snappy block compression. Call recordiosnappy.Init() to
	//  register it.
	Transformers []string

	// MaxItems is the maximum number of frames to pack into a single block.
	// It defaults to DefaultPackedItems if set to 0.
	// If MaxItems exceeds MaxPackedItems it will silently set to MaxPackedItems.
	MaxItems uint32

	// MaxBlockBytes flushes the pending block once its frames exceed this
	// many bytes. It defaults to DefaultBlockBytes if set to 0.
	MaxBlockBytes int
}

type blockType int

const (
	bTypeInvalid blockType = iota
	bTypeHeader
	bTypeBody
	bTypeTrailer
)

var magicBytes = []internal.MagicBytes{
	internal.MagicInvalid,
	internal.MagicHeader,
	internal.MagicBody,
	internal.MagicTrailer,
}

// State of the writer. The state transitions in one direction only.
type writerState int

const (
	// No writes started. AddHeader() can be done in this state only.
	wStateInitial writerState = iota
	// The main state. Append and Flush can be called.
	wStateWritingBody
	// State after a SetTrailer call.
	wStateWritingTrailer
	// State after Finish call.
	wStateFinished
)

// Writer writes a brio binary container. Blocks are serialized and
// written synchronously, in the order they are completed. Legal call
// sequence (? means 0 or 1 call, * means 0 or more calls):
//
//	AddHeader*
//	(Append|Flush)*
//	SetTrailer?
//	Finish
//
// Err can be called at any time. A Writer is not safe for concurrent
// use.
type Writer struct {
	opts      WriterOpts
	err       errors.Once
	wr        *internal.ChunkWriter
	transform TransformFunc

	state  writerState
	header ParsedHeader

	// Frames of the pending body block.
	items  [][]byte
	nbytes int
	// Offset of the pending body block: the writer's length when its
	// first frame was appended.
	blockOff uint64

	serialized []byte
	tmpBuf     [][]byte
	nblocks    int
}

// NewWriter creates a new writer. Any error, including an unknown
// transformer, is reported through Err and Finish.
func NewWriter(wr io.Writer, opts WriterOpts) *Writer {
	if opts.MaxItems == 0 {
		opts.MaxItems = DefaultPackedItems
	}
	if opts.MaxItems > MaxPackedItems {
		opts.MaxItems = MaxPackedItems
	}
	if opts.MaxBlockBytes <= 0 {
		opts.MaxBlockBytes = DefaultBlockBytes
	}
	w := &Writer{opts: opts}
	w.wr = internal.NewChunkWriter(wr, &w.err)
	var err error
	if w.transform, err = registry.getTransformer(opts.Transformers); err != nil {
		w.err.Set(err)
	}
	for _, val := range opts.Transformers {
		w.header = append(w.header, KeyValue{KeyTransformer, val})
	}
	return w
}

// AddHeader adds an arbitrary metadata entry to the file. If the key had
// been already added, this method overwrites its value.
//
// REQUIRES: Append, Flush, SetTrailer, Finish have not been called.
func (w *Writer) AddHeader(key string, value interface{}) {
	if w.state != wStateInitial {
		panic(fmt.Sprintf("AddHeader: wrong state: %v", w.state))
	}
	if key == KeyTransformer {
		w.header = append(w.header, KeyValue{key, value})
		return
	}
	w.header.Set(key, value)
}

// Header returns the header entries added so far.
func (w *Writer) Header() ParsedHeader { return w.header }

func (w *Writer) flushHeader() {
	data, err := w.header.marshal()
	if err != nil {
		w.err.Set(err)
		return
	}
	w.writeBlock(bTypeHeader, [][]byte{data})
	w.state = wStateWritingBody
}

// Append adds one frame to the pending block and returns the frame's
// location. The block is written once it reaches MaxItems frames or
// MaxBlockBytes bytes.
//
// REQUIRES: Finish and SetTrailer have not been called.
func (w *Writer) Append(f Frame) ItemLocation {
	switch w.state {
	case wStateInitial:
		w.flushHeader()
	case wStateWritingBody:
	default:
		panic(fmt.Sprintf("Append: wrong state: %v", w.state))
	}
	if len(w.items) == 0 {
		w.blockOff = uint64(w.wr.Len())
	}
	loc := ItemLocation{Block: w.blockOff, Item: len(w.items)}
	item := f.AppendTo(make([]byte, 0, f.Size()))
	w.items = append(w.items, item)
	w.nbytes += len(item)
	if uint32(len(w.items)) >= w.opts.MaxItems || w.nbytes >= w.opts.MaxBlockBytes {
		w.flushBody()
	}
	return loc
}

// Flush writes the pending block. The next frame starts a new block.
func (w *Writer) Flush() {
	switch w.state {
	case wStateInitial:
		return
	case wStateWritingBody:
	default:
		panic(fmt.Sprintf("Flush: wrong state: %v", w.state))
	}
	w.flushBody()
}

func (w *Writer) flushBody() {
	if len(w.items) == 0 {
		return
	}
	w.writeBlock(bTypeBody, w.items)
	w.items = w.items[:0]
	w.nbytes = 0
}

func generatePackedHeader(items [][]byte) []byte {
	// 1 varint for # items, n for the size of each of n items.
	hdr := make([]byte, 0, (len(items)+1)*binary.MaxVarintLen32)
	hdr = binary.AppendUvarint(hdr, uint64(len(items)))
	for _, p := range items {
		hdr = binary.AppendUvarint(hdr, uint64(len(p)))
	}
	return hdr
}

// writeBlock packs items, transforms body and trailer blocks, and writes
// the result.
func (w *Writer) writeBlock(bType blockType, items [][]byte) {
	if w.err.Err() != nil {
		return
	}
	if cap(w.tmpBuf) >= len(items)+1 {
		w.tmpBuf = w.tmpBuf[:len(items)+1]
	} else {
		w.tmpBuf = make([][]byte, len(items)+1)
	}
	w.tmpBuf[0] = generatePackedHeader(items)
	copy(w.tmpBuf[1:], items)
	transform := idTransform
	if bType == bTypeBody || bType == bTypeTrailer {
		transform = w.transform
	}
	var err error
	if w.serialized, err = transform(w.serialized, w.tmpBuf); err != nil {
		w.err.Set(errors.E(errors.Other, "recordio: transform block", err))
		return
	}
	w.wr.Write(magicBytes[bType], w.serialized)
	w.nblocks++
}

// SetTrailer adds arbitrary data at the end of the file. After this
// function, only Finish and Err may be called.
//
// REQUIRES: AddHeader(KeyTrailer, true) has been called.
func (w *Writer) SetTrailer(data []byte) {
	if !w.header.HasTrailer() {
		panic(fmt.Sprintf("SetTrailer: key '%v' must be set to true", KeyTrailer))
	}
	switch w.state {
	case wStateInitial:
		w.flushHeader()
	case wStateWritingBody:
		w.flushBody()
	default:
		panic(fmt.Sprintf("SetTrailer: wrong state: %v", w.state))
	}
	w.state = wStateWritingTrailer
	w.writeBlock(bTypeTrailer, [][]byte{data})
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int64 { return w.wr.Len() }

// Blocks returns the number of blocks written so far, header and
// trailer included.
func (w *Writer) Blocks() int { return w.nblocks }

// Err returns any error encountered by the writer. Once Err() becomes
// non-nil, it stays so.
func (w *Writer) Err() error {
	return w.err.Err()
}

// Finish must be called at the end of writing. It writes the header if
// nothing else was written and flushes the pending block, then returns
// the value of Err. No method, other than Err, shall be called
// afterwards.
func (w *Writer) Finish() error {
	switch w.state {
	case wStateInitial:
		w.flushHeader()
	case wStateWritingBody:
		w.flushBody()
	case wStateWritingTrailer:
	default:
		panic(fmt.Sprintf("Finish: wrong state: %v", w.state))
	}
	w.state = wStateFinished
	return w.err.Err()
}
