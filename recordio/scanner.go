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

// rawItemList is the result of uncompressing & parsing one block.
type rawItemList struct {
	bytes    []byte // raw bytes, post transformation.
	firstOff int    // bytes[firstOff:] contain the application payload
	cumSize  []int  // cumSize[x] is the cumulative bytesize of items [0,x].
}

func (ri *rawItemList) clear() {
	ri.bytes = ri.bytes[:0]
	ri.cumSize = ri.cumSize[:0]
	ri.firstOff = 0
}

// len returns the number of items in the block.
func (ri *rawItemList) len() int { return len(ri.cumSize) }

// item returns the i'th (base 0) item.
//
// REQUIRES: 0 <= i < ri.len().
func (ri *rawItemList) item(i int) []byte {
	startOff := ri.firstOff
	if i > 0 {
		startOff += ri.cumSize[i-1]
	}
	limitOff := ri.firstOff + ri.cumSize[i]
	return ri.bytes[startOff:limitOff]
}

// Given block contents, apply transformation if any, and parse it into a list
// of items. If transform is nil, it defaults to identity.
func parseChunksToItems(rawItems *rawItemList, chunks [][]byte, transform TransformFunc) error {
	if transform == nil {
		transform = idTransform
	}
	var err error
	if rawItems.bytes != nil {
		// zstd doesn't like an empty slice.
		rawItems.bytes = rawItems.bytes[:cap(rawItems.bytes)]
	}
	if rawItems.bytes, err = transform(rawItems.bytes, chunks); err != nil {
		return errors.E(errors.Format, "recordio: untransform block", err)
	}
	block := rawItems.bytes
	unItems, n := binary.Uvarint(block)
	if n <= 0 || unItems > uint64(len(block)) {
		return errors.E(errors.Format, fmt.Sprintf("recordio: failed to read number of packed items: %v", n))
	}
	nItems := int(unItems)
	pos := n

	if cap(rawItems.cumSize) < nItems {
		rawItems.cumSize = make([]int, nItems)
	} else {
		rawItems.cumSize = rawItems.cumSize[:nItems]
	}
	total := 0
	for i := 0; i < nItems; i++ {
		size, n := binary.Uvarint(block[pos:])
		if n <= 0 || size > MaxReadRecordSize {
			return errors.E(errors.Format, fmt.Sprintf("recordio: likely corrupt data, failed to read size of packed item %v: %v", i, n))
		}
		total += int(size)
		rawItems.cumSize[i] = total
		pos += n
	}
	rawItems.firstOff = pos
	if total+pos != len(block) {
		return errors.E(errors.Format, fmt.Sprintf("recordio: corrupt block header, got block size %d, expected %d", len(block), total+pos))
	}
	return nil
}

// Scanner reads a brio binary container. Legal path expression is
// defined below. Err, Header, and Trailer can be called at any time.
//
//	((Scan Get* Location*) | Seek)* Finish
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	err         errors.Once
	sc          *internal.ChunkScanner
	untransform TransformFunc
	header      ParsedHeader

	rawItems rawItemList
	// Offset of the block held in rawItems, or -1.
	blockOff int64
	item     Frame
	loc      ItemLocation
	nextItem int
	// Number of body blocks decoded, for tests and metrics.
	blocksRead int
}

// NewScanner creates a new scanner and reads the header block. Any
// error, for example a file that is not a brio container, is reported
// through Err.
func NewScanner(in io.ReadSeeker) *Scanner {
	s := &Scanner{blockOff: -1}
	s.err = errors.Once{Ignored: []error{io.EOF}}
	s.sc = internal.NewChunkScanner(in, &s.err)
	s.readHeader()
	return s
}

func (s *Scanner) readSpecialBlock(expectedMagic internal.MagicBytes, tr TransformFunc) []byte {
	if !s.sc.Scan() {
		if s.err.Err() == nil || s.err.Err() == io.ErrUnexpectedEOF {
			s.err = errors.Once{}
			s.err.Set(errors.E(errors.Format, "recordio: missing header block"))
		}
		return nil
	}
	magic, chunks := s.sc.Block()
	if magic != expectedMagic {
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: not a brio file: expect magic %v, got %v", expectedMagic, magic)))
		return nil
	}
	rawItems := rawItemList{}
	if err := parseChunksToItems(&rawItems, chunks, tr); err != nil {
		s.err.Set(err)
		return nil
	}
	if rawItems.len() != 1 {
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: wrong # of items in special block, %d", rawItems.len())))
		return nil
	}
	return rawItems.item(0)
}

func (s *Scanner) readHeader() {
	payload := s.readSpecialBlock(internal.MagicHeader, idTransform)
	if s.err.Err() != nil {
		return
	}
	if err := s.header.unmarshal(payload); err != nil {
		s.err.Set(err)
		return
	}
	transformers, err := s.header.Transformers()
	if err != nil {
		s.err.Set(err)
		return
	}
	s.untransform, err = registry.GetUntransformer(transformers)
	s.err.Set(err)
}

// Header returns the contents of the header block.
func (s *Scanner) Header() ParsedHeader {
	return s.header
}

// Trailer returns the trailer block contents. If the trailer does not
// exist, or is corrupt, it returns nil. The caller should examine Err()
// if Trailer returns nil and the header announces a trailer.
func (s *Scanner) Trailer() []byte {
	if !s.header.HasTrailer() || s.Err() != nil {
		return nil
	}
	curOff := s.sc.Tell()
	defer s.sc.Seek(curOff)

	magic, chunks := s.sc.ReadLastBlock()
	if s.err.Err() != nil {
		return nil
	}
	if magic != internal.MagicTrailer {
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: did not find the trailer, instead found magic %v", magic)))
		return nil
	}
	rawItems := rawItemList{}
	if err := parseChunksToItems(&rawItems, chunks, s.untransform); err != nil {
		s.err.Set(err)
		return nil
	}
	if rawItems.len() != 1 {
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: expect exactly one trailer item, but found %d", rawItems.len())))
		return nil
	}
	return append([]byte{}, rawItems.item(0)...)
}

// HasTrailerBlock reports whether the file ends with a trailer block.
// It does not change the scanner's error state.
func (s *Scanner) HasTrailerBlock() bool {
	curOff := s.sc.Tell()
	magic, ok := s.sc.LastMagic()
	s.sc.Seek(curOff)
	return ok && magic == internal.MagicTrailer
}

// Get returns the frame read by the last successful Scan. The payload
// aliases an internal buffer that is overwritten by the next Scan or
// Seek.
func (s *Scanner) Get() Frame {
	return s.item
}

// Location returns the location of the frame read by the last
// successful Scan.
func (s *Scanner) Location() ItemLocation {
	return s.loc
}

// Seek sets up the scanner so that the next Scan returns the frame at
// loc. Seeking within the block read last does not touch the file.
func (s *Scanner) Seek(loc ItemLocation) {
	if s.Err() != nil {
		return
	}
	if s.blockOff != int64(loc.Block) {
		s.sc.Seek(int64(loc.Block))
		if !s.scanNextBlock() {
			if s.Err() == nil {
				s.err.Set(errors.E(errors.IndexOutOfRange, fmt.Sprintf("recordio: no body block at offset %d", loc.Block)))
			}
			return
		}
	}
	if loc.Item < 0 || loc.Item >= s.rawItems.len() {
		s.err.Set(errors.E(errors.IndexOutOfRange, fmt.Sprintf("recordio: invalid location %+v, block has only %d items", loc, s.rawItems.len())))
		return
	}
	s.nextItem = loc.Item
}

func (s *Scanner) scanNextBlock() bool {
	s.rawItems.clear()
	s.nextItem = 0
	s.blockOff = -1
	if s.Err() != nil {
		return false
	}
	for {
		off := s.sc.Tell()
		if !s.sc.Scan() {
			return false
		}
		magic, chunks := s.sc.Block()
		switch magic {
		case internal.MagicBody:
			if err := parseChunksToItems(&s.rawItems, chunks, s.untransform); err != nil {
				s.err.Set(err)
				return false
			}
			s.blockOff = off
			s.blocksRead++
			return true
		case internal.MagicTrailer:
			return false
		case internal.MagicHeader:
			if off == 0 {
				continue
			}
		}
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: invalid magic number %v at offset %d", magic, off)))
		return false
	}
}

// Scan reads the next frame. It returns false at the end of the body or
// on error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	for s.nextItem >= s.rawItems.len() {
		if !s.scanNextBlock() {
			return false
		}
	}
	f, err := ParseFrame(s.rawItems.item(s.nextItem))
	if err != nil {
		s.err.Set(err)
		return false
	}
	s.item = f
	s.loc = ItemLocation{Block: uint64(s.blockOff), Item: s.nextItem}
	s.nextItem++
	return true
}

// BlocksRead returns the number of body blocks decoded so far.
func (s *Scanner) BlocksRead() int { return s.blocksRead }

// Err returns any error encountered by the scanner. Once Err() becomes
// non-nil, it stays so. A truncated file is reported as an error of kind
// Format wrapping io.ErrUnexpectedEOF.
func (s *Scanner) Err() error {
	err := s.err.Err()
	if err == io.ErrUnexpectedEOF {
		return errors.E(errors.Format, "recordio: file ends in the middle of a block", err)
	}
	return err
}

// Truncated reports whether scanning stopped at an incomplete block.
func (s *Scanner) Truncated() bool {
	return s.err.Err() == io.ErrUnexpectedEOF
}

// Finish should be called exactly once, after the application has finished
// using the scanner. It returns the value of Err().
func (s *Scanner) Finish() error {
	err := s.Err()
	s.sc = nil
	s.untransform = nil
	s.item = Frame{}
	return err
}
