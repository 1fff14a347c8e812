// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"fmt"
	"io"
	"os"

	"github.com/grailbio/brio/compress"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioflate"
	"github.com/grailbio/brio/recordio/recordiosnappy"
	"github.com/grailbio/brio/recordio/recordiotext"
	"github.com/grailbio/brio/recordio/recordioxml"
	"github.com/grailbio/brio/recordio/recordiozstd"
	"github.com/grailbio/brio/store"
)

func init() {
	recordioflate.Init()
	recordiozstd.Init()
	recordiosnappy.Init()
}

// A sink writes frames to one container type.
type sink interface {
	// declare announces a store before its first record.
	declare(s *store.Store)
	// append writes one frame of store s.
	append(f recordio.Frame, s *store.Store)
	// finish writes the directory or footer and flushes the file. It
	// does not close the file.
	finish(stores []*store.Store) error
	err() error
}

// binarySink writes a recordio container and indexes each frame in
// the store directory written to the trailer.
type binarySink struct {
	w   *recordio.Writer
	dir *store.Directory
}

func newBinarySink(out io.Writer, header recordio.ParsedHeader, opts Options) *binarySink {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Transformers:  opts.Transformers,
		MaxItems:      opts.MaxBlockItems,
		MaxBlockBytes: opts.MaxBlockBytes,
	})
	for _, kv := range header {
		w.AddHeader(kv.Key, kv.Value)
	}
	w.AddHeader(recordio.KeyTrailer, true)
	return &binarySink{w: w, dir: store.NewDirectory()}
}

func (b *binarySink) declare(*store.Store) {}

func (b *binarySink) append(f recordio.Frame, s *store.Store) {
	loc := b.w.Append(f)
	b.dir.Add(s, loc.Block, loc.Item)
}

func (b *binarySink) finish(stores []*store.Store) error {
	b.dir.Sync(stores)
	data, err := b.dir.Marshal()
	if err != nil {
		return err
	}
	b.w.SetTrailer(data)
	return b.w.Finish()
}

func (b *binarySink) err() error { return b.w.Err() }

// streamWriter is implemented by the text and XML container writers.
type streamWriter interface {
	DeclareStore(s *store.Store)
	Append(f recordio.Frame)
	Finish(stores []*store.Store) error
	Err() error
}

// streamSink writes a text or XML container through an optional
// stream compressor.
type streamSink struct {
	w  streamWriter
	cw io.WriteCloser
}

func newStreamSink(out io.Writer, typ fileio.FileType, comp fileio.Compression, header recordio.ParsedHeader) (*streamSink, error) {
	cw, err := compress.NewWriter(out, comp)
	if err != nil {
		return nil, err
	}
	s := &streamSink{cw: cw}
	if typ == fileio.XML {
		s.w = recordioxml.NewWriter(cw, header)
	} else {
		s.w = recordiotext.NewWriter(cw, header)
	}
	return s, s.w.Err()
}

func (s *streamSink) declare(st *store.Store) { s.w.DeclareStore(st) }

func (s *streamSink) append(f recordio.Frame, _ *store.Store) { s.w.Append(f) }

func (s *streamSink) finish(stores []*store.Store) (err error) {
	defer errors.CleanUp(func() error {
		if cerr := s.cw.Close(); cerr != nil {
			return errors.E(errors.FileAccess, "brio: flush compressed stream", cerr)
		}
		return nil
	}, &err)
	return s.w.Finish(stores)
}

func (s *streamSink) err() error { return s.w.Err() }

// A source reads the frame at a directory location.
type source interface {
	frame(offset uint64, item int) (recordio.Frame, error)
	close() error
}

// scan is the result of reading a whole container once.
type scan struct {
	header recordio.ParsedHeader
	dir    *store.Directory
	// recovered is true when the directory was rebuilt from the
	// records because the file was not closed.
	recovered bool
}

// directoryBuilder rebuilds a store directory from the frames of a
// file.
type directoryBuilder struct {
	dir    *store.Directory
	stores map[string]*store.Store
	order  []*store.Store
}

func newDirectoryBuilder(declared []*store.Store) *directoryBuilder {
	b := &directoryBuilder{dir: store.NewDirectory(), stores: make(map[string]*store.Store)}
	for _, s := range declared {
		b.declare(s)
	}
	return b
}

func (b *directoryBuilder) declare(s *store.Store) {
	if _, ok := b.stores[s.Label]; ok {
		return
	}
	b.stores[s.Label] = s
	b.order = append(b.order, s)
}

func (b *directoryBuilder) add(f recordio.Frame, offset uint64, item int) {
	s, ok := b.stores[f.Store]
	if !ok {
		s = store.New(f.Store, "", store.Postponed)
		b.declare(s)
	}
	if s.Accept(f.Tag) != nil {
		// Records of several tags in one undeclared store.
		s.Policy, s.SerialTag = store.Mixed, ""
	}
	b.dir.Add(s, offset, item)
}

func (b *directoryBuilder) finish() *store.Directory {
	b.dir.Sync(b.order)
	return b.dir
}

// binarySource reads frames of a recordio container by seeking.
type binarySource struct {
	f  *os.File
	sc *recordio.Scanner
}

func openBinary(path string, f *os.File) (*binarySource, scan, error) {
	var sc scan
	s := recordio.NewScanner(f)
	if err := s.Err(); err != nil {
		return nil, sc, errors.E(fmt.Sprintf("brio: %s", path), err)
	}
	sc.header = s.Header()
	if s.HasTrailerBlock() {
		data := s.Trailer()
		if err := s.Err(); err != nil {
			return nil, sc, errors.E(fmt.Sprintf("brio: %s: read directory", path), err)
		}
		dir, err := store.UnmarshalDirectory(data)
		if err != nil {
			return nil, sc, errors.E(fmt.Sprintf("brio: %s", path), err)
		}
		sc.dir = dir
		return &binarySource{f: f, sc: s}, sc, nil
	}

	// No trailer: the writer was not closed. Index every complete
	// block.
	b := newDirectoryBuilder(nil)
	var n int64
	for s.Scan() {
		loc := s.Location()
		b.add(s.Get(), loc.Block, loc.Item)
		n++
	}
	if err := s.Err(); err != nil && !s.Truncated() {
		return nil, sc, errors.E(fmt.Sprintf("brio: %s: recover directory", path), err)
	}
	sc.dir = b.finish()
	sc.recovered = true
	log.Error.Printf("%s: file was not closed; recovered %d records in %d stores from %d blocks", path, n, len(b.order), s.BlocksRead())
	s.Finish()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, sc, errors.E(errors.FileAccess, fmt.Sprintf("brio: %s: seek", path), err)
	}
	s = recordio.NewScanner(f)
	if err := s.Err(); err != nil {
		return nil, sc, errors.E(fmt.Sprintf("brio: %s", path), err)
	}
	return &binarySource{f: f, sc: s}, sc, nil
}

func (b *binarySource) frame(offset uint64, item int) (recordio.Frame, error) {
	b.sc.Seek(recordio.ItemLocation{Block: offset, Item: item})
	if !b.sc.Scan() {
		if err := b.sc.Err(); err != nil {
			return recordio.Frame{}, err
		}
		return recordio.Frame{}, errors.E(errors.Format, fmt.Sprintf("brio: no record at block %d item %d", offset, item))
	}
	return b.sc.Get(), nil
}

func (b *binarySource) close() (err error) {
	defer fileio.CloseAndReport(b.f, &err)
	defer errors.CleanUp(b.sc.Finish, &err)
	return nil
}

// streamScanner is implemented by the text and XML container
// scanners.
type streamScanner interface {
	Header() recordio.ParsedHeader
	Scan() bool
	Get() recordio.Frame
	Declared() []*store.Store
	Footer() []*store.Store
	Complete() bool
	Truncated() bool
	Err() error
}

// streamSource reads frames of a text or XML container. Item numbers
// are record ordinals in file order; the most recent frame is kept, and
// an earlier frame is reached by scanning again from the start.
type streamSource struct {
	path string
	typ  fileio.FileType
	f    *os.File
	rc   io.ReadCloser
	sc   streamScanner
	// pos is the ordinal of the next record sc returns.
	pos int64
	// last is the frame at ordinal pos-1, if valid.
	last      recordio.Frame
	lastValid bool
	// rescans counts restarts from the beginning of the file.
	rescans int
}

func (s *streamSource) open() error {
	if s.rc != nil {
		s.rc.Close()
		s.rc = nil
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return errors.E(errors.FileAccess, fmt.Sprintf("brio: %s: seek", s.path), err)
	}
	s.rc, _ = compress.NewReader(s.f)
	if s.typ == fileio.XML {
		s.sc = recordioxml.NewScanner(s.rc)
	} else {
		s.sc = recordiotext.NewScanner(s.rc)
	}
	s.pos, s.lastValid = 0, false
	if err := s.sc.Err(); err != nil {
		return errors.E(fmt.Sprintf("brio: %s", s.path), err)
	}
	return nil
}

func openStream(path string, f *os.File, typ fileio.FileType) (*streamSource, scan, error) {
	var sc scan
	s := &streamSource{path: path, typ: typ, f: f}
	if err := s.open(); err != nil {
		return nil, sc, err
	}
	sc.header = s.sc.Header()
	b := newDirectoryBuilder(nil)
	var n int
	for s.sc.Scan() {
		b.add(s.sc.Get(), 0, n)
		n++
	}
	if err := s.sc.Err(); err != nil {
		return nil, sc, errors.E(fmt.Sprintf("brio: %s", path), err)
	}
	if s.sc.Complete() {
		footer := s.sc.Footer()
		for _, fs := range footer {
			st, ok := b.stores[fs.Label]
			var count int64
			if ok {
				ix, _ := b.dir.Index(fs.Label)
				if ix != nil {
					count = ix.Count
				}
				st.SerialTag, st.Policy = fs.SerialTag, fs.Policy
			} else {
				b.declare(fs)
			}
			if count != fs.Count {
				return nil, sc, errors.E(errors.Format,
					fmt.Sprintf("brio: %s: footer counts %d records in store %q, file holds %d", path, fs.Count, fs.Label, count))
			}
		}
		if len(footer) != len(b.order) {
			return nil, sc, errors.E(errors.Format, fmt.Sprintf("brio: %s: footer lists %d stores, file holds %d", path, len(footer), len(b.order)))
		}
	} else {
		for _, d := range s.sc.Declared() {
			if st, ok := b.stores[d.Label]; ok {
				if st.Policy != store.Mixed {
					st.Policy = d.Policy
				}
			} else {
				b.declare(d)
			}
		}
		sc.recovered = true
		log.Error.Printf("%s: file was not closed; recovered %d records in %d stores", path, n, len(b.order))
	}
	sc.dir = b.finish()
	// Position at the start for the first load.
	if err := s.open(); err != nil {
		return nil, sc, err
	}
	return s, sc, nil
}

func (s *streamSource) frame(_ uint64, item int) (recordio.Frame, error) {
	ord := int64(item)
	if s.lastValid && ord == s.pos-1 {
		return s.last, nil
	}
	if ord < s.pos {
		s.rescans++
		if err := s.open(); err != nil {
			return recordio.Frame{}, err
		}
	}
	for s.pos <= ord {
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return recordio.Frame{}, errors.E(fmt.Sprintf("brio: %s", s.path), err)
			}
			return recordio.Frame{}, errors.E(errors.Format, fmt.Sprintf("brio: %s: record %d is missing", s.path, ord))
		}
		s.pos++
	}
	s.last = s.sc.Get()
	s.last.Payload = append([]byte(nil), s.last.Payload...)
	s.lastValid = true
	return s.last, nil
}

func (s *streamSource) close() (err error) {
	defer fileio.CloseAndReport(s.f, &err)
	if s.rc != nil {
		defer errors.CleanUp(s.rc.Close, &err)
	}
	return nil
}
