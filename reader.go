// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/archive/portable"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/store"
)

// Reader loads records from a brio file. Each store has its own
// cursor, the index of the record loaded last: -1 before the first
// record and the store's count after the last. Operations apply to
// the selected store; when no store is selected they use the
// automatic store.
//
// Failed loads leave the cursor where it was.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	path string
	opts Options
	typ  fileio.FileType
	mode archive.Mode

	header    recordio.ParsedHeader
	order     portable.Order
	dir       *store.Directory
	mux       *store.Multiplexer
	src       source
	recovered bool
	metrics   *metrics
	closed    bool
}

// Open opens the brio file at path. The container type is taken from
// opts.Format or the filename; stream compression of text and XML
// files is detected from the data. Open fails with FileNotFound if the
// file does not exist and with Format if it is not a brio file.
func Open(path string, opts Options) (*Reader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyLogLevel()
	typ, _, err := opts.fileType(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("brio: open %s", path), err)
	}
	var (
		src source
		sc  scan
	)
	if typ == fileio.Binary {
		src, sc, err = openBinary(path, f)
	} else {
		src, sc, err = openStream(path, f, typ)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	r := &Reader{
		path:      path,
		opts:      opts,
		typ:       typ,
		mode:      archiveMode(typ),
		header:    sc.header,
		dir:       sc.dir,
		src:       src,
		recovered: sc.recovered,
		mux:       store.NewMultiplexer(!opts.NoAutomaticStore, true),
	}
	if err := r.init(); err != nil {
		src.close()
		return nil, err
	}
	if r.metrics, err = newMetrics(opts.Metrics, "read", typ.String()); err != nil {
		src.close()
		return nil, err
	}
	log.Debug.Printf("%s: opened %s file with %d stores", path, typ, len(r.mux.Stores()))
	return r, nil
}

func (r *Reader) init() error {
	if format, _ := r.header.String(recordio.KeyFormat); format != FormatName {
		return errors.E(errors.Format, fmt.Sprintf("brio: %s: not a brio file (format %q)", r.path, format))
	}
	if v, ok := r.header.Int(recordio.KeyFormatVersion); !ok || v != int64(recordio.V1) {
		return errors.E(errors.UnsupportedVersion, fmt.Sprintf("brio: %s: unsupported format version %d", r.path, v))
	}
	if m, ok := r.header.String(recordio.KeyMode); ok {
		mode, err := archive.ParseMode(m)
		if err != nil {
			return errors.E(errors.Format, fmt.Sprintf("brio: %s", r.path), err)
		}
		if mode != r.mode {
			return errors.E(errors.Format, fmt.Sprintf("brio: %s: %s container holds %s payloads", r.path, r.typ, mode))
		}
	}
	if o, ok := r.header.String(recordio.KeyByteOrder); ok {
		order, err := portable.ParseOrder(o)
		if err != nil {
			return errors.E(errors.Format, fmt.Sprintf("brio: %s", r.path), err)
		}
		r.order = order
	}
	var last *store.Store
	for _, s := range r.dir.Stores() {
		if err := r.mux.Restore(s); err != nil {
			return errors.E(fmt.Sprintf("brio: %s", r.path), err)
		}
		last = s
	}
	// The automatic store is selected if present, the last store
	// otherwise.
	switch {
	case r.mux.Has(store.Automatic) && !r.opts.NoAutomaticStore:
		return r.mux.Select(store.Automatic)
	case last != nil:
		return r.mux.Select(last.Label)
	}
	return nil
}

// Path returns the name of the file.
func (r *Reader) Path() string { return r.path }

// Format returns the container type of the file.
func (r *Reader) Format() fileio.FileType { return r.typ }

// Header returns the file header, including user entries.
func (r *Reader) Header() recordio.ParsedHeader { return r.header }

// FileID returns the identifier the writer recorded in the header.
func (r *Reader) FileID() string {
	id, _ := r.header.String(recordio.KeyFileID)
	return id
}

// Recovered reports whether the store directory was rebuilt because
// the file was not closed by its writer.
func (r *Reader) Recovered() bool { return r.recovered }

// Stores returns the sorted labels of the stores that match the glob
// pattern. An empty pattern matches every store.
func (r *Reader) Stores(pattern string) ([]string, error) {
	labels := r.mux.Labels()
	if pattern == "" {
		return labels, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("brio: store pattern %q", pattern), err)
	}
	var matched []string
	for _, label := range labels {
		if g.Match(label) {
			matched = append(matched, label)
		}
	}
	return matched, nil
}

// HasStore reports whether the file has a store with the given label.
func (r *Reader) HasStore(label string) bool { return r.mux.Has(label) }

// HasAutomaticStore reports whether the file has an automatic store.
func (r *Reader) HasAutomaticStore() bool { return r.mux.Has(store.Automatic) }

// SelectStore makes label the current store.
func (r *Reader) SelectStore(label string) error { return r.mux.Select(label) }

// SelectAutomaticStore makes the automatic store current.
func (r *Reader) SelectAutomaticStore() error {
	if r.opts.NoAutomaticStore {
		return errors.E(errors.UnknownStore, "brio: the automatic store is disabled")
	}
	return r.mux.Select(store.Automatic)
}

// UnselectStore clears the selection; operations then use the
// automatic store.
func (r *Reader) UnselectStore() { r.mux.Unselect() }

// CurrentStore returns the label of the current store.
func (r *Reader) CurrentStore() (string, error) {
	s, err := r.current()
	if err != nil {
		return "", err
	}
	return s.Label, nil
}

func (r *Reader) current() (*store.Store, error) {
	if r.closed {
		return nil, errors.E(errors.Invalid, "brio: reader is closed")
	}
	return r.mux.Current(false, store.Postponed)
}

// StoreTag returns the serial tag of the current store, or the empty
// string for a mixed store.
func (r *Reader) StoreTag() (string, error) {
	s, err := r.current()
	if err != nil {
		return "", err
	}
	return s.SerialTag, nil
}

// NumberOfEntries returns the number of records of the current store.
func (r *Reader) NumberOfEntries() (int64, error) {
	s, err := r.current()
	if err != nil {
		return 0, err
	}
	return s.Count, nil
}

// CurrentEntry returns the cursor of the current store.
func (r *Reader) CurrentEntry() (int64, error) {
	s, err := r.current()
	if err != nil {
		return 0, err
	}
	return s.Cursor, nil
}

// HasNext reports whether the current store has a record after the
// cursor.
func (r *Reader) HasNext() bool {
	s, err := r.current()
	return err == nil && s.HasNext()
}

// HasPrevious reports whether the current store has a record before
// the cursor.
func (r *Reader) HasPrevious() bool {
	s, err := r.current()
	return err == nil && s.HasPrevious()
}

// RewindStore positions the cursor before the first record.
func (r *Reader) RewindStore() error {
	s, err := r.current()
	if err != nil {
		return err
	}
	s.Rewind()
	return nil
}

// UnwindStore positions the cursor after the last record.
func (r *Reader) UnwindStore() error {
	s, err := r.current()
	if err != nil {
		return err
	}
	s.Unwind()
	return nil
}

func (r *Reader) frame(s *store.Store, i int64) (recordio.Frame, error) {
	ix, ok := r.dir.Index(s.Label)
	if !ok {
		return recordio.Frame{}, errors.E(errors.UnknownStore, fmt.Sprintf("brio: store %q has no directory entry", s.Label))
	}
	offset, item, err := ix.Locate(i)
	if err != nil {
		return recordio.Frame{}, err
	}
	f, err := r.src.frame(offset, item)
	if err != nil {
		return f, err
	}
	if f.Store != s.Label {
		return f, errors.E(errors.Format,
			fmt.Sprintf("brio: %s: record %d of store %q belongs to store %q", r.path, i, s.Label, f.Store))
	}
	return f, nil
}

func (r *Reader) archiveOptions() archive.Options {
	return archive.Options{Order: r.order, Platform: r.opts.Platform, Resolver: r.opts.resolver()}
}

// load decodes record i of s into obj, or into a new object made by
// the registry when obj is nil, and moves the cursor to i.
func (r *Reader) load(s *store.Store, i int64, obj archive.Serializable) (archive.Serializable, error) {
	check := !r.opts.NoSerialTagCheck
	if obj != nil && check && s.Dedicated() && s.SerialTag != obj.SerialTag() {
		return nil, errors.E(errors.TagMismatch,
			fmt.Sprintf("brio: store %q holds %q records, not %q", s.Label, s.SerialTag, obj.SerialTag()))
	}
	f, err := r.frame(s, i)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		if r.opts.Registry == nil {
			return nil, errors.E(errors.UnknownTag, fmt.Sprintf("brio: no registry to resolve %q", f.Tag))
		}
		if obj, err = r.opts.Registry.New(f.Tag); err != nil {
			return nil, err
		}
	} else if check && f.Tag != obj.SerialTag() {
		return nil, errors.E(errors.TagMismatch,
			fmt.Sprintf("brio: record %d of store %q is a %q, not a %q", i, s.Label, f.Tag, obj.SerialTag()))
	}
	if err := archive.Unmarshal(r.mode, f.Payload, f.Version, obj, r.archiveOptions()); err != nil {
		return nil, err
	}
	s.Cursor = i
	r.metrics.add(s.Label, len(f.Payload))
	return obj, nil
}

// LoadNext loads the record after the cursor into obj. It fails with
// IndexOutOfRange at the end of the store and with TagMismatch if the
// record is not of obj's type.
func (r *Reader) LoadNext(obj archive.Serializable) error {
	s, err := r.current()
	if err != nil {
		return err
	}
	i, err := s.Next()
	if err != nil {
		return err
	}
	_, err = r.load(s, i, obj)
	return err
}

// LoadNextAny loads the record after the cursor into a new object
// constructed by Options.Registry. It fails with UnknownTag if the
// record's tag is not registered; the cursor then stays in place and
// SkipNext moves past the record.
func (r *Reader) LoadNextAny() (archive.Serializable, error) {
	s, err := r.current()
	if err != nil {
		return nil, err
	}
	i, err := s.Next()
	if err != nil {
		return nil, err
	}
	return r.load(s, i, nil)
}

// Load loads record index of the current store into obj. It fails with
// IndexOutOfRange if there is no such record.
func (r *Reader) Load(obj archive.Serializable, index int64) error {
	s, err := r.current()
	if err != nil {
		return err
	}
	if err := s.Check(index); err != nil {
		return err
	}
	_, err = r.load(s, index, obj)
	return err
}

// LoadPrevious loads the record before the cursor into obj. It fails
// with StartOfStore when the cursor is at or before the first record.
func (r *Reader) LoadPrevious(obj archive.Serializable) error {
	s, err := r.current()
	if err != nil {
		return err
	}
	i, err := s.Previous()
	if err != nil {
		return err
	}
	_, err = r.load(s, i, obj)
	return err
}

// SkipNext moves the cursor past the next record without decoding it.
func (r *Reader) SkipNext() error {
	s, err := r.current()
	if err != nil {
		return err
	}
	i, err := s.Next()
	if err != nil {
		return err
	}
	s.Cursor = i
	return nil
}

// RecordTag returns the serial tag of the record after the cursor
// without moving the cursor.
func (r *Reader) RecordTag() (string, error) {
	s, err := r.current()
	if err != nil {
		return "", err
	}
	i, err := s.Next()
	if err != nil {
		return "", err
	}
	if s.Dedicated() {
		return s.SerialTag, nil
	}
	f, err := r.frame(s, i)
	if err != nil {
		return "", err
	}
	return f.Tag, nil
}

// HasRecordTag reports whether there is a record after the cursor
// whose tag can be read.
func (r *Reader) HasRecordTag() bool {
	tag, err := r.RecordTag()
	return err == nil && tag != ""
}

// RecordTagIs reports whether the record after the cursor has the
// given serial tag.
func (r *Reader) RecordTagIs(tag string) bool {
	got, err := r.RecordTag()
	return err == nil && got == tag
}

// Close closes the file. Close is idempotent; calls after the first
// return nil.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.close()
}
