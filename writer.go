// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/store"
)

// FormatName is the value of the "format" header key of every brio
// file.
const FormatName = "brio"

// reservedKeys are header keys set by the writer.
var reservedKeys = map[string]bool{
	recordio.KeyTrailer:       true,
	recordio.KeyTransformer:   true,
	recordio.KeyFormat:        true,
	recordio.KeyFormatVersion: true,
	recordio.KeyMode:          true,
	recordio.KeyMultiStore:    true,
	recordio.KeyByteOrder:     true,
	recordio.KeyFileID:        true,
}

// ReservedHeaderKey reports whether key is set by the writer itself
// and so cannot be passed to AddHeader.
func ReservedHeaderKey(key string) bool { return reservedKeys[key] }

// Writer stores serializable objects in a brio file. Records are
// appended to the selected store, or to the automatic store when no
// store is selected.
//
// The header is written with the first record; AddHeader must be
// called before then. Close must be called to write the store
// directory, otherwise readers have to recover it by scanning the
// file.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	path string
	opts Options
	typ  fileio.FileType
	comp fileio.Compression
	mode archive.Mode

	f        *os.File
	header   recordio.ParsedHeader
	fileID   string
	mux      *store.Multiplexer
	sink     sink
	declared map[string]bool
	// multi is the multi-store header value, fixed when the header is
	// written.
	multi   bool
	records int64
	metrics *metrics
	closed  bool
}

// Create creates the file at path, truncating any existing file unless
// opts.ProtectExisting is set. If Create fails, no file is left
// behind.
func Create(path string, opts Options) (*Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyLogLevel()
	typ, comp, err := opts.fileType(path)
	if err != nil {
		return nil, err
	}
	if comp == fileio.Bzip2 {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("brio: %s: bzip2 files can be read but not written", path))
	}
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if opts.ProtectExisting {
		flags = os.O_RDWR | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0666)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.E(errors.FileAccess, fmt.Sprintf("brio: %s already exists", path), err)
		}
		return nil, errors.E(errors.FileAccess, fmt.Sprintf("brio: create %s", path), err)
	}
	w := &Writer{
		path:     path,
		opts:     opts,
		typ:      typ,
		comp:     comp,
		mode:     archiveMode(typ),
		f:        f,
		fileID:   uuid.New().String(),
		mux:      store.NewMultiplexer(!opts.NoAutomaticStore, opts.AllowMixedStores),
		declared: make(map[string]bool),
	}
	if w.metrics, err = newMetrics(opts.Metrics, "written", typ.String()); err != nil {
		w.abandon()
		return nil, err
	}
	if typ == fileio.Binary {
		// Reject unknown transformers now rather than on the first
		// record.
		check := recordio.NewWriter(nopWriter{}, recordio.WriterOpts{Transformers: opts.Transformers})
		if err := check.Err(); err != nil {
			w.abandon()
			return nil, errors.E(fmt.Sprintf("brio: %s", path), err)
		}
	}
	log.Debug.Printf("%s: created %s file %s", path, typ, w.fileID)
	return w, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// abandon closes and removes a file whose creation failed.
func (w *Writer) abandon() {
	w.f.Close()
	os.Remove(w.path)
	w.closed = true
}

// Path returns the name of the file.
func (w *Writer) Path() string { return w.path }

// FileID returns the random identifier written to the header.
func (w *Writer) FileID() string { return w.fileID }

// Format returns the container type of the file.
func (w *Writer) Format() fileio.FileType { return w.typ }

// AddHeader adds a user key/value to the file header. Values must be
// booleans, integers or strings. Keys reserved by brio are rejected.
func (w *Writer) AddHeader(key string, value interface{}) error {
	switch {
	case w.closed:
		return errors.E(errors.Invalid, "brio: writer is closed")
	case w.sink != nil:
		return errors.E(errors.Invalid, fmt.Sprintf("brio: header key %q added after the first record", key))
	case key == "" || reservedKeys[key]:
		return errors.E(errors.Invalid, fmt.Sprintf("brio: header key %q is reserved", key))
	}
	if _, _, err := recordio.FormatValue(key, value); err != nil {
		return err
	}
	w.header.Set(key, value)
	return nil
}

// Header returns the user header entries added so far.
func (w *Writer) Header() recordio.ParsedHeader { return w.header }

func (w *Writer) addStore(label, tag string, policy store.Policy) error {
	if w.closed {
		return errors.E(errors.Invalid, "brio: writer is closed")
	}
	if w.sink != nil && !w.multi {
		return errors.E(errors.Invalid,
			fmt.Sprintf("brio: store %q added after the header declared a single-store file", label))
	}
	if _, err := w.mux.Add(label, tag, policy); err != nil {
		return err
	}
	log.Debug.Printf("%s: added %s store %q", w.path, policy, label)
	return nil
}

// AddStore adds a store and selects it. The store takes the serial
// tag of the first record stored in it. Stores can be added after the
// first record only if a named store existed when it was written.
func (w *Writer) AddStore(label string) error {
	return w.addStore(label, "", store.Postponed)
}

// AddStoreWithTag adds a store that accepts only records with the
// given serial tag, and selects it.
func (w *Writer) AddStoreWithTag(label, tag string) error {
	return w.addStore(label, tag, store.Dedicated)
}

// AddMixedStore adds a store that accepts records of any serial tag,
// and selects it. It requires Options.AllowMixedStores.
func (w *Writer) AddMixedStore(label string) error {
	return w.addStore(label, "", store.Mixed)
}

// SelectStore makes label the store that Store appends to.
func (w *Writer) SelectStore(label string) error {
	return w.mux.Select(label)
}

// UnselectStore clears the selection, so that Store uses the
// automatic store.
func (w *Writer) UnselectStore() { w.mux.Unselect() }

// HasStore reports whether the file has a store with the given label.
func (w *Writer) HasStore(label string) bool { return w.mux.Has(label) }

// Stores returns the labels of the file's stores, sorted.
func (w *Writer) Stores() []string { return w.mux.Labels() }

// Lock prevents adding stores. The automatic store can still be
// created by Store.
func (w *Writer) Lock() { w.mux.Lock() }

// Unlock allows adding stores again.
func (w *Writer) Unlock() { w.mux.Unlock() }

// Locked reports whether the writer is locked.
func (w *Writer) Locked() bool { return w.mux.Locked() }

func (w *Writer) open() error {
	if w.sink != nil {
		return w.sink.err()
	}
	w.multi = w.multiStore()
	header := recordio.ParsedHeader{
		{Key: recordio.KeyFormat, Value: FormatName},
		{Key: recordio.KeyFormatVersion, Value: int(recordio.V1)},
		{Key: recordio.KeyMode, Value: w.mode.String()},
		{Key: recordio.KeyMultiStore, Value: w.multi},
		{Key: recordio.KeyByteOrder, Value: w.opts.ByteOrder.String()},
		{Key: recordio.KeyFileID, Value: w.fileID},
	}
	header = append(header, w.header...)
	if w.typ == fileio.Binary {
		w.sink = newBinarySink(w.f, header, w.opts)
		return w.sink.err()
	}
	s, err := newStreamSink(w.f, w.typ, w.comp, header)
	if err != nil {
		return errors.E(fmt.Sprintf("brio: %s", w.path), err)
	}
	w.sink = s
	return nil
}

// multiStore reports whether the file has stores other than the
// automatic one.
func (w *Writer) multiStore() bool {
	for _, s := range w.mux.Stores() {
		if s.Label != store.Automatic {
			return true
		}
	}
	return false
}

// Store appends obj to the selected store, or to the automatic store.
// It fails with TagMismatch if the store is dedicated to another
// serial tag, and with UnknownTag if Options.Registry is set and does
// not know obj's tag.
func (w *Writer) Store(obj archive.Serializable) error {
	if w.closed {
		return errors.E(errors.Invalid, "brio: writer is closed")
	}
	tag := obj.SerialTag()
	if tag == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("brio: %T has an empty serial tag", obj))
	}
	if w.opts.Registry != nil {
		if _, err := w.opts.Registry.Resolve(tag); err != nil {
			return err
		}
	}
	// The automatic store is created only once the record is encoded.
	s, err := w.mux.Current(false, store.Postponed)
	create := err != nil && w.mux.Selected() == nil && w.mux.AllowAutomatic
	if err != nil && !create {
		return err
	}
	if s != nil && s.Dedicated() && s.SerialTag != tag {
		return errors.E(errors.TagMismatch,
			fmt.Sprintf("brio: store %q holds %q records, not %q", s.Label, s.SerialTag, tag))
	}
	payload, err := archive.Marshal(w.mode, obj, archive.Options{Order: w.opts.ByteOrder, Resolver: w.opts.resolver()})
	if err != nil {
		return err
	}
	if create {
		if s, err = w.mux.Current(true, store.Postponed); err != nil {
			return err
		}
	}
	if err := s.Accept(tag); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	if !w.declared[s.Label] {
		w.sink.declare(s)
		w.declared[s.Label] = true
	}
	w.sink.append(recordio.Frame{Store: s.Label, Tag: tag, Version: obj.ClassVersion(), Payload: payload}, s)
	if err := w.sink.err(); err != nil {
		return err
	}
	s.Count++
	w.records++
	w.metrics.add(s.Label, len(payload))
	return nil
}

// Records returns the number of records stored.
func (w *Writer) Records() int64 { return w.records }

// Close writes the store directory, or the footer of text and XML
// files, and closes the file. Close is idempotent; calls after the
// first return nil.
func (w *Writer) Close() (err error) {
	if w.closed {
		return nil
	}
	w.closed = true
	defer fileio.CloseAndReport(w.f, &err)
	if err = w.open(); err != nil {
		return err
	}
	if err = w.sink.finish(w.mux.Stores()); err != nil {
		return errors.E(fmt.Sprintf("brio: %s: close", w.path), err)
	}
	log.Debug.Printf("%s: closed after %d records in %d stores", w.path, w.records, len(w.mux.Stores()))
	return nil
}
