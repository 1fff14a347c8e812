// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/store"
)

const (
	dumpTag     = "|-- "
	dumpLastTag = "`-- "
	dumpSkip    = "|   "
	dumpBlank   = "    "
)

type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) printf(format string, args ...interface{}) {
	if d.err == nil {
		_, d.err = fmt.Fprintf(d.w, format, args...)
	}
}

func (d *dumper) header(h recordio.ParsedHeader, last bool) {
	tag, skip := dumpTag, dumpSkip
	if last {
		tag, skip = dumpLastTag, dumpBlank
	}
	d.printf("%sHeader: %d entries\n", tag, len(h))
	for i, kv := range h {
		t := dumpTag
		if i == len(h)-1 {
			t = dumpLastTag
		}
		d.printf("%s%s%s = %v\n", skip, t, kv.Key, kv.Value)
	}
}

func (d *dumper) stores(stores []*store.Store, current *store.Store, last bool) {
	tag, skip := dumpTag, dumpSkip
	if last {
		tag, skip = dumpLastTag, dumpBlank
	}
	if len(stores) == 0 {
		d.printf("%sStores: <none>\n", tag)
	} else {
		d.printf("%sStores: %d\n", tag, len(stores))
	}
	for i, s := range stores {
		t, sk := dumpTag, dumpSkip
		if i == len(stores)-1 {
			t, sk = dumpLastTag, dumpBlank
		}
		d.printf("%s%sStore label: '%s'\n", skip, t, s.Label)
		tagText := "<mixed>"
		if s.Policy != store.Mixed {
			tagText = "'" + s.SerialTag + "'"
			if s.SerialTag == "" {
				tagText = "<postponed>"
			}
		}
		d.printf("%s%s%sSerialization tag = %s\n", skip, sk, dumpTag, tagText)
		d.printf("%s%s%sNumber of entries = %d\n", skip, sk, dumpTag, s.Count)
		var cursor string
		switch {
		case s.Cursor < 0:
			cursor = "<rewind>"
		case s.Cursor >= s.Count:
			cursor = "<unwind>"
		default:
			cursor = fmt.Sprintf("#%d in [ 0 : %d ]", s.Cursor, s.Count-1)
		}
		d.printf("%s%s%sCurrent entry     = %s\n", skip, sk, dumpLastTag, cursor)
	}
	cur := "<none>"
	if current != nil {
		cur = "'" + current.Label + "'"
	}
	d.printf("%sCurrent store: %s\n", dumpTag, cur)
}

func (d *dumper) flag(name string, v bool, last bool) {
	tag := dumpTag
	if last {
		tag = dumpLastTag
	}
	d.printf("%s%s: %v\n", tag, name, v)
}

// Dump writes a tree-style description of the reader: its file, header,
// stores with their cursors, and options.
func (r *Reader) Dump(w io.Writer) error {
	d := &dumper{w: w}
	d.printf("brio.Reader:\n")
	d.printf("%sFile: '%s'\n", dumpTag, r.path)
	d.printf("%sFormat: %s\n", dumpTag, r.typ)
	d.printf("%sRecovered: %v\n", dumpTag, r.recovered)
	d.header(r.header, false)
	d.stores(r.mux.Stores(), r.mux.Selected(), false)
	d.flag("Allow automatic store", !r.opts.NoAutomaticStore, false)
	d.flag("Check serial tag", !r.opts.NoSerialTagCheck, true)
	return d.err
}

// Dump writes a tree-style description of the writer: its file, user
// header, stores, and options.
func (w *Writer) Dump(out io.Writer) error {
	d := &dumper{w: out}
	d.printf("brio.Writer:\n")
	d.printf("%sFile: '%s'\n", dumpTag, w.path)
	d.printf("%sFormat: %s\n", dumpTag, w.typ)
	if w.typ == fileio.Binary && len(w.opts.Transformers) > 0 {
		d.printf("%sTransformers: %s\n", dumpTag, strings.Join(w.opts.Transformers, ", "))
	}
	d.printf("%sRecords: %d\n", dumpTag, w.records)
	d.header(w.header, false)
	d.stores(w.mux.Stores(), w.mux.Selected(), false)
	d.flag("Locked", w.mux.Locked(), false)
	d.flag("Allow automatic store", !w.opts.NoAutomaticStore, false)
	d.flag("Allow mixed stores", w.opts.AllowMixedStores, true)
	return d.err
}
