// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordioxml implements the XML container of brio files:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<brio version="1">
//	<header>
//	<entry key="format" type="string">brio</entry>
//	</header>
//	<store label="hits" tag="archivetest::hit" policy="dedicated"/>
//	<record store="hits" tag="archivetest::hit" version="2" sum="9c1e4d7b2a3f5e60"><id>1</id>...</record>
//	<footer records="1">
//	<store label="hits" tag="archivetest::hit" policy="dedicated" count="1"/>
//	</footer>
//	</brio>
//
// Each record element wraps one XML archive payload; sum is the xxhash
// of the payload bytes exactly as they appear between the record tags.
// Store elements declare a store before its first record. The footer
// and the closing brio tag are written on close.
package recordioxml

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/store"
)

// Version is the container version written to the root element.
const Version = 1

// Checksum returns the payload checksum stored with each record.
func Checksum(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

type xmlEntry struct {
	XMLName xml.Name `xml:"entry"`
	Key     string   `xml:"key,attr"`
	Type    string   `xml:"type,attr"`
	Enc     string   `xml:"enc,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type xmlHeader struct {
	Entries []xmlEntry `xml:"entry"`
}

type xmlStore struct {
	XMLName xml.Name `xml:"store"`
	Label   string   `xml:"label,attr"`
	Tag     string   `xml:"tag,attr"`
	Policy  string   `xml:"policy,attr"`
	Count   *int64   `xml:"count,attr"`
}

type xmlRecord struct {
	Store   string `xml:"store,attr"`
	Tag     string `xml:"tag,attr"`
	Version uint32 `xml:"version,attr"`
	Sum     string `xml:"sum,attr"`
	Payload []byte `xml:",innerxml"`
}

type xmlFooter struct {
	Records int64      `xml:"records,attr"`
	Stores  []xmlStore `xml:"store"`
}

// charData reports whether s can be stored as XML character data.
func charData(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' || r == 0xfffe || r == 0xffff {
			return false
		}
	}
	return true
}

// Writer writes an XML container. Errors are sticky and reported by
// Err and Finish.
type Writer struct {
	w       *bufio.Writer
	err     errors.Once
	records int64
	done    bool
}

// NewWriter writes the XML declaration, the root element and the
// header to w.
func NewWriter(w io.Writer, header recordio.ParsedHeader) *Writer {
	xw := &Writer{w: bufio.NewWriter(w)}
	xw.write(xml.Header)
	xw.write(fmt.Sprintf("<brio version=\"%d\">\n<header>\n", Version))
	for _, kv := range header {
		typ, text, err := recordio.FormatValue(kv.Key, kv.Value)
		if err != nil {
			xw.err.Set(err)
			return xw
		}
		e := xmlEntry{Key: kv.Key, Type: typ, Value: text}
		if !charData(text) {
			e.Enc, e.Value = "quoted", strconv.Quote(text)
		}
		xw.element("entry", &e)
	}
	xw.write("</header>\n")
	return xw
}

func (w *Writer) write(s string) {
	if w.err.Err() != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err.Set(errors.E(errors.FileAccess, "recordioxml: write", err))
	}
}

func (w *Writer) element(name string, v interface{}) {
	if w.err.Err() != nil {
		return
	}
	data, err := xml.Marshal(v)
	if err != nil {
		w.err.Set(errors.E(errors.Invalid, "recordioxml: encode "+name, err))
		return
	}
	w.write(string(data) + "\n")
}

func storeElement(s *store.Store, count bool) *xmlStore {
	e := &xmlStore{Label: s.Label, Tag: s.SerialTag, Policy: s.Policy.String()}
	if count {
		n := s.Count
		e.Count = &n
	}
	return e
}

// DeclareStore writes the declaration of s. It must precede the
// store's first record.
func (w *Writer) DeclareStore(s *store.Store) {
	w.element("store", storeElement(s, false))
}

// Append writes one record. The payload must be a well-formed XML
// fragment.
func (w *Writer) Append(f recordio.Frame) {
	var b bytes.Buffer
	b.WriteString("<record store=\"")
	xml.EscapeText(&b, []byte(f.Store))
	b.WriteString("\" tag=\"")
	xml.EscapeText(&b, []byte(f.Tag))
	fmt.Fprintf(&b, "\" version=\"%d\" sum=\"%s\">", f.Version, Checksum(f.Payload))
	b.Write(f.Payload)
	b.WriteString("</record>\n")
	w.write(b.String())
	w.records++
}

// Records returns the number of records appended.
func (w *Writer) Records() int64 { return w.records }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err.Err() }

// Finish writes the footer and closes the root element, then flushes
// buffered output. It does not close the underlying writer.
func (w *Writer) Finish(stores []*store.Store) error {
	if w.done {
		return w.err.Err()
	}
	w.done = true
	w.write(fmt.Sprintf("<footer records=\"%d\">\n", w.records))
	for _, s := range stores {
		w.element("store", storeElement(s, true))
	}
	w.write("</footer>\n</brio>\n")
	if w.err.Err() == nil {
		if err := w.w.Flush(); err != nil {
			w.err.Set(errors.E(errors.FileAccess, "recordioxml: flush", err))
		}
	}
	return w.err.Err()
}

// Scanner reads an XML container sequentially.
type Scanner struct {
	d       *xml.Decoder
	err     errors.Once
	header  recordio.ParsedHeader
	frame   recordio.Frame
	records int64

	// pending is the first element after the header.
	pending *xml.StartElement

	declared  []*store.Store
	footer    []*store.Store
	ended     bool
	truncated bool
}

// NewScanner reads the root element and the header of r. Errors are
// reported by Err.
func NewScanner(r io.Reader) *Scanner {
	s := &Scanner{d: xml.NewDecoder(bufio.NewReaderSize(r, 64<<10))}
	s.d.Strict = true
	root, ok := s.next()
	if !ok {
		s.err.Set(errors.E(errors.Format, "recordioxml: not a brio xml file"))
		return s
	}
	if root.Name.Local != "brio" {
		s.failf("not a brio xml file: root element <%s>", root.Name.Local)
		return s
	}
	for _, a := range root.Attr {
		if a.Name.Local == "version" && a.Value != strconv.Itoa(Version) {
			s.err.Set(errors.E(errors.UnsupportedVersion, fmt.Sprintf("recordioxml: container version %s", a.Value)))
			return s
		}
	}
	se, ok := s.next()
	if !ok {
		return s
	}
	if se.Name.Local != "header" {
		s.pending = &se
		return s
	}
	var h xmlHeader
	if !s.decode(&h, &se) {
		return s
	}
	for _, e := range h.Entries {
		text := e.Value
		if e.Enc == "quoted" {
			var err error
			if text, err = strconv.Unquote(text); err != nil {
				s.failf("bad quoted header value for %q", e.Key)
				return s
			}
		}
		v, err := recordio.ParseValue(e.Type, text)
		if err != nil {
			s.err.Set(err)
			return s
		}
		s.header = append(s.header, recordio.KeyValue{Key: e.Key, Value: v})
	}
	return s
}

func (s *Scanner) failf(format string, args ...interface{}) {
	s.err.Set(errors.E(errors.Format, "recordioxml: "+fmt.Sprintf(format, args...)))
}

// next returns the next start element of the root's children. It
// returns false at the closing root tag, at the end of the input, or
// on error. An input that stops between two elements, as left by a
// writer that was never closed, marks the file as truncated.
func (s *Scanner) next() (xml.StartElement, bool) {
	for s.err.Err() == nil {
		tok, err := s.d.Token()
		if err != nil {
			if serr, ok := err.(*xml.SyntaxError); ok && serr.Msg == "unexpected EOF" || err == io.EOF {
				s.truncated = true
			} else {
				s.err.Set(errors.E(errors.Format, "recordioxml", err))
			}
			return xml.StartElement{}, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, true
		case xml.EndElement:
			return xml.StartElement{}, false
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				s.failf("unexpected text %.40q", string(t))
				return xml.StartElement{}, false
			}
		}
	}
	return xml.StartElement{}, false
}

func (s *Scanner) decode(v interface{}, se *xml.StartElement) bool {
	if err := s.d.DecodeElement(v, se); err != nil {
		s.err.Set(errors.E(errors.Format, "recordioxml: decode <"+se.Name.Local+">", err))
		return false
	}
	return true
}

func (s *Scanner) parseStore(e xmlStore) *store.Store {
	policy, err := store.ParsePolicy(e.Policy)
	if err != nil {
		s.err.Set(err)
		return nil
	}
	st := store.New(e.Label, e.Tag, policy)
	if e.Count != nil {
		st.Count = *e.Count
	}
	return st
}

// Header returns the header entries.
func (s *Scanner) Header() recordio.ParsedHeader { return s.header }

// Scan reads the next record. It returns false at the end of the
// file or on error.
func (s *Scanner) Scan() bool {
	for !s.ended && s.err.Err() == nil {
		var se xml.StartElement
		if s.pending != nil {
			se, s.pending = *s.pending, nil
		} else {
			var ok bool
			if se, ok = s.next(); !ok {
				if s.err.Err() == nil && !s.truncated {
					s.end()
				}
				return false
			}
		}
		switch se.Name.Local {
		case "record":
			if s.footer != nil {
				s.failf("record after the footer")
				return false
			}
			var rec xmlRecord
			if !s.decode(&rec, &se) {
				return false
			}
			if rec.Tag == "" {
				s.failf("record without a serial tag")
				return false
			}
			if sum := Checksum(rec.Payload); sum != rec.Sum {
				s.failf("checksum mismatch for %q record: stored %s, computed %s", rec.Tag, rec.Sum, sum)
				return false
			}
			s.frame = recordio.Frame{Store: rec.Store, Tag: rec.Tag, Version: rec.Version, Payload: rec.Payload}
			s.records++
			return true
		case "store":
			var e xmlStore
			if !s.decode(&e, &se) {
				return false
			}
			if st := s.parseStore(e); st != nil {
				s.declared = append(s.declared, st)
			}
		case "footer":
			var f xmlFooter
			if !s.decode(&f, &se) {
				return false
			}
			if f.Records != s.records {
				s.failf("footer counts %d records, file holds %d", f.Records, s.records)
				return false
			}
			s.footer = []*store.Store{}
			for _, e := range f.Stores {
				st := s.parseStore(e)
				if st == nil {
					return false
				}
				s.footer = append(s.footer, st)
			}
		default:
			s.failf("unexpected element <%s>", se.Name.Local)
			return false
		}
	}
	return false
}

// end is called at the closing root tag.
func (s *Scanner) end() {
	if s.footer == nil {
		s.failf("missing footer")
		return
	}
	s.ended = true
	for {
		tok, err := s.d.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.err.Set(errors.E(errors.Format, "recordioxml", err))
			return
		}
		if cd, ok := tok.(xml.CharData); !ok || len(bytes.TrimSpace(cd)) > 0 {
			s.failf("data after the root element")
			return
		}
	}
}

// Get returns the record read by the last successful Scan.
func (s *Scanner) Get() recordio.Frame { return s.frame }

// Records returns the number of records scanned so far.
func (s *Scanner) Records() int64 { return s.records }

// Declared returns the stores declared so far, in declaration order.
func (s *Scanner) Declared() []*store.Store { return s.declared }

// Footer returns the footer stores, or nil if the scan has not
// reached the end of a complete file.
func (s *Scanner) Footer() []*store.Store {
	if !s.ended {
		return nil
	}
	return s.footer
}

// Complete reports whether the scan reached the closing root tag.
func (s *Scanner) Complete() bool { return s.ended }

// Truncated reports whether the input stopped before the closing root
// tag.
func (s *Scanner) Truncated() bool { return s.truncated }

// Err returns the first error encountered.
func (s *Scanner) Err() error { return s.err.Err() }
