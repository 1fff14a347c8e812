// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordiotext implements the text container of brio files.
// A text file is a sequence of lines:
//
//	#brio-text 1
//	H "format" string "brio"
//	S "hits" "archivetest::hit" dedicated
//	R "hits" "archivetest::hit" 2 9c1e4d7b2a3f5e60 id=1 tdc=0.5 label="a"
//	F "hits" "archivetest::hit" dedicated 1
//	E 1
//
// H lines carry the header, S lines declare a store before its first
// record, R lines carry one record each (store, tag, layout version,
// xxhash of the payload, payload) and the F and E lines form the footer
// written on close. Text payloads never contain a newline, so every
// record is self-delimiting. There is no index: positional access
// rescans the file.
package recordiotext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/store"
)

// Preamble is the first line of every text container.
const Preamble = "#brio-text 1"

// Line kinds.
const (
	kindHeader = 'H'
	kindStore  = 'S'
	kindRecord = 'R'
	kindFooter = 'F'
	kindEnd    = 'E'
)

// Checksum returns the payload checksum stored with each record.
func Checksum(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// Writer writes a text container. Errors are sticky and reported by
// Err and Finish.
type Writer struct {
	w       *bufio.Writer
	err     errors.Once
	records int64
	done    bool
}

// NewWriter writes the preamble and header lines to w.
func NewWriter(w io.Writer, header recordio.ParsedHeader) *Writer {
	tw := &Writer{w: bufio.NewWriter(w)}
	tw.line(Preamble)
	for _, kv := range header {
		typ, text, err := recordio.FormatValue(kv.Key, kv.Value)
		if err != nil {
			tw.err.Set(err)
			return tw
		}
		tw.line(fmt.Sprintf("%c %s %s %s", kindHeader, strconv.Quote(kv.Key), typ, strconv.Quote(text)))
	}
	return tw
}

func (w *Writer) line(s string) {
	if w.err.Err() != nil {
		return
	}
	if _, err := w.w.WriteString(s); err != nil {
		w.err.Set(errors.E(errors.FileAccess, "recordiotext: write", err))
		return
	}
	if err := w.w.WriteByte('\n'); err != nil {
		w.err.Set(errors.E(errors.FileAccess, "recordiotext: write", err))
	}
}

// DeclareStore writes the declaration of s. It must precede the
// store's first record.
func (w *Writer) DeclareStore(s *store.Store) {
	w.line(storeLine(kindStore, s))
}

func storeLine(kind byte, s *store.Store) string {
	return fmt.Sprintf("%c %s %s %s", kind, strconv.Quote(s.Label), strconv.Quote(s.SerialTag), s.Policy)
}

// Append writes one record. The payload must not contain a newline.
func (w *Writer) Append(f recordio.Frame) {
	if strings.IndexByte(string(f.Payload), '\n') >= 0 {
		w.err.Set(errors.E(errors.Invalid, fmt.Sprintf("recordiotext: payload of %q contains a newline", f.Tag)))
		return
	}
	w.line(fmt.Sprintf("%c %s %s %d %s %s", kindRecord,
		strconv.Quote(f.Store), strconv.Quote(f.Tag), f.Version, Checksum(f.Payload), f.Payload))
	w.records++
}

// Records returns the number of records appended.
func (w *Writer) Records() int64 { return w.records }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err.Err() }

// Finish writes the footer listing stores and their counts, then
// flushes buffered output. It does not close the underlying writer.
func (w *Writer) Finish(stores []*store.Store) error {
	if w.done {
		return w.err.Err()
	}
	w.done = true
	for _, s := range stores {
		w.line(fmt.Sprintf("%s %d", storeLine(kindFooter, s), s.Count))
	}
	w.line(fmt.Sprintf("%c %d", kindEnd, w.records))
	if w.err.Err() == nil {
		if err := w.w.Flush(); err != nil {
			w.err.Set(errors.E(errors.FileAccess, "recordiotext: flush", err))
		}
	}
	return w.err.Err()
}

// Scanner reads a text container sequentially. Stores and the footer
// are collected as the scan proceeds.
type Scanner struct {
	r      *bufio.Reader
	err    errors.Once
	header recordio.ParsedHeader
	lineno int

	// pending holds the first line after the header.
	pending string
	frame   recordio.Frame
	records int64

	declared  []*store.Store
	footer    []*store.Store
	ended     bool
	truncated bool
}

// NewScanner reads the preamble and the header lines of r. Errors are
// reported by Err.
func NewScanner(r io.Reader) *Scanner {
	s := &Scanner{r: bufio.NewReaderSize(r, 64<<10)}
	line, ok := s.readLine()
	if !ok {
		if s.err.Err() == nil {
			s.err.Set(errors.E(errors.Format, "recordiotext: empty file"))
		}
		return s
	}
	if line != Preamble {
		s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordiotext: not a brio text file: first line %.40q", line)))
		return s
	}
	for {
		line, ok = s.readLine()
		if !ok {
			return s
		}
		if len(line) == 0 || line[0] != kindHeader {
			s.pending = line
			return s
		}
		f := s.fields(line, 4)
		if f == nil {
			return s
		}
		key, err1 := strconv.Unquote(f[1])
		text, err2 := strconv.Unquote(f[3])
		if err1 != nil || err2 != nil {
			s.failf("bad header entry")
			return s
		}
		v, err := recordio.ParseValue(f[2], text)
		if err != nil {
			s.err.Set(errors.E(fmt.Sprintf("recordiotext: line %d", s.lineno), err))
			return s
		}
		s.header = append(s.header, recordio.KeyValue{Key: key, Value: v})
	}
}

func (s *Scanner) failf(format string, args ...interface{}) {
	s.err.Set(errors.E(errors.Format, fmt.Sprintf("recordiotext: line %d: ", s.lineno)+fmt.Sprintf(format, args...)))
}

// readLine returns the next line without its terminator. A final line
// without a newline marks the file as truncated and is dropped.
func (s *Scanner) readLine() (string, bool) {
	if s.err.Err() != nil {
		return "", false
	}
	line, err := s.r.ReadString('\n')
	switch {
	case err == io.EOF && line == "":
		return "", false
	case err == io.EOF:
		s.truncated = true
		return "", false
	case err != nil:
		s.err.Set(errors.E(errors.FileAccess, "recordiotext: read", err))
		return "", false
	}
	s.lineno++
	return line[:len(line)-1], true
}

// fields splits line into n space-separated fields, the first n-1 of
// which may be Go-quoted strings, the last taking the rest of the
// line.
func (s *Scanner) fields(line string, n int) []string {
	out := make([]string, 0, n)
	rest := line
	for len(out) < n-1 {
		var field string
		if strings.HasPrefix(rest, `"`) {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				s.failf("bad quoted string")
				return nil
			}
			field, rest = q, rest[len(q):]
		} else {
			i := strings.IndexByte(rest, ' ')
			if i < 0 {
				i = len(rest)
			}
			field, rest = rest[:i], rest[i:]
		}
		out = append(out, field)
		if len(out) == n-1 {
			break
		}
		if !strings.HasPrefix(rest, " ") {
			s.failf("expected %d fields", n)
			return nil
		}
		rest = rest[1:]
	}
	switch {
	case rest == "":
		out = append(out, "")
	case rest[0] == ' ':
		out = append(out, rest[1:])
	default:
		s.failf("malformed line")
		return nil
	}
	return out
}

func (s *Scanner) parseStore(f []string) *store.Store {
	label, err1 := strconv.Unquote(f[1])
	tag, err2 := strconv.Unquote(f[2])
	if err1 != nil || err2 != nil {
		s.failf("bad store entry")
		return nil
	}
	words := strings.Fields(f[3])
	if len(words) == 0 {
		s.failf("store entry has no policy")
		return nil
	}
	policy, err := store.ParsePolicy(words[0])
	if err != nil {
		s.err.Set(errors.E(fmt.Sprintf("recordiotext: line %d", s.lineno), err))
		return nil
	}
	return store.New(label, tag, policy)
}

// Header returns the header entries.
func (s *Scanner) Header() recordio.ParsedHeader { return s.header }

// Scan reads the next record. It returns false at the end of the
// file or on error.
func (s *Scanner) Scan() bool {
	for !s.ended {
		var line string
		if s.pending != "" {
			line, s.pending = s.pending, ""
		} else {
			var ok bool
			if line, ok = s.readLine(); !ok {
				return false
			}
		}
		if line == "" {
			s.failf("empty line")
			return false
		}
		switch line[0] {
		case kindRecord:
			return s.parseRecord(line)
		case kindStore:
			f := s.fields(line, 4)
			if f == nil {
				return false
			}
			st := s.parseStore(f)
			if st == nil {
				return false
			}
			s.declared = append(s.declared, st)
		case kindFooter:
			f := s.fields(line, 4)
			if f == nil {
				return false
			}
			st := s.parseStore(f)
			if st == nil {
				return false
			}
			parts := strings.Fields(f[3])
			if len(parts) != 2 {
				s.failf("footer entry has no count")
				return false
			}
			n, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || n < 0 {
				s.failf("bad footer count %q", parts[1])
				return false
			}
			st.Count = n
			s.footer = append(s.footer, st)
		case kindEnd:
			n, err := strconv.ParseInt(strings.TrimSpace(line[1:]), 10, 64)
			if err != nil {
				s.failf("bad record total")
				return false
			}
			if n != s.records {
				s.failf("footer counts %d records, file holds %d", n, s.records)
				return false
			}
			s.ended = true
			if _, ok := s.readLine(); ok {
				s.failf("data after the end of the footer")
			}
		default:
			s.failf("unknown line kind %q", line[0])
			return false
		}
	}
	return false
}

func (s *Scanner) parseRecord(line string) bool {
	if len(s.footer) > 0 {
		s.failf("record after the footer")
		return false
	}
	f := s.fields(line, 6)
	if f == nil {
		return false
	}
	storeLabel, err1 := strconv.Unquote(f[1])
	tag, err2 := strconv.Unquote(f[2])
	if err1 != nil || err2 != nil || tag == "" {
		s.failf("bad record store or tag")
		return false
	}
	version, err := strconv.ParseUint(f[3], 10, 32)
	if err != nil {
		s.failf("bad record version %q", f[3])
		return false
	}
	payload := []byte(f[5])
	if sum := Checksum(payload); sum != f[4] {
		s.failf("checksum mismatch for %q record: stored %s, computed %s", tag, f[4], sum)
		return false
	}
	s.frame = recordio.Frame{Store: storeLabel, Tag: tag, Version: uint32(version), Payload: payload}
	s.records++
	return true
}

// Get returns the record read by the last successful Scan.
func (s *Scanner) Get() recordio.Frame { return s.frame }

// Records returns the number of records scanned so far.
func (s *Scanner) Records() int64 { return s.records }

// Declared returns the stores declared so far, in declaration order.
func (s *Scanner) Declared() []*store.Store { return s.declared }

// Footer returns the footer stores, or nil if the scan has not
// reached a complete footer.
func (s *Scanner) Footer() []*store.Store {
	if !s.ended {
		return nil
	}
	return s.footer
}

// Complete reports whether the scan reached the end of the footer.
func (s *Scanner) Complete() bool { return s.ended }

// Truncated reports whether the file ends with an incomplete line,
// as left by a writer that was never closed.
func (s *Scanner) Truncated() bool { return s.truncated }

// Err returns the first error encountered.
func (s *Scanner) Err() error { return s.err.Err() }
