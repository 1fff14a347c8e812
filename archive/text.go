// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package archive

// Text payloads are a single line of space separated tokens:
//
//	name=value       scalar field
//	name={N          open a nested object of layout version N
//	name=@"tag"      polymorphic field; @"" is an absent value
//	{N               open the object of the preceding polymorphic field
//	}                close a nested object
//
// Strings are Go-quoted, so the payload never contains a newline.

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/brio/errors"
)

func formatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

func parseFloat(s string, bits int) (float64, error) {
	switch s {
	case "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, errors.E(errors.Format, fmt.Sprintf("invalid float %q", s))
	}
	return v, nil
}

func parseInt(s string, bits int) (int64, error) {
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, errors.E(errors.IntegerOverflow, fmt.Sprintf("%s does not fit in int%d", s, bits))
		}
		return 0, errors.E(errors.Format, fmt.Sprintf("invalid integer %q", s))
	}
	return v, nil
}

func parseUint(s string, bits int) (uint64, error) {
	if strings.HasPrefix(s, "-") {
		if _, err := strconv.ParseInt(s, 10, 64); err == nil || err.(*strconv.NumError).Err == strconv.ErrRange {
			return 0, errors.E(errors.Signedness, fmt.Sprintf("%s decoded as uint%d", s, bits))
		}
		return 0, errors.E(errors.Format, fmt.Sprintf("invalid integer %q", s))
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, errors.E(errors.IntegerOverflow, fmt.Sprintf("%s does not fit in uint%d", s, bits))
		}
		return 0, errors.E(errors.Format, fmt.Sprintf("invalid integer %q", s))
	}
	return v, nil
}

type textEncoder struct {
	b   strings.Builder
	err *errors.Once
}

func (t *textEncoder) loading() bool { return false }

func (t *textEncoder) token(name, value string) {
	if name != "" && !checkName(t.err, name) {
		return
	}
	if t.b.Len() > 0 {
		t.b.WriteByte(' ')
	}
	if name != "" {
		t.b.WriteString(name)
		t.b.WriteByte('=')
	}
	t.b.WriteString(value)
}

func (t *textEncoder) int(name string, v *int64, _ int) {
	t.token(name, strconv.FormatInt(*v, 10))
}

func (t *textEncoder) uint(name string, v *uint64, _ int) {
	t.token(name, strconv.FormatUint(*v, 10))
}

func (t *textEncoder) float(name string, v *float64, bits int) {
	t.token(name, formatFloat(*v, bits))
}

func (t *textEncoder) bool(name string, v *bool) {
	t.token(name, strconv.FormatBool(*v))
}

func (t *textEncoder) string(name string, v *string) {
	t.token(name, strconv.Quote(*v))
}

func (t *textEncoder) bytes(name string, v *[]byte) {
	t.token(name, hex.EncodeToString(*v))
}

func (t *textEncoder) poly(name string, tag *string) bool {
	t.token(name, "@"+strconv.Quote(*tag))
	return *tag != ""
}

func (t *textEncoder) begin(name string, v *uint32, afterPoly bool) {
	if afterPoly {
		name = ""
	}
	t.token(name, "{"+strconv.FormatUint(uint64(*v), 10))
}

func (t *textEncoder) end(string) { t.token("", "}") }
func (t *textEncoder) finish()    {}

func (t *textEncoder) remaining() int { return 0 }

type textToken struct {
	name, value string
}

type textDecoder struct {
	s   string
	off int
	err *errors.Once
}

func (t *textDecoder) loading() bool { return true }

func (t *textDecoder) remaining() int { return len(t.s) - t.off }

func (t *textDecoder) failf(format string, args ...interface{}) {
	t.err.Set(errors.E(errors.Format, "archive: "+fmt.Sprintf(format, args...)))
}

func (t *textDecoder) skipSpace() {
	for t.off < len(t.s) && t.s[t.off] == ' ' {
		t.off++
	}
}

func (t *textDecoder) next() (tok textToken, ok bool) {
	t.skipSpace()
	if t.off >= len(t.s) {
		t.failf("unexpected end of text payload")
		return tok, false
	}
	rest := t.s[t.off:]
	if rest[0] == '}' || rest[0] == '{' {
		n := strings.IndexByte(rest, ' ')
		if n < 0 {
			n = len(rest)
		}
		t.off += n
		return textToken{value: rest[:n]}, true
	}
	eq := strings.IndexByte(rest, '=')
	if eq <= 0 {
		t.failf("malformed token at offset %d", t.off)
		return tok, false
	}
	tok.name = rest[:eq]
	rest = rest[eq+1:]
	t.off += eq + 1
	var n int
	switch {
	case strings.HasPrefix(rest, `"`), strings.HasPrefix(rest, `@"`):
		start := 0
		if rest[0] == '@' {
			start = 1
		}
		q, err := strconv.QuotedPrefix(rest[start:])
		if err != nil {
			t.failf("unterminated string for field %q", tok.name)
			return tok, false
		}
		n = start + len(q)
	default:
		n = strings.IndexByte(rest, ' ')
		if n < 0 {
			n = len(rest)
		}
	}
	tok.value = rest[:n]
	t.off += n
	return tok, true
}

func (t *textDecoder) field(name string) (string, bool) {
	tok, ok := t.next()
	if !ok {
		return "", false
	}
	if tok.name != name {
		t.failf("expected field %q, found %q", name, tok.name)
		return "", false
	}
	return tok.value, true
}

func (t *textDecoder) set(name string, err error) {
	t.err.Set(errors.E(fmt.Sprintf("archive: field %q", name), err))
}

func (t *textDecoder) int(name string, v *int64, bits int) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := parseInt(s, bits)
	if err != nil {
		t.set(name, err)
		return
	}
	*v = x
}

func (t *textDecoder) uint(name string, v *uint64, bits int) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := parseUint(s, bits)
	if err != nil {
		t.set(name, err)
		return
	}
	*v = x
}

func (t *textDecoder) float(name string, v *float64, bits int) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := parseFloat(s, bits)
	if err != nil {
		t.set(name, err)
		return
	}
	*v = x
}

func (t *textDecoder) bool(name string, v *bool) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := strconv.ParseBool(s)
	if err != nil {
		t.failf("invalid boolean %q for field %q", s, name)
		return
	}
	*v = x
}

func (t *textDecoder) string(name string, v *string) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := strconv.Unquote(s)
	if err != nil {
		t.failf("invalid string %s for field %q", s, name)
		return
	}
	*v = x
}

func (t *textDecoder) bytes(name string, v *[]byte) {
	s, ok := t.field(name)
	if !ok {
		return
	}
	x, err := hex.DecodeString(s)
	if err != nil {
		t.failf("invalid bytes %q for field %q", s, name)
		return
	}
	*v = x
}

func (t *textDecoder) poly(name string, tag *string) bool {
	s, ok := t.field(name)
	if !ok {
		return false
	}
	if !strings.HasPrefix(s, "@") {
		t.failf("field %q is not polymorphic", name)
		return false
	}
	x, err := strconv.Unquote(s[1:])
	if err != nil {
		t.failf("invalid serial tag %s for field %q", s[1:], name)
		return false
	}
	*tag = x
	return x != ""
}

func (t *textDecoder) begin(name string, v *uint32, afterPoly bool) {
	var (
		tok textToken
		ok  bool
	)
	if tok, ok = t.next(); !ok {
		return
	}
	want := name
	if afterPoly {
		want = ""
	}
	if tok.name != want || !strings.HasPrefix(tok.value, "{") {
		t.failf("expected object %q, found %q=%s", name, tok.name, tok.value)
		return
	}
	x, err := strconv.ParseUint(tok.value[1:], 10, 32)
	if err != nil {
		t.failf("invalid version %q for object %q", tok.value[1:], name)
		return
	}
	*v = uint32(x)
}

func (t *textDecoder) end(name string) {
	tok, ok := t.next()
	if !ok {
		return
	}
	if tok.name != "" || tok.value != "}" {
		t.failf("expected end of object %q, found %q", name, tok.name)
	}
}

func (t *textDecoder) finish() {
	t.skipSpace()
	if t.off < len(t.s) {
		t.failf("trailing data in text payload: %q", t.s[t.off:])
	}
}
