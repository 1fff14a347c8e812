// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package archive

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/grailbio/brio/errors"
)

// XML payloads are fragments with one element per field:
//
//	<id>7</id>
//	<track version="2">...</track>
//	<shape tag="box" version="1">...</shape>
//	<shape tag=""></shape>
//
// Strings that cannot be represented as XML character data are stored
// Go-quoted with enc="quoted".

func xmlSafe(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x09 || r == 0x0a || r == 0x0d:
		case r >= 0x20 && r <= 0xd7ff:
		case r >= 0xe000 && r <= 0xfffd:
		case r >= 0x10000 && r <= 0x10ffff:
		default:
			return false
		}
	}
	return true
}

type xmlEncoder struct {
	b   bytes.Buffer
	err *errors.Once
	tag string
}

func (x *xmlEncoder) loading() bool { return false }

func (x *xmlEncoder) element(name, value string, attrs ...string) {
	if !checkName(x.err, name) {
		return
	}
	x.b.WriteByte('<')
	x.b.WriteString(name)
	for i := 0; i+1 < len(attrs); i += 2 {
		fmt.Fprintf(&x.b, " %s=\"", attrs[i])
		xml.EscapeText(&x.b, []byte(attrs[i+1]))
		x.b.WriteByte('"')
	}
	x.b.WriteByte('>')
	xml.EscapeText(&x.b, []byte(value))
	x.b.WriteString("</")
	x.b.WriteString(name)
	x.b.WriteByte('>')
}

func (x *xmlEncoder) int(name string, v *int64, _ int) {
	x.element(name, strconv.FormatInt(*v, 10))
}

func (x *xmlEncoder) uint(name string, v *uint64, _ int) {
	x.element(name, strconv.FormatUint(*v, 10))
}

func (x *xmlEncoder) float(name string, v *float64, bits int) {
	x.element(name, formatFloat(*v, bits))
}

func (x *xmlEncoder) bool(name string, v *bool) {
	x.element(name, strconv.FormatBool(*v))
}

func (x *xmlEncoder) string(name string, v *string) {
	if xmlSafe(*v) {
		x.element(name, *v)
		return
	}
	x.element(name, strconv.Quote(*v), "enc", "quoted")
}

func (x *xmlEncoder) bytes(name string, v *[]byte) {
	x.element(name, hex.EncodeToString(*v))
}

func (x *xmlEncoder) poly(name string, tag *string) bool {
	if *tag == "" {
		x.element(name, "", "tag", "")
		return false
	}
	x.tag = *tag
	return true
}

func (x *xmlEncoder) begin(name string, v *uint32, afterPoly bool) {
	if !checkName(x.err, name) {
		return
	}
	x.b.WriteByte('<')
	x.b.WriteString(name)
	if afterPoly {
		x.b.WriteString(` tag="`)
		xml.EscapeText(&x.b, []byte(x.tag))
		x.b.WriteByte('"')
	}
	fmt.Fprintf(&x.b, ` version="%d">`, *v)
}

func (x *xmlEncoder) end(name string) {
	x.b.WriteString("</")
	x.b.WriteString(name)
	x.b.WriteByte('>')
}

func (x *xmlEncoder) finish() {}

func (x *xmlEncoder) remaining() int { return 0 }

type xmlDecoder struct {
	d       *xml.Decoder
	size    int
	err     *errors.Once
	pending *xml.StartElement
}

func newXMLDecoder(data []byte, err *errors.Once) *xmlDecoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = true
	return &xmlDecoder{d: d, size: len(data), err: err}
}

func (x *xmlDecoder) loading() bool { return true }

func (x *xmlDecoder) remaining() int { return x.size - int(x.d.InputOffset()) }

func (x *xmlDecoder) failf(format string, args ...interface{}) {
	x.err.Set(errors.E(errors.Format, "archive: "+fmt.Sprintf(format, args...)))
}

// token returns the next token that is not ignorable whitespace,
// a comment, or a processing instruction.
func (x *xmlDecoder) token() (xml.Token, bool) {
	for {
		tok, err := x.d.Token()
		if err != nil {
			if err == io.EOF {
				x.failf("unexpected end of xml payload")
			} else {
				x.err.Set(errors.E(errors.Format, "archive: xml", err))
			}
			return nil, false
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			return t.Copy(), true
		case xml.Comment, xml.ProcInst, xml.Directive:
			continue
		}
		return xml.CopyToken(tok), true
	}
}

func (x *xmlDecoder) start(name string) (xml.StartElement, bool) {
	tok, ok := x.token()
	if !ok {
		return xml.StartElement{}, false
	}
	se, isStart := tok.(xml.StartElement)
	if !isStart || se.Name.Local != name {
		x.failf("expected element <%s>, found %s", name, describe(tok))
		return xml.StartElement{}, false
	}
	return se, true
}

func describe(tok xml.Token) string {
	switch t := tok.(type) {
	case xml.StartElement:
		return "<" + t.Name.Local + ">"
	case xml.EndElement:
		return "</" + t.Name.Local + ">"
	case xml.CharData:
		return strconv.Quote(string(t))
	}
	return fmt.Sprintf("%T", tok)
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// text reads a scalar element and returns its character data.
func (x *xmlDecoder) text(name string) (string, xml.StartElement, bool) {
	se, ok := x.start(name)
	if !ok {
		return "", se, false
	}
	var b bytes.Buffer
	for {
		tok, err := x.d.Token()
		if err != nil {
			x.err.Set(errors.E(errors.Format, fmt.Sprintf("archive: element <%s>", name), err))
			return "", se, false
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), se, true
		case xml.Comment, xml.ProcInst:
		default:
			x.failf("element <%s> is not a scalar", name)
			return "", se, false
		}
	}
}

func (x *xmlDecoder) set(name string, err error) {
	x.err.Set(errors.E(fmt.Sprintf("archive: field %q", name), err))
}

func (x *xmlDecoder) int(name string, v *int64, bits int) {
	s, _, ok := x.text(name)
	if !ok {
		return
	}
	n, err := parseInt(s, bits)
	if err != nil {
		x.set(name, err)
		return
	}
	*v = n
}

func (x *xmlDecoder) uint(name string, v *uint64, bits int) {
	s, _, ok := x.text(name)
	if !ok {
		return
	}
	n, err := parseUint(s, bits)
	if err != nil {
		x.set(name, err)
		return
	}
	*v = n
}

func (x *xmlDecoder) float(name string, v *float64, bits int) {
	s, _, ok := x.text(name)
	if !ok {
		return
	}
	f, err := parseFloat(s, bits)
	if err != nil {
		x.set(name, err)
		return
	}
	*v = f
}

func (x *xmlDecoder) bool(name string, v *bool) {
	s, _, ok := x.text(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		x.failf("invalid boolean %q for field %q", s, name)
		return
	}
	*v = b
}

func (x *xmlDecoder) string(name string, v *string) {
	s, se, ok := x.text(name)
	if !ok {
		return
	}
	if enc, _ := attr(se, "enc"); enc == "quoted" {
		u, err := strconv.Unquote(s)
		if err != nil {
			x.failf("invalid quoted string for field %q", name)
			return
		}
		s = u
	}
	*v = s
}

func (x *xmlDecoder) bytes(name string, v *[]byte) {
	s, _, ok := x.text(name)
	if !ok {
		return
	}
	p, err := hex.DecodeString(s)
	if err != nil {
		x.failf("invalid bytes %q for field %q", s, name)
		return
	}
	*v = p
}

func (x *xmlDecoder) poly(name string, tag *string) bool {
	se, ok := x.start(name)
	if !ok {
		return false
	}
	t, ok := attr(se, "tag")
	if !ok {
		x.failf("element <%s> has no tag attribute", name)
		return false
	}
	*tag = t
	if t == "" {
		x.end(name)
		return false
	}
	x.pending = &se
	return true
}

func (x *xmlDecoder) begin(name string, v *uint32, afterPoly bool) {
	var se xml.StartElement
	if afterPoly && x.pending != nil {
		se, x.pending = *x.pending, nil
	} else {
		var ok bool
		if se, ok = x.start(name); !ok {
			return
		}
	}
	s, ok := attr(se, "version")
	if !ok {
		x.failf("element <%s> has no version attribute", name)
		return
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		x.failf("invalid version %q for object %q", s, name)
		return
	}
	*v = uint32(n)
}

func (x *xmlDecoder) end(name string) {
	tok, ok := x.token()
	if !ok {
		return
	}
	if ee, isEnd := tok.(xml.EndElement); !isEnd || ee.Name.Local != name {
		x.failf("expected </%s>, found %s", name, describe(tok))
	}
}

func (x *xmlDecoder) finish() {
	for {
		tok, err := x.d.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			x.err.Set(errors.E(errors.Format, "archive: xml", err))
			return
		}
		if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) == 0 {
			continue
		}
		x.failf("trailing data in xml payload: %s", describe(tok))
		return
	}
}
