// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordioxml_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioxml"
	"github.com/grailbio/brio/store"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const hitPayload = `<id>1</id><label enc="quoted">"a\x01"</label><track version="1"><len>2</len></track>`

func writeFile(t *testing.T) string {
	var buf bytes.Buffer
	header := recordio.ParsedHeader{
		{Key: recordio.KeyFormat, Value: "brio"},
		{Key: recordio.KeyMode, Value: "xml"},
		{Key: "count", Value: -7},
		{Key: "odd", Value: "bell\x07 & <tag>"},
	}
	w := recordioxml.NewWriter(&buf, header)
	hits := store.New("hits", "hit", store.Dedicated)
	misc := store.New(`m"isc`, "", store.Mixed)
	w.DeclareStore(hits)
	w.Append(recordio.Frame{Store: "hits", Tag: "hit", Version: 2, Payload: []byte(hitPayload)})
	hits.Count++
	w.DeclareStore(misc)
	w.Append(recordio.Frame{Store: misc.Label, Tag: "a&b", Version: 1})
	misc.Count++
	assert.NoError(t, w.Finish([]*store.Store{hits, misc}))
	return buf.String()
}

func TestRoundTrip(t *testing.T) {
	data := writeFile(t)
	s := recordioxml.NewScanner(strings.NewReader(data))
	assert.NoError(t, s.Err())
	h := s.Header()
	mode, _ := h.String(recordio.KeyMode)
	expect.EQ(t, mode, "xml")
	count, _ := h.Int("count")
	expect.EQ(t, count, int64(-7))
	odd, _ := h.String("odd")
	expect.EQ(t, odd, "bell\x07 & <tag>")

	assert.True(t, s.Scan())
	f := s.Get()
	expect.EQ(t, f.Store, "hits")
	expect.EQ(t, f.Tag, "hit")
	expect.EQ(t, f.Version, uint32(2))
	expect.EQ(t, string(f.Payload), hitPayload)

	assert.True(t, s.Scan())
	f = s.Get()
	expect.EQ(t, f.Store, `m"isc`)
	expect.EQ(t, f.Tag, "a&b")
	expect.EQ(t, len(f.Payload), 0)

	expect.False(t, s.Scan())
	assert.NoError(t, s.Err())
	expect.True(t, s.Complete())
	expect.False(t, s.Truncated())
	expect.EQ(t, s.Records(), int64(2))
	expect.EQ(t, len(s.Declared()), 2)
	footer := s.Footer()
	assert.EQ(t, len(footer), 2)
	expect.EQ(t, footer[0].Count, int64(1))
	expect.EQ(t, footer[1].Label, `m"isc`)
	expect.EQ(t, footer[1].Policy, store.Mixed)
}

func TestUnterminated(t *testing.T) {
	data := writeFile(t)
	data = data[:strings.Index(data, "<footer")]
	s := recordioxml.NewScanner(strings.NewReader(data))
	n := 0
	for s.Scan() {
		n++
	}
	assert.NoError(t, s.Err())
	expect.EQ(t, n, 2)
	expect.True(t, s.Truncated())
	expect.False(t, s.Complete())
	expect.EQ(t, len(s.Footer()), 0)
}

func TestCorrupt(t *testing.T) {
	data := writeFile(t)
	for _, test := range []struct {
		name, data string
	}{
		{"checksum", strings.Replace(data, "<id>1</id>", "<id>2</id>", 1)},
		{"element", strings.Replace(data, "<store label=\"hits\"", "<shop label=\"hits\"", 1)},
		{"records", strings.Replace(data, `<footer records="2">`, `<footer records="3">`, 1)},
		{"trailing", data + "<more/>"},
		{"midrecord", data[:strings.Index(data, "</record>")]},
	} {
		s := recordioxml.NewScanner(strings.NewReader(test.data))
		for s.Scan() {
		}
		if !errors.Is(errors.Format, s.Err()) {
			t.Errorf("%s: expected a format error, got %v", test.name, s.Err())
		}
	}
}

func TestNotXML(t *testing.T) {
	s := recordioxml.NewScanner(strings.NewReader("<html></html>"))
	expect.True(t, errors.Is(errors.Format, s.Err()))
	s = recordioxml.NewScanner(strings.NewReader(`<brio version="9"></brio>`))
	expect.True(t, errors.Is(errors.UnsupportedVersion, s.Err()))
}
