// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"bytes"
	"flag"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/brio/archive/portable"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/store"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "opts.yaml")
	assert.NoError(t, ioutil.WriteFile(path, []byte(`
format: xml
compression: zstd
transformers: ["zstd 3", snappy]
byte-order: big
max-block-items: 128
allow-mixed-stores: true
protect-existing: true
log-level: error
`), 0644))
	opts, err := LoadOptions(path)
	assert.NoError(t, err)
	expect.EQ(t, opts.Format, fileio.XML)
	expect.EQ(t, opts.Compression, fileio.Zstd)
	expect.EQ(t, opts.Transformers, []string{"zstd 3", "snappy"})
	expect.EQ(t, opts.ByteOrder, portable.BigEndian)
	expect.EQ(t, opts.MaxBlockItems, uint32(128))
	expect.True(t, opts.AllowMixedStores)
	expect.True(t, opts.ProtectExisting)
	expect.False(t, opts.NoAutomaticStore)
	expect.EQ(t, opts.LogLevel, "error")

	for _, c := range []struct{ name, yaml string }{
		{"unknown-key.yaml", "colour: blue\n"},
		{"bad-format.yaml", "format: csv\n"},
		{"bad-order.yaml", "byte-order: middle\n"},
		{"bad-level.yaml", "log-level: chatty\n"},
		{"compressed-binary.yaml", "format: binary\ncompression: gzip\n"},
	} {
		p := filepath.Join(dir, c.name)
		assert.NoError(t, ioutil.WriteFile(p, []byte(c.yaml), 0644))
		_, err := LoadOptions(p)
		expect.True(t, errors.Is(errors.Invalid, err), "%s: %v", c.name, err)
	}
	_, err = LoadOptions(filepath.Join(dir, "missing.yaml"))
	expect.True(t, errors.Is(errors.FileNotFound, err))
}

func TestRegisterFlags(t *testing.T) {
	var opts Options
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	RegisterFlags(fs, "brio-", &opts)
	require.NoError(t, fs.Parse([]string{
		"-brio-format", "text",
		"-brio-compression", "gzip",
		"-brio-transformers", "flate 9, snappy",
		"-brio-byte-order", "big",
		"-brio-max-block-items", "64",
		"-brio-no-automatic-store",
		"-brio-log-level", "debug",
	}))
	require.Equal(t, fileio.Text, opts.Format)
	require.Equal(t, fileio.Gzip, opts.Compression)
	require.Equal(t, []string{"flate 9", "snappy"}, opts.Transformers)
	require.Equal(t, portable.BigEndian, opts.ByteOrder)
	require.Equal(t, uint32(64), opts.MaxBlockItems)
	require.True(t, opts.NoAutomaticStore)
	require.False(t, opts.AllowMixedStores)
	require.Equal(t, "debug", opts.LogLevel)

	for _, args := range [][]string{
		{"-brio-format", "csv"},
		{"-brio-compression", "lzma"},
		{"-brio-byte-order", "middle"},
		{"-brio-max-block-items", "-1"},
	} {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(ioutil.Discard)
		RegisterFlags(fs, "brio-", &Options{})
		require.Error(t, fs.Parse(args), "%v", args)
	}
}

func TestMetrics(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	reg := prometheus.NewRegistry()
	hits := testHits(3)
	for _, name := range []string{"m.brio", "m.trio"} {
		path := filepath.Join(dir, name)
		w, err := Create(path, Options{Metrics: reg})
		require.NoError(t, err)
		require.NoError(t, w.AddStore("extra"))
		require.NoError(t, w.Store(&hits[0]))
		w.UnselectStore()
		for i := range hits {
			require.NoError(t, w.Store(&hits[i]))
		}
		require.NoError(t, w.Close())

		r, err := Open(path, Options{Metrics: reg})
		require.NoError(t, err)
		var h = hits[0]
		require.NoError(t, r.LoadNext(&h))
		require.NoError(t, r.Close())
	}
	require.Equal(t, 3.0, promtest.ToFloat64(writtenCounter(t, reg, "binary", store.Automatic)))
	require.Equal(t, 1.0, promtest.ToFloat64(writtenCounter(t, reg, "binary", "extra")))
	require.Equal(t, 3.0, promtest.ToFloat64(writtenCounter(t, reg, "text", store.Automatic)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		"brio_records_written_total", "brio_payload_bytes_written_total",
		"brio_records_read_total", "brio_payload_bytes_read_total",
	} {
		require.True(t, names[name], name)
	}
}

// writtenCounter returns the written-records counter of a store,
// reusing the collector registered by the writers.
func writtenCounter(t *testing.T, reg prometheus.Registerer, format, label string) prometheus.Counter {
	m, err := newMetrics(reg, "written", format)
	require.NoError(t, err)
	return m.records.WithLabelValues(format, label)
}

func TestDump(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "dump.brio")
	w, err := Create(path, Options{AllowMixedStores: true, Transformers: []string{"zstd"}})
	assert.NoError(t, err)
	assert.NoError(t, w.AddHeader("run", 7))
	assert.NoError(t, w.AddMixedStore("misc"))
	assert.NoError(t, w.AddStore("empty"))
	assert.NoError(t, w.SelectStore("misc"))
	hits := testHits(3)
	for i := range hits {
		assert.NoError(t, w.Store(&hits[i]))
	}
	var buf bytes.Buffer
	assert.NoError(t, w.Dump(&buf))
	out := buf.String()
	expect.HasSubstr(t, out, "brio.Writer:\n")
	expect.HasSubstr(t, out, "Transformers: zstd\n")
	expect.HasSubstr(t, out, "Records: 3\n")
	expect.HasSubstr(t, out, "run = 7\n")
	expect.HasSubstr(t, out, "Store label: 'misc'\n")
	expect.HasSubstr(t, out, "Serialization tag = <mixed>\n")
	expect.HasSubstr(t, out, "Serialization tag = <postponed>\n")
	expect.HasSubstr(t, out, "Current store: 'misc'\n")
	expect.HasSubstr(t, out, "`-- Allow mixed stores: true\n")
	assert.NoError(t, w.Close())

	r, err := Open(path, Options{})
	assert.NoError(t, err)
	defer r.Close()
	assert.NoError(t, r.SelectStore("misc"))
	var h = hits[0]
	assert.NoError(t, r.LoadNext(&h))
	buf.Reset()
	assert.NoError(t, r.Dump(&buf))
	out = buf.String()
	expect.HasSubstr(t, out, "brio.Reader:\n")
	expect.HasSubstr(t, out, "|-- File: '"+path+"'\n")
	expect.HasSubstr(t, out, "Format: binary\n")
	expect.HasSubstr(t, out, "Recovered: false\n")
	expect.HasSubstr(t, out, "format = brio\n")
	expect.HasSubstr(t, out, "Number of entries = 3\n")
	expect.HasSubstr(t, out, "Current entry     = #0 in [ 0 : 2 ]\n")
	expect.HasSubstr(t, out, "Current entry     = <rewind>\n")
	expect.HasSubstr(t, out, "Stores: 2\n")
	expect.HasSubstr(t, out, "`-- Check serial tag: true\n")
}
