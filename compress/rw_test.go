// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package compress_test

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/brio/compress"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// bzip2Hello is `printf 'hello, bzip2\n' | bzip2`.
const bzip2Hello = "425a6839314159265359b123de4300000359800010400410001264c0102000310340d02001a69103ab6c8284f8bb9229c28485891ef218"

func testReader(t *testing.T, plaintext string, comp fileio.Compression, fn func(t *testing.T, in []byte) []byte) {
	compressed := fn(t, []byte(plaintext))
	cr := bytes.NewReader(compressed)
	r, got := compress.NewReader(cr)
	assert.EQ(t, got, comp)
	assert.NotNil(t, r)
	out := bytes.Buffer{}
	_, err := io.Copy(&out, r)
	assert.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.EQ(t, out.String(), plaintext)
}

// Generate a random ASCII text.
func randomText(buf *strings.Builder, r *rand.Rand, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(byte(r.Intn(96) + 32))
	}
}

var stdGzip = func(t *testing.T, in []byte) []byte {
	buf := bytes.Buffer{}
	w := gzip.NewWriter(&buf)
	_, err := io.Copy(w, bytes.NewReader(in))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	return buf.Bytes()
}

func writerFor(comp fileio.Compression) func(t *testing.T, in []byte) []byte {
	return func(t *testing.T, in []byte) []byte {
		buf := bytes.Buffer{}
		w, err := compress.NewWriter(&buf, comp)
		assert.NoError(t, err)
		_, err = w.Write(in)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		return buf.Bytes()
	}
}

func TestReaderSmall(t *testing.T) {
	compressors := []struct {
		comp fileio.Compression
		fn   func(t *testing.T, in []byte) []byte
	}{
		{fileio.Gzip, stdGzip},
		{fileio.Gzip, writerFor(fileio.Gzip)},
		{fileio.Zstd, writerFor(fileio.Zstd)},
		{fileio.Snappy, writerFor(fileio.Snappy)},
	}
	for ci, c := range compressors {
		t.Run(fmt.Sprint(c.comp, ci), func(t *testing.T) {
			testReader(t, "hello", c.comp, c.fn)
		})
		n := 1
		for i := 1; i < 25; i++ {
			t.Run(fmt.Sprint("i=", ci, ",n=", n), func(t *testing.T) {
				r := rand.New(rand.NewSource(int64(i)))
				n = (n + 1) * 3 / 2
				buf := strings.Builder{}
				randomText(&buf, r, n)
				testReader(t, buf.String(), c.comp, c.fn)
			})
		}
	}
}

func TestBzip2Reader(t *testing.T) {
	data, err := hex.DecodeString(bzip2Hello)
	assert.NoError(t, err)
	expect.EQ(t, compress.Sniff(data), fileio.Bzip2)
	r, comp := compress.NewReader(bytes.NewReader(data))
	assert.EQ(t, comp, fileio.Bzip2)
	got, err := ioutil.ReadAll(r)
	assert.NoError(t, err)
	assert.NoError(t, r.Close())
	expect.EQ(t, string(got), "hello, bzip2\n")

	r = compress.NewReaderPath(bytes.NewReader(data), "run.trio.bz2")
	got, err = ioutil.ReadAll(r)
	assert.NoError(t, err)
	expect.EQ(t, string(got), "hello, bzip2\n")

	_, err = compress.NewWriter(&bytes.Buffer{}, fileio.Bzip2)
	expect.True(t, errors.Is(errors.NotSupported, err))
	_, err = compress.NewWriterPath(&bytes.Buffer{}, "run.trio.bz2")
	expect.True(t, errors.Is(errors.NotSupported, err))
}

func TestPaths(t *testing.T) {
	for _, c := range []struct {
		path string
		comp fileio.Compression
	}{
		{"run.trio.gz", fileio.Gzip},
		{"run.xml.zst", fileio.Zstd},
		{"run.txt.sz", fileio.Snappy},
	} {
		buf := bytes.Buffer{}
		w, err := compress.NewWriterPath(&buf, c.path)
		assert.NoError(t, err)
		_, err = io.WriteString(w, "payload for "+c.path)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		expect.EQ(t, compress.Sniff(buf.Bytes()), c.comp, c.path)

		r := compress.NewReaderPath(bytes.NewReader(buf.Bytes()), c.path)
		got, err := ioutil.ReadAll(r)
		assert.NoError(t, err)
		assert.NoError(t, r.Close())
		expect.EQ(t, string(got), "payload for "+c.path)
	}
	w, err := compress.NewWriterPath(&bytes.Buffer{}, "run.trio")
	assert.NoError(t, err)
	expect.True(t, w == nil)
	expect.True(t, compress.NewReaderPath(bytes.NewReader(nil), "run.xml") == nil)
}

func TestUnknownCompression(t *testing.T) {
	_, err := compress.NewWriter(&bytes.Buffer{}, fileio.Compression(42))
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestCorruptGzip(t *testing.T) {
	data := stdGzip(t, []byte("some text that is long enough to matter"))
	data = data[:len(data)/2]
	r, comp := compress.NewReader(bytes.NewReader(data))
	assert.EQ(t, comp, fileio.Gzip)
	_, err := ioutil.ReadAll(r)
	expect.True(t, err != nil)
}

func TestGzipReaderUncompressed(t *testing.T) {
	data := make([]byte, 128<<10+1)
	got := bytes.Buffer{}

	runTest := func(t *testing.T, n int) {
		for i := range data[:n] {
			// Compression headers contain at least one char > 128, so the
			// plaintext should never be conflated with them.
			data[i] = byte(n + i%128)
		}
		cr := bytes.NewReader(data[:n])
		r, comp := compress.NewReader(cr)
		assert.EQ(t, comp, fileio.None)
		got.Reset()
		nRead, err := io.Copy(&got, r)
		assert.NoError(t, err)
		assert.EQ(t, int(nRead), n)
		assert.NoError(t, r.Close())
		assert.EQ(t, got.Bytes(), data[:n])
	}

	dataSize := 1
	for dataSize <= len(data) {
		n := dataSize
		t.Run(fmt.Sprint(n), func(t *testing.T) { runTest(t, n) })
		t.Run(fmt.Sprint(n-1), func(t *testing.T) { runTest(t, n-1) })
		t.Run(fmt.Sprint(n+1), func(t *testing.T) { runTest(t, n+1) })
		dataSize *= 2
	}
}
