// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package compress provides stream compressors and uncompressors for the
// text and XML containers, selected by filename or by sniffing the data.
package compress

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/golang/snappy"
	"github.com/grailbio/brio/compress/zstd"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/klauspost/compress/gzip"
)

// errorReader is a ReadCloser implementation that always returns the given
// error.
type errorReader struct{ err error }

func (r *errorReader) Read(buf []byte) (int, error) { return 0, r.err }
func (r *errorReader) Close() error                 { return r.err }

func isBzip2Header(buf []byte) bool {
	// https://www.forensicswiki.org/wiki/Bzip2
	if len(buf) < 10 {
		return false
	}
	if !(buf[0] == 'B' && buf[1] == 'Z' && buf[2] == 'h' && buf[3] >= '1' && buf[3] <= '9') {
		return false
	}
	if buf[4] == 0x31 && buf[5] == 0x41 &&
		buf[6] == 0x59 && buf[7] == 0x26 &&
		buf[8] == 0x53 && buf[9] == 0x59 { // block magic
		return true
	}
	// eos magic, happens only for an empty bz2 file.
	return buf[4] == 0x17 && buf[5] == 0x72 &&
		buf[6] == 0x45 && buf[7] == 0x38 &&
		buf[8] == 0x50 && buf[9] == 0x90
}

func isGzipHeader(buf []byte) bool {
	if len(buf) < 10 {
		return false
	}
	if !(buf[0] == 0x1f && buf[1] == 0x8b) {
		return false
	}
	if !(buf[2] <= 3 || buf[2] == 8) {
		return false
	}
	if (buf[3] & 0xc0) != 0 {
		return false
	}
	if !(buf[9] <= 0xd || buf[9] == 0xff) {
		return false
	}
	return true
}

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// Sniff returns the compression whose magic header starts buf.
//
// CAUTION: binary data can happen to start with a magic header. Use
// Sniff only on data expected to be ASCII, such as text and XML
// containers.
func Sniff(buf []byte) fileio.Compression {
	switch {
	case isGzipHeader(buf):
		return fileio.Gzip
	case isBzip2Header(buf):
		return fileio.Bzip2
	case bytes.HasPrefix(buf, zstdMagic):
		return fileio.Zstd
	case bytes.HasPrefix(buf, snappyMagic):
		return fileio.Snappy
	}
	return fileio.None
}

// NewReader creates an uncompressing reader by reading the first few bytes of
// the input and finding a magic header for gzip, bzip2, zstd or snappy. It
// returns the uncompressing ReadCloser and the compression found; for
// uncompressed input it returns ioutil.NopCloser over the data and None.
func NewReader(r io.Reader) (io.ReadCloser, fileio.Compression) {
	buf := bytes.Buffer{}
	_, err := io.CopyN(&buf, r, 128)
	var m io.Reader
	switch err {
	case io.EOF:
		m = &buf
	case nil:
		m = io.MultiReader(&buf, r)
	default:
		m = io.MultiReader(&buf, &errorReader{err})
	}
	comp := Sniff(buf.Bytes())
	if comp == fileio.None {
		return ioutil.NopCloser(m), fileio.None
	}
	return NewReaderCompression(m, comp), comp
}

// NewReaderCompression creates a reader that uncompresses data in the
// given format. The caller must close the reader after use; for some
// formats, Close is the only place that reports corruption.
func NewReaderCompression(r io.Reader, comp fileio.Compression) io.ReadCloser {
	switch comp {
	case fileio.Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return &errorReader{errors.E(errors.Format, "gzip header", err)}
		}
		return gz
	case fileio.Bzip2:
		return ioutil.NopCloser(bzip2.NewReader(r))
	case fileio.Zstd:
		z, err := zstd.NewReader(r)
		if err != nil {
			return &errorReader{errors.E(errors.Format, "zstd header", err)}
		}
		return z
	case fileio.Snappy:
		return ioutil.NopCloser(snappy.NewReader(r))
	}
	return ioutil.NopCloser(r)
}

// NewReaderPath creates a reader that uncompresses data read from the given
// reader.  The compression format is determined by the pathname extensions. The
// following extensions are recognized:
//
//	.gz => gzip format
//	.bz2 => bz2 format
//	.zst => zstd format
//	.sz => snappy framing format
//
// For other extensions, this function returns nil.
func NewReaderPath(r io.Reader, path string) io.ReadCloser {
	_, comp := fileio.DetermineType(path)
	if comp == fileio.None {
		return nil
	}
	return NewReaderCompression(r, comp)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter creates a WriteCloser that compresses data in the given
// format. Close flushes the compressor but does not close w. Bzip2 is
// read-only and fails with NotSupported.
func NewWriter(w io.Writer, comp fileio.Compression) (io.WriteCloser, error) {
	switch comp {
	case fileio.None:
		return nopWriteCloser{w}, nil
	case fileio.Gzip:
		return gzip.NewWriter(w), nil
	case fileio.Zstd:
		return zstd.NewWriter(w)
	case fileio.Snappy:
		return snappy.NewBufferedWriter(w), nil
	case fileio.Bzip2:
		return nil, errors.E(errors.NotSupported, "bzip2 writer not supported")
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown compression %d", comp))
}

// NewWriterPath creates a WriteCloser that compresses data.  The compression
// format is determined by the pathname extensions, as in NewReaderPath. For
// uncompressed names, this function returns nil. If this function returns a
// non-nil writecloser, the caller must call Close() once after writing all the
// data.
func NewWriterPath(w io.Writer, path string) (io.WriteCloser, error) {
	_, comp := fileio.DetermineType(path)
	if comp == fileio.None {
		return nil, nil
	}
	wc, err := NewWriter(w, comp)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("compress: %s", path), err)
	}
	return wc, nil
}
