// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build !cgo
// +build !cgo

// Package zstd wraps github.com/DataDog/zstd and
// github.com/klauspost/compress/zstd for streaming use. It uses
// DataDog/zstd in cgo mode, and klauspost/compress/zstd in noncgo mode.
package zstd

import (
	"io"

	nocgozstd "github.com/klauspost/compress/zstd"
)

type readerWrapper struct {
	*nocgozstd.Decoder
}

func (r *readerWrapper) Close() error {
	r.Decoder.Close()
	return nil
}

// NewReader creates a ReadCloser that uncompresses data.  The returned object
// must be Closed after use.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := nocgozstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &readerWrapper{zr}, nil
}

// NewWriter creates a WriterCloser that compresses data at the default
// level. The returned object must be Closed after use.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nocgozstd.NewWriter(w)
}

// NewWriterLevel is NewWriter with an explicit compression level.
// Negative levels select the default.
func NewWriterLevel(w io.Writer, level int) (io.WriteCloser, error) {
	if level < 0 {
		return NewWriter(w)
	}
	return nocgozstd.NewWriter(w, nocgozstd.WithEncoderLevel(nocgozstd.EncoderLevelFromZstd(level)))
}
