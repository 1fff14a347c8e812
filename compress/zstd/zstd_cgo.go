// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build cgo
// +build cgo

// Package zstd wraps github.com/DataDog/zstd and
// github.com/klauspost/compress/zstd for streaming use. It uses
// DataDog/zstd in cgo mode, and klauspost/compress/zstd in noncgo mode.
package zstd

import (
	"io"

	cgozstd "github.com/DataDog/zstd"
)

// NewReader creates a ReadCloser that uncompresses data.  The returned object
// must be Closed after use.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return cgozstd.NewReader(r), nil
}

// NewWriter creates a WriterCloser that compresses data at the default
// level. The returned object must be Closed after use.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return cgozstd.NewWriter(w), nil
}

// NewWriterLevel is NewWriter with an explicit compression level.
// Negative levels select the default.
func NewWriterLevel(w io.Writer, level int) (io.WriteCloser, error) {
	if level < 0 {
		level = cgozstd.DefaultCompression
	}
	return cgozstd.NewWriterLevel(w, level), nil
}
