// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build !cgo
// +build !cgo

package recordiozstd

import (
	"sync"

	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioiov"
	"github.com/klauspost/compress/zstd"
)

var (
	once    sync.Once
	decoder *zstd.Decoder
)

// Init installs the pure Go zstd transformer in recordio. It can be
// called multiple times, but 2nd and later calls have no effect.
func Init() {
	once.Do(func() {
		var err error
		// A nil reader makes the decoder usable only through DecodeAll,
		// which is safe for concurrent use.
		if decoder, err = zstd.NewReader(nil); err != nil {
			panic(err)
		}
		recordio.RegisterTransformer(
			Name,
			func(config string) (recordio.TransformFunc, error) {
				l, err := parseConfig(config)
				if err != nil {
					return nil, err
				}
				level := zstd.SpeedDefault
				if l >= 0 {
					level = zstd.EncoderLevelFromZstd(l)
				}
				w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
				if err != nil {
					return nil, err
				}
				return func(scratch []byte, in [][]byte) ([]byte, error) {
					flat, release := recordioiov.Flatten(in)
					defer release()
					return w.EncodeAll(flat, scratch[:0]), nil
				}, nil
			},
			func(string) (recordio.TransformFunc, error) {
				return func(scratch []byte, in [][]byte) ([]byte, error) {
					flat, release := recordioiov.Flatten(in)
					defer release()
					return decoder.DecodeAll(flat, scratch[:0])
				}, nil
			})
	})
}
