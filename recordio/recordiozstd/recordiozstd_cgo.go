// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build cgo
// +build cgo

package recordiozstd

import (
	"sync"

	"github.com/DataDog/zstd"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioiov"
)

// As of 2018-03, zstd.{Compress,Decompress} is much faster than
// io.{Reader,Writer}-based implementations, even though the former incurs extra
// copying.
func zstdCompress(level int, scratch []byte, in [][]byte) ([]byte, error) {
	flat, release := recordioiov.Flatten(in)
	defer release()
	return zstd.CompressLevel(scratch, flat, level)
}

func zstdUncompress(scratch []byte, in [][]byte) ([]byte, error) {
	flat, release := recordioiov.Flatten(in)
	defer release()
	return zstd.Decompress(scratch, flat)
}

var once = sync.Once{}

// Init installs the zstd transformer in recordio.  It can be called multiple
// times, but 2nd and later calls have no effect.
func Init() {
	once.Do(func() {
		recordio.RegisterTransformer(
			Name,
			func(config string) (recordio.TransformFunc, error) {
				level, err := parseConfig(config)
				if err != nil {
					return nil, err
				}
				if level < 0 {
					level = zstd.DefaultCompression
				}
				return func(scratch []byte, in [][]byte) ([]byte, error) {
					return zstdCompress(level, scratch, in)
				}, nil
			},
			func(string) (recordio.TransformFunc, error) {
				return zstdUncompress, nil
			})
	})
}
