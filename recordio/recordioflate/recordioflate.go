// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordioflate provides the "flate" transformer. It implements flate
// compression and decompression.  To use:
//
//   - Call recordioflate.Init() when the process starts.
//
//   - Add "flate" to WriterOpts.Transformers. It will compress blocks using
//     flate default compression level. Setting "flate 3" will enable flate
//     compression level 3.
package recordioflate

import (
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioiov"
	"github.com/klauspost/compress/flate"
)

// Name is the registered name of the flate transformer.
const Name = "flate"

func flateCompress(level int, scratch []byte, bufs [][]byte) ([]byte, error) {
	out := bytes.NewBuffer(scratch[:0])
	wr, err := flate.NewWriter(out, level)
	if err != nil {
		return nil, err
	}
	for _, b := range bufs {
		if _, err := wr.Write(b); err != nil {
			return nil, err
		}
	}
	if err := wr.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Uncompress is the uncompress transformer for flate.
func Uncompress(scratch []byte, in [][]byte) ([]byte, error) {
	out := bytes.NewBuffer(scratch[:0])
	r := recordioiov.NewIOVecReader(in)
	frd := flate.NewReader(&r)
	if _, err := io.Copy(out, frd); err != nil {
		return nil, err
	}
	if err := frd.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

var once = sync.Once{}

// Init installs the flate transformer in recordio.  It can be called multiple
// times, but 2nd and later calls have no effect.
func Init() {
	once.Do(func() {
		recordio.RegisterTransformer(
			Name,
			func(config string) (recordio.TransformFunc, error) {
				level := flate.DefaultCompression
				if config != "" {
					var err error
					if level, err = strconv.Atoi(config); err != nil {
						return nil, errors.E(errors.Invalid, "flate level", err)
					}
					if level < flate.HuffmanOnly || level > flate.BestCompression {
						return nil, errors.Errorf(errors.Invalid, "flate level %d out of range", level)
					}
				}
				return func(scratch []byte, in [][]byte) ([]byte, error) {
					return flateCompress(level, scratch, in)
				}, nil
			},
			func(string) (recordio.TransformFunc, error) {
				return Uncompress, nil
			})
	})
}
