// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordiosnappy provides the "snappy" block transformer, a
// fast, lightly compressing alternative to zstd and flate. It takes no
// configuration. To use, call recordiosnappy.Init() when the process
// starts and add "snappy" to WriterOpts.Transformers.
package recordiosnappy

import (
	"sync"

	"github.com/golang/snappy"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioiov"
)

// Name is the registered name of the snappy transformer.
const Name = "snappy"

func compress(scratch []byte, in [][]byte) ([]byte, error) {
	flat, release := recordioiov.Flatten(in)
	defer release()
	return snappy.Encode(scratch[:cap(scratch)], flat), nil
}

func uncompress(scratch []byte, in [][]byte) ([]byte, error) {
	flat, release := recordioiov.Flatten(in)
	defer release()
	return snappy.Decode(scratch[:cap(scratch)], flat)
}

var once sync.Once

// Init installs the snappy transformer in recordio. It can be called
// multiple times, but 2nd and later calls have no effect.
func Init() {
	once.Do(func() {
		recordio.RegisterTransformer(
			Name,
			func(config string) (recordio.TransformFunc, error) {
				if config != "" {
					return nil, errors.Errorf(errors.Invalid, "snappy takes no configuration, got %q", config)
				}
				return compress, nil
			},
			func(string) (recordio.TransformFunc, error) {
				return uncompress, nil
			})
	})
}
