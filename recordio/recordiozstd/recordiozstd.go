// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordiozstd provides the "zstd" block transformer. Builds
// with cgo use the DataDog zstd bindings; pure Go builds use
// klauspost/compress. Both produce standard zstd frames, so files are
// interchangeable. To use:
//
//   - Call recordiozstd.Init() when the process starts.
//
//   - Add "zstd" to WriterOpts.Transformers, or "zstd N" for compression
//     level N.
package recordiozstd

import (
	"strconv"

	"github.com/grailbio/brio/errors"
)

// Name is the registered name of the zstd transformer.
const Name = "zstd"

func parseConfig(config string) (level int, err error) {
	level = -1
	if config != "" {
		if level, err = strconv.Atoi(config); err != nil {
			return 0, errors.E(errors.Invalid, "zstd level", err)
		}
		if level < -1 || level > 22 {
			return 0, errors.Errorf(errors.Invalid, "zstd level %d out of range [-1, 22]", level)
		}
	}
	return
}
