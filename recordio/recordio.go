// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio

import (
	"github.com/grailbio/brio/recordio/internal"
)

// TransformFunc is called to (un)compress data. Parameter scratch is passed as
// a performance hint. If the result of the transformation fits in scratch, the
// function should store the result in scratch and return it as the first
// return value. Else, it should allocate a new []byte and return it.
type TransformFunc func(scratch []byte, in [][]byte) (out []byte, err error)

// FormatVersion defines the file-format version.
type FormatVersion int

// V1 is the only format version written.
const V1 FormatVersion = 1

// MaxReadRecordSize defines a max size for a frame when reading to avoid
// crashes for unreasonable requests.
var MaxReadRecordSize = internal.MaxReadRecordSize

// ChunkSize is the size of the chunks blocks are split into. Every
// block occupies a multiple of ChunkSize bytes.
const ChunkSize = internal.ChunkSize

// ItemLocation identifies the location of a frame in a file.
type ItemLocation struct {
	// Location of the first byte of the block within the file. Unit is bytes.
	Block uint64
	// Index of the item within the block. The Nth item in the block (N=1,2,...)
	// has value N-1.
	Item int
}
