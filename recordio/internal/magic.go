// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package internal

import (
	"hash/crc32"
)

// NumMagicBytes is the size of a magic header stored at the beginning of every
// chunk.
const NumMagicBytes = 8

// MagicBytes is stored in the first 8 bytes of any chunk.
type MagicBytes = [NumMagicBytes]byte

// MagicHeader is a constant random 8 bytes used to distinguish the header block
// of a brio file. It is also the first 8 bytes of the file.
var MagicHeader = MagicBytes{0xcc, 0xad, 0x0b, 0x39, 0x97, 0xf3, 0x21, 0x7e}

// MagicBody marks a block of packed record frames.
var MagicBody = MagicBytes{0x93, 0x0e, 0x44, 0x0f, 0x45, 0x5d, 0x13, 0xb5}

// MagicTrailer is a constant random 8 bytes used to distinguish the trailer block
// of a brio file.
var MagicTrailer = MagicBytes{0x20, 0xc7, 0xeb, 0x22, 0x76, 0x32, 0x95, 0xa1}

// MagicInvalid is a sentinel. It is never stored in storage.
var MagicInvalid = MagicBytes{0xdb, 0xcc, 0x2c, 0x84, 0xe9, 0x98, 0xdd, 0x46}

// MaxReadRecordSize bounds the size of a single frame when reading, to avoid
// crashes on corrupt length fields.
var MaxReadRecordSize = uint64(1 << 29)

// IEEECRC is used to compute IEEE CRC chunk checksums.
var IEEECRC *crc32.Table

func init() {
	IEEECRC = crc32.MakeTable(crc32.IEEE)
}
