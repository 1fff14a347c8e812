// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package recordio implements the binary brio container. A file is a
// sequence of blocks, each split into 32KiB checksummed chunks:
//
//	header block   typed key/value pairs (format, mode, byte order, ...)
//	body block*    packed record frames
//	trailer block  opaque bytes, used by brio for the store directory
//
// A body block packs up to WriterOpts.MaxItems frames as
//
//	[uvarint nItems][uvarint size]*nItems [item]*nItems
//
// and each item is one Frame:
//
//	[uvarint len(store)][store][uvarint len(tag)][tag][uvarint version][payload]
//
// Body and trailer blocks pass through the transformers named in the
// header (compression); the header block never does. A frame is
// addressed by its ItemLocation, the offset of its block and its slot
// in the block.
package recordio
