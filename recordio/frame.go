// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/brio/errors"
)

// Frame is one record: an archive payload together with the store it
// belongs to and the serial tag and layout version it was written with.
type Frame struct {
	Store   string
	Tag     string
	Version uint32
	Payload []byte
}

// Size returns an upper bound on the encoded size of f.
func (f Frame) Size() int {
	return 3*binary.MaxVarintLen64 + len(f.Store) + len(f.Tag) + len(f.Payload)
}

// AppendTo appends the encoding of f to buf.
func (f Frame) AppendTo(buf []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(f.Store)))
	buf = append(buf, f.Store...)
	buf = binary.AppendUvarint(buf, uint64(len(f.Tag)))
	buf = append(buf, f.Tag...)
	buf = binary.AppendUvarint(buf, uint64(f.Version))
	return append(buf, f.Payload...)
}

// ParseFrame decodes an item produced by AppendTo. The returned
// payload aliases data.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	store, rest, err := parseString(data, "store")
	if err != nil {
		return f, err
	}
	tag, rest, err := parseString(rest, "tag")
	if err != nil {
		return f, err
	}
	if tag == "" {
		return f, errors.E(errors.Format, "recordio: frame has an empty serial tag")
	}
	v, n := binary.Uvarint(rest)
	if n <= 0 || v > uint64(^uint32(0)) {
		return f, errors.E(errors.Format, "recordio: corrupt frame version")
	}
	f.Store, f.Tag, f.Version, f.Payload = store, tag, uint32(v), rest[n:]
	return f, nil
}

func parseString(data []byte, what string) (string, []byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 || size > uint64(len(data)-n) {
		return "", nil, errors.E(errors.Format, fmt.Sprintf("recordio: corrupt frame %s", what))
	}
	end := n + int(size)
	return string(data[n:end]), data[end:], nil
}
