// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package archive

import (
	"fmt"

	"github.com/grailbio/brio/archive/portable"
	"github.com/grailbio/brio/errors"
)

type binaryEncoder struct {
	e   *portable.Encoder
	err *errors.Once
}

func (b *binaryEncoder) loading() bool { return false }

func (b *binaryEncoder) int(_ string, v *int64, _ int)     { b.e.PutInt(*v) }
func (b *binaryEncoder) uint(_ string, v *uint64, _ int)   { b.e.PutUint(*v) }
func (b *binaryEncoder) bool(_ string, v *bool)            { b.e.PutBool(*v) }
func (b *binaryEncoder) string(_ string, v *string)        { b.e.PutString(*v) }
func (b *binaryEncoder) bytes(_ string, v *[]byte)         { b.e.PutBytes(*v) }
func (b *binaryEncoder) end(string)                        {}
func (b *binaryEncoder) finish()                           {}
func (b *binaryEncoder) remaining() int                    { return 0 }
func (b *binaryEncoder) begin(_ string, v *uint32, _ bool) { b.e.PutUint(uint64(*v)) }

func (b *binaryEncoder) float(_ string, v *float64, bits int) {
	if bits == 32 {
		b.e.PutFloat32(float32(*v))
	} else {
		b.e.PutFloat64(*v)
	}
}

func (b *binaryEncoder) poly(_ string, tag *string) bool {
	b.e.PutString(*tag)
	return *tag != ""
}

type binaryDecoder struct {
	d   *portable.Decoder
	err *errors.Once
}

func (b *binaryDecoder) loading() bool { return true }

func (b *binaryDecoder) fail(name string, err error) {
	b.err.Set(errors.E(fmt.Sprintf("archive: field %q", name), err))
}

func (b *binaryDecoder) int(name string, v *int64, bits int) {
	x, err := b.d.Int(bits)
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = x
}

func (b *binaryDecoder) uint(name string, v *uint64, bits int) {
	x, err := b.d.Uint(bits)
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = x
}

func (b *binaryDecoder) float(name string, v *float64, bits int) {
	if bits == 32 {
		x, err := b.d.Float32()
		if err != nil {
			b.fail(name, err)
			return
		}
		*v = float64(x)
		return
	}
	x, err := b.d.Float64()
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = x
}

func (b *binaryDecoder) bool(name string, v *bool) {
	x, err := b.d.Bool()
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = x
}

func (b *binaryDecoder) string(name string, v *string) {
	x, err := b.d.String()
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = x
}

func (b *binaryDecoder) bytes(name string, v *[]byte) {
	x, err := b.d.Bytes()
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = append([]byte{}, x...)
}

func (b *binaryDecoder) poly(name string, tag *string) bool {
	b.string(name, tag)
	return *tag != ""
}

func (b *binaryDecoder) begin(name string, v *uint32, _ bool) {
	x, err := b.d.Uint(32)
	if err != nil {
		b.fail(name, err)
		return
	}
	*v = uint32(x)
}

func (b *binaryDecoder) end(string) {}

func (b *binaryDecoder) remaining() int { return b.d.Remaining() }

func (b *binaryDecoder) finish() {
	if n := b.d.Remaining(); n != 0 {
		b.err.Set(errors.E(errors.Format, fmt.Sprintf("archive: %d trailing bytes in binary payload", n)))
	}
}
