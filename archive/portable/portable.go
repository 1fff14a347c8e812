// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package portable implements the platform independent numeric
// encoding used by binary archives.
//
// An integer is stored as a signed size byte followed by the
// significant bytes of its magnitude. The size byte is the number of
// magnitude bytes, negated for negative values; zero is stored as a
// single zero byte. The magnitude bytes are written in the wire byte
// order of the file, so a value written on one platform decodes to
// the same value on any other platform, regardless of its word size
// or endianness. A decoder reports IntegerOverflow when the value
// does not fit the destination width and Signedness when a negative
// value is decoded into an unsigned destination.
//
// A floating point value is stored as a class byte. Finite values and
// denormals are followed by their IEEE-754 bit pattern encoded as an
// unsigned integer. NaN and the infinities are stored as the class
// byte alone, so that no platform specific NaN payload ever reaches
// the file.
package portable

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/grailbio/brio/errors"
)

// MaxIntSize is the largest number of magnitude bytes of an integer.
const MaxIntSize = 8

// Order is the byte order of integer magnitudes on the wire.
type Order int

const (
	// LittleEndian stores the least significant magnitude byte first.
	LittleEndian Order = iota
	// BigEndian stores the most significant magnitude byte first.
	BigEndian
)

// String returns "little" or "big".
func (o Order) String() string {
	if o == BigEndian {
		return "big"
	}
	return "little"
}

// ParseOrder parses an order name produced by Order.String.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	}
	return LittleEndian, errors.E(errors.Invalid, fmt.Sprintf("portable: unknown byte order %q", s))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Order) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	order, err := ParseOrder(s)
	if err != nil {
		return err
	}
	*o = order
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (o Order) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

// NativeOrder is the byte order of the running platform.
var NativeOrder = func() Order {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}()

// Platform describes which floating point values a decoding platform
// can represent.
type Platform struct {
	// NonFinite is true if the platform represents NaN and infinities.
	NonFinite bool
	// Denormals is true if the platform represents denormal numbers.
	Denormals bool
}

// IEEE is the profile of a platform with full IEEE-754 support. It is
// the profile of every platform Go runs on.
var IEEE = Platform{NonFinite: true, Denormals: true}

// Float classes.
const (
	classFinite   byte = 0
	classNaN      byte = 1
	classPosInf   byte = 2
	classNegInf   byte = 3
	classDenormal byte = 4
)

// Encoder appends portable values to a buffer.
type Encoder struct {
	order Order
	buf   []byte
}

// NewEncoder returns an encoder that writes magnitudes in the given
// order.
func NewEncoder(order Order) *Encoder {
	return &Encoder{order: order}
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// Reset discards the encoded data.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

func (e *Encoder) putMagnitude(neg bool, mag uint64) {
	n := 0
	for m := mag; m != 0; m >>= 8 {
		n++
	}
	if neg {
		e.buf = append(e.buf, byte(int8(-n)))
	} else {
		e.buf = append(e.buf, byte(n))
	}
	switch e.order {
	case BigEndian:
		for i := n - 1; i >= 0; i-- {
			e.buf = append(e.buf, byte(mag>>(8*uint(i))))
		}
	default:
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(mag>>(8*uint(i))))
		}
	}
}

// PutInt encodes a signed integer.
func (e *Encoder) PutInt(v int64) {
	if v < 0 {
		e.putMagnitude(true, uint64(-v))
		return
	}
	e.putMagnitude(false, uint64(v))
}

// PutUint encodes an unsigned integer.
func (e *Encoder) PutUint(v uint64) {
	e.putMagnitude(false, v)
}

// PutBool encodes a boolean as a single byte.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// PutFloat64 encodes a double precision value.
func (e *Encoder) PutFloat64(v float64) {
	switch {
	case math.IsNaN(v):
		e.buf = append(e.buf, classNaN)
	case math.IsInf(v, 1):
		e.buf = append(e.buf, classPosInf)
	case math.IsInf(v, -1):
		e.buf = append(e.buf, classNegInf)
	default:
		bits := math.Float64bits(v)
		if bits&0x7ff0000000000000 == 0 && bits&0x000fffffffffffff != 0 {
			e.buf = append(e.buf, classDenormal)
		} else {
			e.buf = append(e.buf, classFinite)
		}
		e.PutUint(bits)
	}
}

// PutFloat32 encodes a single precision value.
func (e *Encoder) PutFloat32(v float32) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		e.buf = append(e.buf, classNaN)
	case math.IsInf(f, 1):
		e.buf = append(e.buf, classPosInf)
	case math.IsInf(f, -1):
		e.buf = append(e.buf, classNegInf)
	default:
		bits := math.Float32bits(v)
		if bits&0x7f800000 == 0 && bits&0x007fffff != 0 {
			e.buf = append(e.buf, classDenormal)
		} else {
			e.buf = append(e.buf, classFinite)
		}
		e.PutUint(uint64(bits))
	}
}

// PutBytes encodes a length-prefixed byte string.
func (e *Encoder) PutBytes(p []byte) {
	e.PutUint(uint64(len(p)))
	e.buf = append(e.buf, p...)
}

// PutString encodes a length-prefixed string.
func (e *Encoder) PutString(s string) {
	e.PutUint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// Decoder reads portable values from a buffer. Decoding errors are
// returned by each method; a decoder is not usable after an error.
type Decoder struct {
	order    Order
	platform Platform
	data     []byte
	off      int
}

// NewDecoder returns a decoder for data written in the given order,
// decoding on a platform with the given profile.
func NewDecoder(data []byte, order Order, platform Platform) *Decoder {
	return &Decoder{order: order, platform: platform, data: data}
}

// Remaining returns the number of undecoded bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.off }

func (d *Decoder) readByte() (byte, error) {
	if d.off >= len(d.data) {
		return 0, errors.E(errors.Format, "portable: unexpected end of data")
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *Decoder) magnitude() (neg bool, mag uint64, err error) {
	b, err := d.readByte()
	if err != nil {
		return false, 0, err
	}
	size := int(int8(b))
	if size < 0 {
		neg, size = true, -size
	}
	if size > MaxIntSize {
		return false, 0, errors.E(errors.Format, fmt.Sprintf("portable: integer size %d exceeds %d bytes", size, MaxIntSize))
	}
	if d.Remaining() < size {
		return false, 0, errors.E(errors.Format, "portable: truncated integer")
	}
	p := d.data[d.off : d.off+size]
	d.off += size
	switch d.order {
	case BigEndian:
		for _, c := range p {
			mag = mag<<8 | uint64(c)
		}
	default:
		for i := size - 1; i >= 0; i-- {
			mag = mag<<8 | uint64(p[i])
		}
	}
	if size > 0 && mag>>(8*uint(size-1)) == 0 {
		return false, 0, errors.E(errors.Format, "portable: non-canonical integer")
	}
	return neg, mag, nil
}

// Int decodes a signed integer that must fit in the given number of
// bits.
func (d *Decoder) Int(bits int) (int64, error) {
	neg, mag, err := d.magnitude()
	if err != nil {
		return 0, err
	}
	limit := uint64(1) << uint(bits-1)
	if neg {
		if mag > limit {
			return 0, errors.E(errors.IntegerOverflow, fmt.Sprintf("portable: -%d does not fit in int%d", mag, bits))
		}
		return int64(^mag + 1), nil
	}
	if mag >= limit {
		return 0, errors.E(errors.IntegerOverflow, fmt.Sprintf("portable: %d does not fit in int%d", mag, bits))
	}
	return int64(mag), nil
}

// Uint decodes an unsigned integer that must fit in the given number
// of bits.
func (d *Decoder) Uint(bits int) (uint64, error) {
	neg, mag, err := d.magnitude()
	if err != nil {
		return 0, err
	}
	if neg {
		return 0, errors.E(errors.Signedness, fmt.Sprintf("portable: -%d decoded as uint%d", mag, bits))
	}
	if bits < 64 && mag>>uint(bits) != 0 {
		return 0, errors.E(errors.IntegerOverflow, fmt.Sprintf("portable: %d does not fit in uint%d", mag, bits))
	}
	return mag, nil
}

// Bool decodes a boolean.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.E(errors.Format, fmt.Sprintf("portable: invalid boolean byte %#x", b))
}

func (d *Decoder) class() (byte, error) {
	c, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch c {
	case classNaN, classPosInf, classNegInf:
		if !d.platform.NonFinite {
			return 0, errors.E(errors.NonPortableValue, "portable: platform cannot represent NaN or infinity")
		}
	case classDenormal:
		if !d.platform.Denormals {
			return 0, errors.E(errors.NonPortableValue, "portable: platform cannot represent denormal numbers")
		}
	case classFinite:
	default:
		return 0, errors.E(errors.Format, fmt.Sprintf("portable: invalid float class %d", c))
	}
	return c, nil
}

// Float64 decodes a double precision value.
func (d *Decoder) Float64() (float64, error) {
	c, err := d.class()
	if err != nil {
		return 0, err
	}
	switch c {
	case classNaN:
		return math.NaN(), nil
	case classPosInf:
		return math.Inf(1), nil
	case classNegInf:
		return math.Inf(-1), nil
	}
	bits, err := d.Uint(64)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// Float32 decodes a single precision value.
func (d *Decoder) Float32() (float32, error) {
	c, err := d.class()
	if err != nil {
		return 0, err
	}
	switch c {
	case classNaN:
		return float32(math.NaN()), nil
	case classPosInf:
		return float32(math.Inf(1)), nil
	case classNegInf:
		return float32(math.Inf(-1)), nil
	}
	bits, err := d.Uint(32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(bits)), nil
}

// Bytes decodes a length-prefixed byte string. The returned slice
// aliases the decoder's buffer.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint(64)
	if err != nil {
		return nil, err
	}
	if uint64(d.Remaining()) < n {
		return nil, errors.E(errors.Format, fmt.Sprintf("portable: truncated string of length %d", n))
	}
	p := d.data[d.off : d.off+int(n)]
	d.off += int(n)
	return p, nil
}

// String decodes a length-prefixed string.
func (d *Decoder) String() (string, error) {
	p, err := d.Bytes()
	return string(p), err
}
