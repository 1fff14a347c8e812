// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio

// Utility functions for encoding and parsing keys/values in a header block.

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/grailbio/brio/errors"
)

const (
	// Reserved header keywords.

	// KeyTrailer must be set to true when the file contains a trailer.
	// value type: bool
	KeyTrailer = "trailer"

	// KeyTransformer defines transformer functions used to encode blocks.
	// It may appear more than once; the values are applied in order.
	KeyTransformer = "transformer"

	// KeyFormat identifies the file as a brio file. value type: string
	KeyFormat = "format"
	// KeyFormatVersion is the container format version. value type: int
	KeyFormatVersion = "format-version"
	// KeyMode is the archive mode of the payloads. value type: string
	KeyMode = "mode"
	// KeyMultiStore is true when the file may hold more than one store.
	// value type: bool
	KeyMultiStore = "multi-store"
	// KeyByteOrder is the wire byte order of binary payloads.
	// value type: string
	KeyByteOrder = "byte-order"
	// KeyFileID is a random identifier assigned when the file is
	// created. value type: string
	KeyFileID = "file-id"
)

// KeyValue defines one entry stored in a recordio header block
type KeyValue struct {
	// Key is the header key
	Key string
	// Value is the value corresponding to Key. The value must be one of int*,
	// uint*, float*, bool, or string type.
	Value interface{}
}

// ParsedHeader is the result of parsing the recordio header block contents.
type ParsedHeader []KeyValue

const (
	headerTypeBool   uint8 = 1
	headerTypeInt    uint8 = 2
	headerTypeUint   uint8 = 3
	headerTypeString uint8 = 4
)

// Helper for encoding key/value pairs into bytes to be stored in a header
// block. Thread compatible.
type headerEncoder struct {
	data []byte
}

func (e *headerEncoder) grow(delta int) {
	cur := len(e.data)
	if cap(e.data) >= cur+delta {
		e.data = e.data[:cur+delta]
	} else {
		tmp := make([]byte, cur+delta, (cur+delta)*2)
		copy(tmp, e.data)
		e.data = tmp
	}
}

func (e *headerEncoder) putUint(v uint64) {
	e.putRawByte(headerTypeUint)
	cur := len(e.data)
	e.grow(binary.MaxVarintLen64)
	n := binary.PutUvarint(e.data[cur:], v)
	e.data = e.data[:cur+n]
}

func (e *headerEncoder) putInt(v int64) {
	e.putRawByte(headerTypeInt)
	cur := len(e.data)
	e.grow(binary.MaxVarintLen64)
	n := binary.PutVarint(e.data[cur:], v)
	e.data = e.data[:cur+n]
}

func (e *headerEncoder) putRawByte(b uint8) {
	cur := len(e.data)
	e.grow(1)
	e.data[cur] = b
	e.data = e.data[:cur+1]
}

func (e *headerEncoder) putBool(v bool) {
	e.putRawByte(headerTypeBool)
	if v {
		e.putRawByte(1)
	} else {
		e.putRawByte(0)
	}
}

func (e *headerEncoder) putString(s string) {
	e.putRawByte(headerTypeString)
	e.putUint(uint64(len(s)))
	cur := len(e.data)
	e.grow(len(s))
	copy(e.data[cur:], s)
	e.data = e.data[:cur+len(s)]
}

func (e *headerEncoder) putKeyValue(key string, v interface{}) error {
	e.putString(key)
	switch v := v.(type) {
	case bool:
		e.putBool(v)
	case uint:
		e.putUint(uint64(v))
	case uint8:
		e.putUint(uint64(v))
	case uint16:
		e.putUint(uint64(v))
	case uint32:
		e.putUint(uint64(v))
	case uint64:
		e.putUint(v)
	case int:
		e.putInt(int64(v))
	case int8:
		e.putInt(int64(v))
	case int16:
		e.putInt(int64(v))
	case int32:
		e.putInt(int64(v))
	case int64:
		e.putInt(v)
	case string:
		e.putString(v)
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("recordio: illegal header type %T for key %q", v, key))
	}
	return nil
}

// Helper for decoding header data produced by headerEncoder.  Thread
// compatible.
type headerDecoder struct {
	err  errors.Once
	data []byte
}

func (d *headerDecoder) getRawByte() uint8 {
	if len(d.data) <= 0 {
		d.err.Set(errors.E(errors.Format, "recordio: truncated header"))
		return 0
	}
	b := d.data[0]
	d.data = d.data[1:]
	return b
}

func (d *headerDecoder) getRawValue() interface{} {
	vType := d.getRawByte()
	switch vType {
	case headerTypeBool:
		b := d.getRawByte()
		return b != 0
	case headerTypeUint:
		v, n := binary.Uvarint(d.data)
		if n <= 0 {
			d.err.Set(errors.E(errors.Format, "recordio: failed to parse header uint"))
			return 0
		}
		d.data = d.data[n:]
		return v
	case headerTypeInt:
		v, n := binary.Varint(d.data)
		if n <= 0 {
			d.err.Set(errors.E(errors.Format, "recordio: failed to parse header int"))
			return 0
		}
		d.data = d.data[n:]
		return v
	case headerTypeString:
		rn := d.getRawValue()
		if err := d.err.Err(); err != nil {
			return ""
		}
		n, ok := rn.(uint64)
		if !ok {
			d.err.Set(errors.E(errors.Format, "recordio: failed to read header string length"))
			return ""
		}
		if uint64(len(d.data)) < n {
			d.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: header string of %d bytes overflows the block", n)))
			return ""
		}
		s := string(d.data[:n])
		d.data = d.data[n:]
		return s
	default:
		d.err.Set(errors.E(errors.Format, fmt.Sprintf("recordio: illegal header type %d", vType)))
		return nil
	}
}

func (h *ParsedHeader) marshal() ([]byte, error) {
	e := headerEncoder{}
	e.putUint(uint64(len(*h)))
	for _, kv := range *h {
		if err := e.putKeyValue(kv.Key, kv.Value); err != nil {
			return nil, err
		}
	}
	return e.data, nil
}

func (h *ParsedHeader) unmarshal(data []byte) error {
	d := headerDecoder{data: data}
	vn := d.getRawValue()
	if err := d.err.Err(); err != nil {
		return err
	}
	n, ok := vn.(uint64)
	if !ok {
		d.err.Set(errors.E(errors.Format, "recordio: failed to read the number of header entries"))
		return d.err.Err()
	}
	for i := uint64(0); i < n; i++ {
		vkey := d.getRawValue()
		if d.err.Err() != nil {
			break
		}
		key, ok := vkey.(string)
		if !ok {
			d.err.Set(errors.E(errors.Format, "recordio: header key is not a string"))
			break
		}
		value := d.getRawValue()
		if d.err.Err() != nil {
			break
		}
		*h = append(*h, KeyValue{key, value})
	}
	return d.err.Err()
}

// HasTrailer checks if the header has a "trailer" entry.
func (h ParsedHeader) HasTrailer() bool {
	b, _ := h.Bool(KeyTrailer)
	return b
}

// Get returns the value of the first entry with the given key.
func (h ParsedHeader) Get(key string) (interface{}, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// String returns the string value of key. It reports false if the key
// is absent or holds another type.
func (h ParsedHeader) String(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the boolean value of key.
func (h ParsedHeader) Bool(key string) (bool, bool) {
	v, ok := h.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Int returns the integer value of key. Both signed and unsigned
// entries are accepted.
func (h ParsedHeader) Int(key string) (int64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// Set replaces the value of key, or appends a new entry.
func (h *ParsedHeader) Set(key string, value interface{}) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, KeyValue{key, value})
}

// Transformers returns the values of the transformer entries in order.
func (h ParsedHeader) Transformers() ([]string, error) {
	var names []string
	for _, kv := range h {
		if kv.Key != KeyTransformer {
			continue
		}
		s, ok := kv.Value.(string)
		if !ok {
			return nil, errors.E(errors.Format, fmt.Sprintf("recordio: expect string value for key %v, but found %v", kv.Key, kv.Value))
		}
		names = append(names, s)
	}
	return names, nil
}

// Header value type names used by the text and XML containers.
const (
	ValueTypeBool   = "bool"
	ValueTypeInt    = "int"
	ValueTypeUint   = "uint"
	ValueTypeString = "string"
)

// FormatValue renders a header value for the text and XML containers.
// It returns the value's type name and its text form; strings are
// returned unquoted.
func FormatValue(key string, v interface{}) (typ, text string, err error) {
	switch v := v.(type) {
	case bool:
		return ValueTypeBool, strconv.FormatBool(v), nil
	case uint:
		return ValueTypeUint, strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return ValueTypeUint, strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return ValueTypeUint, strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return ValueTypeUint, strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return ValueTypeUint, strconv.FormatUint(v, 10), nil
	case int:
		return ValueTypeInt, strconv.FormatInt(int64(v), 10), nil
	case int8:
		return ValueTypeInt, strconv.FormatInt(int64(v), 10), nil
	case int16:
		return ValueTypeInt, strconv.FormatInt(int64(v), 10), nil
	case int32:
		return ValueTypeInt, strconv.FormatInt(int64(v), 10), nil
	case int64:
		return ValueTypeInt, strconv.FormatInt(v, 10), nil
	case string:
		return ValueTypeString, v, nil
	}
	return "", "", errors.E(errors.Invalid, fmt.Sprintf("recordio: illegal header type %T for key %q", v, key))
}

// ParseValue is the inverse of FormatValue. Values are returned with
// the types the binary header decoder produces: bool, int64, uint64 or
// string.
func ParseValue(typ, text string) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch typ {
	case ValueTypeBool:
		v, err = strconv.ParseBool(text)
	case ValueTypeInt:
		v, err = strconv.ParseInt(text, 10, 64)
	case ValueTypeUint:
		v, err = strconv.ParseUint(text, 10, 64)
	case ValueTypeString:
		return text, nil
	default:
		return nil, errors.E(errors.Format, fmt.Sprintf("recordio: illegal header type %q", typ))
	}
	if err != nil {
		return nil, errors.E(errors.Format, fmt.Sprintf("recordio: header value %q of type %s", text, typ), err)
	}
	return v, nil
}
