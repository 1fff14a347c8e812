// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package archive serializes the field graph of a single object to
// and from a byte payload. Objects describe themselves with one
// Serialize method that walks their fields in a fixed order; the
// same walk is used to save and to load, so the two directions can
// never disagree about layout:
//
//	func (h *Hit) Serialize(ar archive.Archive, version uint32) error {
//		ar.Int32("id", &h.ID)
//		ar.Float64("tdc", &h.TDC)
//		if archive.Since(version, 2) {
//			ar.String("label", &h.Label)
//		}
//		return ar.Err()
//	}
//
// Three archive modes are supported. Binary archives are compact and
// carry no field names; integers and floats use the portable encoding
// of package portable. Text archives store one line of name=value
// tokens and XML archives one XML fragment; both check field names as
// they load.
package archive

import (
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/grailbio/brio/errors"
)

// Serializable is implemented by every object that can be stored.
type Serializable interface {
	// SerialTag returns the stable type identifier of the concrete
	// type. It must not depend on the receiver's state.
	SerialTag() string
	// ClassVersion returns the current layout version of the type.
	// Versions increase whenever fields are added.
	ClassVersion() uint32
	// Serialize walks the object's fields. When loading, version is
	// the layout version the payload was written with; when saving it
	// is ClassVersion().
	Serialize(ar Archive, version uint32) error
}

// Resolver constructs objects from serial tags when loading
// polymorphic fields. *serial.Registry implements Resolver.
type Resolver interface {
	// New returns a fresh object for tag. It returns an UnknownTag
	// error if tag is not registered.
	New(tag string) (Serializable, error)
	// MinVersion returns the oldest decodable layout version of tag.
	MinVersion(tag string) uint32
}

// Archive is the field visitor passed to Serialize. Each method saves
// or loads one field. Errors are sticky: after the first failure every
// method is a no-op and Err reports the failure.
type Archive interface {
	// Loading is true when the archive is populating the object.
	Loading() bool
	// Mode returns the archive's encoding.
	Mode() Mode

	Bool(name string, v *bool)
	Int(name string, v *int)
	Int8(name string, v *int8)
	Int16(name string, v *int16)
	Int32(name string, v *int32)
	Int64(name string, v *int64)
	Uint(name string, v *uint)
	Uint8(name string, v *uint8)
	Uint16(name string, v *uint16)
	Uint32(name string, v *uint32)
	Uint64(name string, v *uint64)
	Float32(name string, v *float32)
	Float64(name string, v *float64)
	String(name string, v *string)
	Bytes(name string, v *[]byte)
	// Time stores t as seconds since the Unix epoch plus a
	// nanosecond field named name+".ns". Loaded times are in UTC.
	Time(name string, v *time.Time)

	// Len saves or loads the length of a sequence that the caller
	// then walks element by element. Every element must occupy at
	// least one byte of payload; a loaded length larger than the rest
	// of the payload is a Format error.
	Len(name string, n *int)

	// Object saves or loads a statically typed sub-object together
	// with its own layout version.
	Object(name string, obj Serializable)
	// Base saves or loads the base part of a composed object. It must
	// be called before any of the derived object's own fields.
	Base(obj Serializable)
	// Polymorphic saves or loads a dynamically typed sub-object by
	// its serial tag. A nil *obj is stored as an absent value. Loading
	// requires a Resolver.
	Polymorphic(name string, obj *Serializable)

	// Fail records err as the archive's error unless one is already
	// recorded.
	Fail(err error)
	// Err returns the first error encountered.
	Err() error
}

// Since reports whether a payload of the given version carries fields
// introduced in layout version v.
func Since(version, v uint32) bool {
	return version >= v
}

// Mode is the encoding of an archive.
type Mode int

const (
	// Binary archives use the portable numeric encoding and store no
	// field names.
	Binary Mode = iota
	// Text archives store one line of name=value tokens.
	Text
	// XML archives store one XML fragment.
	XML
)

var modeNames = map[Mode]string{
	Binary: "binary",
	Text:   "text",
	XML:    "xml",
}

// String returns the name of mode m.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a mode name produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return Binary, errors.E(errors.Invalid, fmt.Sprintf("archive: unknown mode %q", s))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// A codec implements the primitive operations of one mode. Both
// directions share the interface: when saving, codecs read *v; when
// loading, they store into *v. Codecs report failures through the
// shared errors.Once and become no-ops afterwards.
type codec interface {
	loading() bool
	int(name string, v *int64, bits int)
	uint(name string, v *uint64, bits int)
	float(name string, v *float64, bits int)
	bool(name string, v *bool)
	string(name string, v *string)
	bytes(name string, v *[]byte)
	// poly saves or loads the serial tag of a polymorphic value and
	// reports whether a value is present. An empty tag denotes an
	// absent value.
	poly(name string, tag *string) bool
	// begin saves or loads the layout version of a nested object and
	// opens it. afterPoly is true when begin follows a poly call for
	// the same field.
	begin(name string, version *uint32, afterPoly bool)
	end(name string)
	// remaining returns the number of unread payload bytes.
	remaining() int
	// finish verifies that the whole payload was consumed.
	finish()
}

// ar implements Archive on top of a codec.
type ar struct {
	mode     Mode
	c        codec
	err      *errors.Once
	resolver Resolver
	depth    int
}

// intBits is the width of the native int and uint types.
var intBits = bits.UintSize

// maxDepth bounds object nesting, so corrupt payloads cannot exhaust
// the stack.
const maxDepth = 256

func (a *ar) Loading() bool { return a.c.loading() }
func (a *ar) Mode() Mode    { return a.mode }
func (a *ar) Err() error    { return a.err.Err() }
func (a *ar) Fail(err error) {
	a.err.Set(err)
}

func (a *ar) ok() bool { return a.err.Err() == nil }

func (a *ar) Bool(name string, v *bool) {
	if a.ok() {
		a.c.bool(name, v)
	}
}

func (a *ar) signed(name string, bits int, get func() int64, set func(int64)) {
	if !a.ok() {
		return
	}
	x := get()
	a.c.int(name, &x, bits)
	if a.c.loading() && a.ok() {
		set(x)
	}
}

func (a *ar) unsigned(name string, bits int, get func() uint64, set func(uint64)) {
	if !a.ok() {
		return
	}
	x := get()
	a.c.uint(name, &x, bits)
	if a.c.loading() && a.ok() {
		set(x)
	}
}

func (a *ar) Int(name string, v *int) {
	a.signed(name, intBits, func() int64 { return int64(*v) }, func(x int64) { *v = int(x) })
}

func (a *ar) Int8(name string, v *int8) {
	a.signed(name, 8, func() int64 { return int64(*v) }, func(x int64) { *v = int8(x) })
}

func (a *ar) Int16(name string, v *int16) {
	a.signed(name, 16, func() int64 { return int64(*v) }, func(x int64) { *v = int16(x) })
}

func (a *ar) Int32(name string, v *int32) {
	a.signed(name, 32, func() int64 { return int64(*v) }, func(x int64) { *v = int32(x) })
}

func (a *ar) Int64(name string, v *int64) {
	a.signed(name, 64, func() int64 { return *v }, func(x int64) { *v = x })
}

func (a *ar) Uint(name string, v *uint) {
	a.unsigned(name, intBits, func() uint64 { return uint64(*v) }, func(x uint64) { *v = uint(x) })
}

func (a *ar) Uint8(name string, v *uint8) {
	a.unsigned(name, 8, func() uint64 { return uint64(*v) }, func(x uint64) { *v = uint8(x) })
}

func (a *ar) Uint16(name string, v *uint16) {
	a.unsigned(name, 16, func() uint64 { return uint64(*v) }, func(x uint64) { *v = uint16(x) })
}

func (a *ar) Uint32(name string, v *uint32) {
	a.unsigned(name, 32, func() uint64 { return uint64(*v) }, func(x uint64) { *v = uint32(x) })
}

func (a *ar) Uint64(name string, v *uint64) {
	a.unsigned(name, 64, func() uint64 { return *v }, func(x uint64) { *v = x })
}

func (a *ar) Float32(name string, v *float32) {
	if !a.ok() {
		return
	}
	x := float64(*v)
	a.c.float(name, &x, 32)
	if a.c.loading() && a.ok() {
		*v = float32(x)
	}
}

func (a *ar) Float64(name string, v *float64) {
	if a.ok() {
		a.c.float(name, v, 64)
	}
}

func (a *ar) String(name string, v *string) {
	if a.ok() {
		a.c.string(name, v)
	}
}

func (a *ar) Bytes(name string, v *[]byte) {
	if a.ok() {
		a.c.bytes(name, v)
	}
}

func (a *ar) Time(name string, v *time.Time) {
	var (
		sec  int64
		nsec int32
	)
	if !a.c.loading() {
		sec, nsec = v.Unix(), int32(v.Nanosecond())
	}
	a.Int64(name, &sec)
	a.Int32(name+".ns", &nsec)
	if !a.c.loading() || !a.ok() {
		return
	}
	if nsec < 0 || nsec >= 1e9 {
		a.err.Set(errors.E(errors.Format, fmt.Sprintf("archive: nanoseconds %d out of range for %q", nsec, name)))
		return
	}
	*v = time.Unix(sec, int64(nsec)).UTC()
}

func (a *ar) Len(name string, n *int) {
	a.Int(name, n)
	if !a.c.loading() || !a.ok() {
		return
	}
	switch {
	case *n < 0:
		a.err.Set(errors.E(errors.Format, fmt.Sprintf("archive: negative length %d for %q", *n, name)))
	case *n > a.c.remaining():
		a.err.Set(errors.E(errors.Format,
			fmt.Sprintf("archive: length %d for %q exceeds the %d remaining payload bytes", *n, name, a.c.remaining())))
	}
}

// nested walks obj as a nested object named name.
func (a *ar) nested(name string, obj Serializable, afterPoly bool) {
	if !a.ok() {
		return
	}
	if a.depth >= maxDepth {
		a.err.Set(errors.E(errors.Format, fmt.Sprintf("archive: objects nested deeper than %d", maxDepth)))
		return
	}
	version := obj.ClassVersion()
	a.c.begin(name, &version, afterPoly)
	if !a.ok() {
		return
	}
	if a.c.loading() {
		if err := checkVersion(obj, version, a.resolver); err != nil {
			a.err.Set(err)
			return
		}
	}
	a.depth++
	if err := obj.Serialize(a, version); err != nil {
		a.err.Set(err)
	}
	a.depth--
	if a.ok() {
		a.c.end(name)
	}
}

func (a *ar) Object(name string, obj Serializable) {
	a.nested(name, obj, false)
}

func (a *ar) Base(obj Serializable) {
	a.nested("base", obj, false)
}

func (a *ar) Polymorphic(name string, obj *Serializable) {
	if !a.ok() {
		return
	}
	var tag string
	if !a.c.loading() && *obj != nil {
		tag = (*obj).SerialTag()
	}
	present := a.c.poly(name, &tag)
	if !a.ok() || !present {
		if a.c.loading() && a.ok() {
			*obj = nil
		}
		return
	}
	if !a.c.loading() {
		a.nested(name, *obj, true)
		return
	}
	if a.resolver == nil {
		a.err.Set(errors.E(errors.UnknownTag, fmt.Sprintf("archive: no resolver for tag %q", tag)))
		return
	}
	v, err := a.resolver.New(tag)
	if err != nil {
		a.err.Set(err)
		return
	}
	a.nested(name, v, true)
	if a.ok() {
		*obj = v
	}
}

// checkVersion verifies that obj can be loaded from a payload of the
// given layout version.
func checkVersion(obj Serializable, version uint32, resolver Resolver) error {
	if current := obj.ClassVersion(); version > current {
		return errors.E(errors.UnsupportedVersion,
			fmt.Sprintf("archive: %s version %d is newer than supported version %d", obj.SerialTag(), version, current))
	}
	if resolver != nil {
		if min := resolver.MinVersion(obj.SerialTag()); version < min {
			return errors.E(errors.UnsupportedVersion,
				fmt.Sprintf("archive: %s version %d is older than oldest supported version %d", obj.SerialTag(), version, min))
		}
	}
	return nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func checkName(err *errors.Once, name string) bool {
	if !validName(name) {
		err.Set(errors.E(errors.Invalid, fmt.Sprintf("archive: invalid field name %q", name)))
		return false
	}
	return true
}
