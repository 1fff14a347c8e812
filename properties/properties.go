// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package properties implements a typed key/value container used to
// carry configuration and run metadata through brio files. Each
// property holds a boolean, integer, real or string scalar or vector,
// an optional description, and for reals an optional unit symbol.
// Properties can be locked against modification.
//
// A Properties value is an ordinary serializable object:
//
//	p := properties.New("detector setup")
//	p.StoreRealWithUnit("gap", 2.5, "mm", "gap between planes")
//	w.Store(p)
package properties

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/serial"
)

// Tag is the serial tag of Properties.
const Tag = "brio::properties"

// PrivatePrefix starts the keys of private properties. Private
// properties are serialized like the others but are left out of
// PublicKeys.
const PrivatePrefix = "__"

// Type is the type of a property's values.
type Type uint8

// Property types. The zero Type is invalid.
const (
	Bool Type = iota + 1
	Int
	Real
	String
)

var typeNames = map[Type]string{
	Bool:   "boolean",
	Int:    "integer",
	Real:   "real",
	String: "string",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Value is one property. The zero Value is invalid; values are made by
// the Store methods of Properties.
type Value struct {
	typ         Type
	vector      bool
	locked      bool
	path        bool
	description string
	unit        string

	bools   []bool
	ints    []int64
	reals   []float64
	strings []string
}

// Type returns the type of the values.
func (v *Value) Type() Type { return v.typ }

// Vector reports whether the property holds a vector rather than a
// scalar.
func (v *Value) Vector() bool { return v.vector }

// Locked reports whether the property is locked.
func (v *Value) Locked() bool { return v.locked }

// Path reports whether a string property is marked as a file path.
func (v *Value) Path() bool { return v.path }

// Description returns the description of the property.
func (v *Value) Description() string { return v.description }

// Unit returns the unit symbol of a real property, or "".
func (v *Value) Unit() string { return v.unit }

// Len returns the number of values; 1 for a scalar.
func (v *Value) Len() int {
	switch v.typ {
	case Bool:
		return len(v.bools)
	case Int:
		return len(v.ints)
	case Real:
		return len(v.reals)
	case String:
		return len(v.strings)
	}
	return 0
}

// text formats the values for Dump.
func (v *Value) text() string {
	var parts []string
	switch v.typ {
	case Bool:
		for _, b := range v.bools {
			parts = append(parts, fmt.Sprint(b))
		}
	case Int:
		for _, i := range v.ints {
			parts = append(parts, fmt.Sprint(i))
		}
	case Real:
		for _, r := range v.reals {
			s := fmt.Sprint(r)
			if v.unit != "" {
				s += " " + v.unit
			}
			parts = append(parts, s)
		}
	case String:
		for _, s := range v.strings {
			parts = append(parts, fmt.Sprintf("%q", s))
		}
	}
	if !v.vector && len(parts) == 1 {
		return parts[0]
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Properties is an ordered set of properties. Keys keep their
// insertion order in files and dumps. Properties is not safe for
// concurrent use.
type Properties struct {
	description string
	keys        []string
	values      map[string]*Value
}

// New returns an empty container.
func New(description string) *Properties {
	return &Properties{description: description, values: make(map[string]*Value)}
}

// SerialTag implements archive.Serializable.
func (*Properties) SerialTag() string { return Tag }

// ClassVersion implements archive.Serializable.
func (*Properties) ClassVersion() uint32 { return 1 }

// RegisterInto registers Properties.
func RegisterInto(r *serial.Registry) error {
	return r.Register(Tag, func() archive.Serializable { return New("") })
}

// ValidKey reports whether key can name a property. Keys are made of
// ASCII letters, digits, '_' and '.', and neither start with a digit
// or a dot nor end with a dot.
func ValidKey(key string) bool {
	if key == "" || key[len(key)-1] == '.' {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9', c == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Description returns the description of the container.
func (p *Properties) Description() string { return p.description }

// SetDescription replaces the description of the container.
func (p *Properties) SetDescription(d string) { p.description = d }

// Len returns the number of properties.
func (p *Properties) Len() int { return len(p.keys) }

// Has reports whether key exists.
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns the property stored under key.
func (p *Properties) Get(key string) (*Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// KeysWithPrefix returns, in insertion order, the keys that start with
// prefix.
func (p *Properties) KeysWithPrefix(prefix string) []string {
	return p.filter(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// KeysWithSuffix returns, in insertion order, the keys that end with
// suffix.
func (p *Properties) KeysWithSuffix(suffix string) []string {
	return p.filter(func(k string) bool { return strings.HasSuffix(k, suffix) })
}

// PublicKeys returns the keys of the properties that are not private.
func (p *Properties) PublicKeys() []string {
	return p.filter(func(k string) bool { return !IsPrivate(k) })
}

// IsPrivate reports whether key names a private property.
func IsPrivate(key string) bool { return strings.HasPrefix(key, PrivatePrefix) }

func (p *Properties) filter(keep func(string) bool) []string {
	var keys []string
	for _, k := range p.keys {
		if keep(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (p *Properties) insert(key string, v *Value) error {
	if !ValidKey(key) && !(IsPrivate(key) && ValidKey(key[len(PrivatePrefix):])) {
		return errors.E(errors.Invalid, fmt.Sprintf("properties: invalid key %q", key))
	}
	if _, ok := p.values[key]; ok {
		return errors.E(errors.Invalid, fmt.Sprintf("properties: key %q already exists", key))
	}
	if p.values == nil {
		p.values = make(map[string]*Value)
	}
	p.keys = append(p.keys, key)
	p.values[key] = v
	return nil
}

// StoreBool adds a boolean property. It fails with Invalid if key is
// not a valid key or already exists.
func (p *Properties) StoreBool(key string, b bool, description string) error {
	return p.insert(key, &Value{typ: Bool, bools: []bool{b}, description: description})
}

// StoreInt adds an integer property.
func (p *Properties) StoreInt(key string, i int64, description string) error {
	return p.insert(key, &Value{typ: Int, ints: []int64{i}, description: description})
}

// StoreReal adds a real property.
func (p *Properties) StoreReal(key string, r float64, description string) error {
	return p.insert(key, &Value{typ: Real, reals: []float64{r}, description: description})
}

// StoreRealWithUnit adds a real property annotated with a unit
// symbol, for example "mm".
func (p *Properties) StoreRealWithUnit(key string, r float64, unit, description string) error {
	return p.insert(key, &Value{typ: Real, reals: []float64{r}, unit: unit, description: description})
}

// StoreString adds a string property.
func (p *Properties) StoreString(key, s, description string) error {
	return p.insert(key, &Value{typ: String, strings: []string{s}, description: description})
}

// StorePath adds a string property marked as a file path.
func (p *Properties) StorePath(key, path, description string) error {
	return p.insert(key, &Value{typ: String, strings: []string{path}, path: true, description: description})
}

// StoreBools adds a boolean vector property.
func (p *Properties) StoreBools(key string, b []bool, description string) error {
	return p.insert(key, &Value{typ: Bool, vector: true, bools: append([]bool{}, b...), description: description})
}

// StoreInts adds an integer vector property.
func (p *Properties) StoreInts(key string, i []int64, description string) error {
	return p.insert(key, &Value{typ: Int, vector: true, ints: append([]int64{}, i...), description: description})
}

// StoreReals adds a real vector property. unit may be empty.
func (p *Properties) StoreReals(key string, r []float64, unit, description string) error {
	return p.insert(key, &Value{typ: Real, vector: true, reals: append([]float64{}, r...), unit: unit, description: description})
}

// StoreStrings adds a string vector property.
func (p *Properties) StoreStrings(key string, s []string, description string) error {
	return p.insert(key, &Value{typ: String, vector: true, strings: append([]string{}, s...), description: description})
}

// lookup returns the property under key if it has type typ.
func (p *Properties) lookup(key string, typ Type) (*Value, error) {
	v, ok := p.values[key]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("properties: no key %q", key))
	}
	if v.typ != typ {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("properties: %q is %s, not %s", key, v.typ, typ))
	}
	return v, nil
}

// scalar is lookup for scalar access.
func (p *Properties) scalar(key string, typ Type) (*Value, error) {
	v, err := p.lookup(key, typ)
	if err != nil {
		return nil, err
	}
	if v.vector {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("properties: %q is a vector", key))
	}
	return v, nil
}

// mutable is lookup for modification.
func (p *Properties) mutable(key string, typ Type, vector bool) (*Value, error) {
	v, err := p.lookup(key, typ)
	if err != nil {
		return nil, err
	}
	if v.locked {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("properties: %q is locked", key))
	}
	if v.vector != vector {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("properties: %q has the wrong shape", key))
	}
	return v, nil
}

// Bool returns the value of a boolean scalar.
func (p *Properties) Bool(key string) (bool, error) {
	v, err := p.scalar(key, Bool)
	if err != nil {
		return false, err
	}
	return v.bools[0], nil
}

// Int returns the value of an integer scalar.
func (p *Properties) Int(key string) (int64, error) {
	v, err := p.scalar(key, Int)
	if err != nil {
		return 0, err
	}
	return v.ints[0], nil
}

// Real returns the value of a real scalar.
func (p *Properties) Real(key string) (float64, error) {
	v, err := p.scalar(key, Real)
	if err != nil {
		return 0, err
	}
	return v.reals[0], nil
}

// String returns the value of a string scalar.
func (p *Properties) String(key string) (string, error) {
	v, err := p.scalar(key, String)
	if err != nil {
		return "", err
	}
	return v.strings[0], nil
}

// Bools returns a copy of the values of a boolean property, scalar or
// vector.
func (p *Properties) Bools(key string) ([]bool, error) {
	v, err := p.lookup(key, Bool)
	if err != nil {
		return nil, err
	}
	return append([]bool{}, v.bools...), nil
}

// Ints returns a copy of the values of an integer property.
func (p *Properties) Ints(key string) ([]int64, error) {
	v, err := p.lookup(key, Int)
	if err != nil {
		return nil, err
	}
	return append([]int64{}, v.ints...), nil
}

// Reals returns a copy of the values of a real property.
func (p *Properties) Reals(key string) ([]float64, error) {
	v, err := p.lookup(key, Real)
	if err != nil {
		return nil, err
	}
	return append([]float64{}, v.reals...), nil
}

// Strings returns a copy of the values of a string property.
func (p *Properties) Strings(key string) ([]string, error) {
	v, err := p.lookup(key, String)
	if err != nil {
		return nil, err
	}
	return append([]string{}, v.strings...), nil
}

// SetBool changes a boolean scalar. It fails with Invalid if the key
// does not exist, has another type or shape, or is locked.
func (p *Properties) SetBool(key string, b bool) error {
	v, err := p.mutable(key, Bool, false)
	if err != nil {
		return err
	}
	v.bools[0] = b
	return nil
}

// SetInt changes an integer scalar.
func (p *Properties) SetInt(key string, i int64) error {
	v, err := p.mutable(key, Int, false)
	if err != nil {
		return err
	}
	v.ints[0] = i
	return nil
}

// SetReal changes a real scalar. The unit is kept.
func (p *Properties) SetReal(key string, r float64) error {
	v, err := p.mutable(key, Real, false)
	if err != nil {
		return err
	}
	v.reals[0] = r
	return nil
}

// SetString changes a string scalar.
func (p *Properties) SetString(key, s string) error {
	v, err := p.mutable(key, String, false)
	if err != nil {
		return err
	}
	v.strings[0] = s
	return nil
}

// SetBools replaces the values of a boolean vector.
func (p *Properties) SetBools(key string, b []bool) error {
	v, err := p.mutable(key, Bool, true)
	if err != nil {
		return err
	}
	v.bools = append(v.bools[:0], b...)
	return nil
}

// SetInts replaces the values of an integer vector.
func (p *Properties) SetInts(key string, i []int64) error {
	v, err := p.mutable(key, Int, true)
	if err != nil {
		return err
	}
	v.ints = append(v.ints[:0], i...)
	return nil
}

// SetReals replaces the values of a real vector.
func (p *Properties) SetReals(key string, r []float64) error {
	v, err := p.mutable(key, Real, true)
	if err != nil {
		return err
	}
	v.reals = append(v.reals[:0], r...)
	return nil
}

// SetStrings replaces the values of a string vector.
func (p *Properties) SetStrings(key string, s []string) error {
	v, err := p.mutable(key, String, true)
	if err != nil {
		return err
	}
	v.strings = append(v.strings[:0], s...)
	return nil
}

// Lock prevents changes to the property under key, including its
// removal.
func (p *Properties) Lock(key string) error {
	v, ok := p.values[key]
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("properties: no key %q", key))
	}
	v.locked = true
	return nil
}

// Unlock reverses Lock.
func (p *Properties) Unlock(key string) error {
	v, ok := p.values[key]
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("properties: no key %q", key))
	}
	v.locked = false
	return nil
}

// Locked reports whether the property under key exists and is locked.
func (p *Properties) Locked(key string) bool {
	v, ok := p.values[key]
	return ok && v.locked
}

// Erase removes the property under key. Locked properties cannot be
// erased.
func (p *Properties) Erase(key string) error {
	v, ok := p.values[key]
	switch {
	case !ok:
		return errors.E(errors.Invalid, fmt.Sprintf("properties: no key %q", key))
	case v.locked:
		return errors.E(errors.Invalid, fmt.Sprintf("properties: %q is locked", key))
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return nil
}

// EraseWithPrefix removes the unlocked properties whose keys start
// with prefix and returns how many were removed.
func (p *Properties) EraseWithPrefix(prefix string) int {
	n := 0
	for _, k := range p.KeysWithPrefix(prefix) {
		if p.Erase(k) == nil {
			n++
		}
	}
	return n
}

// Clear removes every property, locked or not, and the description.
func (p *Properties) Clear() {
	p.description = ""
	p.keys = nil
	p.values = make(map[string]*Value)
}

// Merge copies the properties of other that p does not have. It
// returns the number of properties copied.
func (p *Properties) Merge(other *Properties) int {
	n := 0
	for _, k := range other.keys {
		if p.Has(k) {
			continue
		}
		v := *other.values[k]
		v.bools = append([]bool(nil), v.bools...)
		v.ints = append([]int64(nil), v.ints...)
		v.reals = append([]float64(nil), v.reals...)
		v.strings = append([]string(nil), v.strings...)
		if p.insert(k, &v) == nil {
			n++
		}
	}
	return n
}

// SortedKeys returns the keys in lexical order.
func (p *Properties) SortedKeys() []string {
	keys := p.Keys()
	sort.Strings(keys)
	return keys
}
