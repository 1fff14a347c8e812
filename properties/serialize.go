// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package properties

import (
	"fmt"
	"io"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
)

const (
	flagVector uint8 = 1 << iota
	flagLocked
	flagPath
)

// entry is the archived form of one property.
type entry struct {
	key string
	*Value
}

func (*entry) SerialTag() string    { return Tag + "::entry" }
func (*entry) ClassVersion() uint32 { return 1 }

func (e *entry) Serialize(ar archive.Archive, version uint32) error {
	v := e.Value
	typ, flags := uint8(v.typ), uint8(0)
	if v.vector {
		flags |= flagVector
	}
	if v.locked {
		flags |= flagLocked
	}
	if v.path {
		flags |= flagPath
	}
	ar.String("key", &e.key)
	ar.Uint8("type", &typ)
	ar.Uint8("flags", &flags)
	ar.String("description", &v.description)
	if ar.Loading() {
		if _, ok := typeNames[Type(typ)]; !ok && ar.Err() == nil {
			ar.Fail(errors.E(errors.Format, fmt.Sprintf("properties: %q has invalid type %d", e.key, typ)))
		}
		v.typ = Type(typ)
		v.vector = flags&flagVector != 0
		v.locked = flags&flagLocked != 0
		v.path = flags&flagPath != 0
	}
	if v.typ == Real {
		ar.String("unit", &v.unit)
	}
	n := v.Len()
	ar.Len("values", &n)
	if ar.Err() != nil {
		return ar.Err()
	}
	if ar.Loading() && !v.vector && n != 1 {
		ar.Fail(errors.E(errors.Format, fmt.Sprintf("properties: scalar %q has %d values", e.key, n)))
		return ar.Err()
	}
	switch v.typ {
	case Bool:
		if ar.Loading() {
			v.bools = make([]bool, n)
		}
		for i := range v.bools {
			ar.Bool("v", &v.bools[i])
		}
	case Int:
		if ar.Loading() {
			v.ints = make([]int64, n)
		}
		for i := range v.ints {
			ar.Int64("v", &v.ints[i])
		}
	case Real:
		if ar.Loading() {
			v.reals = make([]float64, n)
		}
		for i := range v.reals {
			ar.Float64("v", &v.reals[i])
		}
	case String:
		if ar.Loading() {
			v.strings = make([]string, n)
		}
		for i := range v.strings {
			ar.String("v", &v.strings[i])
		}
	}
	return ar.Err()
}

// Serialize implements archive.Serializable.
func (p *Properties) Serialize(ar archive.Archive, version uint32) error {
	ar.String("description", &p.description)
	n := len(p.keys)
	ar.Len("properties", &n)
	if !ar.Loading() {
		for _, k := range p.keys {
			ar.Object("property", &entry{key: k, Value: p.values[k]})
		}
		return ar.Err()
	}
	p.keys, p.values = nil, make(map[string]*Value)
	for i := 0; i < n && ar.Err() == nil; i++ {
		e := &entry{Value: new(Value)}
		ar.Object("property", e)
		if ar.Err() != nil {
			break
		}
		if err := p.insert(e.key, e.Value); err != nil {
			ar.Fail(errors.E(errors.Format, "properties: load", err))
		}
	}
	return ar.Err()
}

// Dump writes the properties as a tree, one line per key with its
// type, flags, values and description.
func (p *Properties) Dump(w io.Writer, title string) error {
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if title != "" {
		printf("%s\n", title)
	}
	if p.description != "" {
		printf("|-- Description: %s\n", p.description)
	}
	if len(p.keys) == 0 {
		printf("`-- Properties: <none>\n")
		return err
	}
	printf("`-- Properties: %d\n", len(p.keys))
	for i, k := range p.keys {
		v := p.values[k]
		tag := "|-- "
		if i == len(p.keys)-1 {
			tag = "`-- "
		}
		kind := v.typ.String()
		if v.vector {
			kind += fmt.Sprintf("[%d]", v.Len())
		}
		if v.locked {
			kind += " locked"
		}
		if v.path {
			kind += " path"
		}
		printf("    %s%s : %s = %s", tag, k, kind, v.text())
		if v.description != "" {
			printf(" # %s", v.description)
		}
		printf("\n")
	}
	return err
}
