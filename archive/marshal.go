// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package archive

import (
	"fmt"

	"github.com/grailbio/brio/archive/portable"
	"github.com/grailbio/brio/errors"
)

// Options configures encoding and decoding.
type Options struct {
	// Order is the wire byte order of binary archives.
	Order portable.Order
	// Platform is the floating point profile used when decoding binary
	// archives. Nil means portable.IEEE.
	Platform *portable.Platform
	// Resolver resolves the serial tags of polymorphic fields and
	// supplies the oldest decodable layout version of each type.
	Resolver Resolver
}

func (o Options) platform() portable.Platform {
	if o.Platform == nil {
		return portable.IEEE
	}
	return *o.Platform
}

// Marshal encodes obj's fields at its current layout version. The
// layout version and serial tag are not part of the payload; the
// record frame carries them.
func Marshal(mode Mode, obj Serializable, opts Options) ([]byte, error) {
	var (
		err errors.Once
		c   codec
	)
	switch mode {
	case Binary:
		c = &binaryEncoder{e: portable.NewEncoder(opts.Order), err: &err}
	case Text:
		c = &textEncoder{err: &err}
	case XML:
		c = &xmlEncoder{err: &err}
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("archive: unknown mode %v", mode))
	}
	a := &ar{mode: mode, c: c, err: &err, resolver: opts.Resolver}
	if e := obj.Serialize(a, obj.ClassVersion()); e != nil {
		err.Set(e)
	}
	if e := err.Err(); e != nil {
		return nil, errors.E(fmt.Sprintf("archive: marshal %s", obj.SerialTag()), e)
	}
	switch c := c.(type) {
	case *binaryEncoder:
		return c.e.Bytes(), nil
	case *textEncoder:
		return []byte(c.b.String()), nil
	case *xmlEncoder:
		return c.b.Bytes(), nil
	}
	panic(c)
}

// Unmarshal decodes a payload written at the given layout version into
// obj. It fails with UnsupportedVersion if version is newer than
// obj.ClassVersion() or older than the resolver's minimum version for
// the type, and with Format if the payload is malformed or not fully
// consumed.
func Unmarshal(mode Mode, data []byte, version uint32, obj Serializable, opts Options) error {
	if err := checkVersion(obj, version, opts.Resolver); err != nil {
		return err
	}
	var (
		err errors.Once
		c   codec
	)
	switch mode {
	case Binary:
		c = &binaryDecoder{d: portable.NewDecoder(data, opts.Order, opts.platform()), err: &err}
	case Text:
		c = &textDecoder{s: string(data), err: &err}
	case XML:
		c = newXMLDecoder(data, &err)
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("archive: unknown mode %v", mode))
	}
	a := &ar{mode: mode, c: c, err: &err, resolver: opts.Resolver}
	if e := obj.Serialize(a, version); e != nil {
		err.Set(e)
	}
	if err.Err() == nil {
		c.finish()
	}
	if e := err.Err(); e != nil {
		return errors.E(fmt.Sprintf("archive: unmarshal %s", obj.SerialTag()), e)
	}
	return nil
}
