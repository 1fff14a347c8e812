// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package serial implements the tag registry: the mapping between a
// serial tag, the stable string that identifies a concrete type inside
// a file, and a factory that constructs a fresh value of that type when
// a record is loaded without static type knowledge.
//
// There is no process-wide registry. A program builds one Registry at
// startup, passes it to each domain package's RegisterInto function in
// an explicit order, freezes it, and hands it to writers and readers.
// A frozen registry is read-only and may be shared between goroutines.
package serial

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
)

// Factory returns a new, zero-valued object. Every call must return a
// distinct object of the same concrete type.
type Factory func() archive.Serializable

// Entry describes one registered type.
type Entry struct {
	// Tag is the serial tag.
	Tag string
	// Type is the concrete type produced by the factory.
	Type reflect.Type
	// Version is the current layout version of the type.
	Version uint32
	// MinVersion is the oldest layout version that can still be
	// loaded.
	MinVersion uint32

	factory Factory
}

// New constructs a fresh object.
func (e *Entry) New() archive.Serializable { return e.factory() }

// Registry maps serial tags to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register binds tag to factory. The prototype's SerialTag must equal
// tag. Registering a tag a second time with a factory of the same
// concrete type is a no-op; registering it with a different type
// fails with DuplicateTag.
func (r *Registry) Register(tag string, factory Factory) error {
	return r.RegisterVersions(tag, factory, 0)
}

// RegisterVersions is Register with an explicit oldest loadable layout
// version.
func (r *Registry) RegisterVersions(tag string, factory Factory, minVersion uint32) error {
	if tag == "" {
		return errors.E(errors.Invalid, "serial: empty tag")
	}
	if factory == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("serial: nil factory for tag %q", tag))
	}
	proto := factory()
	if proto == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("serial: factory for tag %q returned nil", tag))
	}
	if got := proto.SerialTag(); got != tag {
		return errors.E(errors.Invalid, fmt.Sprintf("serial: factory for tag %q produces tag %q", tag, got))
	}
	if minVersion > proto.ClassVersion() {
		return errors.E(errors.Invalid,
			fmt.Sprintf("serial: minimum version %d of %q exceeds current version %d", minVersion, tag, proto.ClassVersion()))
	}
	typ := reflect.TypeOf(proto)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.E(errors.Invalid, fmt.Sprintf("serial: registry is frozen; cannot register %q", tag))
	}
	if e, ok := r.entries[tag]; ok {
		if e.Type == typ {
			return nil
		}
		return errors.E(errors.DuplicateTag, fmt.Sprintf("serial: tag %q is bound to %v, not %v", tag, e.Type, typ))
	}
	r.entries[tag] = &Entry{
		Tag:        tag,
		Type:       typ,
		Version:    proto.ClassVersion(),
		MinVersion: minVersion,
		factory:    factory,
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Resolve returns the entry for tag, or an UnknownTag error.
func (r *Registry) Resolve(tag string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.UnknownTag, fmt.Sprintf("serial: tag %q is not registered", tag))
	}
	return e, nil
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	_, err := r.Resolve(tag)
	return err == nil
}

// New constructs a fresh object for tag. It implements
// archive.Resolver.
func (r *Registry) New(tag string) (archive.Serializable, error) {
	e, err := r.Resolve(tag)
	if err != nil {
		return nil, err
	}
	return e.New(), nil
}

// MinVersion returns the oldest loadable layout version of tag, or 0
// if tag is not registered. It implements archive.Resolver.
func (r *Registry) MinVersion(tag string) uint32 {
	e, err := r.Resolve(tag)
	if err != nil {
		return 0
	}
	return e.MinVersion
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	r.mu.RUnlock()
	sort.Strings(tags)
	return tags
}

// Registrar is the signature of the RegisterInto function exported by
// packages that define serializable types.
type Registrar func(r *Registry) error

// Build creates a registry, applies each registrar in order, and
// freezes the result.
func Build(registrars ...Registrar) (*Registry, error) {
	r := NewRegistry()
	for _, register := range registrars {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
