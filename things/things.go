// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package things implements a named bag of heterogeneous serializable
// objects. Entries are archived polymorphically by serial tag, so a
// Things value can only be loaded through an archive that has a
// resolver knowing every contained type.
package things

import (
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/serial"
)

// Tag is the serial tag of Things.
const Tag = "brio::things"

type entry struct {
	name        string
	description string
	constant    bool
	obj         archive.Serializable
}

func (*entry) SerialTag() string    { return Tag + "::entry" }
func (*entry) ClassVersion() uint32 { return 1 }

func (e *entry) Serialize(ar archive.Archive, version uint32) error {
	ar.String("name", &e.name)
	ar.String("description", &e.description)
	ar.Bool("constant", &e.constant)
	ar.Polymorphic("object", &e.obj)
	if ar.Loading() && ar.Err() == nil && e.obj == nil {
		ar.Fail(errors.E(errors.Format, fmt.Sprintf("things: entry %q has no object", e.name)))
	}
	return ar.Err()
}

// Things is a named, ordered bag of serializable objects. Each entry
// has a unique name, a description, and a constant flag that forbids
// mutable access and removal.
type Things struct {
	name        string
	description string
	names       []string
	entries     map[string]*entry
}

// New returns an empty bag.
func New(name, description string) *Things {
	return &Things{name: name, description: description, entries: make(map[string]*entry)}
}

// SerialTag implements archive.Serializable.
func (*Things) SerialTag() string { return Tag }

// ClassVersion implements archive.Serializable.
func (*Things) ClassVersion() uint32 { return 1 }

// RegisterInto registers Things. The types of the contained objects
// must be registered separately.
func RegisterInto(r *serial.Registry) error {
	return r.Register(Tag, func() archive.Serializable { return New("", "") })
}

// Name returns the name of the bag.
func (t *Things) Name() string { return t.name }

// SetName renames the bag.
func (t *Things) SetName(name string) { t.name = name }

// Description returns the description of the bag.
func (t *Things) Description() string { return t.description }

// SetDescription changes the description of the bag.
func (t *Things) SetDescription(d string) { t.description = d }

// Len returns the number of entries.
func (t *Things) Len() int { return len(t.names) }

// Has reports whether an entry is stored under name.
func (t *Things) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Names returns the entry names in insertion order.
func (t *Things) Names() []string {
	return append([]string(nil), t.names...)
}

// Add inserts obj under name.
func (t *Things) Add(name string, obj archive.Serializable, description string, constant bool) error {
	switch {
	case name == "":
		return errors.E(errors.Invalid, "things: empty entry name")
	case obj == nil:
		return errors.E(errors.Invalid, fmt.Sprintf("things: nil object for %q", name))
	case t.Has(name):
		return errors.E(errors.Invalid, fmt.Sprintf("things: entry %q already exists", name))
	}
	t.insert(&entry{name: name, description: description, constant: constant, obj: obj})
	return nil
}

func (t *Things) insert(e *entry) {
	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	t.names = append(t.names, e.name)
	t.entries[e.name] = e
}

func (t *Things) lookup(name string) (*entry, error) {
	e, ok := t.entries[name]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("things: no entry %q", name))
	}
	return e, nil
}

// Get returns the object stored under name for reading.
func (t *Things) Get(name string) (archive.Serializable, error) {
	e, err := t.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.obj, nil
}

// GetMutable returns the object stored under name for modification.
// It fails for constant entries.
func (t *Things) GetMutable(name string) (archive.Serializable, error) {
	e, err := t.lookup(name)
	if err != nil {
		return nil, err
	}
	if e.constant {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("things: entry %q is constant", name))
	}
	return e.obj, nil
}

// Is reports whether the entry under name holds an object with the
// given serial tag.
func (t *Things) Is(name, tag string) bool {
	e, ok := t.entries[name]
	return ok && e.obj.SerialTag() == tag
}

// Constant reports whether the entry under name is constant.
func (t *Things) Constant(name string) bool {
	e, ok := t.entries[name]
	return ok && e.constant
}

// SetConstant changes the constant flag of an entry.
func (t *Things) SetConstant(name string, constant bool) error {
	e, err := t.lookup(name)
	if err != nil {
		return err
	}
	e.constant = constant
	return nil
}

// EntryDescription returns the description of the entry under name.
func (t *Things) EntryDescription(name string) (string, error) {
	e, err := t.lookup(name)
	if err != nil {
		return "", err
	}
	return e.description, nil
}

// SetEntryDescription changes the description of an entry.
func (t *Things) SetEntryDescription(name, description string) error {
	e, err := t.lookup(name)
	if err != nil {
		return err
	}
	e.description = description
	return nil
}

// Remove deletes the entry under name. Constant entries cannot be
// removed.
func (t *Things) Remove(name string) error {
	e, err := t.lookup(name)
	if err != nil {
		return err
	}
	if e.constant {
		return errors.E(errors.Invalid, fmt.Sprintf("things: entry %q is constant", name))
	}
	delete(t.entries, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i], t.names[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every entry, constant or not, and resets the name and
// description.
func (t *Things) Clear() {
	t.name, t.description = "", ""
	t.names, t.entries = nil, make(map[string]*entry)
}

// Tags returns the sorted set of serial tags held in the bag.
func (t *Things) Tags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, e := range t.entries {
		if tag := e.obj.SerialTag(); !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Serialize implements archive.Serializable.
func (t *Things) Serialize(ar archive.Archive, version uint32) error {
	ar.String("name", &t.name)
	ar.String("description", &t.description)
	n := len(t.names)
	ar.Len("entries", &n)
	if !ar.Loading() {
		for _, name := range t.names {
			ar.Object("entry", t.entries[name])
		}
		return ar.Err()
	}
	t.names, t.entries = nil, make(map[string]*entry)
	for i := 0; i < n && ar.Err() == nil; i++ {
		e := new(entry)
		ar.Object("entry", e)
		if ar.Err() != nil {
			break
		}
		if e.name == "" || t.Has(e.name) {
			ar.Fail(errors.E(errors.Format, fmt.Sprintf("things: invalid or duplicate entry name %q", e.name)))
			break
		}
		t.insert(e)
	}
	return ar.Err()
}

// Dump writes a tree-style summary of the bag.
func (t *Things) Dump(w io.Writer, title string) error {
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if title != "" {
		printf("%s\n", title)
	}
	printf("|-- Name: '%s'\n", t.name)
	printf("|-- Description: '%s'\n", t.description)
	if len(t.names) == 0 {
		printf("`-- Entries: <none>\n")
		return err
	}
	printf("`-- Entries: %d\n", len(t.names))
	for i, name := range t.names {
		e := t.entries[name]
		tag := "|-- "
		if i == len(t.names)-1 {
			tag = "`-- "
		}
		printf("    %sName: '%s' Type: '%s'", tag, name, e.obj.SerialTag())
		if e.constant {
			printf(" (constant)")
		}
		if e.description != "" {
			printf(" # %s", e.description)
		}
		printf("\n")
	}
	return err
}
