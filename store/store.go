// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package store partitions one brio file into named logical sequences
// of records ("stores"). Each store has a label that is unique within
// the file, a serial-tag policy and a cursor. The Multiplexer tracks
// the stores of an open file and the one currently selected; the
// Directory is the persistent per-store index written to the trailer
// of binary files.
package store

import (
	"fmt"
	"sort"

	"github.com/grailbio/brio/errors"
)

// Automatic is the reserved label of the store used when records are
// stored or loaded without an explicit store selection.
const Automatic = "__automatic__"

// Policy determines which serial tags a store accepts.
type Policy int

const (
	// Postponed stores take the tag of the first record stored in
	// them and then behave like Dedicated stores.
	Postponed Policy = iota
	// Dedicated stores accept records with a single tag, fixed when
	// the store is created.
	Dedicated
	// Mixed stores accept records with any tag.
	Mixed
)

var policyNames = [...]string{"postponed", "dedicated", "mixed"}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("policy(%d)", int(p))
	}
	return policyNames[p]
}

// ParsePolicy parses a policy name produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for i, name := range policyNames {
		if name == s {
			return Policy(i), nil
		}
	}
	return Postponed, errors.E(errors.Format, fmt.Sprintf("store: unknown policy %q", s))
}

// Store is one logical sequence of records.
type Store struct {
	// Label names the store.
	Label string
	// SerialTag is the tag shared by all records of a Dedicated store,
	// or of a Postponed store once its first record is stored. It is
	// empty for Mixed stores.
	SerialTag string
	// Policy is the store's tag policy.
	Policy Policy
	// Count is the number of records in the store.
	Count int64
	// Cursor is the index of the last record loaded. It is -1 before
	// the first record (after Rewind) and Count after the last one
	// (after Unwind).
	Cursor int64
}

// New returns an empty store positioned before its first record.
func New(label, tag string, policy Policy) *Store {
	return &Store{Label: label, SerialTag: tag, Policy: policy, Cursor: -1}
}

// Dedicated reports whether the store's records share one serial tag.
func (s *Store) Dedicated() bool {
	return s.Policy == Dedicated || (s.Policy == Postponed && s.SerialTag != "")
}

// Accept checks that a record with the given tag may be appended to
// the store and fixes the tag of a postponed store. It returns a
// TagMismatch error if the store is dedicated to another tag.
func (s *Store) Accept(tag string) error {
	switch s.Policy {
	case Mixed:
		return nil
	case Postponed:
		if s.SerialTag == "" {
			s.SerialTag = tag
			return nil
		}
	}
	if tag != s.SerialTag {
		return errors.E(errors.TagMismatch,
			fmt.Sprintf("store %q holds %q records, not %q", s.Label, s.SerialTag, tag))
	}
	return nil
}

// Rewind positions the cursor before the first record.
func (s *Store) Rewind() { s.Cursor = -1 }

// Unwind positions the cursor after the last record.
func (s *Store) Unwind() { s.Cursor = s.Count }

// HasNext reports whether a record follows the cursor.
func (s *Store) HasNext() bool {
	return s.Count > 0 && s.Cursor < s.Count-1
}

// HasPrevious reports whether a record precedes the cursor.
func (s *Store) HasPrevious() bool {
	return s.Count > 0 && s.Cursor > 0
}

// Next returns the index of the record following the cursor.
func (s *Store) Next() (int64, error) {
	i := s.Cursor + 1
	if s.Cursor < 0 {
		i = 0
	}
	if i >= s.Count {
		return 0, errors.E(errors.IndexOutOfRange,
			fmt.Sprintf("store %q: no record after index %d (%d records)", s.Label, s.Cursor, s.Count))
	}
	return i, nil
}

// Previous returns the index of the record preceding the cursor.
func (s *Store) Previous() (int64, error) {
	i := s.Cursor - 1
	if i < 0 || s.Count == 0 {
		return 0, errors.E(errors.StartOfStore,
			fmt.Sprintf("store %q: no record before index %d", s.Label, s.Cursor))
	}
	if i >= s.Count {
		i = s.Count - 1
	}
	return i, nil
}

// Check returns an IndexOutOfRange error unless i addresses a record.
func (s *Store) Check(i int64) error {
	if i < 0 || i >= s.Count {
		return errors.E(errors.IndexOutOfRange,
			fmt.Sprintf("store %q: index %d out of range [0, %d)", s.Label, i, s.Count))
	}
	return nil
}

// Multiplexer holds the stores of one file and the current selection.
// It is not safe for concurrent use.
type Multiplexer struct {
	// AllowAutomatic enables the automatic store.
	AllowAutomatic bool
	// AllowMixed permits Mixed stores.
	AllowMixed bool

	stores  map[string]*Store
	order   []*Store
	current *Store
	locked  bool
}

// NewMultiplexer returns an empty multiplexer.
func NewMultiplexer(allowAutomatic, allowMixed bool) *Multiplexer {
	return &Multiplexer{
		AllowAutomatic: allowAutomatic,
		AllowMixed:     allowMixed,
		stores:         make(map[string]*Store),
	}
}

// Add creates a store and selects it. It fails with DuplicateStore if
// the label is in use, with Invalid if the label is empty or a Mixed
// store is requested while mixed stores are disabled, and with
// NotSupported if the multiplexer is locked.
func (m *Multiplexer) Add(label, tag string, policy Policy) (*Store, error) {
	switch {
	case m.locked:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("store %q: stores are locked", label))
	case label == "":
		return nil, errors.E(errors.Invalid, "empty store label")
	case policy == Mixed && !m.AllowMixed:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("store %q: mixed stores are not allowed", label))
	case policy == Dedicated && tag == "":
		return nil, errors.E(errors.Invalid, fmt.Sprintf("store %q: dedicated store needs a serial tag", label))
	}
	if _, ok := m.stores[label]; ok {
		return nil, errors.E(errors.DuplicateStore, fmt.Sprintf("store %q already exists", label))
	}
	if policy == Mixed {
		tag = ""
	}
	s := New(label, tag, policy)
	m.insert(s)
	m.current = s
	return s, nil
}

// Restore inserts a store rebuilt from a file's directory, bypassing
// the lock and policy checks. It does not change the selection.
func (m *Multiplexer) Restore(s *Store) error {
	if _, ok := m.stores[s.Label]; ok {
		return errors.E(errors.Format, fmt.Sprintf("store %q appears twice", s.Label))
	}
	m.insert(s)
	return nil
}

func (m *Multiplexer) insert(s *Store) {
	m.stores[s.Label] = s
	m.order = append(m.order, s)
}

// Select makes the store with the given label current.
func (m *Multiplexer) Select(label string) error {
	s, ok := m.stores[label]
	if !ok {
		return errors.E(errors.UnknownStore, fmt.Sprintf("store %q does not exist", label))
	}
	m.current = s
	return nil
}

// Unselect clears the selection, so that the next operation falls back
// to the automatic store.
func (m *Multiplexer) Unselect() { m.current = nil }

// Selected returns the current store, or nil.
func (m *Multiplexer) Selected() *Store { return m.current }

// Current returns the current store. Without a selection it falls back
// to the automatic store, creating it (with the given policy) when
// create is true. It fails with UnknownStore if no store applies.
func (m *Multiplexer) Current(create bool, policy Policy) (*Store, error) {
	if m.current != nil {
		return m.current, nil
	}
	if !m.AllowAutomatic {
		return nil, errors.E(errors.UnknownStore, "no store selected and the automatic store is disabled")
	}
	if s, ok := m.stores[Automatic]; ok {
		m.current = s
		return s, nil
	}
	if !create {
		return nil, errors.E(errors.UnknownStore, "no store selected and the file has no automatic store")
	}
	if policy == Mixed && !m.AllowMixed {
		policy = Postponed
	}
	s := New(Automatic, "", policy)
	m.insert(s)
	m.current = s
	return s, nil
}

// Get returns the store with the given label.
func (m *Multiplexer) Get(label string) (*Store, bool) {
	s, ok := m.stores[label]
	return s, ok
}

// Has reports whether a store with the given label exists.
func (m *Multiplexer) Has(label string) bool {
	_, ok := m.stores[label]
	return ok
}

// Stores returns the stores in creation order.
func (m *Multiplexer) Stores() []*Store {
	return append([]*Store(nil), m.order...)
}

// Labels returns the sorted store labels.
func (m *Multiplexer) Labels() []string {
	labels := make([]string, 0, len(m.order))
	for _, s := range m.order {
		labels = append(labels, s.Label)
	}
	sort.Strings(labels)
	return labels
}

// Lock prevents new stores from being added.
func (m *Multiplexer) Lock() { m.locked = true }

// Unlock reverses Lock.
func (m *Multiplexer) Unlock() { m.locked = false }

// Locked reports whether the multiplexer is locked.
func (m *Multiplexer) Locked() bool { return m.locked }
