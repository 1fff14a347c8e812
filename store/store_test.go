// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store_test

import (
	"testing"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/store"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestPolicies(t *testing.T) {
	s := store.New("a", "", store.Postponed)
	expect.False(t, s.Dedicated())
	assert.NoError(t, s.Accept("x"))
	expect.EQ(t, s.SerialTag, "x")
	expect.True(t, s.Dedicated())
	expect.True(t, errors.Is(errors.TagMismatch, s.Accept("y")))

	s = store.New("b", "x", store.Dedicated)
	expect.NoError(t, s.Accept("x"))
	expect.True(t, errors.Is(errors.TagMismatch, s.Accept("y")))

	s = store.New("c", "", store.Mixed)
	expect.NoError(t, s.Accept("x"))
	expect.NoError(t, s.Accept("y"))
	expect.False(t, s.Dedicated())
	expect.EQ(t, store.Mixed.String(), "mixed")

	for _, p := range []store.Policy{store.Postponed, store.Dedicated, store.Mixed} {
		got, err := store.ParsePolicy(p.String())
		assert.NoError(t, err)
		expect.EQ(t, got, p)
	}
	_, err := store.ParsePolicy("shared")
	expect.True(t, errors.Is(errors.Format, err))
}

func TestCursor(t *testing.T) {
	s := store.New("a", "x", store.Dedicated)
	expect.False(t, s.HasNext())
	expect.False(t, s.HasPrevious())
	_, err := s.Next()
	expect.True(t, errors.Is(errors.IndexOutOfRange, err))
	_, err = s.Previous()
	expect.True(t, errors.Is(errors.StartOfStore, err))

	s.Count = 3
	expect.True(t, s.HasNext())
	expect.False(t, s.HasPrevious())
	var got []int64
	for s.HasNext() {
		i, err := s.Next()
		assert.NoError(t, err)
		s.Cursor = i
		got = append(got, i)
	}
	expect.EQ(t, got, []int64{0, 1, 2})
	_, err = s.Next()
	expect.True(t, errors.Is(errors.IndexOutOfRange, err))

	s.Unwind()
	expect.EQ(t, s.Cursor, int64(3))
	expect.False(t, s.HasNext())
	expect.True(t, s.HasPrevious())
	got = nil
	for s.HasPrevious() {
		i, err := s.Previous()
		assert.NoError(t, err)
		s.Cursor = i
		got = append(got, i)
	}
	expect.EQ(t, got, []int64{2, 1, 0})
	_, err = s.Previous()
	expect.True(t, errors.Is(errors.StartOfStore, err))

	s.Rewind()
	expect.EQ(t, s.Cursor, int64(-1))
	_, err = s.Previous()
	expect.True(t, errors.Is(errors.StartOfStore, err))

	expect.NoError(t, s.Check(2))
	expect.True(t, errors.Is(errors.IndexOutOfRange, s.Check(3)))
	expect.True(t, errors.Is(errors.IndexOutOfRange, s.Check(-1)))
}

func TestMultiplexer(t *testing.T) {
	m := store.NewMultiplexer(true, false)
	a, err := m.Add("a", "x", store.Dedicated)
	assert.NoError(t, err)
	expect.True(t, m.Selected() == a)
	_, err = m.Add("a", "x", store.Dedicated)
	expect.True(t, errors.Is(errors.DuplicateStore, err))
	_, err = m.Add("m", "", store.Mixed)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = m.Add("", "x", store.Dedicated)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = m.Add("d", "", store.Dedicated)
	expect.True(t, errors.Is(errors.Invalid, err))
	b, err := m.Add("b", "", store.Postponed)
	assert.NoError(t, err)
	expect.True(t, m.Selected() == b)

	expect.True(t, errors.Is(errors.UnknownStore, m.Select("zz")))
	assert.NoError(t, m.Select("a"))
	cur, err := m.Current(true, store.Postponed)
	assert.NoError(t, err)
	expect.True(t, cur == a)

	m.Lock()
	_, err = m.Add("c", "", store.Postponed)
	expect.True(t, errors.Is(errors.NotSupported, err))
	m.Unlock()
	expect.False(t, m.Locked())

	m.Unselect()
	_, err = m.Current(false, store.Postponed)
	expect.True(t, errors.Is(errors.UnknownStore, err))
	auto, err := m.Current(true, store.Mixed)
	assert.NoError(t, err)
	expect.EQ(t, auto.Label, store.Automatic)
	// Mixed stores are disabled, so the automatic store falls back.
	expect.EQ(t, auto.Policy, store.Postponed)
	expect.True(t, m.Has(store.Automatic))
	expect.EQ(t, m.Labels(), []string{store.Automatic, "a", "b"})
	expect.EQ(t, len(m.Stores()), 3)
	expect.EQ(t, m.Stores()[2].Label, store.Automatic)
}

func TestNoAutomatic(t *testing.T) {
	m := store.NewMultiplexer(false, true)
	_, err := m.Current(true, store.Mixed)
	expect.True(t, errors.Is(errors.UnknownStore, err))
	_, err = m.Add("m", "ignored", store.Mixed)
	assert.NoError(t, err)
	s, ok := m.Get("m")
	assert.True(t, ok)
	expect.EQ(t, s.SerialTag, "")
}
