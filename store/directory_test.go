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

type loc struct {
	offset uint64
	item   int
}

func TestDirectoryLocate(t *testing.T) {
	a := store.New("a", "x", store.Dedicated)
	b := store.New("b", "", store.Mixed)
	empty := store.New("empty", "", store.Postponed)

	// Two blocks of interleaved records: a b a | b a.
	d := store.NewDirectory()
	d.Add(a, 100, 0)
	d.Add(b, 100, 1)
	d.Add(a, 100, 2)
	d.Add(b, 200, 0)
	d.Add(a, 200, 1)
	d.Sync([]*store.Store{a, b, empty})

	check := func(d *store.Directory) {
		ix, ok := d.Index("a")
		assert.True(t, ok)
		expect.EQ(t, ix.Count, int64(3))
		expect.EQ(t, ix.SerialTag, "x")
		want := []loc{{100, 0}, {100, 2}, {200, 1}}
		for i, w := range want {
			off, item, err := ix.Locate(int64(i))
			assert.NoError(t, err)
			expect.EQ(t, loc{off, item}, w)
		}
		_, _, err := ix.Locate(3)
		expect.True(t, errors.Is(errors.IndexOutOfRange, err))

		ix, ok = d.Index("b")
		assert.True(t, ok)
		expect.EQ(t, ix.Policy, store.Mixed)
		off, item, err := ix.Locate(1)
		assert.NoError(t, err)
		expect.EQ(t, loc{off, item}, loc{200, 0})

		ix, ok = d.Index("empty")
		assert.True(t, ok)
		expect.EQ(t, ix.Count, int64(0))
		_, _, err = ix.Locate(0)
		expect.True(t, errors.Is(errors.IndexOutOfRange, err))

		stores := d.Stores()
		assert.EQ(t, len(stores), 3)
		expect.EQ(t, stores[0].Label, "a")
		expect.EQ(t, stores[0].Count, int64(3))
		expect.EQ(t, stores[0].Cursor, int64(-1))
		expect.EQ(t, stores[2].Label, "empty")
	}
	check(d)

	data, err := d.Marshal()
	assert.NoError(t, err)
	d2, err := store.UnmarshalDirectory(data)
	assert.NoError(t, err)
	check(d2)
	expect.EQ(t, len(d2.Indexes()), 3)
}

func TestDirectoryCorrupt(t *testing.T) {
	_, err := store.UnmarshalDirectory([]byte{0xc1, 0x00})
	expect.True(t, errors.Is(errors.Format, err))

	a := store.New("a", "x", store.Dedicated)
	d := store.NewDirectory()
	d.Add(a, 0, 0)
	data, err := d.Marshal()
	assert.NoError(t, err)
	_, err = store.UnmarshalDirectory(data[:len(data)/2])
	expect.True(t, errors.Is(errors.Format, err))
}
