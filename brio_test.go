// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/archive/archivetest"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/store"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testHits(n int) []archivetest.Hit {
	hits := make([]archivetest.Hit, n)
	for i := range hits {
		hits[i] = archivetest.Hit{ID: int32(i), TDC: float64(i)*0.25 - 1, Label: fmt.Sprintf("hit %d", i)}
	}
	return hits
}

func testTracks(n int) []archivetest.Track {
	tracks := make([]archivetest.Track, n)
	for i := range tracks {
		tracks[i] = archivetest.Track{
			Particle: archivetest.Particle{Name: fmt.Sprintf("mu%d", i), Charge: int8(1 - 2*(i%2))},
			Length:   float32(i) + 0.5,
			Hits:     testHits(i + 1),
			Raw:      []byte{byte(i), 0xff, 0},
		}
	}
	return tracks
}

// layouts are the container flavors every round trip runs on.
var layouts = []struct {
	name string
	opts Options
}{
	{"plain.brio", Options{MaxBlockItems: 3}},
	{"zstd.brio", Options{Transformers: []string{"zstd 3"}}},
	{"flate-snappy.brio", Options{Transformers: []string{"flate 6", "snappy"}, MaxBlockItems: 4}},
	{"plain.trio", Options{}},
	{"plain.txt.gz", Options{}},
	{"plain.xml", Options{}},
	{"plain.xml.zst", Options{}},
	{"plain.trio.sz", Options{}},
}

func writeHits(t *testing.T, path string, opts Options, hits []archivetest.Hit) {
	t.Helper()
	w, err := Create(path, opts)
	assert.NoError(t, err)
	for i := range hits {
		assert.NoError(t, w.Store(&hits[i]))
	}
	assert.EQ(t, w.Records(), int64(len(hits)))
	assert.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	hits := testHits(10)
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			path := filepath.Join(dir, l.name)
			opts := l.opts
			opts.Registry = archivetest.Registry()
			writeHits(t, path, opts, hits)

			r, err := Open(path, opts)
			assert.NoError(t, err)
			defer func() { assert.NoError(t, r.Close()) }()
			expect.True(t, r.HasAutomaticStore())
			expect.False(t, r.Recovered())
			n, err := r.NumberOfEntries()
			assert.NoError(t, err)
			assert.EQ(t, n, int64(len(hits)))
			tag, err := r.StoreTag()
			assert.NoError(t, err)
			expect.EQ(t, tag, archivetest.HitTag)

			var got []archivetest.Hit
			for r.HasNext() {
				var h archivetest.Hit
				assert.NoError(t, r.LoadNext(&h))
				got = append(got, h)
			}
			if diff := deep.Equal(got, hits); diff != nil {
				t.Error(diff)
			}
			var h archivetest.Hit
			expect.True(t, errors.Is(errors.IndexOutOfRange, r.LoadNext(&h)))
			cur, err := r.CurrentEntry()
			assert.NoError(t, err)
			expect.EQ(t, cur, int64(len(hits)-1))
		})
	}
}

func TestPositionalAccess(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	hits := testHits(9)
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			path := filepath.Join(dir, l.name)
			writeHits(t, path, l.opts, hits)
			r, err := Open(path, l.opts)
			assert.NoError(t, err)
			defer r.Close()

			for _, i := range []int64{7, 0, 8, 3, 3} {
				var h archivetest.Hit
				assert.NoError(t, r.Load(&h, i))
				expect.EQ(t, h, hits[i])
				cur, err := r.CurrentEntry()
				assert.NoError(t, err)
				expect.EQ(t, cur, i)
			}
			// LoadNext continues after the last positional load.
			var h archivetest.Hit
			assert.NoError(t, r.LoadNext(&h))
			expect.EQ(t, h, hits[4])

			expect.True(t, errors.Is(errors.IndexOutOfRange, r.Load(&h, 9)))
			expect.True(t, errors.Is(errors.IndexOutOfRange, r.Load(&h, -1)))
			cur, err := r.CurrentEntry()
			assert.NoError(t, err)
			expect.EQ(t, cur, int64(4))
		})
	}
}

func TestReverseNavigation(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	hits := testHits(6)
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			path := filepath.Join(dir, l.name)
			writeHits(t, path, l.opts, hits)
			r, err := Open(path, l.opts)
			assert.NoError(t, err)
			defer r.Close()

			var h archivetest.Hit
			expect.False(t, r.HasPrevious())
			expect.True(t, errors.Is(errors.StartOfStore, r.LoadPrevious(&h)))

			assert.NoError(t, r.UnwindStore())
			expect.False(t, r.HasNext())
			cur, err := r.CurrentEntry()
			assert.NoError(t, err)
			expect.EQ(t, cur, int64(len(hits)))
			for i := len(hits) - 1; i >= 0; i-- {
				expect.True(t, r.HasPrevious())
				assert.NoError(t, r.LoadPrevious(&h))
				expect.EQ(t, h, hits[i])
			}
			expect.True(t, errors.Is(errors.StartOfStore, r.LoadPrevious(&h)))
			cur, err = r.CurrentEntry()
			assert.NoError(t, err)
			expect.EQ(t, cur, int64(0))

			assert.NoError(t, r.RewindStore())
			assert.NoError(t, r.LoadNext(&h))
			expect.EQ(t, h, hits[0])
		})
	}
}

func TestMultiplexIsolation(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	hits, tracks := testHits(7), testTracks(4)
	for _, name := range []string{"mux.brio", "mux.trio", "mux.xml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			w, err := Create(path, Options{MaxBlockItems: 2})
			assert.NoError(t, err)
			assert.NoError(t, w.AddStoreWithTag("hits", archivetest.HitTag))
			assert.NoError(t, w.AddStore("tracks"))
			for i := range hits {
				assert.NoError(t, w.SelectStore("hits"))
				assert.NoError(t, w.Store(&hits[i]))
				if i < len(tracks) {
					assert.NoError(t, w.SelectStore("tracks"))
					assert.NoError(t, w.Store(&tracks[i]))
				}
			}
			expect.EQ(t, w.Stores(), []string{"hits", "tracks"})
			assert.NoError(t, w.Close())

			r, err := Open(path, Options{})
			assert.NoError(t, err)
			defer r.Close()
			expect.False(t, r.HasAutomaticStore())
			multi, ok := r.Header().Bool("multi-store")
			expect.True(t, ok)
			expect.True(t, multi)
			// Without an automatic store the last store is selected.
			cur, err := r.CurrentStore()
			assert.NoError(t, err)
			expect.EQ(t, cur, "tracks")

			var gotTracks []archivetest.Track
			for r.HasNext() {
				var tr archivetest.Track
				assert.NoError(t, r.LoadNext(&tr))
				gotTracks = append(gotTracks, tr)
			}
			if diff := deep.Equal(gotTracks, tracks); diff != nil {
				t.Error(diff)
			}

			assert.NoError(t, r.SelectStore("hits"))
			n, err := r.NumberOfEntries()
			assert.NoError(t, err)
			expect.EQ(t, n, int64(len(hits)))
			for i := range hits {
				var h archivetest.Hit
				assert.NoError(t, r.LoadNext(&h))
				expect.EQ(t, h, hits[i])
			}

			// Cursors are per store.
			assert.NoError(t, r.SelectStore("tracks"))
			c, err := r.CurrentEntry()
			assert.NoError(t, err)
			expect.EQ(t, c, int64(len(tracks)-1))

			r.UnselectStore()
			_, err = r.NumberOfEntries()
			expect.True(t, errors.Is(errors.UnknownStore, err))
			expect.True(t, errors.Is(errors.UnknownStore, r.SelectAutomaticStore()))
			expect.True(t, errors.Is(errors.UnknownStore, r.SelectStore("nope")))
		})
	}
}

func TestTagIntegrity(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "tags.brio")
	hits, tracks := testHits(2), testTracks(1)

	w, err := Create(path, Options{AllowMixedStores: true})
	assert.NoError(t, err)
	assert.NoError(t, w.AddStoreWithTag("hits", archivetest.HitTag))
	expect.True(t, errors.Is(errors.TagMismatch, w.Store(&tracks[0])))
	assert.NoError(t, w.Store(&hits[0]))

	assert.NoError(t, w.AddStore("later"))
	assert.NoError(t, w.Store(&tracks[0]))
	expect.True(t, errors.Is(errors.TagMismatch, w.Store(&hits[1])))

	assert.NoError(t, w.AddMixedStore("misc"))
	assert.NoError(t, w.Store(&hits[1]))
	assert.NoError(t, w.Store(&tracks[0]))
	expect.True(t, errors.Is(errors.DuplicateStore, w.AddStore("misc")))
	expect.True(t, errors.Is(errors.UnknownStore, w.SelectStore("nope")))
	assert.NoError(t, w.Close())

	r, err := Open(path, Options{Registry: archivetest.Registry()})
	assert.NoError(t, err)
	defer r.Close()

	assert.NoError(t, r.SelectStore("hits"))
	var tr archivetest.Track
	expect.True(t, errors.Is(errors.TagMismatch, r.LoadNext(&tr)))
	cur, err := r.CurrentEntry()
	assert.NoError(t, err)
	expect.EQ(t, cur, int64(-1))

	assert.NoError(t, r.SelectStore("later"))
	tag, err := r.StoreTag()
	assert.NoError(t, err)
	expect.EQ(t, tag, archivetest.TrackTag)

	assert.NoError(t, r.SelectStore("misc"))
	tag, err = r.StoreTag()
	assert.NoError(t, err)
	expect.EQ(t, tag, "")
	expect.True(t, r.HasRecordTag())
	expect.True(t, r.RecordTagIs(archivetest.HitTag))
	expect.True(t, errors.Is(errors.TagMismatch, r.LoadNext(&tr)))
	cur, err = r.CurrentEntry()
	assert.NoError(t, err)
	expect.EQ(t, cur, int64(-1))
	var h archivetest.Hit
	assert.NoError(t, r.LoadNext(&h))
	expect.EQ(t, h, hits[1])
	expect.True(t, r.RecordTagIs(archivetest.TrackTag))
	obj, err := r.LoadNextAny()
	assert.NoError(t, err)
	got, ok := obj.(*archivetest.Track)
	assert.True(t, ok)
	if diff := deep.Equal(*got, tracks[0]); diff != nil {
		t.Error(diff)
	}
	expect.False(t, r.HasRecordTag())
}

func TestNoSerialTagCheck(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "hits.trio")
	hits := testHits(1)
	writeHits(t, path, Options{}, hits)

	// The tag check is skipped, so decoding itself rejects the record.
	r, err := Open(path, Options{NoSerialTagCheck: true})
	assert.NoError(t, err)
	defer r.Close()
	var c archivetest.Counter
	err = r.LoadNext(&c)
	expect.True(t, err != nil)
	expect.False(t, errors.Is(errors.TagMismatch, err))
	cur, err := r.CurrentEntry()
	assert.NoError(t, err)
	expect.EQ(t, cur, int64(-1))
}

func TestStores(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "stores.brio")
	w, err := Create(path, Options{})
	assert.NoError(t, err)
	for _, label := range []string{"run/1/hits", "run/2/hits", "run/1/tracks", "calibration"} {
		assert.NoError(t, w.AddStore(label))
	}
	expect.True(t, w.HasStore("calibration"))
	w.Lock()
	expect.True(t, w.Locked())
	expect.True(t, errors.Is(errors.NotSupported, w.AddStore("late")))
	w.Unlock()
	assert.NoError(t, w.AddStore("late"))
	w.UnselectStore()
	hit := testHits(1)[0]
	assert.NoError(t, w.Store(&hit))
	assert.NoError(t, w.Close())

	r, err := Open(path, Options{})
	assert.NoError(t, err)
	defer r.Close()
	all, err := r.Stores("")
	assert.NoError(t, err)
	expect.EQ(t, all, []string{store.Automatic, "calibration", "late", "run/1/hits", "run/1/tracks", "run/2/hits"})
	hitStores, err := r.Stores("run/*/hits")
	assert.NoError(t, err)
	expect.EQ(t, hitStores, []string{"run/1/hits", "run/2/hits"})
	run1, err := r.Stores("run/1/*")
	assert.NoError(t, err)
	expect.EQ(t, run1, []string{"run/1/hits", "run/1/tracks"})
	_, err = r.Stores("run/[")
	expect.True(t, errors.Is(errors.Invalid, err))

	// Stores without records survive and are empty.
	assert.NoError(t, r.SelectStore("calibration"))
	n, err := r.NumberOfEntries()
	assert.NoError(t, err)
	expect.EQ(t, n, int64(0))
	expect.False(t, r.HasNext())
	tag, err := r.StoreTag()
	assert.NoError(t, err)
	expect.EQ(t, tag, "")

	// The automatic store is selected on open when present.
	assert.NoError(t, r.SelectAutomaticStore())
	cur, err := r.CurrentStore()
	assert.NoError(t, err)
	expect.EQ(t, cur, store.Automatic)
}

func TestHeader(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	for _, name := range []string{"header.brio", "header.trio", "header.xml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			w, err := Create(path, Options{})
			assert.NoError(t, err)
			assert.NoError(t, w.AddHeader("experiment", "cosmic \"rays\""))
			assert.NoError(t, w.AddHeader("run", 42))
			assert.NoError(t, w.AddHeader("calibrated", true))
			expect.True(t, errors.Is(errors.Invalid, w.AddHeader("format", "other")))
			expect.True(t, errors.Is(errors.Invalid, w.AddHeader("", "x")))
			expect.True(t, errors.Is(errors.Invalid, w.AddHeader("bad", 1.5)))
			hit := testHits(1)[0]
			assert.NoError(t, w.Store(&hit))
			expect.True(t, errors.Is(errors.Invalid, w.AddHeader("late", 1)))
			id := w.FileID()
			assert.NoError(t, w.Close())
			assert.NoError(t, w.Close())
			expect.True(t, errors.Is(errors.Invalid, w.Store(&hit)))

			r, err := Open(path, Options{})
			assert.NoError(t, err)
			defer r.Close()
			h := r.Header()
			s, ok := h.String("experiment")
			expect.True(t, ok)
			expect.EQ(t, s, "cosmic \"rays\"")
			n, ok := h.Int("run")
			expect.True(t, ok)
			expect.EQ(t, n, int64(42))
			b, ok := h.Bool("calibrated")
			expect.True(t, ok)
			expect.True(t, b)
			f, ok := h.String("format")
			expect.True(t, ok)
			expect.EQ(t, f, FormatName)
			multi, ok := h.Bool("multi-store")
			expect.True(t, ok)
			expect.False(t, multi)
			expect.EQ(t, r.FileID(), id)
		})
	}
}

func TestEmptyFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	for _, name := range []string{"empty.brio", "empty.trio", "empty.xml.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			w, err := Create(path, Options{})
			assert.NoError(t, err)
			assert.NoError(t, w.Close())

			r, err := Open(path, Options{})
			assert.NoError(t, err)
			defer r.Close()
			stores, err := r.Stores("")
			assert.NoError(t, err)
			expect.EQ(t, len(stores), 0)
			var h archivetest.Hit
			expect.True(t, errors.Is(errors.UnknownStore, r.LoadNext(&h)))
		})
	}
}

func TestSequentialPeekDoesNotRescan(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	for _, name := range []string{"mixed.trio", "mixed.xml"} {
		path := filepath.Join(dir, name)
		w, err := Create(path, Options{AllowMixedStores: true})
		assert.NoError(t, err)
		assert.NoError(t, w.AddMixedStore("hits"))
		for _, h := range testHits(50) {
			h := h
			assert.NoError(t, w.Store(&h))
		}
		assert.NoError(t, w.Close())

		r, err := Open(path, Options{Registry: archivetest.Registry()})
		assert.NoError(t, err)
		assert.NoError(t, r.SelectStore("hits"))
		var n int32
		for r.HasNext() {
			expect.True(t, r.RecordTagIs(archivetest.HitTag))
			var h archivetest.Hit
			assert.NoError(t, r.LoadNext(&h))
			expect.EQ(t, h.ID, n)
			n++
		}
		expect.EQ(t, n, int32(50))
		expect.EQ(t, r.src.(*streamSource).rescans, 0, name)

		var h archivetest.Hit
		assert.NoError(t, r.Load(&h, 10))
		expect.EQ(t, h.ID, int32(10))
		expect.EQ(t, r.src.(*streamSource).rescans, 1, name)
		assert.NoError(t, r.Close())
	}
}

func TestStoreAfterSingleStoreHeader(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	path := filepath.Join(dir, "single.brio")
	w, err := Create(path, Options{})
	assert.NoError(t, err)
	hits := testHits(2)
	assert.NoError(t, w.Store(&hits[0]))
	expect.True(t, errors.Is(errors.Invalid, w.AddStore("late")))
	expect.True(t, errors.Is(errors.Invalid, w.AddMixedStore("late")))
	expect.False(t, w.HasStore("late"))
	assert.NoError(t, w.Store(&hits[1]))
	assert.NoError(t, w.Close())

	r, err := Open(path, Options{})
	assert.NoError(t, err)
	defer r.Close()
	multi, ok := r.Header().Bool("multi-store")
	expect.True(t, ok)
	expect.False(t, multi)
	labels, err := r.Stores("")
	assert.NoError(t, err)
	expect.EQ(t, labels, []string{store.Automatic})
}

type unencodable struct{}

func (*unencodable) SerialTag() string    { return "brio::unencodable" }
func (*unencodable) ClassVersion() uint32 { return 1 }
func (*unencodable) Serialize(ar archive.Archive, version uint32) error {
	return errors.E(errors.Invalid, "cannot encode")
}

func TestFailedStoreLeavesNoAutomaticStore(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "brio")
	defer cleanup()
	for _, name := range []string{"failed.brio", "failed.trio", "failed.xml"} {
		path := filepath.Join(dir, name)
		w, err := Create(path, Options{})
		assert.NoError(t, err)
		expect.True(t, errors.Is(errors.Invalid, w.Store(new(unencodable))))
		expect.EQ(t, len(w.Stores()), 0, name)
		assert.NoError(t, w.Close())

		r, err := Open(path, Options{})
		assert.NoError(t, err)
		expect.False(t, r.HasAutomaticStore(), name)
		labels, err := r.Stores("")
		assert.NoError(t, err)
		expect.EQ(t, len(labels), 0, name)
		assert.NoError(t, r.Close())
	}
}
