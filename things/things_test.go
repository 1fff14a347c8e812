// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package things_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
	"github.com/grailbio/brio"
	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/archive/archivetest"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/properties"
	"github.com/grailbio/brio/serial"
	"github.com/grailbio/brio/things"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func registry(t *testing.T) *serial.Registry {
	r, err := serial.Build(archivetest.RegisterInto, properties.RegisterInto, things.RegisterInto)
	assert.NoError(t, err)
	return r
}

func bag(t *testing.T) *things.Things {
	b := things.New("event", "one triggered event")
	config := properties.New("run config")
	assert.NoError(t, config.StoreInt("run", 12, ""))
	assert.NoError(t, b.Add("config", config, "run configuration", true))
	assert.NoError(t, b.Add("trigger", &archivetest.Hit{ID: 4, TDC: 0.5, Label: "t0"}, "", false))
	assert.NoError(t, b.Add("track", &archivetest.Track{
		Particle: archivetest.Particle{Name: "mu-", Charge: -1},
		Length:   12.5,
		Hits:     []archivetest.Hit{{ID: 1}, {ID: 2}},
		Raw:      []byte{1, 2},
	}, "fitted track", false))
	return b
}

func TestAccess(t *testing.T) {
	b := bag(t)
	expect.EQ(t, b.Len(), 3)
	expect.EQ(t, b.Names(), []string{"config", "trigger", "track"})
	expect.EQ(t, b.Tags(), []string{archivetest.HitTag, archivetest.TrackTag, properties.Tag})
	expect.True(t, b.Is("trigger", archivetest.HitTag))
	expect.False(t, b.Is("trigger", archivetest.TrackTag))
	expect.False(t, b.Is("missing", archivetest.HitTag))
	expect.True(t, b.Constant("config"))

	obj, err := b.Get("config")
	assert.NoError(t, err)
	_, ok := obj.(*properties.Properties)
	expect.True(t, ok)
	_, err = b.GetMutable("config")
	expect.True(t, errors.Is(errors.Invalid, err))
	obj, err = b.GetMutable("trigger")
	assert.NoError(t, err)
	obj.(*archivetest.Hit).ID = 5
	obj, err = b.Get("trigger")
	assert.NoError(t, err)
	expect.EQ(t, obj.(*archivetest.Hit).ID, int32(5))

	d, err := b.EntryDescription("track")
	assert.NoError(t, err)
	expect.EQ(t, d, "fitted track")
	assert.NoError(t, b.SetEntryDescription("track", "refitted"))
	d, _ = b.EntryDescription("track")
	expect.EQ(t, d, "refitted")

	expect.True(t, errors.Is(errors.Invalid, b.Add("trigger", &archivetest.Hit{}, "", false)))
	expect.True(t, errors.Is(errors.Invalid, b.Add("", &archivetest.Hit{}, "", false)))
	expect.True(t, errors.Is(errors.Invalid, b.Add("nothing", nil, "", false)))
	_, err = b.Get("missing")
	expect.True(t, errors.Is(errors.Invalid, err))

	expect.True(t, errors.Is(errors.Invalid, b.Remove("config")))
	assert.NoError(t, b.SetConstant("config", false))
	assert.NoError(t, b.Remove("config"))
	assert.NoError(t, b.Remove("trigger"))
	expect.EQ(t, b.Names(), []string{"track"})
	expect.True(t, errors.Is(errors.Invalid, b.Remove("trigger")))

	b.Clear()
	expect.EQ(t, b.Len(), 0)
	expect.EQ(t, b.Name(), "")
}

func TestSerialize(t *testing.T) {
	r := registry(t)
	in := bag(t)
	for _, mode := range []archive.Mode{archive.Binary, archive.Text, archive.XML} {
		data, err := archive.Marshal(mode, in, archive.Options{})
		assert.NoError(t, err, mode)
		out := things.New("", "")
		assert.NoError(t, archive.Unmarshal(mode, data, in.ClassVersion(), out, archive.Options{Resolver: r}), mode)

		var want, have bytes.Buffer
		assert.NoError(t, in.Dump(&want, ""))
		assert.NoError(t, out.Dump(&have, ""))
		expect.EQ(t, have.String(), want.String(), mode)
		expect.True(t, out.Constant("config"))

		for _, name := range []string{"trigger", "track"} {
			a, _ := in.Get(name)
			b, err := out.Get(name)
			assert.NoError(t, err)
			if diff := deep.Equal(a, b); diff != nil {
				t.Errorf("%v %s: %v", mode, name, diff)
			}
		}
		obj, err := out.Get("config")
		assert.NoError(t, err)
		run, err := obj.(*properties.Properties).Int("run")
		assert.NoError(t, err)
		expect.EQ(t, run, int64(12))
	}
}

func TestSerializeNeedsResolver(t *testing.T) {
	in := bag(t)
	data, err := archive.Marshal(archive.Binary, in, archive.Options{})
	assert.NoError(t, err)
	err = archive.Unmarshal(archive.Binary, data, in.ClassVersion(), things.New("", ""), archive.Options{})
	expect.True(t, errors.Is(errors.UnknownTag, err))

	partial, err := serial.Build(archivetest.RegisterInto)
	assert.NoError(t, err)
	err = archive.Unmarshal(archive.Binary, data, in.ClassVersion(), things.New("", ""), archive.Options{Resolver: partial})
	expect.True(t, errors.Is(errors.UnknownTag, err))
}

func TestStoreInFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "things")
	defer cleanup()
	r := registry(t)
	for _, name := range []string{"bag.brio", "bag.trio", "bag.xml"} {
		path := filepath.Join(dir, name)
		w, err := brio.Create(path, brio.Options{Registry: r})
		assert.NoError(t, err)
		assert.NoError(t, w.AddStoreWithTag("bags", things.Tag))
		assert.NoError(t, w.SelectStore("bags"))
		assert.NoError(t, w.Store(bag(t)))
		empty := things.New("empty", "")
		assert.NoError(t, w.Store(empty))
		assert.NoError(t, w.Close())

		rd, err := brio.Open(path, brio.Options{Registry: r})
		assert.NoError(t, err)
		assert.NoError(t, rd.SelectStore("bags"))
		obj, err := rd.LoadNextAny()
		assert.NoError(t, err, name)
		got, ok := obj.(*things.Things)
		assert.True(t, ok)
		expect.EQ(t, got.Name(), "event")
		expect.EQ(t, got.Names(), []string{"config", "trigger", "track"})
		got = things.New("", "")
		assert.NoError(t, rd.LoadNext(got))
		expect.EQ(t, got.Name(), "empty")
		expect.EQ(t, got.Len(), 0)
		expect.False(t, rd.HasNext())
		assert.NoError(t, rd.Close())
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, bag(t).Dump(&buf, "bag:"))
	expect.EQ(t, buf.String(), "bag:\n"+
		"|-- Name: 'event'\n"+
		"|-- Description: 'one triggered event'\n"+
		"`-- Entries: 3\n"+
		"    |-- Name: 'config' Type: 'brio::properties' (constant) # run configuration\n"+
		"    |-- Name: 'trigger' Type: 'archivetest::hit'\n"+
		"    `-- Name: 'track' Type: 'archivetest::track' # fitted track\n")

	buf.Reset()
	assert.NoError(t, things.New("", "").Dump(&buf, ""))
	expect.EQ(t, buf.String(), "|-- Name: ''\n|-- Description: ''\n`-- Entries: <none>\n")
}
