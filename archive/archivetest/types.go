// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package archivetest defines serializable types shared by the tests of
// the archive, recordio and brio packages.
package archivetest

import (
	"time"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/must"
	"github.com/grailbio/brio/serial"
)

// Serial tags of the test types.
const (
	HitTag      = "archivetest::hit"
	ParticleTag = "archivetest::particle"
	TrackTag    = "archivetest::track"
	EventTag    = "archivetest::event"
	CounterTag  = "archivetest::counter"
)

// Hit is a detector hit. Layout version 2 added Label.
type Hit struct {
	ID    int32
	TDC   float64
	Label string
}

func (*Hit) SerialTag() string    { return HitTag }
func (*Hit) ClassVersion() uint32 { return 2 }

func (h *Hit) Serialize(ar archive.Archive, version uint32) error {
	ar.Int32("id", &h.ID)
	ar.Float64("tdc", &h.TDC)
	if archive.Since(version, 2) {
		ar.String("label", &h.Label)
	} else if ar.Loading() {
		h.Label = "unlabeled"
	}
	return ar.Err()
}

// HitV1 is Hit as it was before Label was added. It shares Hit's
// serial tag and stands in for an older build of the same type.
type HitV1 struct {
	ID  int32
	TDC float64
}

func (*HitV1) SerialTag() string    { return HitTag }
func (*HitV1) ClassVersion() uint32 { return 1 }

func (h *HitV1) Serialize(ar archive.Archive, version uint32) error {
	ar.Int32("id", &h.ID)
	ar.Float64("tdc", &h.TDC)
	return ar.Err()
}

// Particle is the base part of Track.
type Particle struct {
	Name   string
	Charge int8
}

func (*Particle) SerialTag() string    { return ParticleTag }
func (*Particle) ClassVersion() uint32 { return 1 }

func (p *Particle) Serialize(ar archive.Archive, version uint32) error {
	ar.String("name", &p.Name)
	ar.Int8("charge", &p.Charge)
	return ar.Err()
}

// Track is a Particle with a trajectory.
type Track struct {
	Particle
	Length float32
	Hits   []Hit
	Raw    []byte
}

func (*Track) SerialTag() string    { return TrackTag }
func (*Track) ClassVersion() uint32 { return 1 }

func (t *Track) Serialize(ar archive.Archive, version uint32) error {
	ar.Base(&t.Particle)
	ar.Float32("length", &t.Length)
	n := len(t.Hits)
	ar.Len("hits", &n)
	if ar.Loading() && ar.Err() == nil {
		t.Hits = make([]Hit, n)
	}
	for i := range t.Hits {
		ar.Object("hit", &t.Hits[i])
	}
	ar.Bytes("raw", &t.Raw)
	return ar.Err()
}

// Event is a heterogeneous container.
type Event struct {
	Number  uint64
	Time    time.Time
	Trigger archive.Serializable
	Items   []archive.Serializable
}

func (*Event) SerialTag() string    { return EventTag }
func (*Event) ClassVersion() uint32 { return 1 }

func (e *Event) Serialize(ar archive.Archive, version uint32) error {
	ar.Uint64("number", &e.Number)
	ar.Time("time", &e.Time)
	ar.Polymorphic("trigger", &e.Trigger)
	n := len(e.Items)
	ar.Len("items", &n)
	if ar.Loading() && ar.Err() == nil {
		e.Items = make([]archive.Serializable, n)
	}
	for i := range e.Items {
		ar.Polymorphic("item", &e.Items[i])
	}
	return ar.Err()
}

// Counter exercises every scalar width.
type Counter struct {
	I8  int8
	I16 int16
	I32 int32
	I64 int64
	I   int
	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64
	U   uint
	F32 float32
	F64 float64
	B   bool
	S   string
}

func (*Counter) SerialTag() string    { return CounterTag }
func (*Counter) ClassVersion() uint32 { return 1 }

func (c *Counter) Serialize(ar archive.Archive, version uint32) error {
	ar.Int8("i8", &c.I8)
	ar.Int16("i16", &c.I16)
	ar.Int32("i32", &c.I32)
	ar.Int64("i64", &c.I64)
	ar.Int("i", &c.I)
	ar.Uint8("u8", &c.U8)
	ar.Uint16("u16", &c.U16)
	ar.Uint32("u32", &c.U32)
	ar.Uint64("u64", &c.U64)
	ar.Uint("u", &c.U)
	ar.Float32("f32", &c.F32)
	ar.Float64("f64", &c.F64)
	ar.Bool("b", &c.B)
	ar.String("s", &c.S)
	return ar.Err()
}

// RegisterInto registers the test types.
func RegisterInto(r *serial.Registry) error {
	for _, reg := range []struct {
		tag     string
		factory serial.Factory
	}{
		{HitTag, func() archive.Serializable { return new(Hit) }},
		{ParticleTag, func() archive.Serializable { return new(Particle) }},
		{TrackTag, func() archive.Serializable { return new(Track) }},
		{EventTag, func() archive.Serializable { return new(Event) }},
		{CounterTag, func() archive.Serializable { return new(Counter) }},
	} {
		if err := r.Register(reg.tag, reg.factory); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a frozen registry holding the test types.
func Registry() *serial.Registry {
	return must.Registry(RegisterInto)
}
