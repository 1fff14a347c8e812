// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"sort"

	"github.com/grailbio/brio/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/willf/bitset"
)

// Directory indexes the records of every store by block. For each
// store it lists the blocks that hold the store's records and, per
// block, a bitmap of the item slots the store owns. A reader uses it
// to map a store-relative record index to a block and item without
// scanning the file.
type Directory struct {
	indexes []*Index
	byLabel map[string]*Index
}

// Index is the directory entry of one store.
type Index struct {
	Label     string
	SerialTag string
	Policy    Policy
	Count     int64
	Blocks    []Block
}

// Block lists the items of one block that belong to a store.
type Block struct {
	// Offset is the file offset of the block.
	Offset uint64
	// Items has bit i set when item i of the block belongs to the
	// store.
	Items *bitset.BitSet

	// first is the store-relative index of the block's first item.
	first int64
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{byLabel: make(map[string]*Index)}
}

// Add records that the next record of store s is item `item` of the
// block at offset.
func (d *Directory) Add(s *Store, offset uint64, item int) {
	ix := d.index(s.Label)
	n := len(ix.Blocks)
	if n == 0 || ix.Blocks[n-1].Offset != offset {
		ix.Blocks = append(ix.Blocks, Block{Offset: offset, Items: bitset.New(uint(item + 1)), first: ix.Count})
		n++
	}
	ix.Blocks[n-1].Items.Set(uint(item))
	ix.Count++
}

func (d *Directory) index(label string) *Index {
	ix, ok := d.byLabel[label]
	if !ok {
		ix = &Index{Label: label}
		d.byLabel[label] = ix
		d.indexes = append(d.indexes, ix)
	}
	return ix
}

// Sync copies the tag and policy of each store into the directory and
// adds entries for stores that hold no records.
func (d *Directory) Sync(stores []*Store) {
	for _, s := range stores {
		ix := d.index(s.Label)
		ix.SerialTag = s.SerialTag
		ix.Policy = s.Policy
	}
}

// Index returns the entry of the store with the given label.
func (d *Directory) Index(label string) (*Index, bool) {
	ix, ok := d.byLabel[label]
	return ix, ok
}

// Indexes returns the entries in store creation order.
func (d *Directory) Indexes() []*Index {
	return append([]*Index(nil), d.indexes...)
}

// Stores returns fresh stores, positioned before their first record,
// that describe the directory's entries.
func (d *Directory) Stores() []*Store {
	stores := make([]*Store, len(d.indexes))
	for i, ix := range d.indexes {
		stores[i] = New(ix.Label, ix.SerialTag, ix.Policy)
		stores[i].Count = ix.Count
	}
	return stores
}

// Locate returns the block offset and item slot of the store's i'th
// record.
func (ix *Index) Locate(i int64) (offset uint64, item int, err error) {
	if i < 0 || i >= ix.Count {
		return 0, 0, errors.E(errors.IndexOutOfRange,
			fmt.Sprintf("store %q: index %d out of range [0, %d)", ix.Label, i, ix.Count))
	}
	b := sort.Search(len(ix.Blocks), func(j int) bool { return ix.Blocks[j].first > i }) - 1
	if b < 0 {
		return 0, 0, errors.E(errors.Format, fmt.Sprintf("store %q: directory does not cover index %d", ix.Label, i))
	}
	blk := ix.Blocks[b]
	k := i - blk.first
	for slot, ok := blk.Items.NextSet(0); ok; slot, ok = blk.Items.NextSet(slot + 1) {
		if k == 0 {
			return blk.Offset, int(slot), nil
		}
		k--
	}
	return 0, 0, errors.E(errors.Format, fmt.Sprintf("store %q: directory does not cover index %d", ix.Label, i))
}

type wireDirectory struct {
	Stores []wireIndex `msgpack:"stores"`
}

type wireIndex struct {
	Label  string      `msgpack:"label"`
	Tag    string      `msgpack:"tag"`
	Policy int         `msgpack:"policy"`
	Count  int64       `msgpack:"count"`
	Blocks []wireBlock `msgpack:"blocks"`
}

type wireBlock struct {
	Offset uint64 `msgpack:"offset"`
	Items  []byte `msgpack:"items"`
}

// Marshal encodes the directory for a file trailer.
func (d *Directory) Marshal() ([]byte, error) {
	w := wireDirectory{Stores: make([]wireIndex, len(d.indexes))}
	for i, ix := range d.indexes {
		wi := wireIndex{Label: ix.Label, Tag: ix.SerialTag, Policy: int(ix.Policy), Count: ix.Count}
		for _, b := range ix.Blocks {
			items, err := b.Items.MarshalBinary()
			if err != nil {
				return nil, errors.E(errors.Other, "store: encode directory", err)
			}
			wi.Blocks = append(wi.Blocks, wireBlock{Offset: b.Offset, Items: items})
		}
		w.Stores[i] = wi
	}
	return msgpack.Marshal(&w)
}

// UnmarshalDirectory decodes a directory produced by Marshal. It
// checks that the block bitmaps account for each store's count.
func UnmarshalDirectory(data []byte) (*Directory, error) {
	var w wireDirectory
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, errors.E(errors.Format, "store: decode directory", err)
	}
	d := NewDirectory()
	for _, wi := range w.Stores {
		if _, ok := d.byLabel[wi.Label]; ok {
			return nil, errors.E(errors.Format, fmt.Sprintf("store: directory lists %q twice", wi.Label))
		}
		if wi.Policy < int(Postponed) || wi.Policy > int(Mixed) {
			return nil, errors.E(errors.Format, fmt.Sprintf("store %q: invalid policy %d", wi.Label, wi.Policy))
		}
		ix := d.index(wi.Label)
		ix.SerialTag = wi.Tag
		ix.Policy = Policy(wi.Policy)
		var total int64
		for _, wb := range wi.Blocks {
			items := new(bitset.BitSet)
			if err := items.UnmarshalBinary(wb.Items); err != nil {
				return nil, errors.E(errors.Format, fmt.Sprintf("store %q: decode block bitmap", wi.Label), err)
			}
			ix.Blocks = append(ix.Blocks, Block{Offset: wb.Offset, Items: items, first: total})
			total += int64(items.Count())
		}
		if total != wi.Count {
			return nil, errors.E(errors.Format,
				fmt.Sprintf("store %q: directory holds %d records, header says %d", wi.Label, total, wi.Count))
		}
		ix.Count = total
	}
	return d, nil
}
