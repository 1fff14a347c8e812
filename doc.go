// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
Package brio stores and loads serializable objects in record files.

A brio file holds any number of named stores. A store is an ordered
sequence of records; each record is one object encoded by package
archive together with its serial tag and layout version, so it can be
decoded later by a program that knows the type only through a
serial.Registry. Records of several stores may be interleaved in one
file.

Three container formats are supported. Binary files (".brio",
".data") are recordio files: records are packed into CRC-checked
blocks, optionally compressed by block transformers, and a directory
of every store's records is written to the trailer on close, so a
reader can seek to any record. Text (".trio", ".txt") and XML (".xml")
files hold one self-delimiting record per line and may be compressed
as a whole (".gz", ".zst", ".sz"); positional access rescans them.

Writing:

	w, err := brio.Create("run.brio", brio.Options{Registry: reg})
	...
	w.AddStoreWithTag("hits", hitTag)
	for _, h := range hits {
		if err := w.Store(h); err != nil {
			...
		}
	}
	err = w.Close()

Reading:

	r, err := brio.Open("run.brio", brio.Options{Registry: reg})
	...
	r.SelectStore("hits")
	for r.HasNext() {
		var h Hit
		if err := r.LoadNext(&h); err != nil {
			...
		}
	}
	err = r.Close()

Storing or loading without a selected store uses the automatic store,
which is created on demand. Readers whose writer was never closed
recover the store directory by scanning the complete records of the
file, and log that they did so.
*/
package brio
