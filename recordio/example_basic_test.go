// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio_test

import (
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/brio/recordio"
)

func doWrite(out io.Writer) []recordio.ItemLocation {
	wr := recordio.NewWriter(out, recordio.WriterOpts{
		Transformers: []string{"flate"},
	})
	wr.AddHeader(recordio.KeyTrailer, true)
	var locs []recordio.ItemLocation
	for _, s := range []string{"Item0", "Item1", "Item2"} {
		locs = append(locs, wr.Append(recordio.Frame{Store: "items", Tag: "example", Payload: []byte(s)}))
	}
	wr.SetTrailer([]byte("index"))
	if err := wr.Finish(); err != nil {
		panic(err)
	}
	return locs
}

func doRead(in io.ReadSeeker, locs []recordio.ItemLocation) {
	r := recordio.NewScanner(in)
	for r.Scan() {
		fmt.Printf("Item: %s\n", r.Get().Payload)
	}
	r.Seek(locs[1])
	for r.Scan() {
		fmt.Printf("Again: %s\n", r.Get().Payload)
	}
	fmt.Printf("Trailer: %s\n", r.Trailer())
	if err := r.Finish(); err != nil {
		panic(err)
	}
}

// Example_basic demonstrates basic reads, writes, seeks, and flate
// compression.
func Example_basic() {
	buf := &bytes.Buffer{}
	locs := doWrite(buf)
	doRead(bytes.NewReader(buf.Bytes()), locs)
	// Output:
	// Item: Item0
	// Item: Item1
	// Item: Item2
	// Again: Item1
	// Again: Item2
	// Trailer: index
}
