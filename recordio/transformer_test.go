// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio_test

import (
	"bytes"
	"testing"

	"github.com/grailbio/brio/recordio"
	"github.com/grailbio/brio/recordio/recordioflate"
	"github.com/grailbio/brio/recordio/recordiosnappy"
	"github.com/grailbio/brio/recordio/recordiozstd"
	"github.com/grailbio/testutil/assert"
)

// Produce a file using the given transformers. Returns the ratio between the
// encoded size and input size. For a compressing transformer, the ratio should
// be ⋘ 1.
func transformerTest(t *testing.T, names ...string) float64 {
	buf := &bytes.Buffer{}
	wr := recordio.NewWriter(buf, recordio.WriterOpts{
		Transformers: names,
	})
	wr.AddHeader(recordio.KeyTrailer, true)
	// Write lots of compressible data.
	const itemSize = 16 << 8
	const nRecs = 300
	for i := 0; i < nRecs; i++ {
		data := make([]byte, itemSize)
		for j := range data {
			data[j] = 'A' + byte(i)
		}
		wr.Append(recordio.Frame{Store: "s", Tag: "t", Payload: data})
	}
	wr.SetTrailer(bytes.Repeat([]byte("trailer"), 100))
	assert.NoError(t, wr.Finish())

	// Verify the data
	sc := recordio.NewScanner(bytes.NewReader(buf.Bytes()))
	assert.EQ(t, string(sc.Trailer()), string(bytes.Repeat([]byte("trailer"), 100)))
	for i := 0; i < nRecs; i++ {
		assert.True(t, sc.Scan(), "err: %v", sc.Err())
		data := sc.Get().Payload
		assert.EQ(t, len(data), itemSize)
		for j := range data {
			assert.EQ(t, data[j], byte('A'+i))
		}
	}
	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
	return float64(buf.Len()) / float64(nRecs*itemSize)
}

func TestZstd(t *testing.T) {
	recordiozstd.Init()
	assert.LT(t, transformerTest(t, recordiozstd.Name), 0.2)
	assert.LT(t, transformerTest(t, recordiozstd.Name+" 3"), 0.2)
}

func TestFlate(t *testing.T) {
	recordioflate.Init()
	assert.LT(t, transformerTest(t, recordioflate.Name), 0.2)
}

func TestSnappy(t *testing.T) {
	recordiosnappy.Init()
	assert.LT(t, transformerTest(t, recordiosnappy.Name), 0.2)
}

func TestChain(t *testing.T) {
	recordiosnappy.Init()
	recordioflate.Init()
	assert.LT(t, transformerTest(t, recordiosnappy.Name, recordioflate.Name+" 1"), 0.2)
}
