// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fileio_test

import (
	"testing"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/testutil/expect"
)

func TestNames(t *testing.T) {
	for _, test := range []struct {
		name string
		typ  fileio.FileType
		comp fileio.Compression
	}{
		{"xx", fileio.Other, fileio.None},
		{"xx.bar", fileio.Other, fileio.None},
		{"/tmp/run.brio", fileio.Binary, fileio.None},
		{"run.data", fileio.Binary, fileio.None},
		{"run.TRIO", fileio.Text, fileio.None},
		{"dir.xml/run.txt", fileio.Text, fileio.None},
		{"run.trio.gz", fileio.Text, fileio.Gzip},
		{"run.xml.zst", fileio.XML, fileio.Zstd},
		{"run.xml.sz", fileio.XML, fileio.Snappy},
		{"run.txt.bz2", fileio.Text, fileio.Bzip2},
		{"run.gz", fileio.Other, fileio.Gzip},
	} {
		typ, comp := fileio.DetermineType(test.name)
		expect.EQ(t, typ, test.typ, test.name)
		expect.EQ(t, comp, test.comp, test.name)
	}
	expect.EQ(t, fileio.FileSuffix(fileio.Text, fileio.Gzip), ".trio.gz")
	expect.EQ(t, fileio.FileSuffix(fileio.Binary, fileio.None), ".brio")
	expect.EQ(t, fileio.FileSuffix(fileio.Other, fileio.None), "")

	c, ok := fileio.ParseCompression("ZSTD")
	expect.True(t, ok)
	expect.EQ(t, c, fileio.Zstd)
	expect.EQ(t, c.String(), "zstd")
	_, ok = fileio.ParseCompression("lz4")
	expect.False(t, ok)
}

func TestParseFileType(t *testing.T) {
	for _, typ := range []fileio.FileType{fileio.Binary, fileio.Text, fileio.XML} {
		got, err := fileio.ParseFileType(typ.String())
		expect.NoError(t, err)
		expect.EQ(t, got, typ)
	}
	got, err := fileio.ParseFileType("auto")
	expect.NoError(t, err)
	expect.EQ(t, got, fileio.Other)
	_, err = fileio.ParseFileType("root")
	expect.True(t, errors.Is(errors.Invalid, err))
}
