// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package must_test

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/archive/archivetest"
	"github.com/grailbio/brio/must"
	"github.com/grailbio/brio/serial"
	"github.com/grailbio/testutil/expect"
)

// TestDepth verifies that the depth passed to Func locates the caller
// of the must function.
func TestDepth(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not determine current file")
	}
	saved := must.Func
	defer func() { must.Func = saved }()
	calls := 0
	must.Func = func(depth int, v ...interface{}) {
		calls++
		_, file, _, ok := runtime.Caller(depth)
		if !ok {
			t.Fatal("could not determine caller of Func")
		}
		if file != thisFile {
			t.Errorf("caller at depth %d is '%s'; should be '%s'", depth, file, thisFile)
		}
	}
	must.True(false)
	must.Truef(false, "")
	must.Nil(struct{}{})
	must.Nilf(struct{}{}, "")
	must.Never()
	dup := func(r *serial.Registry) error {
		return r.Register(archivetest.HitTag, func() archive.Serializable { return new(archivetest.HitV1) })
	}
	must.Registry(archivetest.RegisterInto, dup)
	expect.EQ(t, calls, 6)
}

func TestRegistry(t *testing.T) {
	r := must.Registry(archivetest.RegisterInto)
	expect.True(t, r.Frozen())
	expect.True(t, r.Has(archivetest.TrackTag))
}

func Example() {
	saved := must.Func
	defer func() { must.Func = saved }()
	must.Func = func(depth int, v ...interface{}) {
		fmt.Print(v...)
		fmt.Print("\n")
	}

	must.Nil(errors.New("unexpected condition"))
	must.Nil(nil)
	must.Nil(errors.New("i/o error"), "reading file")

	must.True(false)
	must.True(true, "something happened")
	must.True(false, "a condition failed")

	// Output:
	// unexpected condition
	// reading file: i/o error
	// must: assertion failed
	// a condition failed
}
