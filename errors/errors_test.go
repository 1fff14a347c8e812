// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
)

func TestError(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	e1 := errors.E(errors.FileNotFound, "opening file", err)
	if got, want := e1.Error(), "opening file: file not found: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	e2 := errors.E(err)
	if got, want := e2.Error(), "file not found: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	for _, e := range []error{e1, e2} {
		if !errors.Is(errors.FileNotFound, e) {
			t.Errorf("error %v should be FileNotFound", e)
		}
		if !errors.IsClass(errors.ClassIO, e) {
			t.Errorf("error %v should be in the I/O class", e)
		}
	}
}

func TestPermissionClassified(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir, cleanup := testutil.TempDir(t, "", "errors")
	defer cleanup()
	path := filepath.Join(dir, "ro")
	expect.NoError(t, os.WriteFile(path, nil, 0400))
	_, err := os.OpenFile(path, os.O_WRONLY, 0)
	expect.True(t, errors.Is(errors.FileAccess, errors.E(err)))
}

func TestErrorChaining(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	err = errors.E("failed to open file", err)
	err = errors.E(errors.Format, "cannot proceed", err)
	if got, want := err.Error(), "cannot proceed: malformed data:\n\tfailed to open file: file not found: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestKindOf(t *testing.T) {
	err := errors.E("loading hit", errors.E(errors.TagMismatch, "want hit, got track"))
	expect.EQ(t, errors.KindOf(err), errors.TagMismatch)
	expect.EQ(t, errors.KindOf(goerrors.New("plain")), errors.Other)
	expect.True(t, errors.IsClass(errors.ClassFormat, err))
	expect.False(t, errors.IsClass(errors.ClassNavigation, err))
	expect.False(t, errors.IsClass(errors.ClassFormat, nil))
}

func TestClasses(t *testing.T) {
	for _, c := range []struct {
		kind  errors.Kind
		class errors.Class
	}{
		{errors.DuplicateTag, errors.ClassRegistration},
		{errors.UnknownTag, errors.ClassRegistration},
		{errors.Format, errors.ClassFormat},
		{errors.NonPortableValue, errors.ClassFormat},
		{errors.Signedness, errors.ClassFormat},
		{errors.StartOfStore, errors.ClassNavigation},
		{errors.DuplicateStore, errors.ClassNavigation},
		{errors.FileAccess, errors.ClassIO},
		{errors.Invalid, errors.ClassOther},
	} {
		if got, want := c.kind.Class(), c.class; got != want {
			t.Errorf("%v: got %v, want %v", c.kind, got, want)
		}
	}
}

func TestMatch(t *testing.T) {
	err := errors.E("loading hit", errors.E(errors.TagMismatch, "want hit"))
	expect.True(t, errors.Match(errors.E("loading hit"), err))
	expect.True(t, errors.Match(errors.E(errors.TagMismatch), err))
	expect.False(t, errors.Match(errors.E(errors.Format), err))
	expect.False(t, errors.Match(errors.E("loading track"), err))
}

func TestMessage(t *testing.T) {
	for _, c := range []struct {
		err     error
		message string
	}{
		{errors.E("hello"), "hello"},
		{errors.E("hello", "world"), "hello world"},
		{errors.Errorf(errors.IndexOutOfRange, "entry %d of %d", 7, 3), "entry 7 of 3: index out of range"},
	} {
		if got, want := c.err.Error(), c.message; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestStdInterop(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	for _, e := range []error{
		err,
		errors.E(err),
		errors.E(err, "wrapped", errors.FileNotFound),
	} {
		expect.True(t, errors.Is(errors.FileNotFound, e))
		expect.True(t, goerrors.Is(e, os.ErrNotExist))
	}
	var target *errors.Error
	expect.True(t, goerrors.As(errors.E("outer", errors.E(errors.UnknownStore, "hits")), &target))
	expect.EQ(t, target.Kind, errors.UnknownStore)
}
