// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type errCallable struct{ error }

func (e errCallable) Func() error { return e.error }

func TestCleanUp(t *testing.T) {
	const (
		closeMsg  = "close [seuozr]"
		returnMsg = "return [mntbnb]"
	)

	// No return error, no close error.
	gotErr := func() (err error) {
		e := errCallable{}
		defer CleanUp(e.Func, &err)
		return nil
	}()
	assert.NoError(t, gotErr)

	// No return error, close error.
	gotErr = func() (err error) {
		e := errCallable{errors.New(closeMsg)}
		defer CleanUp(e.Func, &err)
		return nil
	}()
	assert.Equal(t, gotErr.Error(), closeMsg)

	// Return error, no close error.
	gotErr = func() (err error) {
		e := errCallable{}
		defer CleanUp(e.Func, &err)
		return errors.New(returnMsg)
	}()
	assert.Equal(t, gotErr.Error(), returnMsg)

	// Return error, close error.
	gotErr = func() (err error) {
		e := errCallable{errors.New(closeMsg)}
		defer CleanUp(e.Func, &err)
		return E(Format, returnMsg)
	}()
	assert.Contains(t, gotErr.Error(), returnMsg)
	assert.Contains(t, gotErr.Error(), closeMsg)
	assert.True(t, Is(Format, gotErr))
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine(nil, nil))
	err := E(FileAccess, "flush")
	assert.Equal(t, err, Combine(nil, err, nil))
	both := Combine(errors.New("a"), E(Format, "b"))
	assert.Contains(t, both.Error(), "2 errors occurred")
	assert.False(t, Is(Format, both))
}
