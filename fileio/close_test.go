// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fileio_test

import (
	"testing"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/stretchr/testify/assert"
)

type errFile struct {
	err error
}

func (f *errFile) String() string { return f.err.Error() }

func (f *errFile) Close() error {
	return f.err
}

func TestCloseAndReport(t *testing.T) {
	closeMsg := "close [seuozr]"
	returnMsg := "return [mntbnb]"

	// No return error, no close error.
	gotErr := func() (err error) {
		f := errFile{}
		defer fileio.CloseAndReport(&f, &err)
		return nil
	}()
	assert.NoError(t, gotErr)

	// No return error, close error.
	gotErr = func() (err error) {
		f := errFile{errors.New(closeMsg)}
		defer fileio.CloseAndReport(&f, &err)
		return nil
	}()
	assert.Equal(t, gotErr.Error(), closeMsg)

	// Return error, no close error.
	gotErr = func() (err error) {
		f := errFile{}
		defer fileio.CloseAndReport(&f, &err)
		return errors.New(returnMsg)
	}()
	assert.Equal(t, gotErr.Error(), returnMsg)

	// Return error, close error.
	gotErr = func() (err error) {
		f := errFile{errors.New(closeMsg)}
		defer fileio.CloseAndReport(&f, &err)
		return errors.New(returnMsg)
	}()
	assert.Contains(t, gotErr.Error(), returnMsg)
	assert.Contains(t, gotErr.Error(), closeMsg)

	// Named file, close error.
	gotErr = func() (err error) {
		f := namedFile{errFile{errors.New(closeMsg)}}
		defer fileio.CloseAndReport(&f, &err)
		return nil
	}()
	assert.True(t, errors.Is(errors.FileAccess, gotErr))
	assert.Contains(t, gotErr.Error(), "close run.trio")
	assert.Contains(t, gotErr.Error(), closeMsg)

	// The kind of the returned error survives a failed close.
	gotErr = func() (err error) {
		f := namedFile{errFile{errors.New(closeMsg)}}
		defer fileio.CloseAndReport(&f, &err)
		return errors.E(errors.Format, returnMsg)
	}()
	assert.True(t, errors.Is(errors.Format, gotErr))
	assert.Contains(t, gotErr.Error(), "close run.trio")
}

type namedFile struct{ errFile }

func (f *namedFile) Name() string { return "run.trio" }
