// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors

import (
	multierror "github.com/hashicorp/go-multierror"
)

// CleanUp is defer-able syntactic sugar that calls f and reports an error, if any,
// to *err. Pass the caller's named return error. Example usage:
//
//   func processFile(filename string) (_ int, err error) {
//     f, err := os.Open(filename)
//     if err != nil { ... }
//     defer errors.CleanUp(f.Close, &err)
//     ...
//   }
//
// If the caller returns with its own error, both errors are reported
// as a *multierror.Error.
func CleanUp(cleanUp func() error, dst *error) {
	*dst = Combine(*dst, cleanUp())
}

// Combine returns a single error describing every non-nil error in
// errs: nil when there are none, the error itself when there is one,
// and a *multierror.Error otherwise. The kind of the first non-Other
// error in errs remains visible to Is and KindOf.
func Combine(errs ...error) error {
	var (
		first error
		merr  *multierror.Error
	)
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		merr = multierror.Append(merr, err)
	}
	if merr == nil {
		return nil
	}
	if len(merr.Errors) == 1 {
		return first
	}
	return E(KindOf(first), merr)
}
