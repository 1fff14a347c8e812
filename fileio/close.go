// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fileio

import (
	"fmt"
	"io"

	"github.com/grailbio/brio/errors"
)

// CloseAndReport closes f and folds its error into *err, which is
// typically the caller's named return error. A failed close of a
// named file, such as an *os.File, is a FileAccess error naming the
// path: for a container it means the footer or the directory may be
// missing. When *err is already set both errors are kept and the
// kind of *err wins.
//
//	func (w *Writer) Close() (err error) {
//		defer fileio.CloseAndReport(w.f, &err)
//		...
//	}
func CloseAndReport(f io.Closer, err *error) {
	errors.CleanUp(func() error {
		cerr := f.Close()
		if n, ok := f.(interface{ Name() string }); ok && cerr != nil {
			return errors.E(errors.FileAccess, fmt.Sprintf("close %s", n.Name()), cerr)
		}
		return cerr
	}, err)
}
