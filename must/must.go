// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package must provides fatal assertions for programs and test
// fixtures built on brio, where the only course of action on failure
// is to stop. Library code returns errors instead.
package must

import (
	"fmt"

	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/serial"
)

// Func reports a failed assertion and interrupts execution. It is
// passed the call depth of the caller of the must function. The
// default logs the message at the Error level and panics.
var Func func(int, ...interface{}) = func(depth int, v ...interface{}) {
	s := fmt.Sprint(v...)
	_ = log.Output(depth+1, log.Error, s)
	panic(s)
}

// Nil asserts that v, typically an error, is nil. Otherwise the
// message is formatted in the manner of fmt.Sprint and suffixed with
// v.
func Nil(v interface{}, args ...interface{}) {
	if v == nil {
		return
	}
	if len(args) == 0 {
		Func(2, v)
		return
	}
	Func(2, fmt.Sprint(args...), ": ", v)
}

// Nilf is Nil with a fmt.Sprintf message.
func Nilf(v interface{}, format string, args ...interface{}) {
	if v == nil {
		return
	}
	Func(2, fmt.Sprintf(format, args...), ": ", v)
}

// True asserts that b holds.
func True(b bool, v ...interface{}) {
	if b {
		return
	}
	if len(v) == 0 {
		Func(2, "must: assertion failed")
		return
	}
	Func(2, v...)
}

// Truef is True with a fmt.Sprintf message.
func Truef(b bool, format string, v ...interface{}) {
	if b {
		return
	}
	Func(2, fmt.Sprintf(format, v...))
}

// Never asserts that it is not reached.
func Never(v ...interface{}) {
	Func(2, v...)
}

// Registry builds and freezes a serial registry from registrars,
// asserting that every registration succeeds.
func Registry(registrars ...serial.Registrar) *serial.Registry {
	r, err := serial.Build(registrars...)
	if err != nil {
		Func(2, "must: building registry: ", err)
	}
	return r
}
