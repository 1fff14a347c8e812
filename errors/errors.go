// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors implements the error type used throughout brio.
// Every error carries an interpretable Kind, so that callers can
// distinguish a registration problem (an unknown serial tag) from a
// format problem (a corrupt record) or a navigation problem (reading
// past the start of a store) without parsing messages. Errors may be
// chained, attributing one error to another.
package errors

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/brio/log"
)

// Separator defines the separation string inserted between
// chained errors in error messages.
var Separator = ":\n\t"

// Kind defines the type of error. Kinds are semantically
// meaningful, and may be interpreted by the receiver of an error.
type Kind int

const (
	// Other indicates an unknown error.
	Other Kind = iota

	// DuplicateTag indicates that a serial tag was registered twice
	// with different factories.
	DuplicateTag
	// UnknownTag indicates that a serial tag has no registered factory.
	UnknownTag

	// Format indicates a malformed file or record.
	Format
	// TagMismatch indicates that a record's serial tag differs from
	// the tag of the object it is loaded into, or of its store.
	TagMismatch
	// UnsupportedVersion indicates a record written with a class
	// version this build cannot decode.
	UnsupportedVersion
	// IntegerOverflow indicates an integer that does not fit the
	// destination width.
	IntegerOverflow
	// Signedness indicates a negative value decoded into an unsigned
	// destination.
	Signedness
	// NonPortableValue indicates a floating point value the decoding
	// platform cannot represent.
	NonPortableValue

	// IndexOutOfRange indicates a positional access outside a store.
	IndexOutOfRange
	// StartOfStore indicates a backward read before the first record.
	StartOfStore
	// UnknownStore indicates a store label that is not present.
	UnknownStore
	// DuplicateStore indicates a store label that is already in use.
	DuplicateStore

	// FileNotFound indicates a nonexistent file.
	FileNotFound
	// FileAccess indicates a file that exists but cannot be created,
	// written or read.
	FileAccess

	// Invalid indicates that the caller supplied invalid parameters.
	Invalid
	// NotSupported indicates an unsupported operation.
	NotSupported

	maxKind
)

var kinds = map[Kind]string{
	Other:              "unknown error",
	DuplicateTag:       "duplicate serial tag",
	UnknownTag:         "unknown serial tag",
	Format:             "malformed data",
	TagMismatch:        "serial tag mismatch",
	UnsupportedVersion: "unsupported class version",
	IntegerOverflow:    "integer overflow",
	Signedness:         "negative value for unsigned type",
	NonPortableValue:   "non-portable floating point value",
	IndexOutOfRange:    "index out of range",
	StartOfStore:       "start of store",
	UnknownStore:       "unknown store",
	DuplicateStore:     "duplicate store",
	FileNotFound:       "file not found",
	FileAccess:         "file access denied",
	Invalid:            "invalid argument",
	NotSupported:       "operation not supported",
}

// String returns a human-readable explanation of the error kind k.
func (k Kind) String() string {
	return kinds[k]
}

// A Class groups kinds by the layer that produces them.
type Class int

const (
	// ClassOther is the class of Other and of usage errors.
	ClassOther Class = iota
	// ClassRegistration holds tag registry errors.
	ClassRegistration
	// ClassFormat holds encoding and decoding errors.
	ClassFormat
	// ClassNavigation holds store and cursor errors.
	ClassNavigation
	// ClassIO holds file system errors.
	ClassIO
)

// Class returns the class of kind k.
func (k Kind) Class() Class {
	switch k {
	case DuplicateTag, UnknownTag:
		return ClassRegistration
	case Format, TagMismatch, UnsupportedVersion, IntegerOverflow, Signedness, NonPortableValue:
		return ClassFormat
	case IndexOutOfRange, StartOfStore, UnknownStore, DuplicateStore:
		return ClassNavigation
	case FileNotFound, FileAccess:
		return ClassIO
	}
	return ClassOther
}

// Error is the standard error type, carrying a kind (error code),
// message (error message), and potentially an underlying error.
// Errors should be constructed by errors.E, which interprets
// arguments according to a set of rules.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Message is an optional error message associated with this error.
	Message string
	// Err is the error that caused this error, if any.
	// Errors can form chains through Err: the full chain is printed
	// by Error().
	Err error
}

// E constructs a new errors from the provided arguments. It is meant
// as a convenient way to construct, annotate, and wrap errors.
//
// Arguments are interpreted according to their types:
//
//	- Kind: sets the Error's kind
//	- string: sets the Error's message; multiple strings are
//	  separated by a single space
//	- *Error: copies the error and sets the error's cause
//	- error: sets the Error's cause
//
// If an unrecognized argument type is encountered, an error with
// kind Invalid is returned.
//
// If a kind is not provided, but an underlying error is, E classifies
// the underlying error: os.IsNotExist errors become FileNotFound and
// os.IsPermission or os.IsExist errors become FileAccess. If the
// underlying error is another *Error, the returned error inherits
// that error's kind.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			copy := *arg
			if len(args) == 1 {
				return &copy
			}
			e.Err = &copy
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Error.Printf("errors.E: bad call (type %T) from %s:%d: %v", arg, file, line, arg)
			return &Error{
				Kind:    Invalid,
				Message: fmt.Sprintf("unknown type %T, value %v in error call", arg, arg),
			}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	switch prev := e.Err.(type) {
	case *Error:
		if prev.Kind == e.Kind || e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
	default:
		if e.Kind != Other {
			break
		}
		switch {
		case os.IsNotExist(e.Err):
			e.Kind = FileNotFound
		case os.IsPermission(e.Err), os.IsExist(e.Err):
			e.Kind = FileAccess
		}
	}
	return e
}

// Errorf constructs an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Recover recovers any error into an *Error. If the passed-in Error is already
// an error, it is simply returned; otherwise it is wrapped in an error.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if err, ok := err.(*Error); ok {
		return err
	}
	return E(err).(*Error)
}

// Error returns a human readable string describing this error.
// It uses the separator defined by errors.Separator.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	e.writeError(&b)
	return b.String()
}

func (e *Error) writeError(b *bytes.Buffer) {
	if e.Message != "" {
		pad(b, ": ")
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err == nil {
		return
	}
	if err, ok := e.Err.(*Error); ok {
		pad(b, Separator)
		b.WriteString(err.Error())
	} else {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
}

// Unwrap returns the error's cause, so that the standard library's
// errors.Is and errors.As can traverse the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is tells whether an error has a specified kind, except for the
// indeterminate kind Other. In the case an error has kind Other, the
// chain is traversed until a non-Other error is encountered.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return is(kind, Recover(err))
}

func is(kind Kind, e *Error) bool {
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		if e2, ok := e.Err.(*Error); ok {
			return is(kind, e2)
		}
	}
	return false
}

// KindOf returns the first non-Other kind in err's chain.
func KindOf(err error) Kind {
	for e := Recover(err); e != nil; {
		if e.Kind != Other {
			return e.Kind
		}
		next, ok := e.Err.(*Error)
		if !ok {
			break
		}
		e = next
	}
	return Other
}

// IsClass tells whether err's kind belongs to class c.
func IsClass(c Class, err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Class() == c
}

// Match tells whether every nonempty field in err1
// matches the corresponding fields in err2. The comparison
// recurses on chained errors. Match is designed to aid in
// testing errors.
func Match(err1, err2 error) bool {
	var (
		e1 = Recover(err1)
		e2 = Recover(err2)
	)
	if e1.Kind != Other && e1.Kind != e2.Kind {
		return false
	}
	if e1.Message != "" && e1.Message != e2.Message {
		return false
	}
	if e1.Err != nil {
		if e2.Err == nil {
			return false
		}
		switch e1.Err.(type) {
		case *Error:
			return Match(e1.Err, e2.Err)
		default:
			return e1.Err.Error() == e2.Err.Error()
		}
	}
	return true
}

// New is synonymous with errors.New, and is provided here so that
// users need only import one errors package.
func New(msg string) error {
	return errors.New(msg)
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}
