// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fileio determines the brio container type and stream
// compression of a file from its name, and provides helpers for closing
// files.
package fileio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/brio/errors"
)

// FileType represents the container type of a file based on its filename.
type FileType int

const (
	// Other represents a filetype other than the ones supported here.
	Other FileType = iota
	// Binary is the chunked binary container.
	Binary
	// Text is the line-oriented text container.
	Text
	// XML is the XML container.
	XML
)

// Compression is a whole-file stream compression applied to text and
// XML containers.
type Compression int

const (
	// None means the file is stored as is.
	None Compression = iota
	// Gzip file.
	Gzip
	// Bzip2 file. Bzip2 can be read but not written.
	Bzip2
	// Zstd format.
	// https://facebook.github.io/zstd/
	// https://tools.ietf.org/html/rfc8478
	Zstd
	// Snappy framing format.
	Snappy
)

var typeLookup = map[string]FileType{
	".brio": Binary,
	".data": Binary,
	".trio": Text,
	".txt":  Text,
	".xml":  XML,
}

// Canonical suffixes, used by FileSuffix.
var typeSuffix = map[FileType]string{
	Binary: ".brio",
	Text:   ".trio",
	XML:    ".xml",
}

var compressionLookup = map[string]Compression{
	".gz":  Gzip,
	".bz2": Bzip2,
	".zst": Zstd,
	".sz":  Snappy,
}

var typeNames = map[FileType]string{
	Other:  "",
	Binary: "binary",
	Text:   "text",
	XML:    "xml",
}

func (t FileType) String() string {
	if s, ok := typeNames[t]; ok && s != "" {
		return s
	}
	return "other"
}

// ParseFileType parses a name produced by FileType.String. The empty
// string and "auto" parse as Other, which asks for the type to be
// determined from the filename.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(s) {
	case "", "auto", "other":
		return Other, nil
	}
	for t, name := range typeNames {
		if name != "" && strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return Other, errors.E(errors.Invalid, fmt.Sprintf("fileio: unknown file type %q", s))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *FileType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	typ, err := ParseFileType(s)
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t FileType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

var compressionNames = map[Compression]string{
	None:   "none",
	Gzip:   "gzip",
	Bzip2:  "bzip2",
	Zstd:   "zstd",
	Snappy: "snappy",
}

func (c Compression) String() string {
	return compressionNames[c]
}

// ParseCompression parses a name produced by Compression.String. It
// returns false for unknown names.
func ParseCompression(s string) (Compression, bool) {
	for c, name := range compressionNames {
		if strings.EqualFold(name, s) {
			return c, true
		}
	}
	return None, false
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Compression) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*c = None
		return nil
	}
	comp, ok := ParseCompression(s)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("fileio: unknown compression %q", s))
	}
	*c = comp
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Compression) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// DetermineType determines the container type and compression of the
// file given its filename, for example "run.trio.gz" is (Text, Gzip).
func DetermineType(filename string) (FileType, Compression) {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	comp, ok := compressionLookup[ext]
	if ok {
		base = strings.TrimSuffix(base, filepath.Ext(base))
		ext = strings.ToLower(filepath.Ext(base))
	}
	return typeLookup[ext], comp
}

// FileSuffix returns the canonical filename suffix for the given
// container type and compression.
func FileSuffix(typ FileType, comp Compression) string {
	s := typeSuffix[typ]
	for ext, c := range compressionLookup {
		if c == comp && comp != None {
			s += ext
		}
	}
	return s
}
