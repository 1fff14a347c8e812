// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	"flag"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/archive/portable"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/fileio"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/serial"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v2"
)

// Options configures writers and readers. The zero value writes a
// binary or text file chosen by the filename, with an automatic store
// and serial tag checks enabled.
type Options struct {
	// Format is the container type. Other (the zero value) determines
	// it from the filename; see fileio.DetermineType.
	Format fileio.FileType `yaml:"format"`
	// Compression is the stream compression of text and XML files.
	// It is ignored when Format is determined from the filename, which
	// then also determines the compression.
	Compression fileio.Compression `yaml:"compression"`
	// Transformers lists the block transformers of binary files, for
	// example "zstd 3". See recordio.WriterOpts.
	Transformers []string `yaml:"transformers"`
	// ByteOrder is the wire byte order of binary payloads. Readers
	// always use the order recorded in the file.
	ByteOrder portable.Order `yaml:"byte-order"`
	// MaxBlockItems and MaxBlockBytes bound the blocks of binary
	// files. Zero selects the recordio defaults.
	MaxBlockItems uint32 `yaml:"max-block-items"`
	MaxBlockBytes int    `yaml:"max-block-bytes"`

	// NoAutomaticStore disables the automatic store: storing or
	// loading without a selected store then fails with UnknownStore.
	NoAutomaticStore bool `yaml:"no-automatic-store"`
	// AllowMixedStores permits stores that accept records of any
	// serial tag.
	AllowMixedStores bool `yaml:"allow-mixed-stores"`
	// ProtectExisting makes Create fail rather than overwrite an
	// existing file.
	ProtectExisting bool `yaml:"protect-existing"`
	// NoSerialTagCheck disables the check that a loaded record's
	// serial tag matches the destination object.
	NoSerialTagCheck bool `yaml:"no-serial-tag-check"`

	// LogLevel, if set, is applied to the log package when a file is
	// created or opened.
	LogLevel string `yaml:"log-level"`

	// Registry resolves serial tags. Writers check that stored types
	// are registered; readers need it for LoadNextAny and polymorphic
	// fields. It may be nil.
	Registry *serial.Registry `yaml:"-"`
	// Platform is the floating point profile used to decode binary
	// payloads. Nil means portable.IEEE.
	Platform *portable.Platform `yaml:"-"`
	// Metrics, if set, receives the record and byte counters of the
	// file.
	Metrics prometheus.Registerer `yaml:"-"`
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	var opts Options
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return opts, errors.E(fmt.Sprintf("brio: read options %s", path), err)
	}
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return opts, errors.E(errors.Invalid, fmt.Sprintf("brio: parse options %s", path), err)
	}
	return opts, opts.validate()
}

func (o Options) validate() error {
	if o.LogLevel != "" {
		if _, err := log.ParseLevel(o.LogLevel); err != nil {
			return errors.E(errors.Invalid, "brio: options", err)
		}
	}
	if o.Format == fileio.Binary && o.Compression != fileio.None {
		return errors.E(errors.Invalid, "brio: binary files are compressed by transformers, not by stream compression")
	}
	return nil
}

func (o Options) applyLogLevel() {
	if o.LogLevel == "" {
		return
	}
	if level, err := log.ParseLevel(o.LogLevel); err == nil {
		log.SetLevel(level)
	}
}

// fileType returns the container type and compression of the file at
// path.
func (o Options) fileType(path string) (fileio.FileType, fileio.Compression, error) {
	if o.Format != fileio.Other {
		return o.Format, o.Compression, nil
	}
	typ, comp := fileio.DetermineType(path)
	if typ == fileio.Other {
		return typ, comp, errors.E(errors.Invalid,
			fmt.Sprintf("brio: cannot determine the format of %s; use a %s, %s or %s suffix or set Options.Format",
				path, fileio.FileSuffix(fileio.Binary, fileio.None), fileio.FileSuffix(fileio.Text, fileio.None), fileio.FileSuffix(fileio.XML, fileio.None)))
	}
	if typ == fileio.Binary && comp != fileio.None {
		return typ, comp, errors.E(errors.Invalid, fmt.Sprintf("brio: %s: binary files cannot be stream compressed", path))
	}
	return typ, comp, nil
}

func archiveMode(typ fileio.FileType) archive.Mode {
	switch typ {
	case fileio.Text:
		return archive.Text
	case fileio.XML:
		return archive.XML
	}
	return archive.Binary
}

func (o Options) resolver() archive.Resolver {
	if o.Registry == nil {
		return nil
	}
	return o.Registry
}

type fileTypeFlag struct{ t *fileio.FileType }

func (f fileTypeFlag) String() string {
	if f.t == nil {
		return ""
	}
	return f.t.String()
}

func (f fileTypeFlag) Set(s string) error {
	t, err := fileio.ParseFileType(s)
	if err != nil {
		return err
	}
	*f.t = t
	return nil
}

type compressionFlag struct{ c *fileio.Compression }

func (f compressionFlag) String() string {
	if f.c == nil {
		return ""
	}
	return f.c.String()
}

func (f compressionFlag) Set(s string) error {
	c, ok := fileio.ParseCompression(s)
	if !ok {
		return fmt.Errorf("unrecognised compression %q: not one of none, gzip, zstd or snappy", s)
	}
	*f.c = c
	return nil
}

type orderFlag struct{ o *portable.Order }

func (f orderFlag) String() string {
	if f.o == nil {
		return ""
	}
	return f.o.String()
}

func (f orderFlag) Set(s string) error {
	o, err := portable.ParseOrder(s)
	if err != nil {
		return err
	}
	*f.o = o
	return nil
}

type listFlag struct{ l *[]string }

func (f listFlag) String() string {
	if f.l == nil {
		return ""
	}
	return strings.Join(*f.l, ",")
}

func (f listFlag) Set(s string) error {
	*f.l = nil
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*f.l = append(*f.l, v)
		}
	}
	return nil
}

// RegisterFlags registers flags for the fields of opts on fs. Each flag
// name starts with prefix, for example "brio-".
func RegisterFlags(fs *flag.FlagSet, prefix string, opts *Options) {
	fs.Var(fileTypeFlag{&opts.Format}, prefix+"format", "container format, one of: auto|binary|text|xml")
	fs.Var(compressionFlag{&opts.Compression}, prefix+"compression", "stream compression of text and xml files, one of: none|gzip|zstd|snappy")
	fs.Var(listFlag{&opts.Transformers}, prefix+"transformers", `comma separated block transformers of binary files, e.g. "zstd 3"`)
	fs.Var(orderFlag{&opts.ByteOrder}, prefix+"byte-order", "wire byte order of binary payloads, one of: little|big")
	fs.Var(uint32Flag{&opts.MaxBlockItems}, prefix+"max-block-items", "records per binary block; 0 selects the default")
	fs.IntVar(&opts.MaxBlockBytes, prefix+"max-block-bytes", opts.MaxBlockBytes, "bytes per binary block; 0 selects the default")
	fs.BoolVar(&opts.NoAutomaticStore, prefix+"no-automatic-store", opts.NoAutomaticStore, "disable the automatic store")
	fs.BoolVar(&opts.AllowMixedStores, prefix+"allow-mixed-stores", opts.AllowMixedStores, "allow stores with records of any serial tag")
	fs.BoolVar(&opts.ProtectExisting, prefix+"protect-existing", opts.ProtectExisting, "refuse to overwrite existing files")
	fs.BoolVar(&opts.NoSerialTagCheck, prefix+"no-serial-tag-check", opts.NoSerialTagCheck, "do not check serial tags when loading")
	fs.StringVar(&opts.LogLevel, prefix+"log-level", opts.LogLevel, "log level applied when files are opened (off, error, info, debug)")
}

type uint32Flag struct{ v *uint32 }

func (f uint32Flag) String() string {
	if f.v == nil {
		return "0"
	}
	return fmt.Sprint(*f.v)
}

func (f uint32Flag) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid count %q", s)
	}
	*f.v = uint32(n)
	return nil
}
