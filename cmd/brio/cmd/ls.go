// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"

	"github.com/grailbio/brio"
	"github.com/grailbio/brio/errors"
)

func parseFileArgs(name string, args []string) (path, pattern string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	fs.StringVar(&pattern, "store", "", "glob pattern of the store labels")
	if err = fs.Parse(args); err != nil {
		return "", "", errors.E(errors.Invalid, name, err)
	}
	if fs.NArg() != 1 {
		return "", "", errors.E(errors.Invalid, fmt.Sprintf("%s: expected one file, got %d", name, fs.NArg()))
	}
	return fs.Arg(0), pattern, nil
}

// Dump prints the description of each file in args.
func Dump(ctx context.Context, env Env, args []string) error {
	if len(args) == 0 {
		return errors.E(errors.Invalid, "dump: no files given")
	}
	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := brio.Open(path, brio.Options{Registry: env.Registry})
		if err != nil {
			return err
		}
		err = r.Dump(env.Out)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Ls lists the stores of a file, one per line, as label, number of
// records and serial tag.
func Ls(ctx context.Context, env Env, args []string) error {
	path, pattern, err := parseFileArgs("ls", args)
	if err != nil {
		return err
	}
	r, err := brio.Open(path, brio.Options{Registry: env.Registry})
	if err != nil {
		return err
	}
	defer r.Close() // nolint: errcheck
	labels, err := r.Stores(pattern)
	if err != nil {
		return err
	}
	for _, label := range labels {
		if err := r.SelectStore(label); err != nil {
			return err
		}
		n, err := r.NumberOfEntries()
		if err != nil {
			return err
		}
		tag, err := r.StoreTag()
		if err != nil {
			return err
		}
		if tag == "" {
			tag = "-"
		}
		if _, err := fmt.Fprintf(env.Out, "%s\t%d\t%s\n", label, n, tag); err != nil {
			return err
		}
	}
	return nil
}
