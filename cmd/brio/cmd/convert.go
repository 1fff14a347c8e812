// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/grailbio/brio"
	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/store"
)

// Convert copies the header entries and stores of a file into a new
// file. The destination is removed if the copy fails.
func Convert(ctx context.Context, env Env, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(ioutil.Discard)
	var opts brio.Options
	brio.RegisterFlags(fs, "", &opts)
	if err := fs.Parse(args); err != nil {
		return errors.E(errors.Invalid, "convert", err)
	}
	if fs.NArg() != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("convert: expected source and destination, got %d files", fs.NArg()))
	}
	src, dst := fs.Arg(0), fs.Arg(1)
	r, err := brio.Open(src, brio.Options{Registry: env.Registry})
	if err != nil {
		return err
	}
	defer r.Close() // nolint: errcheck

	opts.Registry = env.Registry
	opts.AllowMixedStores = true
	w, err := brio.Create(dst, opts)
	if err != nil {
		return err
	}
	err = copyFile(ctx, r, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(dst); rerr != nil {
			log.Error.Printf("convert: removing %s: %v", dst, rerr)
		}
		return err
	}
	log.Debug.Printf("convert: %s -> %s: %d records", src, dst, w.Records())
	return nil
}

// copyFile creates every destination store before copying records, so
// the destination header declares the same store layout as the source.
func copyFile(ctx context.Context, r *brio.Reader, w *brio.Writer) error {
	for _, kv := range r.Header() {
		if brio.ReservedHeaderKey(kv.Key) {
			continue
		}
		if err := w.AddHeader(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	labels, err := r.Stores("")
	if err != nil {
		return err
	}
	for _, label := range labels {
		if label == store.Automatic {
			continue
		}
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
		switch {
		case n == 0:
			err = w.AddStore(label)
		case tag == "":
			err = w.AddMixedStore(label)
		default:
			err = w.AddStoreWithTag(label, tag)
		}
		if err != nil {
			return err
		}
	}
	for _, label := range labels {
		if err := r.SelectStore(label); err != nil {
			return err
		}
		if label == store.Automatic {
			w.UnselectStore()
		} else if err := w.SelectStore(label); err != nil {
			return err
		}
		if err := r.RewindStore(); err != nil {
			return err
		}
		for r.HasNext() {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, err := r.LoadNextAny()
			if err != nil {
				return err
			}
			if err := w.Store(obj); err != nil {
				return err
			}
		}
	}
	return nil
}
