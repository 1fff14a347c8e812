// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/brio"
	"github.com/grailbio/brio/archive"
	"github.com/grailbio/brio/errors"
)

// Cat prints every record of the selected stores of a file as
// "label #index tag: fields".
func Cat(ctx context.Context, env Env, args []string) error {
	path, pattern, err := parseFileArgs("cat", args)
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
		if err := r.RewindStore(); err != nil {
			return err
		}
		for i := 0; r.HasNext(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			tag, err := r.RecordTag()
			if err != nil {
				return err
			}
			obj, err := r.LoadNextAny()
			if errors.IsClass(errors.ClassRegistration, err) {
				if err := r.SkipNext(); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "%s #%d %s: <unregistered>\n", label, i, tag)
				continue
			}
			if err != nil {
				return err
			}
			text, err := archive.Marshal(archive.Text, obj, archive.Options{})
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(env.Out, "%s #%d %s: %s\n", label, i, tag, strings.TrimSpace(string(text))); err != nil {
				return err
			}
		}
	}
	return nil
}
