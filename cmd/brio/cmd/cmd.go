// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmd implements the subcommands of the brio tool. Programs
// that define their own serializable types can build a tool that
// understands them by passing their registry to Run.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/serial"
)

// Env is the environment of a subcommand.
type Env struct {
	// Out receives the command's output.
	Out io.Writer
	// Registry resolves the serial tags of the records. It may be nil,
	// in which case records are listed by tag only.
	Registry *serial.Registry
}

var commands = []struct {
	name     string
	callback func(ctx context.Context, env Env, args []string) error
	help     string
}{
	{"dump", Dump, `Dump prints a description of each file: header, stores and their cursors.`},
	{"ls", Ls, `Ls lists the stores of a file with their record counts and serial tags.
Flag -store restricts the listing to labels matching a glob pattern.`},
	{"cat", Cat, `Cat prints the records of a file in the text archive format, one per line.
Records whose type is not registered are printed by tag only.
Flag -store restricts the output to labels matching a glob pattern.`},
	{"convert", Convert, `Convert copies every store of a file into a new file, whose format is
guessed from its name unless -format is given. It accepts the writer flags
(-compression, -transformers, -byte-order, ...). Every record type must be
registered.`},
}

// PrintHelp lists the subcommands.
func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Subcommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "%s: %s\n", c.name, c.help)
	}
}

// Run runs the subcommand named by args[0].
func Run(ctx context.Context, env Env, args []string) error {
	if len(args) == 0 {
		PrintHelp(env.Out)
		return errors.E(errors.Invalid, "no subcommand given")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.callback(ctx, env, args[1:])
		}
	}
	PrintHelp(env.Out)
	return errors.E(errors.Invalid, fmt.Sprintf("unknown command %q", args[0]))
}
