// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command brio inspects and converts brio files. It understands the
// property and thing containers; other record types are listed by
// serial tag.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/brio/cmd/brio/cmd"
	"github.com/grailbio/brio/log"
	"github.com/grailbio/brio/must"
	"github.com/grailbio/brio/properties"
	"github.com/grailbio/brio/things"
)

func main() {
	log.AddFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] subcommand [args]\n", os.Args[0])
		flag.PrintDefaults()
		cmd.PrintHelp(os.Stderr)
	}
	flag.Parse()
	env := cmd.Env{
		Out:      os.Stdout,
		Registry: must.Registry(properties.RegisterInto, things.RegisterInto),
	}
	if err := cmd.Run(context.Background(), env, flag.Args()); err != nil {
		log.Fatal(err)
	}
}
