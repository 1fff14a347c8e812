// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"flag"
	"io"
	golog "log"
	"os"
	"sync/atomic"
)

// Prefix starts every line written by the default outputter.
const Prefix = "brio: "

// std is brio's own standard logger, so that redirecting brio's
// output leaves the application's global logger alone.
var std = golog.New(os.Stderr, Prefix, golog.LstdFlags)

// golevel holds the Level of the default outputter. Files may be
// opened from several goroutines, each applying Options.LogLevel.
var golevel int32 = int32(Info)

func stdLevel() Level { return Level(atomic.LoadInt32(&golevel)) }

// AddFlags registers the "log" level flag on fs.
func AddFlags(fs *flag.FlagSet) {
	fs.Var(levelFlag{}, "log", "set log level (off, error, info, debug)")
}

// SetFlags sets the output flags of the default outputter, as in
// the standard log package.
func SetFlags(flag int) { std.SetFlags(flag) }

// SetOutput sets the destination of the default outputter.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetLevel sets the level of the default outputter.
func SetLevel(level Level) { atomic.StoreInt32(&golevel, int32(level)) }

type levelFlag struct{}

func (levelFlag) String() string { return stdLevel().String() }

func (levelFlag) Set(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	SetLevel(l)
	return nil
}

// Get implements flag.Getter.
func (levelFlag) Get() interface{} { return stdLevel() }

type stdOutputter struct{}

func (stdOutputter) Level() Level { return stdLevel() }

func (stdOutputter) Output(calldepth int, level Level, s string) error {
	if stdLevel() < level {
		return nil
	}
	return std.Output(calldepth+1, s)
}
