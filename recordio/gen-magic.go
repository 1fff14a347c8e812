// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build ignore
// +build ignore

// Command gen-magic prints fresh random magic numbers for the block
// types in internal/magic.go.
package main

import (
	"crypto/rand"
	"fmt"
	"strings"
)

func main() {
	for _, name := range []string{"MagicHeader", "MagicBody", "MagicTrailer", "MagicInvalid"} {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		out := fmt.Sprintf("var %s = MagicBytes{", name)
		for _, v := range buf {
			out += fmt.Sprintf("0x%02x, ", v)
		}
		fmt.Println(strings.TrimSuffix(out, ", ") + "}")
	}
}
