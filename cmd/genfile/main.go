// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command genfile emits synthetic "id,val" CSV test data for mkbst, in
// the three shapes exercised by this codebase's round-trip and range
// tests: sequential integers, uniform random integers, and uniform
// random floats. It is deliberately a thin, standalone text generator
// -- it never touches layout, build, or diskfile.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("genfile", flag.ContinueOnError)
	kind := fs.String("kind", "seqint", "data shape: seqint, randint, randf64")
	n := fs.Int64("n", 1000, "number of rows to emit")
	seed := fs.Uint64("seed", 1, "PRNG seed for randint/randf64")
	maxVal := fs.Uint64("max", 1<<32, "exclusive upper bound for randint values")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: genfile [-kind seqint|randint|randf64] [-n N] [-seed S] [-max M]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *n < 0 {
		fmt.Fprintln(os.Stderr, "genfile: -n must be >= 0")
		return 1
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	switch *kind {
	case "seqint":
		for i := int64(0); i < *n; i++ {
			fmt.Fprintf(w, "%d,%d\n", i, i)
		}
	case "randint":
		rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
		for i := int64(0); i < *n; i++ {
			v := rng.Uint64N(*maxVal)
			fmt.Fprintf(w, "%d,%d\n", i, v)
		}
	case "randf64":
		rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
		for i := int64(0); i < *n; i++ {
			v := rng.Float64()
			fmt.Fprintf(w, "%d,%g\n", i, v)
		}
	default:
		fmt.Fprintf(os.Stderr, "genfile: unknown -kind %q\n", *kind)
		return 1
	}
	return 0
}
