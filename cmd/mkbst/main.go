// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command mkbst builds a bstree file from a two-column "id,val" CSV
// stream:
//
//	mkbst [-h] [--input FILE] [--fill-factor F] [--l1 BYTES] [--disk BYTES] --id-type T --val-type T NAME
//
// Input is read from stdin unless --input is given; -h means the
// input has a header row to skip.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/bpowers/bstree"
	"github.com/bpowers/bstree/bsterr"
	"github.com/bpowers/bstree/entry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mkbst", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: mkbst [-h] [--input FILE] [--fill-factor F] [--l1 BYTES] [--disk BYTES] --id-type T --val-type T NAME")
		fs.PrintDefaults()
	}
	hasHeader := fs.Bool("h", false, "input CSV has a header row to skip")
	input := fs.String("input", "", "input CSV file (id,val columns); defaults to stdin")
	idTypeStr := fs.String("id-type", "", "id column type: u3..u8, i3..i8, f4, f8, t1..t255 (required)")
	valTypeStr := fs.String("val-type", "", "val column type: u3..u8, i3..i8, f4, f8, t1..t255 (required)")
	l1Bytes := fs.Int64("l1", 64*1024, "target L1 block size in bytes")
	diskBytes := fs.Int64("disk", 0, "target disk group size in bytes (0: 255x l1)")
	fillFactor := fs.Float64("fill-factor", 0, "L1 block fill factor in (0,1], 0 disables shrinking")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if fs.NArg() != 1 {
		fs.Usage()
		return bsterr.InvalidInput.ExitCode()
	}
	outputPath := fs.Arg(0)

	if *idTypeStr == "" || *valTypeStr == "" {
		fmt.Fprintln(os.Stderr, "mkbst: --id-type and --val-type are required")
		return bsterr.InvalidInput.ExitCode()
	}
	idType, err := entry.ParseType(*idTypeStr)
	if err != nil {
		logger.Error("invalid id type", "err", err)
		return bsterr.InvalidInput.ExitCode()
	}
	valType, err := entry.ParseType(*valTypeStr)
	if err != nil {
		logger.Error("invalid val type", "err", err)
		return bsterr.InvalidInput.ExitCode()
	}

	in := os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			logger.Error("opening input", "err", err)
			return bsterr.IoError.ExitCode()
		}
		defer f.Close()
		in = f
	}

	src, err := newCSVSource(in, idType, valType, *hasHeader)
	if err != nil {
		logger.Error("reading input header", "err", err)
		return bsterr.IoError.ExitCode()
	}

	opts := []bstree.BuildOption{
		bstree.WithLogger(logger),
		bstree.WithL1Bytes(*l1Bytes),
	}
	if *diskBytes > 0 {
		opts = append(opts, bstree.WithDiskGroupBytes(*diskBytes))
	}
	if *fillFactor > 0 {
		opts = append(opts, bstree.WithFillFactor(*fillFactor))
	}

	if err := bstree.Build(outputPath, -1, idType, valType, src, opts...); err != nil {
		logger.Error("build failed", "err", err)
		return bsterr.ExitCodeFor(err)
	}
	return 0
}

// csvSource adapts a CSV reader of "id,val" rows to bstree.Source.
type csvSource struct {
	r       *csv.Reader
	idType  entry.Type
	valType entry.Type
}

func newCSVSource(r io.Reader, idType, valType entry.Type, skipHeader bool) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.ReuseRecord = true
	if skipHeader {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("mkbst: reading header row: %w", err)
		}
	}
	return &csvSource{r: cr, idType: idType, valType: valType}, nil
}

func (s *csvSource) Next() (entry.Entry, bool, error) {
	rec, err := s.r.Read()
	if err == io.EOF {
		return entry.Entry{}, false, nil
	}
	if err != nil {
		return entry.Entry{}, false, fmt.Errorf("mkbst: reading CSV row: %w", err)
	}
	id, err := parseValue(s.idType, rec[0])
	if err != nil {
		return entry.Entry{}, false, fmt.Errorf("mkbst: parsing id %q: %w", rec[0], err)
	}
	val, err := parseValue(s.valType, rec[1])
	if err != nil {
		return entry.Entry{}, false, fmt.Errorf("mkbst: parsing val %q: %w", rec[1], err)
	}
	return entry.Entry{Id: id, Val: val}, true, nil
}

func parseValue(t entry.Type, s string) (entry.Value, error) {
	switch t.Tag {
	case entry.Unsigned:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return entry.Value{}, err
		}
		return entry.U64(v), nil
	case entry.Signed:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return entry.Value{}, err
		}
		return entry.I64(v), nil
	case entry.Float:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return entry.Value{}, err
		}
		return entry.F64(v), nil
	case entry.Bytes:
		b := []byte(s)
		if len(b) != t.Width {
			return entry.Value{}, fmt.Errorf("byte-string value length %d != declared width %d", len(b), t.Width)
		}
		return entry.Raw(b), nil
	default:
		return entry.Value{}, fmt.Errorf("unknown type tag %d", t.Tag)
	}
}
