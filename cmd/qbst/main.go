// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command qbst queries a bstree file:
//
//	qbst FILE info
//	qbst FILE get value V
//	qbst FILE get list PATH
//	qbst FILE nn value V
//	qbst FILE nn list PATH
//	qbst FILE knn -v V -k K
//	qbst FILE range -f LO -t HI [-l LIMIT] [-c]
//
// Output is CSV with header-less rows "id,val" (or "distance,id,val"
// for nn/knn), written to stdout.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bpowers/bstree"
	"github.com/bpowers/bstree/bsterr"
	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/walk"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
	path := args[0]
	cmd := args[1]
	rest := args[2:]

	idx, err := bstree.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.ExitCodeFor(err)
	}
	defer idx.Close()

	switch cmd {
	case "info":
		return cmdInfo(idx)
	case "get":
		return cmdGet(idx, rest)
	case "nn":
		return cmdNN(idx, rest)
	case "knn":
		return cmdKNN(idx, rest)
	case "range":
		return cmdRange(idx, rest)
	default:
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  qbst FILE info
  qbst FILE get value V
  qbst FILE get list PATH
  qbst FILE nn value V
  qbst FILE nn list PATH
  qbst FILE knn -v V -k K
  qbst FILE range -f LO -t HI [-l LIMIT] [-c]`)
}

// infoDoc is the JSON shape "qbst FILE info" pretty-prints the header as.
type infoDoc struct {
	NEntries     int64  `json:"n_entries"`
	IdType       string `json:"id_type"`
	ValType      string `json:"val_type"`
	FileLength   int64  `json:"file_length"`
	EntriesPerL1 int64  `json:"entries_per_l1"`
	L1PerDisk    int64  `json:"l1_per_disk"`
	Levels       int    `json:"levels"`
	TailN        int64  `json:"tail_n"`
}

func cmdInfo(idx *bstree.Index) int {
	h := idx.Header()
	doc := infoDoc{
		NEntries:     idx.Len(),
		IdType:       h.IdType.String(),
		ValType:      h.ValType.String(),
		FileLength:   h.FileLength,
		EntriesPerL1: h.Plan.EntriesPerL1,
		L1PerDisk:    h.Plan.L1PerDisk,
		Levels:       len(h.Plan.Levels),
		TailN:        h.Plan.Tail.N,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.IoError.ExitCode()
	}
	return 0
}

func cmdGet(idx *bstree.Index, args []string) int {
	if len(args) != 2 {
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
	mode, arg := args[0], args[1]

	lookup := func(v entry.Value) (entry.Entry, bool, error) { return idx.Find(v) }
	return runLookup(idx, mode, arg, lookup, false)
}

func cmdNN(idx *bstree.Index, args []string) int {
	if len(args) != 2 {
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
	mode, arg := args[0], args[1]

	lookup := func(v entry.Value) (entry.Entry, bool, error) {
		e, err := idx.Nearest(v)
		if err != nil {
			return entry.Entry{}, false, err
		}
		return e, true, nil
	}
	return runLookup(idx, mode, arg, lookup, true)
}

// runLookup drives "get"/"nn"'s "value V" and "list PATH" forms
// through a single lookup func, writing CSV rows to stdout.
func runLookup(idx *bstree.Index, mode, arg string, lookup func(entry.Value) (entry.Entry, bool, error), withDist bool) int {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	emit := func(v entry.Value) int {
		e, ok, err := lookup(v)
		if err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.ExitCodeFor(err)
		}
		if !ok {
			return 0
		}
		var visitor *walk.CSVVisitor
		if withDist {
			visitor = walk.NewCSVDistanceVisitor(w, idx.IdType(), idx.ValType(), v)
		} else {
			visitor = walk.NewCSVVisitor(w, idx.IdType(), idx.ValType())
		}
		visitor.Visit(e)
		visitor.Finish()
		if err := visitor.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.IoError.ExitCode()
		}
		return 0
	}

	switch mode {
	case "value":
		v, err := parseValue(idx.ValType(), arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.InvalidInput.ExitCode()
		}
		return emit(v)
	case "list":
		f, err := os.Open(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.IoError.ExitCode()
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			v, err := parseValue(idx.ValType(), line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "qbst:", err)
				return bsterr.InvalidInput.ExitCode()
			}
			if code := emit(v); code != 0 {
				return code
			}
		}
		if err := sc.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.IoError.ExitCode()
		}
		return 0
	default:
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
}

func cmdKNN(idx *bstree.Index, args []string) int {
	fs := flag.NewFlagSet("knn", flag.ContinueOnError)
	vStr := fs.String("v", "", "query value")
	k := fs.Int("k", 0, "number of neighbours")
	if err := fs.Parse(args); err != nil {
		return bsterr.InvalidInput.ExitCode()
	}
	if *vStr == "" || *k <= 0 {
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
	v, err := parseValue(idx.ValType(), *vStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.InvalidInput.ExitCode()
	}

	got, err := idx.KNN(v, *k)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.ExitCodeFor(err)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	visitor := walk.NewCSVDistanceVisitor(w, idx.IdType(), idx.ValType(), v)
	for _, e := range got {
		visitor.Visit(e)
	}
	visitor.Finish()
	if err := visitor.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.IoError.ExitCode()
	}
	return 0
}

func cmdRange(idx *bstree.Index, args []string) int {
	fs := flag.NewFlagSet("range", flag.ContinueOnError)
	fStr := fs.String("f", "", "range start (from)")
	tStr := fs.String("t", "", "range end (to)")
	limit := fs.Int64("l", 0, "limit (0: unlimited)")
	countOnly := fs.Bool("c", false, "count-only")
	if err := fs.Parse(args); err != nil {
		return bsterr.InvalidInput.ExitCode()
	}
	if *fStr == "" || *tStr == "" {
		usage()
		return bsterr.InvalidInput.ExitCode()
	}
	lo, err := parseValue(idx.ValType(), *fStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.InvalidInput.ExitCode()
	}
	hi, err := parseValue(idx.ValType(), *tStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.InvalidInput.ExitCode()
	}

	dir := walk.Ascending
	if entry.Compare(idx.ValType(), lo, hi) > 0 {
		dir = walk.Descending
	}

	if *countOnly {
		cv := &walk.CountVisitor{}
		if err := idx.Range(lo, hi, dir, *limit, true, cv); err != nil {
			fmt.Fprintln(os.Stderr, "qbst:", err)
			return bsterr.ExitCodeFor(err)
		}
		fmt.Println(cv.Count)
		return 0
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	visitor := walk.NewCSVVisitor(w, idx.IdType(), idx.ValType())
	if err := idx.Range(lo, hi, dir, *limit, false, visitor); err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.ExitCodeFor(err)
	}
	if err := visitor.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "qbst:", err)
		return bsterr.IoError.ExitCode()
	}
	return 0
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
