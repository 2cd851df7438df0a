// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mergesort turns an unordered stream of entries into the
// ascending-(Val,Id) stream build.Builder requires, using bounded
// memory regardless of input size: entries are buffered up to a byte
// budget, sorted in memory and spilled to a temp file as a run, then
// every run is merged with a k-way heap merge. The heap-merge shape is
// grounded on the LSM-tree compaction/range-scan merge in the example
// pack (NikolasRummel-db-index-performance-evaluation's
// lsmtree.MergeHeap); the in-memory sort step follows the same
// sort.Sort(bySize(...)) idiom (indexfile/in_memory_builder.go).
package mergesort

import (
	"bufio"
	"container/heap"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bpowers/bstree/entry"
)

// defaultRunBytes bounds the size of one in-memory run before it's
// sorted and spilled; it is the dominant term in the sorter's peak
// memory use.
const defaultRunBytes = 64 * 1024 * 1024

// Option configures a Sorter.
type Option func(*options)

type options struct {
	runBytes int64
	dir      string
}

// WithRunBytes overrides the default in-memory run size budget.
func WithRunBytes(n int64) Option { return func(o *options) { o.runBytes = n } }

// WithTempDir overrides the directory spilled run files are created in.
func WithTempDir(dir string) Option { return func(o *options) { o.dir = dir } }

// Sorter accumulates entries via Put, spilling sorted runs to disk as
// its in-memory buffer fills, and produces the final merged ascending
// stream via Merged.
type Sorter struct {
	idCodec, valCodec *entry.Codec
	entrySize         int64
	runBytes          int64
	dir               string

	buf   []entry.Entry
	runs  []string
	tmpFH []*os.File
}

// NewSorter returns a Sorter that encodes entries with idCodec/valCodec
// when spilling runs to disk.
func NewSorter(idCodec, valCodec *entry.Codec, opts ...Option) *Sorter {
	o := options{runBytes: defaultRunBytes, dir: os.TempDir()}
	for _, opt := range opts {
		opt(&o)
	}
	entrySize := int64(idCodec.Width() + valCodec.Width())
	perEntryBudget := int64(64) // conservative overhead per buffered entry.Entry
	capHint := o.runBytes / (entrySize + perEntryBudget)
	if capHint < 1 {
		capHint = 1
	}
	return &Sorter{
		idCodec:   idCodec,
		valCodec:  valCodec,
		entrySize: entrySize,
		runBytes:  o.runBytes,
		dir:       o.dir,
		buf:       make([]entry.Entry, 0, capHint),
	}
}

// Put adds one entry to the sorter, spilling the current run to disk
// if the buffer has reached its byte budget.
func (s *Sorter) Put(e entry.Entry) error {
	s.buf = append(s.buf, e)
	if int64(len(s.buf))*(s.entrySize+64) >= s.runBytes {
		return s.spill()
	}
	return nil
}

func (s *Sorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	sort.Slice(s.buf, func(i, j int) bool {
		return entry.CompareEntries(s.idCodec.Type(), s.valCodec.Type(), s.buf[i], s.buf[j]) < 0
	})

	f, err := os.CreateTemp(s.dir, "bstree-mergesort-run.*.bin")
	if err != nil {
		return fmt.Errorf("mergesort: CreateTemp: %w", err)
	}
	bw := bufio.NewWriter(f)
	rec := make([]byte, s.entrySize)
	for _, e := range s.buf {
		s.idCodec.Encode(e.Id, rec[:s.idCodec.Width()])
		s.valCodec.Encode(e.Val, rec[s.idCodec.Width():])
		if _, err := bw.Write(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("mergesort: write run %s: %w", f.Name(), err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("mergesort: flush run %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return fmt.Errorf("mergesort: seek run %s: %w", f.Name(), err)
	}

	s.runs = append(s.runs, f.Name())
	s.tmpFH = append(s.tmpFH, f)
	s.buf = s.buf[:0]
	return nil
}

// Merged returns a Stream that yields every entry the sorter has seen,
// in ascending (Val, Id) order, merging spilled runs and any
// still-buffered tail via a k-way heap merge. The sorter must not be
// reused after calling Merged.
func (s *Sorter) Merged() (*Stream, error) {
	if err := s.spill(); err != nil {
		return nil, err
	}

	sources := make([]*runReader, 0, len(s.tmpFH))
	for i, f := range s.tmpFH {
		rr, err := newRunReader(f, s.runs[i], s.idCodec, s.valCodec)
		if err != nil {
			return nil, err
		}
		sources = append(sources, rr)
	}

	h := &mergeHeap{sources: sources, idType: s.idCodec.Type(), valType: s.valCodec.Type()}
	heap.Init(h)
	return &Stream{heap: h}, nil
}

// Abandon removes any spilled run files without producing a stream.
// Safe to call after Merged has been fully drained, or instead of it.
func (s *Sorter) Abandon() {
	for _, f := range s.tmpFH {
		_ = f.Close()
	}
	for _, name := range s.runs {
		_ = os.Remove(name)
	}
	s.runs = nil
	s.tmpFH = nil
}

// runReader streams fixed-width records back out of one spilled run
// file in the order they were written (already sorted).
type runReader struct {
	f        *os.File
	path     string
	br       *bufio.Reader
	rec      []byte
	idCodec  *entry.Codec
	valCodec *entry.Codec
	cur      entry.Entry
	done     bool
}

func newRunReader(f *os.File, path string, idCodec, valCodec *entry.Codec) (*runReader, error) {
	rr := &runReader{
		f:        f,
		path:     path,
		br:       bufio.NewReader(f),
		rec:      make([]byte, idCodec.Width()+valCodec.Width()),
		idCodec:  idCodec,
		valCodec: valCodec,
	}
	if err := rr.advance(); err != nil {
		return nil, err
	}
	return rr, nil
}

func (rr *runReader) advance() error {
	_, err := io.ReadFull(rr.br, rr.rec)
	switch {
	case err == nil:
		idW := rr.idCodec.Width()
		rr.cur = entry.Entry{
			Id:  rr.idCodec.Decode(rr.rec[:idW]),
			Val: rr.valCodec.Decode(rr.rec[idW:]),
		}
		return nil
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		rr.done = true
		return rr.close()
	default:
		return fmt.Errorf("mergesort: read run %s: %w", rr.path, err)
	}
}

func (rr *runReader) close() error {
	err := rr.f.Close()
	_ = os.Remove(rr.path)
	return err
}

// mergeHeap is a min-heap over the current head entry of each open run,
// the same shape as an LSM-tree's compaction/range-scan merge heap, but ordered
// by the (Val, Id) comparator this package sorts with.
type mergeHeap struct {
	sources []*runReader
	idType  entry.Type
	valType entry.Type
}

func (h *mergeHeap) Len() int { return len(h.sources) }
func (h *mergeHeap) Less(i, j int) bool {
	return entry.CompareEntries(h.idType, h.valType, h.sources[i].cur, h.sources[j].cur) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.sources[i], h.sources[j] = h.sources[j], h.sources[i] }
func (h *mergeHeap) Push(x any) { h.sources = append(h.sources, x.(*runReader)) }
func (h *mergeHeap) Pop() any {
	old := h.sources
	n := len(old)
	item := old[n-1]
	h.sources = old[:n-1]
	return item
}

// Stream yields the fully merged ascending entry sequence one entry at
// a time, matching the interface build.Builder.Put expects to be fed
// from.
type Stream struct {
	heap *mergeHeap
}

// Next returns the next entry in ascending order, or ok == false once
// every run is exhausted.
func (s *Stream) Next() (e entry.Entry, ok bool, err error) {
	for s.heap.Len() > 0 && s.heap.sources[0].done {
		heap.Pop(s.heap)
	}
	if s.heap.Len() == 0 {
		return entry.Entry{}, false, nil
	}
	top := s.heap.sources[0]
	e = top.cur
	if err := top.advance(); err != nil {
		return entry.Entry{}, false, err
	}
	heap.Fix(s.heap, 0)
	return e, true, nil
}
