// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package walk implements the three tree walks over a bstree file
// (descent, range, knn) plus the visitor protocol they all report
// through. Ranger.Range reports only through a Visitor and allocates no
// result container. Descender.Find and Descender.Nearest return their
// entry directly, and KNN.Query takes no Visitor: it allocates and
// returns a slice of its results.
package walk

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/internal/queue"
)

// Visitor receives entries from a walk in the order the walk defines
// (ascending or descending Val for Ranger.Range).
type Visitor interface {
	// Visit is called once per matching entry. Returning false stops
	// the walk early.
	Visit(e entry.Entry) (cont bool)
	// CapacityHint advises the walker of an upper bound on the number
	// of entries it will emit, so a visitor backed by a slice/writer
	// can preallocate. ok is false when no bound is known.
	CapacityHint() (n int64, ok bool)
	// Finish is called exactly once, whether the walk completed,
	// stopped early, or errored.
	Finish()
}

// CSVVisitor writes "id,val" rows (or "distance,id,val" when Distance
// is set true) to an io.Writer via encoding/csv -- the only CSV
// implementation this codebase needs, and no third-party CSV writer
// appears in this codebase's other data-plumbing packages, so the
// standard library is the choice here (see DESIGN.md).
type CSVVisitor struct {
	w        *csv.Writer
	idType   entry.Type
	valType  entry.Type
	withDist bool
	query    entry.Value
	err      error
}

// NewCSVVisitor returns a visitor that writes decoded rows to w.
func NewCSVVisitor(w io.Writer, idType, valType entry.Type) *CSVVisitor {
	return &CSVVisitor{w: csv.NewWriter(w), idType: idType, valType: valType}
}

// NewCSVDistanceVisitor is like NewCSVVisitor but prepends a distance
// column computed against query, for nn/knn output ("distance,id,val").
func NewCSVDistanceVisitor(w io.Writer, idType, valType entry.Type, query entry.Value) *CSVVisitor {
	return &CSVVisitor{w: csv.NewWriter(w), idType: idType, valType: valType, withDist: true, query: query}
}

func (v *CSVVisitor) Visit(e entry.Entry) bool {
	if v.err != nil {
		return false
	}
	idStr := formatValue(v.idType, e.Id)
	valStr := formatValue(v.valType, e.Val)
	var row []string
	if v.withDist {
		d := entry.Distance(v.valType, e.Val, v.query)
		row = []string{strconv.FormatFloat(d, 'g', -1, 64), idStr, valStr}
	} else {
		row = []string{idStr, valStr}
	}
	if err := v.w.Write(row); err != nil {
		v.err = fmt.Errorf("walk: csv write: %w", err)
		return false
	}
	return true
}

func (v *CSVVisitor) CapacityHint() (int64, bool) { return 0, false }

func (v *CSVVisitor) Finish() { v.w.Flush() }

// Err returns the first write error encountered, if any.
func (v *CSVVisitor) Err() error {
	if v.err != nil {
		return v.err
	}
	return v.w.Error()
}

func formatValue(t entry.Type, v entry.Value) string {
	switch t.Tag {
	case entry.Unsigned:
		return strconv.FormatUint(v.U, 10)
	case entry.Signed:
		return strconv.FormatInt(v.I, 10)
	case entry.Float:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case entry.Bytes:
		return string(v.Buf)
	default:
		return ""
	}
}

// CountVisitor counts matches without ever materializing an entry.
type CountVisitor struct {
	Count int64
}

func (v *CountVisitor) Visit(entry.Entry) bool {
	v.Count++
	return true
}

func (v *CountVisitor) CapacityHint() (int64, bool) { return 0, false }
func (v *CountVisitor) Finish()                     {}

// TopKVisitor keeps the k entries with smallest distance to query
// seen so far, backed by internal/queue's bounded max-heap: when full,
// the worst-so-far candidate sits on top for O(log k) eviction. It can
// be passed to Ranger.Range to keep the k entries of a range closest to
// query. The KNN walker does not use it.
type TopKVisitor struct {
	k        int
	valType  entry.Type
	query    entry.Value
	heap     *queue.PriorityQueue
	entries  map[int64]entry.Entry
	nextSlot int64
}

// NewTopKVisitor returns a visitor retaining the k closest entries to
// query, measured by entry.Distance over valType.
func NewTopKVisitor(k int, valType entry.Type, query entry.Value) *TopKVisitor {
	return &TopKVisitor{
		k:       k,
		valType: valType,
		query:   query,
		heap:    queue.NewMax(k),
		entries: make(map[int64]entry.Entry, k),
	}
}

func (v *TopKVisitor) Visit(e entry.Entry) bool {
	if v.k <= 0 {
		return false
	}
	d := entry.Distance(v.valType, e.Val, v.query)
	slot := v.nextSlot
	v.nextSlot++

	if v.heap.Len() < v.k {
		v.heap.PushItem(queue.Item{Index: slot, Distance: d})
		v.entries[slot] = e
		return true
	}
	top, _ := v.heap.Top()
	if d < top.Distance {
		evicted, _ := v.heap.PopItem()
		delete(v.entries, evicted.Index)
		v.heap.PushItem(queue.Item{Index: slot, Distance: d})
		v.entries[slot] = e
	}
	return true
}

func (v *TopKVisitor) CapacityHint() (int64, bool) { return int64(v.k), true }
func (v *TopKVisitor) Finish()                     {}

// Results returns the retained entries sorted by increasing distance
// to query.
func (v *TopKVisitor) Results() []entry.Entry {
	items := append([]queue.Item(nil), v.heap.Items()...)
	sortItemsByDistance(items)
	out := make([]entry.Entry, 0, len(items))
	for _, it := range items {
		out = append(out, v.entries[it.Index])
	}
	return out
}

func sortItemsByDistance(items []queue.Item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Distance < items[j-1].Distance; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// ReservoirVisitor keeps a fixed-size uniform random sample of visited
// entries using reservoir sampling (Vitter's Algorithm R), letting a
// caller get quick statistics over a huge range without reading it
// all.
type ReservoirVisitor struct {
	size   int
	sample []entry.Entry
	seen   int64
	rng    *rand.Rand
}

// NewReservoirVisitor returns a visitor retaining up to size uniformly
// sampled entries.
func NewReservoirVisitor(size int, rng *rand.Rand) *ReservoirVisitor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &ReservoirVisitor{size: size, rng: rng, sample: make([]entry.Entry, 0, size)}
}

func (v *ReservoirVisitor) Visit(e entry.Entry) bool {
	v.seen++
	if len(v.sample) < v.size {
		v.sample = append(v.sample, e)
		return true
	}
	j := v.rng.Int64N(v.seen)
	if j < int64(v.size) {
		v.sample[j] = e
	}
	return true
}

func (v *ReservoirVisitor) CapacityHint() (int64, bool) { return int64(v.size), true }
func (v *ReservoirVisitor) Finish()                     {}

// Sample returns the retained sample.
func (v *ReservoirVisitor) Sample() []entry.Entry { return v.sample }
