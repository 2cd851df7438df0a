// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package walk

import (
	"errors"
	"fmt"

	"github.com/bpowers/bstree/diskfile"
	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/layout"
)

// ErrEmpty is returned by operations that have no defined result over
// a zero-entry file.
var ErrEmpty = errors.New("walk: file has no entries")

// Descender answers exact-value and bound queries over a bstree file's
// body. It holds only a borrowed Mapper and the parsed
// layout -- no heap state accumulates across calls.
//
// LowerBound/UpperBound descend level by level (main run of disk
// groups, then main run of flat L1 blocks, then the tail block),
// never binary-searching across a level boundary: within a matched
// level they binary search over whole units (one disk group or one L1
// block per probe) to find the unit that can hold the answer, then
// resolve the answer inside that single unit. Inside a disk group,
// the unit's own root L1 block -- physically one contiguous,
// page-sized run of EntriesPerL1 separators -- is binary searched
// entirely in place to pick a child, and only that one child block is
// then read. A point query therefore touches at most one block per
// level plus one child block per disk group it passes through, not an
// arbitrary scatter of blocks across the whole file.
type Descender struct {
	m         diskfile.Mapper
	bodyStart int64
	plan      *layout.Plan
	idCodec   *entry.Codec
	valCodec  *entry.Codec
	entrySize int64
}

// NewDescender returns a Descender reading entries from m, whose body
// begins at bodyStart bytes into the file.
func NewDescender(m diskfile.Mapper, bodyStart int64, plan *layout.Plan, idCodec, valCodec *entry.Codec) *Descender {
	return &Descender{
		m:         m,
		bodyStart: bodyStart,
		plan:      plan,
		idCodec:   idCodec,
		valCodec:  valCodec,
		entrySize: int64(idCodec.Width() + valCodec.Width()),
	}
}

// N returns the number of entries in the file.
func (d *Descender) N() int64 { return d.plan.N }

// EntryAt decodes the entry at logical index i.
func (d *Descender) EntryAt(i int64) (entry.Entry, error) {
	off, err := d.plan.Offset(i)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("walk: EntryAt(%d): %w", i, err)
	}
	raw, err := d.m.At(d.bodyStart+off, d.entrySize)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("walk: EntryAt(%d): %w", i, err)
	}
	idWidth := d.idCodec.Width()
	return entry.Entry{
		Id:  d.idCodec.Decode(raw[:idWidth]),
		Val: d.valCodec.Decode(raw[idWidth:]),
	}, nil
}

// LowerBound returns the smallest logical index i such that
// A[i].Val >= v, or N if no such index exists.
func (d *Descender) LowerBound(v entry.Value) (int64, error) {
	valType := d.valCodec.Type()
	return d.bound(v, func(a entry.Value) bool { return entry.Compare(valType, a, v) < 0 })
}

// UpperBound returns the smallest logical index i such that
// A[i].Val > v, or N if no such index exists.
func (d *Descender) UpperBound(v entry.Value) (int64, error) {
	valType := d.valCodec.Type()
	return d.bound(v, func(a entry.Value) bool { return entry.Compare(valType, a, v) <= 0 })
}

// bound returns the smallest logical index i such that !less(A[i].Val),
// or N if every entry satisfies less. It steps level by level (never
// binary-searching across a level boundary), then descends into
// exactly the one unit -- disk group or flat L1 block -- of the
// matched level that can hold the answer.
func (d *Descender) bound(v entry.Value, less func(entry.Value) bool) (int64, error) {
	cumulative := int64(0)
	for _, lvl := range d.plan.Levels {
		lastIdx := cumulative + lvl.NMain - 1
		lastEntry, err := d.EntryAt(lastIdx)
		if err != nil {
			return 0, err
		}
		if !less(lastEntry.Val) {
			return d.boundWithinLevel(cumulative, lvl, less)
		}
		cumulative += lvl.NMain
	}
	if d.plan.Tail.N == 0 {
		return d.plan.N, nil
	}
	return d.boundWithinBlock(cumulative, d.plan.Tail.N, less)
}

// boundWithinLevel binary searches over lvl's units -- one disk group
// or one flat L1 block per probe, each read a single boundary entry at
// a time -- to find the unit that can hold the answer, then resolves
// the answer inside that one unit only.
func (d *Descender) boundWithinLevel(base int64, lvl layout.Level, less func(entry.Value) bool) (int64, error) {
	numUnits := lvl.NMain / lvl.NRoot
	lo, hi := int64(0), numUnits
	for lo < hi {
		mid := lo + (hi-lo)/2
		lastIdx := base + mid*lvl.NRoot + lvl.NRoot - 1
		e, err := d.EntryAt(lastIdx)
		if err != nil {
			return 0, err
		}
		if less(e.Val) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= numUnits {
		return base + lvl.NMain, nil
	}
	unitStart := base + lo*lvl.NRoot
	if lvl.NRoot == d.plan.EntriesPerL1 {
		return d.boundWithinBlock(unitStart, lvl.NRoot, less)
	}
	return d.boundWithinGroup(unitStart, less)
}

// boundWithinGroup resolves the answer inside one disk group whose
// entries start at the absolute logical index base. It first binary
// searches the group's root block -- EntriesPerL1 separators, all
// physically colocated in the group's first EntriesPerL1 slots, so
// every probe lands on the same already-read page -- to pick a child,
// then reads only that one child block.
func (d *Descender) boundWithinGroup(base int64, less func(entry.Value) bool) (int64, error) {
	n1 := d.plan.EntriesPerL1
	stride := n1 + 1

	lo, hi := int64(0), n1
	for lo < hi {
		mid := lo + (hi-lo)/2
		e, err := d.EntryAt(base + mid*stride + n1)
		if err != nil {
			return 0, err
		}
		if less(e.Val) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	q := lo // candidate child index in [0, n1]; q == n1 is the last child

	childStart := base + q*stride
	pos, err := d.boundWithinBlock(childStart, n1, less)
	if err != nil {
		return 0, err
	}
	if pos < childStart+n1 {
		return pos, nil
	}
	// every entry in child q fails less(): the answer is the separator
	// right after it, unless this was already the last child.
	if q < n1 {
		return base + q*stride + n1, nil
	}
	return base + d.plan.GroupCapacity(), nil
}

// boundWithinBlock binary searches the n entries starting at the
// absolute logical index base, all of which live in one physically
// contiguous block, for the smallest index that fails less().
func (d *Descender) boundWithinBlock(base, n int64, less func(entry.Value) bool) (int64, error) {
	lo, hi := int64(0), n
	for lo < hi {
		mid := lo + (hi-lo)/2
		e, err := d.EntryAt(base + mid)
		if err != nil {
			return 0, err
		}
		if less(e.Val) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return base + lo, nil
}

// blockAt returns the logical-index bounds [blockStart, blockStart+n)
// of the single physical block containing index i: a flat L1 block, a
// disk group's child L1 block, one entry of a disk group's root
// separator block (n == 1: separators sit between children, not in a
// run of consecutive logical indices), or the tail block.
func (d *Descender) blockAt(i int64) (blockStart, n int64, err error) {
	if i < 0 || i >= d.plan.N {
		return 0, 0, fmt.Errorf("walk: blockAt(%d): out of range [0,%d)", i, d.plan.N)
	}
	n1 := d.plan.EntriesPerL1
	cumulative := int64(0)
	for _, lvl := range d.plan.Levels {
		if i < cumulative+lvl.NMain {
			rel := i - cumulative
			if lvl.NRoot == n1 {
				blockIdx := rel / n1
				return cumulative + blockIdx*n1, n1, nil
			}
			groupCap := lvl.NRoot
			groupIdx := rel / groupCap
			withinGroup := rel % groupCap
			groupStart := cumulative + groupIdx*groupCap
			stride := n1 + 1
			q := withinGroup / stride
			r := withinGroup % stride
			if r == n1 {
				return groupStart + q*stride + n1, 1, nil
			}
			return groupStart + q*stride, n1, nil
		}
		cumulative += lvl.NMain
	}
	return cumulative, d.plan.Tail.N, nil
}

// readBlock decodes the n entries of the block starting at the
// absolute logical index blockStart, in ascending Val order, via one
// underlying read of the block's whole (physically contiguous) byte
// range rather than one read per entry.
func (d *Descender) readBlock(blockStart, n int64) ([]entry.Entry, error) {
	firstOff, err := d.plan.Offset(blockStart)
	if err != nil {
		return nil, fmt.Errorf("walk: readBlock(%d,%d): %w", blockStart, n, err)
	}
	blockByteStart := firstOff - layout.SlotForIndex(n, 0)*d.entrySize
	raw, err := d.m.At(d.bodyStart+blockByteStart, n*d.entrySize)
	if err != nil {
		return nil, fmt.Errorf("walk: readBlock(%d,%d): %w", blockStart, n, err)
	}

	idWidth := d.idCodec.Width()
	out := make([]entry.Entry, n)
	for local := int64(0); local < n; local++ {
		slot := layout.SlotForIndex(n, local)
		rec := raw[slot*d.entrySize : slot*d.entrySize+d.entrySize]
		out[local] = entry.Entry{
			Id:  d.idCodec.Decode(rec[:idWidth]),
			Val: d.valCodec.Decode(rec[idWidth:]),
		}
	}
	return out, nil
}

// walkAscending visits entries in [start, end) ascending, batching
// each physical block into a single read via readBlock rather than
// decoding one entry at a time.
func (d *Descender) walkAscending(start, end, limit int64, v Visitor) error {
	visited := int64(0)
	for i := start; i < end; {
		if limit > 0 && visited >= limit {
			return nil
		}
		blockStart, n, err := d.blockAt(i)
		if err != nil {
			return fmt.Errorf("walk: Range: %w", err)
		}
		entries, err := d.readBlock(blockStart, n)
		if err != nil {
			return fmt.Errorf("walk: Range: %w", err)
		}
		localEnd := n
		if blockStart+n > end {
			localEnd = end - blockStart
		}
		for local := i - blockStart; local < localEnd; local++ {
			if limit > 0 && visited >= limit {
				return nil
			}
			if !v.Visit(entries[local]) {
				return nil
			}
			visited++
		}
		i = blockStart + localEnd
	}
	return nil
}

// walkDescending visits entries in [start, end) descending, batching
// each physical block into a single read via readBlock.
func (d *Descender) walkDescending(start, end, limit int64, v Visitor) error {
	visited := int64(0)
	for i := end; i > start; {
		if limit > 0 && visited >= limit {
			return nil
		}
		blockStart, n, err := d.blockAt(i - 1)
		if err != nil {
			return fmt.Errorf("walk: Range: %w", err)
		}
		entries, err := d.readBlock(blockStart, n)
		if err != nil {
			return fmt.Errorf("walk: Range: %w", err)
		}
		localStart := int64(0)
		if blockStart < start {
			localStart = start - blockStart
		}
		localEnd := i - blockStart
		for local := localEnd - 1; local >= localStart; local-- {
			if limit > 0 && visited >= limit {
				return nil
			}
			if !v.Visit(entries[local]) {
				return nil
			}
			visited++
		}
		i = blockStart
	}
	return nil
}

// Find returns an entry with Val == v, or ok == false if none exists.
// Exact ties return the leftmost matching index.
func (d *Descender) Find(v entry.Value) (e entry.Entry, ok bool, err error) {
	i, err := d.LowerBound(v)
	if err != nil {
		return entry.Entry{}, false, err
	}
	if i >= d.plan.N {
		return entry.Entry{}, false, nil
	}
	e, err = d.EntryAt(i)
	if err != nil {
		return entry.Entry{}, false, err
	}
	if entry.Compare(d.valCodec.Type(), e.Val, v) == 0 {
		return e, true, nil
	}
	return entry.Entry{}, false, nil
}

// Nearest returns the entry minimising |Val - v|, ties broken by
// Val >= v. Values below A[0] return A[0]; values
// above A[N-1] return A[N-1].
func (d *Descender) Nearest(v entry.Value) (entry.Entry, error) {
	if d.plan.N == 0 {
		return entry.Entry{}, ErrEmpty
	}
	i, err := d.LowerBound(v)
	if err != nil {
		return entry.Entry{}, err
	}

	valType := d.valCodec.Type()
	switch {
	case i <= 0:
		return d.EntryAt(0)
	case i >= d.plan.N:
		return d.EntryAt(d.plan.N - 1)
	}

	right, err := d.EntryAt(i)
	if err != nil {
		return entry.Entry{}, err
	}
	left, err := d.EntryAt(i - 1)
	if err != nil {
		return entry.Entry{}, err
	}

	dr := entry.Distance(valType, right.Val, v)
	dl := entry.Distance(valType, left.Val, v)
	if dl < dr {
		return left, nil
	}
	// tie or right closer: prefer Val >= v, i.e. the right candidate.
	return right, nil
}
