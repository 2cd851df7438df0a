// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package walk

import (
	"fmt"

	"github.com/bpowers/bstree/entry"
)

// Direction selects ascending or descending enumeration order for
// Range. Range accepts lo > hi by swapping the bounds; the order comes
// from Direction alone (qbst picks Descending when from > to).
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Ranger enumerates entries within [lo, hi] in Val order.
type Ranger struct {
	d *Descender
}

// NewRanger returns a Ranger over d.
func NewRanger(d *Descender) *Ranger { return &Ranger{d: d} }

// Range enumerates entries with lo <= Val <= hi. If dir is Descending,
// entries are visited in descending Val order. limit caps the number
// of visits (0 means unlimited). When countOnly is set and v is a
// *CountVisitor, no entries are read: the count comes from the
// upper_bound(hi) - lower_bound(lo) fast path. Any other visitor is
// walked entry by entry.
func (r *Ranger) Range(lo, hi entry.Value, dir Direction, limit int64, countOnly bool, v Visitor) error {
	defer v.Finish()

	valType := r.d.valCodec.Type()
	if entry.Compare(valType, lo, hi) > 0 {
		lo, hi = hi, lo
	}

	start, err := r.d.LowerBound(lo)
	if err != nil {
		return fmt.Errorf("walk: Range: %w", err)
	}
	end, err := r.d.UpperBound(hi)
	if err != nil {
		return fmt.Errorf("walk: Range: %w", err)
	}
	if end < start {
		end = start
	}

	// count-only fast path: only applies when the caller
	// actually wants a count, since there's no entry to hand any other
	// visitor kind without reading it.
	if countOnly {
		if cv, ok := v.(*CountVisitor); ok {
			count := end - start
			if limit > 0 && count > limit {
				count = limit
			}
			cv.Count += count
			return nil
		}
	}

	if dir == Ascending {
		return r.d.walkAscending(start, end, limit, v)
	}
	return r.d.walkDescending(start, end, limit, v)
}
