// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package walk

import (
	"fmt"

	"github.com/bpowers/bstree/entry"
)

// KNN implements a two-cursor best-first k-nearest-neighbour walk: one
// cursor walks left from lower_bound(v)-1, one walks right from
// lower_bound(v); at each step the closer cursor advances, until k
// entries are emitted or both are exhausted.
type KNN struct {
	d *Descender
}

// NewKNN returns a KNN walker over d.
func NewKNN(d *Descender) *KNN { return &KNN{d: d} }

// Query returns the k entries with smallest |Val - v|, ordered by
// increasing distance; ties are broken by Val >= v first, then Id
// ascending.
func (k *KNN) Query(v entry.Value, count int) ([]entry.Entry, error) {
	if count <= 0 {
		return nil, nil
	}
	n := k.d.N()
	if n == 0 {
		return nil, nil
	}
	if int64(count) > n {
		count = int(n)
	}

	mid, err := k.d.LowerBound(v)
	if err != nil {
		return nil, fmt.Errorf("walk: KNN.Query: %w", err)
	}

	left := mid - 1
	right := mid

	valType := k.d.valCodec.Type()

	var leftEntry, rightEntry *entry.Entry
	loadLeft := func() error {
		if left < 0 {
			leftEntry = nil
			return nil
		}
		e, err := k.d.EntryAt(left)
		if err != nil {
			return err
		}
		leftEntry = &e
		return nil
	}
	loadRight := func() error {
		if right >= n {
			rightEntry = nil
			return nil
		}
		e, err := k.d.EntryAt(right)
		if err != nil {
			return err
		}
		rightEntry = &e
		return nil
	}

	if err := loadLeft(); err != nil {
		return nil, fmt.Errorf("walk: KNN.Query: %w", err)
	}
	if err := loadRight(); err != nil {
		return nil, fmt.Errorf("walk: KNN.Query: %w", err)
	}

	out := make([]entry.Entry, 0, count)
	for len(out) < count && (leftEntry != nil || rightEntry != nil) {
		takeRight := rightEntry != nil
		if leftEntry != nil && rightEntry != nil {
			dl := entry.Distance(valType, leftEntry.Val, v)
			dr := entry.Distance(valType, rightEntry.Val, v)
			switch {
			case dr < dl:
				takeRight = true
			case dl < dr:
				takeRight = false
			default:
				// tie: prefer Val >= v (the right cursor), matching
				// Descender.Nearest's tie-break.
				takeRight = true
			}
		} else {
			takeRight = rightEntry != nil
		}

		if takeRight {
			out = append(out, *rightEntry)
			right++
			if err := loadRight(); err != nil {
				return nil, fmt.Errorf("walk: KNN.Query: %w", err)
			}
		} else {
			out = append(out, *leftEntry)
			left--
			if err := loadLeft(); err != nil {
				return nil, fmt.Errorf("walk: KNN.Query: %w", err)
			}
		}
	}

	// Id tie-breaking among entries with equal (Val, distance) already
	// follows from the sorted stream's insertion order:
	// the stored array is stable-sorted by (Val, Id), so scanning
	// outward from lower_bound never needs to re-sort by Id itself.
	return out, nil
}
