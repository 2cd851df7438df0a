// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeInvariants(t *testing.T) {
	for _, n := range []int64{0, 1, 2, 3, 7, 8, 100, 1000, 1 << 20, 5_000_003} {
		plan, err := Compute(n, 8, 4096, 1<<20, 0)
		require.NoError(t, err)
		require.Equal(t, n, plan.N)

		sum := plan.Tail.N
		for _, lvl := range plan.Levels {
			require.True(t, lvl.NMain%lvl.NRoot == 0)
			sum += lvl.NMain
		}
		require.Equal(t, n, sum)
		require.True(t, plan.Tail.N < plan.EntriesPerL1 || len(plan.Levels) == 0)
	}
}

func TestOffsetCoversWholeFileNoOverlap(t *testing.T) {
	for _, n := range []int64{0, 1, 2, 3, 7, 8, 31, 100, 1000, 12345} {
		plan, err := Compute(n, 8, 256, 4096, 0)
		require.NoError(t, err)

		seen := make(map[int64]bool, n)
		for i := int64(0); i < n; i++ {
			off, err := plan.Offset(i)
			require.NoError(t, err)
			require.False(t, seen[off], "duplicate offset %d for index %d (n=%d)", off, i, n)
			seen[off] = true
			require.True(t, off >= 0 && off < n*plan.EntrySize)
			require.True(t, off%plan.EntrySize == 0)
		}
		require.Equal(t, int(n), len(seen))
	}
}

func TestOffsetOutOfRange(t *testing.T) {
	plan, err := Compute(10, 8, 256, 4096, 0)
	require.NoError(t, err)
	_, err = plan.Offset(-1)
	require.Error(t, err)
	_, err = plan.Offset(10)
	require.Error(t, err)
}

func TestUnitSlotMatchesOffset(t *testing.T) {
	plan, err := Compute(12345, 8, 256, 4096, 0)
	require.NoError(t, err)

	cumulative := int64(0)
	for _, lvl := range plan.Levels {
		units := lvl.NMain / lvl.NRoot
		for u := int64(0); u < units; u++ {
			for local := int64(0); local < lvl.NRoot; local++ {
				globalIdx := cumulative + u*lvl.NRoot + local
				off, err := plan.Offset(globalIdx)
				require.NoError(t, err)

				wantSlot := (off - lvl.FileOffsetStart) / plan.EntrySize
				gotSlot := u*lvl.NRoot + plan.UnitSlot(lvl.NRoot, local)
				require.Equal(t, wantSlot, gotSlot)
			}
		}
		cumulative += lvl.NMain
	}

	for local := int64(0); local < plan.Tail.N; local++ {
		off, err := plan.Offset(cumulative + local)
		require.NoError(t, err)
		wantSlot := (off - plan.Tail.FileOffsetStart) / plan.EntrySize
		require.Equal(t, wantSlot, SlotForIndex(plan.Tail.N, local))
	}
}

func TestSlotForIndexIsPermutation(t *testing.T) {
	for _, n := range []int64{1, 2, 3, 4, 7, 15, 16, 100} {
		seen := make(map[int64]bool, n)
		for idx := int64(0); idx < n; idx++ {
			slot := slotForIndex(n, idx)
			require.True(t, slot >= 0 && slot < n)
			require.False(t, seen[slot])
			seen[slot] = true
		}
	}
}
