// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mergesort

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/bstree/entry"
)

func codecs(t *testing.T) (*entry.Codec, *entry.Codec) {
	t.Helper()
	idCodec, err := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 8})
	require.NoError(t, err)
	valCodec, err := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 8})
	require.NoError(t, err)
	return idCodec, valCodec
}

func drain(t *testing.T, s *Stream) []entry.Entry {
	t.Helper()
	var out []entry.Entry
	for {
		e, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func TestSorterSingleRun(t *testing.T) {
	idCodec, valCodec := codecs(t)
	s := NewSorter(idCodec, valCodec, WithRunBytes(1<<20), WithTempDir(t.TempDir()))

	vals := []uint64{50, 10, 30, 20, 40}
	for _, v := range vals {
		require.NoError(t, s.Put(entry.Entry{Id: entry.U64(v), Val: entry.U64(v)}))
	}
	stream, err := s.Merged()
	require.NoError(t, err)
	got := drain(t, stream)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1].Val.U, got[i].Val.U)
	}
	require.Equal(t, uint64(10), got[0].Val.U)
	require.Equal(t, uint64(50), got[4].Val.U)
}

func TestSorterMultipleRuns(t *testing.T) {
	idCodec, valCodec := codecs(t)
	// tiny run budget forces many spills
	s := NewSorter(idCodec, valCodec, WithRunBytes(256), WithTempDir(t.TempDir()))

	rng := rand.New(rand.NewPCG(7, 11))
	const n = 5000
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		v := rng.Uint64N(1 << 30)
		for seen[v] {
			v = rng.Uint64N(1 << 30)
		}
		seen[v] = true
		require.NoError(t, s.Put(entry.Entry{Id: entry.U64(v), Val: entry.U64(v)}))
	}
	stream, err := s.Merged()
	require.NoError(t, err)
	got := drain(t, stream)
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Val.U, got[i].Val.U)
	}
}

func TestSorterEmpty(t *testing.T) {
	idCodec, valCodec := codecs(t)
	s := NewSorter(idCodec, valCodec, WithTempDir(t.TempDir()))
	stream, err := s.Merged()
	require.NoError(t, err)
	got := drain(t, stream)
	require.Empty(t, got)
}

func TestSorterAbandonRemovesRuns(t *testing.T) {
	idCodec, valCodec := codecs(t)
	s := NewSorter(idCodec, valCodec, WithRunBytes(64), WithTempDir(t.TempDir()))
	for i := uint64(0); i < 100; i++ {
		require.NoError(t, s.Put(entry.Entry{Id: entry.U64(i), Val: entry.U64(i)}))
	}
	require.NoError(t, s.spill())
	require.NotEmpty(t, s.runs)
	s.Abandon()
	require.Empty(t, s.runs)
}
