// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bstree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/walk"
)

// sliceSource adapts an in-memory, unsorted entry slice to Source.
type sliceSource struct {
	entries []entry.Entry
	i       int
}

func (s *sliceSource) Next() (entry.Entry, bool, error) {
	if s.i >= len(s.entries) {
		return entry.Entry{}, false, nil
	}
	e := s.entries[s.i]
	s.i++
	return e, true, nil
}

func buildTestIndex(t *testing.T, n int) string {
	t.Helper()
	entries := make([]entry.Entry, n)
	// insert in reverse order so Build's internal sort is exercised.
	for i := 0; i < n; i++ {
		v := uint64(n - i)
		entries[i] = entry.Entry{Id: entry.U64(v), Val: entry.U64(v)}
	}
	idType := entry.Type{Tag: entry.Unsigned, Width: 4}
	valType := entry.Type{Tag: entry.Unsigned, Width: 4}

	path := filepath.Join(t.TempDir(), "idx.bst")
	require.NoError(t, Build(path, int64(n), idType, valType, &sliceSource{entries: entries}, WithL1Bytes(256), WithDiskGroupBytes(4096)))
	return path
}

func TestBuildAndOpenRoundTrip(t *testing.T) {
	path := buildTestIndex(t, 2000)
	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()

	require.Equal(t, int64(2000), idx.Len())

	e, ok, err := idx.Find(entry.U64(1000))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1000), e.Val.U)

	_, ok, err = idx.Find(entry.U64(999999))
	require.NoError(t, err)
	require.False(t, ok)

	nearest, err := idx.Nearest(entry.U64(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), nearest.Val.U)

	got, err := idx.KNN(entry.U64(1000), 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	cv := &walk.CountVisitor{}
	require.NoError(t, idx.Range(entry.U64(100), entry.U64(200), walk.Ascending, 0, true, cv))
	require.Equal(t, int64(101), cv.Count)
}

func TestOpenPositioned(t *testing.T) {
	path := buildTestIndex(t, 500)
	idx, err := Open(path, WithPositionedIO(4096))
	require.NoError(t, err)
	defer idx.Close()

	e, ok, err := idx.Find(entry.U64(250))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(250), e.Val.U)
}

func TestOpenMlockIndex(t *testing.T) {
	path := buildTestIndex(t, 500)
	idx, err := Open(path, WithMlockIndex())
	require.NoError(t, err)
	defer idx.Close()

	e, ok, err := idx.Find(entry.U64(250))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(250), e.Val.U)
}

func TestBuildRejectsCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bst")
	idType := entry.Type{Tag: entry.Unsigned, Width: 4}
	valType := entry.Type{Tag: entry.Unsigned, Width: 4}
	src := &sliceSource{entries: []entry.Entry{{Id: entry.U64(1), Val: entry.U64(1)}}}
	err := Build(path, 5, idType, valType, src)
	require.Error(t, err)
}
