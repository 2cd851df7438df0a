// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package build

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/bstree/bsterr"
	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/header"
)

func buildFile(t *testing.T, n int64, l1Bytes, diskBytes int64) (string, []entry.Entry) {
	t.Helper()

	idType := entry.Type{Tag: entry.Unsigned, Width: 4}
	valType := entry.Type{Tag: entry.Unsigned, Width: 8}
	idCodec, err := entry.NewCodec(idType)
	require.NoError(t, err)
	valCodec, err := entry.NewCodec(valType)
	require.NoError(t, err)

	entries := make([]entry.Entry, n)
	for i := int64(0); i < n; i++ {
		entries[i] = entry.Entry{Id: entry.U64(uint64(i)), Val: entry.U64(uint64(i) * 7)}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entry.CompareEntries(idType, valType, entries[i], entries[j]) < 0
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "out.bst")

	b, err := NewBuilder(path, n, idCodec, valCodec, WithL1Bytes(l1Bytes), WithDiskGroupBytes(diskBytes))
	require.NoError(t, err)

	for _, e := range entries {
		require.NoError(t, b.Put(e))
	}
	require.NoError(t, b.Finalize())

	return path, entries
}

func TestBuilderRoundTripSmall(t *testing.T) {
	path, entries := buildFile(t, 1000, 256, 4096)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0444), fi.Mode().Perm())

	h, headerLen, err := header.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, int64(len(entries)), h.N)
	require.True(t, h.ChecksumTableOffset > 0)
	require.True(t, h.ChecksumCount > 0)
	require.Equal(t, int64(len(data)), h.FileLength)

	entrySize := int64(h.IdType.Width + h.ValType.Width)
	body := data[headerLen:h.ChecksumTableOffset]
	require.Equal(t, h.N*entrySize, int64(len(body)))

	idCodec, err := entry.NewCodec(h.IdType)
	require.NoError(t, err)
	valCodec, err := entry.NewCodec(h.ValType)
	require.NoError(t, err)

	seenIds := make(map[uint64]bool, h.N)
	for i := int64(0); i < h.N; i++ {
		off, err := h.Plan.Offset(i)
		require.NoError(t, err)
		raw := body[off : off+entrySize]
		id := idCodec.Decode(raw[:h.IdType.Width])
		val := valCodec.Decode(raw[h.IdType.Width:])
		seenIds[id.U] = true
		require.Equal(t, id.U*7, val.U)
	}
	require.Equal(t, int(h.N), len(seenIds))
}

func TestBuilderRoundTripVariousSizes(t *testing.T) {
	for _, n := range []int64{0, 1, 2, 7, 8, 100, 4321} {
		path, _ := buildFile(t, n, 128, 2048)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		h, _, err := header.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, n, h.N)
		require.Equal(t, int64(len(data)), h.FileLength)
	}
}

func TestBuilderRejectsDoubleFinalize(t *testing.T) {
	idCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	valCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	dir := t.TempDir()
	b, err := NewBuilder(filepath.Join(dir, "out.bst"), 0, idCodec, valCodec)
	require.NoError(t, err)
	require.NoError(t, b.Finalize())
	require.Error(t, b.Finalize())
}

func TestBuilderRejectsWrongCount(t *testing.T) {
	idCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	valCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	dir := t.TempDir()
	b, err := NewBuilder(filepath.Join(dir, "out.bst"), 2, idCodec, valCodec)
	require.NoError(t, err)
	require.NoError(t, b.Put(entry.Entry{Id: entry.U64(0), Val: entry.U64(0)}))
	require.Error(t, b.Finalize())
}

func TestBuilderRejectsUnsortedInput(t *testing.T) {
	idCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	valCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	dir := t.TempDir()
	b, err := NewBuilder(filepath.Join(dir, "out.bst"), 3, idCodec, valCodec)
	require.NoError(t, err)

	require.NoError(t, b.Put(entry.Entry{Id: entry.U64(1), Val: entry.U64(10)}))
	require.NoError(t, b.Put(entry.Entry{Id: entry.U64(2), Val: entry.U64(20)}))

	err = b.Put(entry.Entry{Id: entry.U64(3), Val: entry.U64(5)})
	require.Error(t, err)
	var be *bsterr.Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, bsterr.InvalidInput, be.Kind)
	require.Contains(t, err.Error(), "logical index 2")
}

func TestBuilderAbandon(t *testing.T) {
	idCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	valCodec, _ := entry.NewCodec(entry.Type{Tag: entry.Unsigned, Width: 4})
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bst")
	b, err := NewBuilder(path, 5, idCodec, valCodec)
	require.NoError(t, err)
	require.NoError(t, b.Abandon())

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
