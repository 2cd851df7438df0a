// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package header

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/layout"
)

func TestRoundTrip(t *testing.T) {
	plan, err := layout.Compute(10000, 8, 4096, 1<<16, 0)
	require.NoError(t, err)

	h := &Header{
		IdType:  entry.Type{Tag: entry.Unsigned, Width: 4},
		ValType: entry.Type{Tag: entry.Unsigned, Width: 4},
		N:       10000,
		Plan:    plan,
	}

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	got, consumed, err := Unmarshal(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, h.IdType, got.IdType)
	require.Equal(t, h.ValType, got.ValType)
	require.Equal(t, h.N, got.N)
	require.Equal(t, plan.EntriesPerL1, got.Plan.EntriesPerL1)
	require.Equal(t, plan.L1PerDisk, got.Plan.L1PerDisk)
	require.Equal(t, plan.Levels, got.Plan.Levels)
	require.Equal(t, plan.Tail, got.Plan.Tail)
	require.Equal(t, int64(0), got.ChecksumTableOffset)
	require.Equal(t, int64(0), got.ChecksumCount)
}

func TestUpdateFileLengthAndChecksumTable(t *testing.T) {
	plan, err := layout.Compute(10000, 8, 4096, 1<<16, 0)
	require.NoError(t, err)

	h := &Header{
		IdType:  entry.Type{Tag: entry.Unsigned, Width: 4},
		ValType: entry.Type{Tag: entry.Unsigned, Width: 4},
		N:       10000,
		Plan:    plan,
	}

	var buf bytes.Buffer
	_, err = h.WriteTo(&buf)
	require.NoError(t, err)

	backing := append([]byte(nil), buf.Bytes()...)
	w := &sliceWriterAt{data: backing}

	require.NoError(t, h.UpdateFileLength(123456, w))
	require.NoError(t, h.UpdateChecksumTable(99999, 42, w))

	got, _, err := Unmarshal(w.data)
	require.NoError(t, err)
	require.Equal(t, int64(123456), got.FileLength)
	require.Equal(t, int64(99999), got.ChecksumTableOffset)
	require.Equal(t, int64(42), got.ChecksumCount)
}

type sliceWriterAt struct {
	data []byte
}

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(s.data)) {
		return 0, fmt.Errorf("sliceWriterAt: write past end")
	}
	copy(s.data[off:], p)
	return len(p), nil
}

func TestUnmarshalBadMagic(t *testing.T) {
	_, _, err := Unmarshal(make([]byte, 64))
	require.Error(t, err)
}

func TestUnmarshalTooShort(t *testing.T) {
	_, _, err := Unmarshal(nil)
	require.Error(t, err)
}
