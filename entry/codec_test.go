// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package entry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUintRoundTrip(t *testing.T) {
	for _, width := range []int{3, 4, 5, 6, 7, 8} {
		typ := Type{Tag: Unsigned, Width: width}
		c, err := NewCodec(typ)
		require.NoError(t, err)
		max := uint64(1)<<uint(8*width) - 1
		for _, v := range []uint64{0, 1, max, max / 2} {
			buf := make([]byte, width)
			c.Encode(U64(v), buf)
			got := c.Decode(buf)
			require.Equal(t, v, got.U, "width=%d v=%d", width, v)
		}
	}
}

func TestIntRoundTrip(t *testing.T) {
	for _, width := range []int{3, 4, 5, 6, 7, 8} {
		typ := Type{Tag: Signed, Width: width}
		c, err := NewCodec(typ)
		require.NoError(t, err)
		max := int64(1)<<uint(8*width-1) - 1
		min := -max - 1
		for _, v := range []int64{0, 1, -1, max, min, min + 1} {
			buf := make([]byte, width)
			c.Encode(I64(v), buf)
			got := c.Decode(buf)
			require.Equal(t, v, got.I, "width=%d v=%d", width, v)
		}
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, width := range []int{4, 8} {
		typ := Type{Tag: Float, Width: width}
		c, err := NewCodec(typ)
		require.NoError(t, err)
		buf := make([]byte, width)
		c.Encode(F64(-1234.5), buf)
		got := c.Decode(buf)
		require.InDelta(t, -1234.5, got.F, 0.01)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	typ := Type{Tag: Bytes, Width: 4}
	c, err := NewCodec(typ)
	require.NoError(t, err)
	buf := make([]byte, 4)
	c.Encode(Raw([]byte("abcd")), buf)
	got := c.Decode(buf)
	require.Equal(t, []byte("abcd"), got.Buf)
}

func TestCompareOrdering(t *testing.T) {
	u := Type{Tag: Unsigned, Width: 4}
	require.Equal(t, -1, Compare(u, U64(1), U64(2)))
	require.Equal(t, 1, Compare(u, U64(5), U64(2)))
	require.Equal(t, 0, Compare(u, U64(2), U64(2)))

	i := Type{Tag: Signed, Width: 4}
	require.Equal(t, -1, Compare(i, I64(-5), I64(2)))

	bt := Type{Tag: Bytes, Width: 3}
	require.True(t, Compare(bt, Raw([]byte("aaa")), Raw([]byte("aab"))) < 0)
}

func TestParseType(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want Type
	}{
		{"u4", Type{Unsigned, 4}},
		{"i3", Type{Signed, 3}},
		{"f8", Type{Float, 8}},
		{"t16", Type{Bytes, 16}},
	} {
		got, err := ParseType(tc.s)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	_, err := ParseType("q4")
	require.Error(t, err)
}
