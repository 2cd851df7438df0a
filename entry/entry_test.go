// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package entry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceNumeric(t *testing.T) {
	uType := Type{Tag: Unsigned, Width: 4}
	require.Equal(t, float64(5), Distance(uType, U64(10), U64(5)))
	require.Equal(t, float64(5), Distance(uType, U64(5), U64(10)))

	iType := Type{Tag: Signed, Width: 4}
	require.Equal(t, float64(15), Distance(iType, I64(-5), I64(10)))

	fType := Type{Tag: Float, Width: 8}
	require.InDelta(t, 0.5, Distance(fType, F64(1.0), F64(0.5)), 1e-9)
}

func TestDistanceWideIntegerPrecision(t *testing.T) {
	// at this magnitude float64's 52-bit mantissa can't represent b
	// exactly (the ULP is 1024), so float64(b) rounds to a and
	// float64(a)-float64(b) would report 0 instead of the true gap.
	uType := Type{Tag: Unsigned, Width: 8}
	a := uint64(1) << 62
	b := a + 10
	require.Equal(t, float64(10), Distance(uType, U64(a), U64(b)))
	require.Equal(t, float64(10), Distance(uType, U64(b), U64(a)))

	// spans zero widely enough that a naive int64 subtraction (b - a)
	// would overflow before ever reaching a float64 conversion.
	iType := Type{Tag: Signed, Width: 8}
	ia := -(int64(1) << 62)
	ib := int64(1) << 62
	require.Equal(t, float64(uint64(1)<<63), Distance(iType, I64(ia), I64(ib)))
}

func TestDistanceBytes(t *testing.T) {
	bType := Type{Tag: Bytes, Width: 2}
	a := Raw([]byte{0x00, 0x01})
	b := Raw([]byte{0x00, 0x03})
	require.Equal(t, float64(2), Distance(bType, a, b))
	require.Equal(t, float64(0), Distance(bType, a, a))
}

func TestCompareEntriesTieBreak(t *testing.T) {
	idType := Type{Tag: Unsigned, Width: 4}
	valType := Type{Tag: Unsigned, Width: 4}
	a := Entry{Id: U64(1), Val: U64(10)}
	b := Entry{Id: U64(2), Val: U64(10)}
	require.True(t, CompareEntries(idType, valType, a, b) < 0)
	require.True(t, CompareEntries(idType, valType, b, a) > 0)
	require.Equal(t, 0, CompareEntries(idType, valType, a, a))
}
