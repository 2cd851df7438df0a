// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package entry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec encodes and decodes one column (Id or Val) at its declared
// Type. Codecs are selected once at file-open time from a small
// dispatch table below -- a specialized closure per (tag, width) pair,
// rather than full generic monomorphization, so that the codec matrix
// stays small and build times fast (see DESIGN.md).
type Codec struct {
	typ    Type
	encode func(v Value, dst []byte)
	decode func(src []byte) Value
}

// NewCodec builds the Codec for the given Type, or an error if the
// (tag, width) pair isn't in the supported matrix.
func NewCodec(t Type) (*Codec, error) {
	switch t.Tag {
	case Unsigned:
		if t.Width < 3 || t.Width > 8 {
			return nil, fmt.Errorf("entry: unsupported unsigned width %d", t.Width)
		}
		return &Codec{typ: t, encode: encodeUint(t.Width), decode: decodeUint(t.Width)}, nil
	case Signed:
		if t.Width < 3 || t.Width > 8 {
			return nil, fmt.Errorf("entry: unsupported signed width %d", t.Width)
		}
		return &Codec{typ: t, encode: encodeInt(t.Width), decode: decodeInt(t.Width)}, nil
	case Float:
		switch t.Width {
		case 4:
			return &Codec{typ: t, encode: encodeF32, decode: decodeF32}, nil
		case 8:
			return &Codec{typ: t, encode: encodeF64, decode: decodeF64}, nil
		default:
			return nil, fmt.Errorf("entry: unsupported float width %d", t.Width)
		}
	case Bytes:
		if t.Width < 1 || t.Width > 255 {
			return nil, fmt.Errorf("entry: unsupported byte-string width %d", t.Width)
		}
		w := t.Width
		return &Codec{
			typ: t,
			encode: func(v Value, dst []byte) {
				if len(v.Buf) != w {
					panic(fmt.Errorf("entry: byte-string value length %d != declared width %d", len(v.Buf), w))
				}
				copy(dst[:w], v.Buf)
			},
			decode: func(src []byte) Value {
				return Value{Buf: src[:w]}
			},
		}, nil
	default:
		return nil, fmt.Errorf("entry: unknown type tag %d", t.Tag)
	}
}

func (c *Codec) Type() Type  { return c.typ }
func (c *Codec) Width() int  { return c.typ.Width }

// Encode writes v into dst[:c.Width()]. dst must have length >= Width().
func (c *Codec) Encode(v Value, dst []byte) { c.encode(v, dst) }

// Decode is infallible on well-formed input; src must have length >= Width().
// For Bytes types the returned Value aliases src.
func (c *Codec) Decode(src []byte) Value { return c.decode(src) }

func encodeUint(width int) func(v Value, dst []byte) {
	return func(v Value, dst []byte) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.U)
		copy(dst[:width], buf[:width])
	}
}

func decodeUint(width int) func(src []byte) Value {
	return func(src []byte) Value {
		var buf [8]byte
		copy(buf[:width], src[:width])
		return Value{U: binary.LittleEndian.Uint64(buf[:])}
	}
}

func encodeInt(width int) func(v Value, dst []byte) {
	return func(v Value, dst []byte) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.I))
		copy(dst[:width], buf[:width])
	}
}

func decodeInt(width int) func(src []byte) Value {
	shift := uint(64 - 8*width)
	return func(src []byte) Value {
		var buf [8]byte
		copy(buf[:width], src[:width])
		u := binary.LittleEndian.Uint64(buf[:])
		// sign-extend: the top byte we copied into is buf[width-1]; shift
		// the value into the high bits and arithmetic-shift it back down.
		i := int64(u << shift) >> shift
		return Value{I: i}
	}
}

func encodeF32(v Value, dst []byte) {
	binary.LittleEndian.PutUint32(dst[:4], math.Float32bits(float32(v.F)))
}

func decodeF32(src []byte) Value {
	return Value{F: float64(math.Float32frombits(binary.LittleEndian.Uint32(src[:4])))}
}

func encodeF64(v Value, dst []byte) {
	binary.LittleEndian.PutUint64(dst[:8], math.Float64bits(v.F))
}

func decodeF64(src []byte) Value {
	return Value{F: math.Float64frombits(binary.LittleEndian.Uint64(src[:8]))}
}

// IsNaN reports whether v is a float NaN. Build-time validation rejects
// NaN values per §3: floats order by IEEE-754 total order restricted to
// non-NaN.
func IsNaN(t Type, v Value) bool {
	return t.Tag == Float && math.IsNaN(v.F)
}
