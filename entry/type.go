// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package entry defines the fixed-width (identifier, value) pair that a
// bstree file indexes, and the small matrix of specialized codecs used to
// encode and decode it.
package entry

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag identifies the family of a Type: unsigned integer, signed integer,
// IEEE-754 float, or fixed-length byte string.
type Tag uint8

const (
	Unsigned Tag = 0
	Signed   Tag = 1
	Float    Tag = 2
	Bytes    Tag = 3
)

func (t Tag) String() string {
	switch t {
	case Unsigned:
		return "u"
	case Signed:
		return "i"
	case Float:
		return "f"
	case Bytes:
		return "t"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Type is the declared shape of an Id or Val column: a Tag plus its
// byte width. Widths are fixed for the lifetime of a file.
type Type struct {
	Tag   Tag
	Width int
}

func (t Type) String() string {
	return fmt.Sprintf("%s%d", t.Tag, t.Width)
}

// Size returns the on-disk width, in bytes, of values with this Type.
func (t Type) Size() int { return t.Width }

// ParseType parses the CLI type token grammar fixed by the external
// interface: u3..u8, i3..i8, f4, f8, tN (1 <= N <= 255).
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Type{}, fmt.Errorf("entry: invalid type %q", s)
	}
	tagCh, rest := s[0], s[1:]
	width, err := strconv.Atoi(rest)
	if err != nil {
		return Type{}, fmt.Errorf("entry: invalid type %q: %w", s, err)
	}
	var t Type
	switch tagCh {
	case 'u', 'U':
		t = Type{Tag: Unsigned, Width: width}
		if width < 3 || width > 8 {
			return Type{}, fmt.Errorf("entry: unsigned width %d out of range [3,8]", width)
		}
	case 'i', 'I':
		t = Type{Tag: Signed, Width: width}
		if width < 3 || width > 8 {
			return Type{}, fmt.Errorf("entry: signed width %d out of range [3,8]", width)
		}
	case 'f', 'F':
		t = Type{Tag: Float, Width: width}
		if width != 4 && width != 8 {
			return Type{}, fmt.Errorf("entry: float width %d must be 4 or 8", width)
		}
	case 't', 'T':
		t = Type{Tag: Bytes, Width: width}
		if width < 1 || width > 255 {
			return Type{}, fmt.Errorf("entry: byte-string width %d out of range [1,255]", width)
		}
	default:
		return Type{}, fmt.Errorf("entry: unknown type tag %q in %q", tagCh, s)
	}
	return t, nil
}
