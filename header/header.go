// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package header implements the bstree file's binary header:
// a fixed-size magic/version/header-length prefix followed by a
// variable-length, length-prefixed descriptor of the column types and
// the recursive layout plan. Follows a fixed-prefix-plus-TLV-descriptor idiom
// (WriteTo / Unmarshal / narrow UpdateXxx(io.WriterAt)
// patchers) rather than a generic serialization library, because the
// wire shape here is small, fixed, and performance-sensitive to parse.
package header

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/layout"
)

const (
	Magic         uint32 = 0xB57A7EE0 // "bstree0"-ish
	FormatVersion uint16 = 1

	// levelSentinelDepth terminates the recursive level-record list in
	// the TLV descriptor (a sentinel terminator).
	levelSentinelDepth uint16 = 0xFFFF

	// fixedPrefixSize is magic(4) + version(2) + header_len(4).
	fixedPrefixSize = 4 + 2 + 4
)

// Header is the fully parsed file header: column types, N, and the
// layout plan that lets a reader compute offsets without rescanning
// the file.
type Header struct {
	IdType  entry.Type
	ValType entry.Type
	N       int64
	Plan    *layout.Plan
	// FileLength is the total file length recorded at build time, used
	// to detect truncation (§3 Invariant 4 / §7 FormatError).
	FileLength int64
	// ChecksumTableOffset is the absolute file offset of the per-L1-block
	// checksum side table that build.Builder.Finalize appends after the
	// body. It is 0 until UpdateChecksumTable patches it; for N == 0 the
	// table is empty and this is the end of the header.
	ChecksumTableOffset int64
	// ChecksumCount is the number of 4-byte farm.Hash64-derived checksums
	// in the side table, one per L1 block across every level and the
	// tail (if non-empty).
	ChecksumCount int64
}

// WriteTo serializes magic, version, header length, and the variable
// descriptor to w, returning the total bytes written (the caller uses
// this to know where the body begins).
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	desc, err := h.marshalDescriptor()
	if err != nil {
		return 0, err
	}

	var prefix [fixedPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[0:4], Magic)
	binary.LittleEndian.PutUint16(prefix[4:6], FormatVersion)
	binary.LittleEndian.PutUint32(prefix[6:10], uint32(len(desc)))

	n, err := w.Write(prefix[:])
	if err != nil {
		return 0, fmt.Errorf("header: write prefix: %w", err)
	}
	m, err := w.Write(desc)
	if err != nil {
		return int64(n), fmt.Errorf("header: write descriptor: %w", err)
	}
	return int64(n + m), nil
}

// UpdateFileLength patches the file-length field in place after the
// body has been written, mirroring an UpdateRecordCount-style
// pattern of rewriting one fixed-offset field via io.WriterAt rather
// than rewriting the whole header.
func (h *Header) UpdateFileLength(n int64, w io.WriterAt) error {
	h.FileLength = n
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	if _, err := w.WriteAt(buf[:], int64(fileLengthOffset)); err != nil {
		return fmt.Errorf("header: WriteAt file length: %w", err)
	}
	return nil
}

// descriptor field layout, all little-endian:
//
//	idTag(1) idWidth(1) valTag(1) valWidth(1)
//	n(8) n1(4) k(4) fileLength(8)
//	level records... sentinel(depth=0xFFFF)
//	tailN(8) tailOffset(8)
//	checksumTableOffset(8) checksumCount(8)
//
// fileLengthOffset is the absolute byte offset of the fileLength field
// within the whole file: fixedPrefixSize + 4 type bytes + 8 (N) + 4
// (n1) + 4 (k).
const fileLengthOffset = fixedPrefixSize + 4 + 8 + 4 + 4

// checksumTableFieldOffset is the absolute byte offset of the
// ChecksumTableOffset field, which follows the variable-length level
// list, its sentinel, and the tail record -- all of fixed size once
// the Plan is known, which it always is before any body bytes are
// written (the Plan depends only on N and the byte budgets, never on
// the data itself).
func (h *Header) checksumTableFieldOffset() int64 {
	const levelRecordSize = 2 + 8 + 8 + 8
	const sentinelSize = 2
	const tailRecordSize = 8 + 8
	return fileLengthOffset + 8 + levelRecordSize*int64(len(h.Plan.Levels)) + sentinelSize + tailRecordSize
}

// UpdateChecksumTable patches the checksum table offset/count fields in
// place, mirroring UpdateFileLength -- both are only known once the
// body and its per-L1-block checksums have actually been written.
func (h *Header) UpdateChecksumTable(offset, count int64, w io.WriterAt) error {
	h.ChecksumTableOffset = offset
	h.ChecksumCount = count
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(offset))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(count))
	if _, err := w.WriteAt(buf[:], h.checksumTableFieldOffset()); err != nil {
		return fmt.Errorf("header: WriteAt checksum table trailer: %w", err)
	}
	return nil
}

func (h *Header) marshalDescriptor() ([]byte, error) {
	buf := make([]byte, 0, 64+16*len(h.Plan.Levels))

	buf = append(buf, byte(h.IdType.Tag), byte(h.IdType.Width))
	buf = append(buf, byte(h.ValType.Tag), byte(h.ValType.Width))

	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.N))
	buf = append(buf, tmp8[:]...)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(h.Plan.EntriesPerL1))
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], uint32(h.Plan.L1PerDisk))
	buf = append(buf, tmp4[:]...)

	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.FileLength))
	buf = append(buf, tmp8[:]...)

	for _, lvl := range h.Plan.Levels {
		var rec [2 + 8 + 8 + 8]byte
		binary.LittleEndian.PutUint16(rec[0:2], uint16(lvl.Depth))
		binary.LittleEndian.PutUint64(rec[2:10], uint64(lvl.NRoot))
		binary.LittleEndian.PutUint64(rec[10:18], uint64(lvl.NMain))
		binary.LittleEndian.PutUint64(rec[18:26], uint64(lvl.FileOffsetStart))
		buf = append(buf, rec[:]...)
	}
	var sentinel [2]byte
	binary.LittleEndian.PutUint16(sentinel[:], levelSentinelDepth)
	buf = append(buf, sentinel[:]...)

	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.Plan.Tail.N))
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.Plan.Tail.FileOffsetStart))
	buf = append(buf, tmp8[:]...)

	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.ChecksumTableOffset))
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.ChecksumCount))
	buf = append(buf, tmp8[:]...)

	return buf, nil
}

// Unmarshal parses a Header from the file's leading bytes (the fixed
// prefix followed by the variable descriptor). It validates magic,
// version, and structural consistency but does not touch the body.
func Unmarshal(data []byte) (*Header, int64, error) {
	if len(data) < fixedPrefixSize {
		return nil, 0, fmt.Errorf("header: file too short for prefix: %d bytes", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return nil, 0, fmt.Errorf("header: bad magic %#x -- not a bstree file or corrupted", magic)
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != FormatVersion {
		return nil, 0, fmt.Errorf("header: unsupported format version %d", version)
	}
	descLen := int(binary.LittleEndian.Uint32(data[6:10]))
	total := fixedPrefixSize + descLen
	if len(data) < total {
		return nil, 0, fmt.Errorf("header: file too short for descriptor: have %d, need %d", len(data), total)
	}
	desc := data[fixedPrefixSize:total]

	h := &Header{}
	off := 0
	need := func(n int) error {
		if off+n > len(desc) {
			return fmt.Errorf("header: descriptor truncated at offset %d (need %d more bytes)", off, n)
		}
		return nil
	}

	if err := need(4); err != nil {
		return nil, 0, err
	}
	h.IdType = entry.Type{Tag: entry.Tag(desc[off]), Width: int(desc[off+1])}
	h.ValType = entry.Type{Tag: entry.Tag(desc[off+2]), Width: int(desc[off+3])}
	off += 4

	if err := need(8); err != nil {
		return nil, 0, err
	}
	h.N = int64(binary.LittleEndian.Uint64(desc[off : off+8]))
	off += 8

	if err := need(4); err != nil {
		return nil, 0, err
	}
	n1 := int64(binary.LittleEndian.Uint32(desc[off : off+4]))
	off += 4
	if err := need(4); err != nil {
		return nil, 0, err
	}
	k := int64(binary.LittleEndian.Uint32(desc[off : off+4]))
	off += 4

	if err := need(8); err != nil {
		return nil, 0, err
	}
	h.FileLength = int64(binary.LittleEndian.Uint64(desc[off : off+8]))
	off += 8

	plan := &layout.Plan{
		N:            h.N,
		EntrySize:    int64(h.IdType.Width + h.ValType.Width),
		EntriesPerL1: n1,
		L1PerDisk:    k,
	}

	for {
		if err := need(2); err != nil {
			return nil, 0, err
		}
		depth := binary.LittleEndian.Uint16(desc[off : off+2])
		off += 2
		if depth == levelSentinelDepth {
			break
		}
		if err := need(24); err != nil {
			return nil, 0, err
		}
		lvl := layout.Level{
			Depth:           int(depth),
			NRoot:           int64(binary.LittleEndian.Uint64(desc[off : off+8])),
			NMain:           int64(binary.LittleEndian.Uint64(desc[off+8 : off+16])),
			FileOffsetStart: int64(binary.LittleEndian.Uint64(desc[off+16 : off+24])),
		}
		off += 24
		plan.Levels = append(plan.Levels, lvl)
	}

	if err := need(16); err != nil {
		return nil, 0, err
	}
	plan.Tail.N = int64(binary.LittleEndian.Uint64(desc[off : off+8]))
	plan.Tail.FileOffsetStart = int64(binary.LittleEndian.Uint64(desc[off+8 : off+16]))
	off += 16

	if err := need(16); err != nil {
		return nil, 0, err
	}
	h.ChecksumTableOffset = int64(binary.LittleEndian.Uint64(desc[off : off+8]))
	h.ChecksumCount = int64(binary.LittleEndian.Uint64(desc[off+8 : off+16]))
	off += 16

	h.Plan = plan
	return h, int64(total), nil
}
