// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bstree indexes one column of a large, immutable catalogue as
// a disk-resident binary search tree, and answers exact-value,
// nearest-neighbour, k-nearest-neighbour, and range queries against it
// while touching a small, roughly-fixed number of blocks per query
// regardless of file size.
//
// Package bstree is the top-level facade over layout (block geometry),
// header (the file's fixed descriptor), diskfile (mmap/positioned
// byte access), build (the bulk loader), and walk (the query
// algorithms). It is the only package that wires all of them together;
// callers need not import the lower packages beyond entry and walk.
package bstree

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bpowers/bstree/build"
	"github.com/bpowers/bstree/bsterr"
	"github.com/bpowers/bstree/diskfile"
	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/header"
	"github.com/bpowers/bstree/mergesort"
	"github.com/bpowers/bstree/walk"
)

// BuildOption configures Build.
type BuildOption = build.Option

// WithLogger, WithL1Bytes, WithDiskGroupBytes, and WithFillFactor
// configure the file's block geometry and logging at build time; see
// the build package for details.
var (
	WithLogger         = build.WithLogger
	WithL1Bytes        = build.WithL1Bytes
	WithDiskGroupBytes = build.WithDiskGroupBytes
	WithFillFactor     = build.WithFillFactor
)

// Source yields the next entry to index, in no particular order. Build
// sorts the stream itself via mergesort before writing it out.
type Source interface {
	// Next returns the next entry, or ok == false once exhausted.
	Next() (e entry.Entry, ok bool, err error)
}

// Build consumes every entry src yields, sorts it by (Val, Id), and
// writes a new bstree file to path (bulk load only, no
// incremental insert).
func Build(path string, count int64, idType, valType entry.Type, src Source, opts ...BuildOption) error {
	idCodec, err := entry.NewCodec(idType)
	if err != nil {
		return bsterr.New(bsterr.InvalidInput, "id type", err)
	}
	valCodec, err := entry.NewCodec(valType)
	if err != nil {
		return bsterr.New(bsterr.InvalidInput, "val type", err)
	}

	sorter := mergesort.NewSorter(idCodec, valCodec)
	defer sorter.Abandon()

	var n int64
	for {
		e, ok, err := src.Next()
		if err != nil {
			return bsterr.New(bsterr.IoError, "reading source", err)
		}
		if !ok {
			break
		}
		if err := sorter.Put(e); err != nil {
			return bsterr.New(bsterr.IoError, "spilling sort run", err)
		}
		n++
	}
	if count >= 0 && n != count {
		return bsterr.New(bsterr.InvalidInput, "record count", fmt.Errorf("source yielded %d entries, expected %d", n, count))
	}

	stream, err := sorter.Merged()
	if err != nil {
		return bsterr.New(bsterr.IoError, "merging sort runs", err)
	}

	b, err := build.NewBuilder(path, n, idCodec, valCodec, opts...)
	if err != nil {
		return bsterr.New(bsterr.IoError, "opening builder", err)
	}
	for {
		e, ok, err := stream.Next()
		if err != nil {
			_ = b.Abandon()
			return bsterr.New(bsterr.IoError, "reading merged stream", err)
		}
		if !ok {
			break
		}
		if err := b.Put(e); err != nil {
			_ = b.Abandon()
			return bsterr.New(bsterr.InvalidInput, "writing entry", err)
		}
	}
	if err := b.Finalize(); err != nil {
		return bsterr.New(bsterr.IoError, "finalizing file", err)
	}
	return nil
}

// Index is an open, read-only bstree file.
type Index struct {
	m         diskfile.Mapper
	h         *header.Header
	descender *walk.Descender
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	positioned bool
	cacheBytes int64
	mlockIndex bool
}

// WithPositionedIO opens the file with pread-based, LRU-cached random
// access instead of the default mmap reader -- useful on platforms or
// filesystems where mmap is unreliable (network mounts, some
// container runtimes).
func WithPositionedIO(cacheBytes int64) OpenOption {
	return func(o *openOptions) {
		o.positioned = true
		o.cacheBytes = cacheBytes
	}
}

// WithMlockIndex pins the per-L1-block checksum side table into
// physical memory after opening, for long-lived query servers that
// want to avoid a page fault against it on every request. Ignored
// when combined with WithPositionedIO, which never maps the file.
func WithMlockIndex() OpenOption {
	return func(o *openOptions) { o.mlockIndex = true }
}

// Open opens the bstree file at path for querying.
func Open(path string, opts ...OpenOption) (*Index, error) {
	o := openOptions{cacheBytes: 64 * 1024 * 1024}
	for _, opt := range opts {
		opt(&o)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, bsterr.New(bsterr.IoError, path, err)
	}

	var m diskfile.Mapper
	if o.positioned {
		m, err = diskfile.OpenPositioned(path, o.cacheBytes)
	} else {
		m, err = diskfile.OpenMmap(path)
	}
	if err != nil {
		return nil, bsterr.New(bsterr.IoError, path, err)
	}

	headBuf, err := readHeaderBytes(m, fi.Size())
	if err != nil {
		_ = m.Close()
		return nil, bsterr.New(bsterr.IoError, path, err)
	}

	h, headerLen, err := header.Unmarshal(headBuf)
	if err != nil {
		_ = m.Close()
		return nil, bsterr.New(bsterr.FormatError, path, err)
	}
	if h.FileLength != fi.Size() {
		_ = m.Close()
		return nil, bsterr.New(bsterr.FormatError, path, fmt.Errorf("recorded length %d != actual file size %d (truncated?)", h.FileLength, fi.Size()))
	}

	idCodec, err := entry.NewCodec(h.IdType)
	if err != nil {
		_ = m.Close()
		return nil, bsterr.New(bsterr.FormatError, path, err)
	}
	valCodec, err := entry.NewCodec(h.ValType)
	if err != nil {
		_ = m.Close()
		return nil, bsterr.New(bsterr.FormatError, path, err)
	}

	if o.mlockIndex && h.ChecksumCount > 0 {
		if mm, ok := m.(*diskfile.MmapFile); ok {
			if err := mm.Mlock(h.ChecksumTableOffset, h.ChecksumCount*checksumEntrySize); err != nil {
				_ = m.Close()
				return nil, bsterr.New(bsterr.IoError, path, err)
			}
		}
	}

	d := walk.NewDescender(m, headerLen, h.Plan, idCodec, valCodec)
	return &Index{m: m, h: h, descender: d}, nil
}

// checksumEntrySize is the on-disk width of one entry of the checksum
// table build.Builder.Finalize writes: a truncated 4-byte farm.Hash64
// per L1 block.
const checksumEntrySize = 4

// fixedPrefixSize mirrors header.fixedPrefixSize: magic(4) + version(2)
// + descriptor length(4). Reading just the prefix first, then exactly
// the descriptor it names, keeps Open() from pulling an entire
// multi-gigabyte body into memory just to learn N and the block plan.
const fixedPrefixSize = 4 + 2 + 4

func readHeaderBytes(m diskfile.Mapper, fileSize int64) ([]byte, error) {
	if fileSize < fixedPrefixSize {
		return nil, fmt.Errorf("file too short for header prefix: %d bytes", fileSize)
	}
	prefix, err := m.At(0, fixedPrefixSize)
	if err != nil {
		return nil, err
	}
	descLen := int64(binary.LittleEndian.Uint32(prefix[6:10]))
	total := fixedPrefixSize + descLen
	if total > fileSize {
		return nil, fmt.Errorf("file too short for header descriptor: have %d, need %d", fileSize, total)
	}
	return m.At(0, total)
}

// Close releases the index's underlying file handle/mapping.
func (idx *Index) Close() error { return idx.m.Close() }

// Len returns the number of entries in the index.
func (idx *Index) Len() int64 { return idx.h.N }

// IdType and ValType return the declared column types.
func (idx *Index) IdType() entry.Type  { return idx.h.IdType }
func (idx *Index) ValType() entry.Type { return idx.h.ValType }

// Header returns the file's parsed descriptor, for tools like qbst's
// "info" command that need to report the full block-layout plan.
func (idx *Index) Header() *header.Header { return idx.h }

// Find returns the entry with Val == v, if any.
func (idx *Index) Find(v entry.Value) (entry.Entry, bool, error) {
	return idx.descender.Find(v)
}

// Nearest returns the entry minimising |Val - v|.
func (idx *Index) Nearest(v entry.Value) (entry.Entry, error) {
	return idx.descender.Nearest(v)
}

// KNN returns the k entries nearest to v by |Val - v|.
func (idx *Index) KNN(v entry.Value, k int) ([]entry.Entry, error) {
	return walk.NewKNN(idx.descender).Query(v, k)
}

// Range visits every entry with lo <= Val <= hi.
func (idx *Index) Range(lo, hi entry.Value, dir walk.Direction, limit int64, countOnly bool, v walk.Visitor) error {
	return walk.NewRanger(idx.descender).Range(lo, hi, dir, limit, countOnly, v)
}
