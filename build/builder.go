// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package build implements the bulk loader: given N and a stream of
// entries already sorted by (Val, Id) ascending, it writes a bstree
// file in one sequential pass, following a NewBuilder/Finalize file
// lifecycle (temp file, atomic rename, read-only chmod) and
// buffered-writer idiom.
//
// Entries are consumed one unit at a time -- one disk group, one flat
// L1 block, or the tail block -- because layout.Plan guarantees each
// unit's slots are a self-contained permutation of a contiguous run of
// logical indices, and the sorted input stream delivers logical
// indices in that same ascending order. Peak memory is therefore one
// unit buffer (O(D*(1+k))), never the whole file.
package build

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/bstree/bsterr"
	"github.com/bpowers/bstree/entry"
	"github.com/bpowers/bstree/header"
	"github.com/bpowers/bstree/internal/zero"
	"github.com/bpowers/bstree/layout"
)

const defaultBufferSize = 4 * 1024 * 1024

// Option configures the Builder, mirroring the functional-option
// convention.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	l1Bytes    int64
	diskBytes  int64
	fillFactor float64
}

// WithLogger sets an optional logger for progress updates. If not
// supplied, output is discarded, matching a builder's usual
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithL1Bytes overrides the target L1 (cache-line-run) block budget in
// bytes. Default 64 KiB.
func WithL1Bytes(n int64) Option {
	return func(o *options) { o.l1Bytes = n }
}

// WithDiskGroupBytes overrides the target disk-group byte budget.
// The default budget is 255 times the L1 byte budget. The number of L1
// blocks in a group is not set by this budget: a group always holds
// EntriesPerL1+2 blocks (one root plus EntriesPerL1+1 children), and
// layout.Compute shrinks EntriesPerL1 until such a group fits.
func WithDiskGroupBytes(n int64) Option {
	return func(o *options) { o.diskBytes = n }
}

// WithFillFactor overrides the block fill factor in (0,1]; <= 0 or 1
// means "use full block capacity".
func WithFillFactor(f float64) Option {
	return func(o *options) { o.fillFactor = f }
}

const (
	defaultL1Bytes    = 64 * 1024
	defaultDiskFactor = 255
)

// Builder constructs a bstree file from a sorted entry stream.
type Builder struct {
	resultPath string
	tmp        *os.File
	bw         *bufio.Writer
	logger     *slog.Logger

	idCodec, valCodec *entry.Codec
	entrySize         int64

	plan   *layout.Plan
	header *header.Header

	// unit buffering state
	units       []unit
	unitIdx     int
	unitStart   int64 // logical index at which the current unit begins
	buf         []byte
	filled      int64
	nextGlobal  int64

	checksums []uint32

	hasLast  bool
	lastEntr entry.Entry

	bodyBytesWritten int64
	closed           bool
}

// unit is one contiguous run of logical indices sharing a single
// on-disk block/group and its own slot arithmetic.
type unit struct {
	fileOffset int64 // byte offset, relative to the start of the body, where this unit starts
	size       int64 // number of entries in this unit
	unitSize   int64 // the granularity UnitSlot expects (NRoot for levels, Tail.N for the tail)
	isTail     bool
}

// NewBuilder creates a Builder that will write n entries, encoded with
// idCodec/valCodec, to path.
func NewBuilder(path string, n int64, idCodec, valCodec *entry.Codec, opts ...Option) (*Builder, error) {
	o := options{
		logger:     slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		l1Bytes:    defaultL1Bytes,
		fillFactor: 0,
	}
	for _, opt := range opts {
		opt(&o)
	}

	entrySize := int64(idCodec.Width() + valCodec.Width())
	if o.diskBytes <= 0 {
		o.diskBytes = defaultDiskFactor * o.l1Bytes
	}

	plan, err := layout.Compute(n, entrySize, o.l1Bytes, o.diskBytes, o.fillFactor)
	if err != nil {
		return nil, fmt.Errorf("build: layout.Compute: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("build: filepath.Abs: %w", err)
	}
	dir := filepath.Dir(absPath)
	tmp, err := os.CreateTemp(dir, "bstree-builder.*.data")
	if err != nil {
		return nil, fmt.Errorf("build: CreateTemp in %q: %w", dir, err)
	}

	h := &header.Header{
		IdType:  idCodec.Type(),
		ValType: valCodec.Type(),
		N:       n,
		Plan:    plan,
	}

	bw := bufio.NewWriterSize(tmp, defaultBufferSize)
	if _, err := h.WriteTo(bw); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("build: write header: %w", err)
	}

	b := &Builder{
		resultPath: absPath,
		tmp:        tmp,
		bw:         bw,
		logger:     o.logger,
		idCodec:    idCodec,
		valCodec:   valCodec,
		entrySize:  entrySize,
		plan:       plan,
		header:     h,
	}

	b.units = unitsForPlan(plan)
	if len(b.units) > 0 {
		b.buf = make([]byte, b.units[0].size*entrySize)
	}

	return b, nil
}

// unitsForPlan flattens a Plan's levels and tail into the ordered
// sequence of self-contained buffering units a sorted stream fills.
func unitsForPlan(plan *layout.Plan) []unit {
	var units []unit
	for _, lvl := range plan.Levels {
		count := lvl.NMain / lvl.NRoot
		for i := int64(0); i < count; i++ {
			units = append(units, unit{
				fileOffset: lvl.FileOffsetStart + i*lvl.NRoot*plan.EntrySize,
				size:       lvl.NRoot,
				unitSize:   lvl.NRoot,
			})
		}
	}
	if plan.Tail.N > 0 {
		units = append(units, unit{
			fileOffset: plan.Tail.FileOffsetStart,
			size:       plan.Tail.N,
			unitSize:   plan.Tail.N,
			isTail:     true,
		})
	}
	return units
}

// Put appends the next entry from the sorted input stream. Entries
// must arrive in ascending (Val, Id) order; Put compares each entry
// against the previous one via entry.CompareEntries and rejects a
// strictly-decreasing arrival with an InvalidInput error naming the
// offending logical index, since Builder is an exported API in its
// own right and not just an internal detail of Build's
// mergesort-then-build pipeline.
func (b *Builder) Put(e entry.Entry) error {
	if b.nextGlobal >= b.plan.N {
		return fmt.Errorf("build: Put called %d times, expected %d", b.nextGlobal+1, b.plan.N)
	}
	if entry.IsNaN(b.valCodec.Type(), e.Val) {
		return fmt.Errorf("build: NaN value at logical index %d not allowed", b.nextGlobal)
	}
	if b.hasLast && entry.CompareEntries(b.idCodec.Type(), b.valCodec.Type(), e, b.lastEntr) < 0 {
		return bsterr.New(bsterr.InvalidInput, "unsorted input", fmt.Errorf("entry at logical index %d is less than the previous entry", b.nextGlobal))
	}
	b.lastEntr = e
	b.hasLast = true

	u := b.units[b.unitIdx]
	localIdx := b.nextGlobal - b.unitStart

	var slot int64
	if u.isTail {
		slot = layout.SlotForIndex(u.unitSize, localIdx)
	} else {
		slot = b.plan.UnitSlot(u.unitSize, localIdx)
	}

	dst := b.buf[slot*b.entrySize : (slot+1)*b.entrySize]
	b.idCodec.Encode(e.Id, dst[:b.idCodec.Width()])
	b.valCodec.Encode(e.Val, dst[b.idCodec.Width():])

	b.filled++
	b.nextGlobal++

	if b.filled == u.size {
		if err := b.flushUnit(u); err != nil {
			return err
		}
		b.unitStart += u.size
		b.unitIdx++
		b.filled = 0
		if b.unitIdx < len(b.units) {
			next := b.units[b.unitIdx]
			if int64(len(b.buf)) < next.size*b.entrySize {
				b.buf = make([]byte, next.size*b.entrySize)
			} else {
				b.buf = b.buf[:next.size*b.entrySize]
				zero.Bytes(b.buf)
			}
		}
	}

	return nil
}

// flushUnit writes the filled unit buffer to disk sequentially
// (unitIdx's fileOffset always equals the writer's current position,
// since units are produced and consumed in ascending file-offset
// order) and records one checksum per L1 block inside it -- a disk
// group contributes 1 + L1PerDisk checksums, a flat L1 unit or the
// tail contributes exactly one.
func (b *Builder) flushUnit(u unit) error {
	n, err := b.bw.Write(b.buf)
	if err != nil {
		return fmt.Errorf("build: write unit at offset %d: %w", u.fileOffset, err)
	}
	if int64(n) != int64(len(b.buf)) {
		return fmt.Errorf("build: short write of unit at offset %d: %d != %d", u.fileOffset, n, len(b.buf))
	}
	b.bodyBytesWritten += int64(n)

	n1 := b.plan.EntriesPerL1
	if u.isTail || u.unitSize == n1 {
		b.checksums = append(b.checksums, checksumBlock(b.buf))
		return nil
	}
	// disk group: root block first, then L1PerDisk child blocks.
	blockBytes := n1 * b.entrySize
	for off := int64(0); off+blockBytes <= int64(len(b.buf)); off += blockBytes {
		b.checksums = append(b.checksums, checksumBlock(b.buf[off:off+blockBytes]))
	}
	return nil
}

func checksumBlock(data []byte) uint32 {
	return uint32(farm.Hash64(data))
}

// Finalize flushes remaining buffered data, appends the checksum
// table, patches the header trailer fields, and atomically publishes
// the file, following the usual Finalize idiom exactly (Chmod
// 0444, Rename, Chmod 0444 again).
func (b *Builder) Finalize() error {
	if b.closed {
		return fmt.Errorf("build: Finalize called twice")
	}
	if b.nextGlobal != b.plan.N {
		return fmt.Errorf("build: Finalize called after %d Put calls, expected %d", b.nextGlobal, b.plan.N)
	}

	if err := b.bw.Flush(); err != nil {
		return fmt.Errorf("build: flush body: %w", err)
	}
	// the checksum table begins wherever the header+body writer left
	// off; Seek(0, io.SeekCurrent) reads that position back without
	// the builder having to track header length itself.
	tableOffset, err := b.tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("build: seek: %w", err)
	}

	tableBuf := make([]byte, 4*len(b.checksums))
	for i, c := range b.checksums {
		tableBuf[4*i] = byte(c)
		tableBuf[4*i+1] = byte(c >> 8)
		tableBuf[4*i+2] = byte(c >> 16)
		tableBuf[4*i+3] = byte(c >> 24)
	}
	if _, err := b.tmp.Write(tableBuf); err != nil {
		return fmt.Errorf("build: write checksum table: %w", err)
	}

	fileLength := tableOffset + int64(len(tableBuf))

	if err := b.header.UpdateFileLength(fileLength, b.tmp); err != nil {
		return fmt.Errorf("build: UpdateFileLength: %w", err)
	}
	if err := b.header.UpdateChecksumTable(tableOffset, int64(len(b.checksums)), b.tmp); err != nil {
		return fmt.Errorf("build: UpdateChecksumTable: %w", err)
	}

	if err := b.tmp.Sync(); err != nil {
		return fmt.Errorf("build: sync: %w", err)
	}

	if err := os.Chmod(b.tmp.Name(), 0444); err != nil {
		return fmt.Errorf("build: chmod temp file: %w", err)
	}
	if err := os.Rename(b.tmp.Name(), b.resultPath); err != nil {
		return fmt.Errorf("build: rename into place: %w", err)
	}
	if err := os.Chmod(b.resultPath, 0444); err != nil {
		return fmt.Errorf("build: chmod result file: %w", err)
	}

	_ = b.tmp.Close()
	b.closed = true
	b.logger.Info("bstree build finalized", "path", b.resultPath, "n", b.plan.N, "checksums", len(b.checksums))
	return nil
}

// Abandon closes and removes the in-progress temp file without
// publishing it, for callers that hit an error partway through Put.
func (b *Builder) Abandon() error {
	if b.closed {
		return nil
	}
	b.closed = true
	name := b.tmp.Name()
	_ = b.tmp.Close()
	return os.Remove(name)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
