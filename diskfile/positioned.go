// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package diskfile

import (
	"fmt"
	"os"

	"github.com/bpowers/bstree/internal/lrucache"
)

// PositionedFile is a Mapper backed by pread(2)-style positioned reads
// through an LRU block cache, for platforms or environments where mmap
// isn't available or wanted.
type PositionedFile struct {
	f     *os.File
	size  int64
	cache *lrucache.Cache
}

// OpenPositioned opens path for positioned reads, caching up to
// cacheBytes worth of recently-read blocks.
func OpenPositioned(path string, cacheBytes int64) (*PositionedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("diskfile: open(%s): %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("diskfile: stat(%s): %w", path, err)
	}
	return &PositionedFile{
		f:     f,
		size:  fi.Size(),
		cache: lrucache.New(cacheBytes),
	}, nil
}

func (p *PositionedFile) Len() int64 { return p.size }

// At returns the n bytes at off, going through the block cache keyed
// on off -- the caller always asks for the same (off, n) pairs for a
// given disk group or L1 block, so a plain offset key is sufficient
// without a separate block-index translation.
func (p *PositionedFile) At(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > p.size {
		return nil, fmt.Errorf("diskfile: range [%d,%d) out of bounds (len %d)", off, off+n, p.size)
	}
	if data, ok := p.cache.Get(off); ok && int64(len(data)) == n {
		return data, nil
	}
	buf := make([]byte, n)
	if _, err := p.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("diskfile: ReadAt(%d,%d): %w", off, n, err)
	}
	p.cache.Set(off, buf)
	return buf, nil
}

// Stats returns cumulative cache hit/miss counts.
func (p *PositionedFile) Stats() (hits, misses int64) { return p.cache.Stats() }

func (p *PositionedFile) Close() error { return p.f.Close() }
