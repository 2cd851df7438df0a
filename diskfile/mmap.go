// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package diskfile

import (
	"fmt"

	"github.com/bpowers/bstree/internal/expmmap"
)

// MmapFile is a Mapper backed by a read-only MAP_SHARED memory map:
// open, validate the mapped length, then madvise MADV_RANDOM because
// BST descent is the textbook random-access pattern that advice exists
// for.
type MmapFile struct {
	r *expmmap.ReaderAt
}

// OpenMmap memory-maps path read-only.
func OpenMmap(path string) (*MmapFile, error) {
	r, err := expmmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("diskfile: mmap.Open(%s): %w", path, err)
	}
	if r.Len() > 0 {
		if err := madviseRandom(r.Data()); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("diskfile: madvise: %w", err)
		}
	}
	return &MmapFile{r: r}, nil
}

func (m *MmapFile) Len() int64 { return m.r.Len() }

func (m *MmapFile) At(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > m.r.Len() {
		return nil, fmt.Errorf("diskfile: range [%d,%d) out of bounds (len %d)", off, off+n, m.r.Len())
	}
	return m.r.Data()[off : off+n], nil
}

func (m *MmapFile) Close() error { return m.r.Close() }

// Mlock pins the [off,off+n) byte range of the mapping into physical
// memory, so a long-lived query server doesn't pay a page fault against
// the checksum table on every startup query. A no-op range (n == 0) is
// always allowed.
func (m *MmapFile) Mlock(off, n int64) error {
	if n == 0 {
		return nil
	}
	if off < 0 || n < 0 || off+n > m.r.Len() {
		return fmt.Errorf("diskfile: mlock range [%d,%d) out of bounds (len %d)", off, off+n, m.r.Len())
	}
	return mlockRange(m.r.Data()[off : off+n])
}
