// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package diskfile provides the byte-addressable view of a bstree
// file's body that walkers read from -- a memory map on platforms that
// support it, or a positioned-read-with-LRU-cache
// fallback where it's not. Walker code never branches on which one is
// in use: both satisfy Mapper.
package diskfile

import "io"

// Mapper exposes a read-only, byte-addressable view of a file.
type Mapper interface {
	// Len returns the total length of the mapped file, in bytes.
	Len() int64
	// At returns the n bytes starting at off. The returned slice must
	// not be retained past the next call that could evict it (true for
	// the positioned-read fallback; always safe for mmap).
	At(off, n int64) ([]byte, error)
	io.Closer
}
