// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package expmmap memory-maps a read-only file and exposes the raw
// mapped bytes, so callers can pass them to unix.Madvise the way
// a raw-byte-exposing mmap reader would. golang.org/x/exp/mmap
// deliberately hides its backing bytes behind ReadAt; this package
// trades that encapsulation for madvise access, on the unix build tag
// where Madvise exists.
package expmmap

import "os"

// ReaderAt is a read-only memory-mapped file.
type ReaderAt struct {
	data []byte
	f    *os.File
}

// Open memory-maps the file at path read-only.
func Open(path string) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &ReaderAt{f: f}, nil
	}

	data, err := mmap(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &ReaderAt{data: data, f: f}, nil
}

// Len returns the length of the mapping.
func (r *ReaderAt) Len() int64 { return int64(len(r.data)) }

// Data returns the raw mapped bytes. The slice must not be written to
// and is only valid until Close.
func (r *ReaderAt) Data() []byte { return r.data }

// ReadAt implements io.ReaderAt over the mapped bytes.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.data)) {
		return 0, os.ErrInvalid
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, os.ErrInvalid
	}
	return n, nil
}

// Close unmaps the file and closes the underlying descriptor.
func (r *ReaderAt) Close() error {
	var err error
	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}
	if r.f != nil {
		if closeErr := r.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.f = nil
	}
	return err
}
