// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !windows

package diskfile

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func madviseRandom(data []byte) error {
	return unix.Madvise(data, syscall.MADV_RANDOM)
}
