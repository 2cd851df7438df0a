// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !windows

package diskfile

import "golang.org/x/sys/unix"

func mlockRange(data []byte) error {
	return unix.Mlock(data)
}
