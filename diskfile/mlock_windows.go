// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build windows

package diskfile

func mlockRange(data []byte) error { return nil }
