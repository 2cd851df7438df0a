// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package diskfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMmapFileReadsBack(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	m, err := OpenMmap(path)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, int64(len(data)), m.Len())

	got, err := m.At(10, 100)
	require.NoError(t, err)
	require.Equal(t, data[10:110], got)

	_, err = m.At(4000, 1000)
	require.Error(t, err)
}

func TestMmapFileEmpty(t *testing.T) {
	path := writeTempFile(t, nil)
	m, err := OpenMmap(path)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, int64(0), m.Len())
}

func TestPositionedFileReadsBack(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(255 - i%256)
	}
	path := writeTempFile(t, data)

	p, err := OpenPositioned(path, 1024)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, int64(len(data)), p.Len())

	got, err := p.At(200, 50)
	require.NoError(t, err)
	require.Equal(t, data[200:250], got)

	// re-read the same range to exercise the cache hit path.
	got2, err := p.At(200, 50)
	require.NoError(t, err)
	require.Equal(t, got, got2)

	hits, misses := p.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)

	_, err = p.At(4090, 100)
	require.Error(t, err)
}

func TestPositionedFileEvicts(t *testing.T) {
	data := make([]byte, 8192)
	path := writeTempFile(t, data)

	p, err := OpenPositioned(path, 256)
	require.NoError(t, err)
	defer p.Close()

	for off := int64(0); off < int64(len(data)); off += 256 {
		_, err := p.At(off, 256)
		require.NoError(t, err)
	}

	hits, misses := p.Stats()
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(len(data))/256, misses)
}
