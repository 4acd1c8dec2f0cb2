// Created by Yanjunhui

package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()

	size, err := s.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	buf := make([]byte, 4)
	_, err = s.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF)

	_, err = s.WriteAt([]byte("abcd"), 8)
	require.NoError(t, err)
	size, err = s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)

	// 空洞按零读取
	// EN: Holes read as zeros.
	buf = make([]byte, 12)
	n, err := s.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, append(make([]byte, 8), "abcd"...), buf)

	// 跨越尾部的读取补零
	// EN: Reads crossing the end are zero-filled.
	buf = []byte{9, 9, 9, 9, 9, 9}
	n, err = s.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{'c', 'd', 0, 0, 0, 0}, buf)

	require.NoError(t, s.Sync())
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	exerciseStorage(t, s)

	_, err := s.WriteAt([]byte("x"), -1)
	assert.Error(t, err)
	require.NoError(t, s.Close())
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.fx")
	s, err := OpenFileStorage(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	exerciseStorage(t, s)
	require.NoError(t, s.Close())

	again, err := OpenFileStorage(path, false)
	require.NoError(t, err)
	defer again.Close()
	size, err := again.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
}

func TestFileStorageExclusiveLock(t *testing.T) {
	if !lockSupported {
		t.Skip("file locks unsupported on this platform")
	}
	path := filepath.Join(t.TempDir(), "locked.fx")
	first, err := OpenFileStorage(path, true)
	require.NoError(t, err)

	_, err = OpenFileStorage(path, true)
	require.Error(t, err)
	assert.True(t, fxerr.Is(err, fxerr.CodeLockFailed), "got %v", err)

	shared, err := OpenFileStorage(path, false)
	require.NoError(t, err, "unlocked open must not be blocked")
	require.NoError(t, shared.Close())

	require.NoError(t, first.Close())
	second, err := OpenFileStorage(path, true)
	require.NoError(t, err, "lock must be released on close")
	require.NoError(t, second.Close())
}
