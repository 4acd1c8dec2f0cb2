// Created by Yanjunhui

//go:build !unix

package storage

import "os"

const lockSupported = false

type fileLock struct{}

// 非 unix 平台不支持 flock，退化为无锁
// EN: flock is unavailable here; locking degrades to a no-op.
func lockFile(f *os.File) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) release() {}
