// Created by Yanjunhui

//go:build unix

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

const lockSupported = true

type fileLock struct {
	fd int
}

// lockFile 对文件加非阻塞独占锁
// EN: lockFile takes a non-blocking exclusive flock on f.
func lockFile(f *os.File) (*fileLock, error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return nil, err
	}
	return &fileLock{fd: fd}, nil
}

func (l *fileLock) release() {
	_ = unix.Flock(l.fd, unix.LOCK_UN)
}
