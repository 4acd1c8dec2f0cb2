// Created by Yanjunhui

package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// Storage 字节寻址的底层存储
// EN: Storage is the byte-addressed device under the page cache. Implementations
// must allow concurrent ReadAt calls alongside a single writer.
type Storage interface {
	io.ReaderAt
	io.WriterAt
	// Size 返回已写入的字节数
	// EN: Size returns the current extent in bytes.
	Size() (int64, error)
	Sync() error
	Close() error
}

// FileStorage 基于文件的存储
type FileStorage struct {
	file *os.File
	path string
	lock *fileLock
}

// OpenFileStorage 打开或创建存储文件；exclusive 为真时加独占文件锁
func OpenFileStorage(path string, exclusive bool) (*FileStorage, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fxerr.IO(err, fmt.Sprintf("failed to open file %s", path))
	}

	fs := &FileStorage{file: file, path: path}
	if exclusive {
		lock, err := lockFile(file)
		if err != nil {
			file.Close()
			return nil, fxerr.Wrap(fxerr.CodeLockFailed, err, fmt.Sprintf("file %s is locked by another process", path))
		}
		fs.lock = lock
	}
	return fs, nil
}

// Path 返回文件路径
func (s *FileStorage) Path() string {
	return s.path
}

// ReadAt 读取；文件尾部之后的区域按零填充返回
func (s *FileStorage) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.file.ReadAt(p, off)
	if err == io.EOF && n < len(p) {
		if n == 0 {
			return 0, io.EOF
		}
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}
	return n, err
}

func (s *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	return s.file.WriteAt(p, off)
}

func (s *FileStorage) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *FileStorage) Sync() error {
	return s.file.Sync()
}

// Close 释放文件锁并关闭文件
func (s *FileStorage) Close() error {
	if s.lock != nil {
		s.lock.release()
		s.lock = nil
	}
	return s.file.Close()
}

// MemoryStorage 纯内存存储
type MemoryStorage struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStorage 创建空的内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (s *MemoryStorage) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := off + int64(len(p))
	if end > int64(len(s.data)) {
		if end > int64(cap(s.data)) {
			grown := make([]byte, end, end+end/4)
			copy(grown, s.data)
			s.data = grown
		} else {
			s.data = s.data[:end]
		}
	}
	return copy(s.data[off:], p), nil
}

func (s *MemoryStorage) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

func (s *MemoryStorage) Sync() error { return nil }

func (s *MemoryStorage) Close() error { return nil }
