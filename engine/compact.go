// Created by Yanjunhui

package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// CompactTo 将已提交快照的全部可达页重写到新文件
// 新文件只包含活数据，提交序号从 0 开始
// EN: CompactTo rewrites every live page of the committed snapshot into a new
// file at path. The target must not exist and is removed if compaction fails.
func (s *Store) CompactTo(path string) error {
	const op = "compactTo"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errClosed(op)
	}
	if s.opts.CommitMode == CommitBatch && s.pending {
		return errPending(op)
	}

	if _, err := os.Stat(path); err == nil {
		return fxerr.AlreadyExists(fmt.Sprintf("compaction target %s already exists", path)).WithOp(op)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fxerr.IO(err, fmt.Sprintf("failed to stat %s", path)).WithOp(op)
	}

	start := time.Now()
	sourceBytes, _ := s.storage.Size()
	s.log.Info("compaction started", map[string]interface{}{
		"source":      s.path,
		"target":      path,
		"sourceBytes": sourceBytes,
	})

	dst, err := storage.OpenFileStorage(path, true)
	if err != nil {
		return withOp(err, op)
	}
	targetBytes, err := s.compactInto(dst)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fxerr.IO(cerr, "failed to close compaction target")
	}
	if err != nil {
		os.Remove(path)
		s.log.Error("compaction failed", map[string]interface{}{
			"target": path,
			"error":  err.Error(),
		})
		return withOp(err, op)
	}

	s.log.Info("compaction finished", map[string]interface{}{
		"target":      path,
		"sourceBytes": sourceBytes,
		"targetBytes": targetBytes,
		"durationMs":  time.Since(start).Milliseconds(),
	})
	return nil
}

// compactInto 复制每个集合树与其溢出链，然后写目录，最后写超级块与提交头
// EN: compactInto copies every collection tree with its overflow chains, writes
// the catalog, and only then the superblock and a seq-0 commit header. It
// returns the target size.
func (s *Store) compactInto(dst storage.Storage) (int64, error) {
	src := s.committed.Load()

	cache := storage.NewPageCacheWithStorage(s.opts.CacheBytes, s.pageSize, dst)
	pager := storage.NewPager(dst, cache, s.pageSize, 1)
	defer cache.Clear()

	out := src.clone()
	var err error
	for _, c := range src.sorted() {
		if err := failpoint.Hit("compact.copy"); err != nil {
			return 0, fxerr.IO(err, fmt.Sprintf("failed to copy collection %q", c.Name))
		}
		var root uint64
		if c.Kind.ordered() {
			root, err = s.btree(nil).CopyTo(pager, c.Root)
		} else {
			root, err = s.ost().CopyTo(pager, c.Root)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to copy collection %q: %w", c.Name, err)
		}
		next := c.clone()
		next.Root = root
		out.byID[c.ID] = next
	}

	catalogRoot, err := writeCatalog(pager, out)
	if err != nil {
		return 0, err
	}
	if err := dst.Sync(); err != nil {
		return 0, fxerr.IO(err, "failed to sync compaction target")
	}
	if _, err := writeFreshLayout(dst, s.pageSize, &storage.CommitHeader{
		AllocTail:        pager.AllocTail(),
		CatalogRoot:      catalogRoot,
		NextCollectionID: src.nextCollectionID,
	}); err != nil {
		return 0, err
	}
	return dst.Size()
}
