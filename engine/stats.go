// Created by Yanjunhui

package engine

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// StatsMode 统计模式
// EN: StatsMode selects how live bytes are estimated.
type StatsMode int

const (
	// StatsFast 根据分配尾部估算，不遍历
	// EN: StatsFast derives live bytes from the allocation tail without traversal.
	StatsFast StatsMode = iota
	// StatsDeep 遍历所有可达页
	// EN: StatsDeep counts every reachable page.
	StatsDeep
)

func (m StatsMode) String() string {
	switch m {
	case StatsFast:
		return "FAST"
	case StatsDeep:
		return "DEEP"
	}
	return fmt.Sprintf("StatsMode(%d)", int(m))
}

// Stats 空间统计
// EN: Stats reports file usage.
type Stats struct {
	FileBytes         int64
	LiveBytesEstimate int64
	DeadBytesEstimate int64
	DeadRatio         float64
	CollectionCount   int
}

// Stats 返回工作快照的空间统计
// EN: Stats measures the working snapshot.
func (s *Store) Stats(mode StatsMode) (Stats, error) {
	const op = "stats"
	if mode != StatsFast && mode != StatsDeep {
		return Stats{}, fxerr.IllegalArgument(fmt.Sprintf("invalid stats mode %d", int(mode))).WithOp(op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return Stats{}, errClosed(op)
	}

	fileBytes, err := s.storage.Size()
	if err != nil {
		return Stats{}, fxerr.IO(err, "failed to stat storage").WithOp(op)
	}

	w := s.working
	var live int64
	if mode == StatsFast {
		live = storage.PageOffset(s.pager.AllocTail(), s.pageSize)
	} else {
		pages, err := s.reachablePages(w, s.committed.Load().catalogRoot)
		if err != nil {
			return Stats{}, withOp(err, op)
		}
		live = int64(storage.AllocStart) + pages*int64(s.pageSize)
	}

	st := Stats{
		FileBytes:         fileBytes,
		LiveBytesEstimate: live,
		CollectionCount:   len(w.byID),
	}
	if dead := fileBytes - live; dead > 0 {
		st.DeadBytesEstimate = dead
	}
	if fileBytes > 0 {
		st.DeadRatio = float64(st.DeadBytesEstimate) / float64(fileBytes)
	}
	return st, nil
}

// reachablePages 统计快照中所有集合树页（含溢出页）与目录链页
// 各集合并发遍历，页缓存本身是并发安全的
// EN: reachablePages counts tree, overflow and catalog pages reachable from snap.
// Collections are walked concurrently; the page cache is safe for that.
func (s *Store) reachablePages(snap *snapshot, catalogRoot uint64) (int64, error) {
	cols := snap.sorted()
	counts := make([]int64, len(cols))

	var g errgroup.Group
	for i, c := range cols {
		i, c := i, c
		g.Go(func() error {
			visit := func(uint64, uint8) error {
				counts[i]++
				return nil
			}
			var err error
			if c.Kind.ordered() {
				err = s.btree(nil).Pages(c.Root, visit)
			} else {
				err = s.ost().Pages(c.Root, visit)
			}
			if err != nil {
				return fmt.Errorf("collection %q: %w", c.Name, err)
			}
			return nil
		})
	}

	var catalogPages int64
	if catalogRoot != storage.NoPage {
		g.Go(func() error {
			return s.pager.ChainPages(storage.PageTypeCatalog, catalogRoot, func(uint64, []byte) error {
				catalogPages++
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := catalogPages
	for _, n := range counts {
		total += n
	}
	return total, nil
}
