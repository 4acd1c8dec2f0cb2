// Created by Yanjunhui

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/codec"
)

// 每次修改只重写根到叶路径上的页（及分裂/合并产生的兄弟页）
// EN: Every mutation rewrites only the root-to-leaf path plus split or merge siblings.
const maxPagesPerOp = 12

func openBatchMemory(t *testing.T) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.CommitMode = CommitBatch
	s, err := OpenMemory(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Rollback()
		_ = s.Close()
	})
	return s
}

func TestMapMutationsWriteLogarithmicPages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	s := openBatchMemory(t)
	m, err := CreateMap(s, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)

	const n = 10_000
	var worst int64
	for i := int64(0); i < n; i++ {
		// 交错插入，避免只命中最右叶
		// EN: Interleave keys so inserts do not only hit the rightmost leaf.
		k := (i * 7919) % n
		s.pager.ResetWritten()
		require.NoError(t, m.Put(k, i))
		if w := s.pager.Written(); w > worst {
			worst = w
		}
	}
	assert.LessOrEqual(t, worst, int64(maxPagesPerOp), "put")

	c, ok := s.working.byID[m.id]
	require.True(t, ok)
	height, err := m.tree().Height(c.Root)
	require.NoError(t, err)
	assert.LessOrEqual(t, height, 4)

	s.pager.ResetWritten()
	_, _, err = m.Get(n / 2)
	require.NoError(t, err)
	assert.Zero(t, s.pager.Written(), "reads must not write")

	worst = 0
	for i := int64(0); i < n; i += 3 {
		s.pager.ResetWritten()
		_, err := m.Remove(i)
		require.NoError(t, err)
		if w := s.pager.Written(); w > worst {
			worst = w
		}
	}
	assert.LessOrEqual(t, worst, int64(maxPagesPerOp), "remove")
}

func TestListMutationsWriteLogarithmicPages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	s := openBatchMemory(t)
	l, err := CreateList(s, "l", codec.Int64)
	require.NoError(t, err)

	const n = 10_000
	var worst int64
	measure := func(fn func() error) {
		s.pager.ResetWritten()
		require.NoError(t, fn())
		if w := s.pager.Written(); w > worst {
			worst = w
		}
	}

	for i := int64(0); i < n; i++ {
		idx := (i * 31) % (i + 1)
		measure(func() error { return l.Insert(idx, i) })
	}
	assert.LessOrEqual(t, worst, int64(maxPagesPerOp), "insert")

	worst = 0
	for i := int64(0); i < 1000; i++ {
		idx := (i * 97) % (n - i)
		measure(func() error { _, err := l.Set(idx, -i); return err })
		measure(func() error { _, err := l.RemoveAt(idx); return err })
	}
	assert.LessOrEqual(t, worst, int64(maxPagesPerOp), "set/removeAt")

	s.pager.ResetWritten()
	_, err = l.Get(n / 3)
	require.NoError(t, err)
	assert.Zero(t, s.pager.Written())
}

// 读操作经过的页数（缓存命中加未命中）不超过树高加常数
// EN: A read touches at most the tree height plus a small constant of pages,
// counted as cache hits plus misses.
func TestDequeReadsTouchLogarithmicPages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	s := openBatchMemory(t)
	d, err := CreateDeque(s, "d", codec.Int64)
	require.NoError(t, err)

	const n = 10_000
	const wantHead, wantTail = -(n - 1), n - 2
	for i := int64(0); i < n; i++ {
		if i%2 == 0 {
			require.NoError(t, d.AddLast(i))
		} else {
			require.NoError(t, d.AddFirst(-i))
		}
	}
	require.NoError(t, s.Commit())

	c, ok := s.working.byID[d.id]
	require.True(t, ok)
	height, err := s.ost().Height(c.Root)
	require.NoError(t, err)
	require.Greater(t, height, 1)
	assert.LessOrEqual(t, height, 4)

	touched := func(fn func() error) int64 {
		before := s.CacheStats()
		require.NoError(t, fn())
		after := s.CacheStats()
		return after.Hits + after.Misses - before.Hits - before.Misses
	}
	limit := int64(height) + 2

	assert.LessOrEqual(t, touched(func() error {
		e, ok, err := d.PeekFirst()
		assert.True(t, ok)
		assert.Equal(t, int64(wantHead), e)
		return err
	}), limit, "peekFirst")

	assert.LessOrEqual(t, touched(func() error {
		e, ok, err := d.PeekLast()
		assert.True(t, ok)
		assert.Equal(t, int64(wantTail), e)
		return err
	}), limit, "peekLast")

	assert.LessOrEqual(t, touched(func() error {
		_, err := d.Get(n / 2)
		return err
	}), limit, "get")

	tx, err := s.BeginRead()
	require.NoError(t, err)
	defer tx.Close()
	assert.LessOrEqual(t, touched(func() error {
		_, ok, err := d.PeekFirstIn(tx)
		assert.True(t, ok)
		return err
	}), limit, "peekFirstIn")

	// Size 只读快照中的计数，不读页
	// EN: Size reads the count kept in the snapshot and touches no page.
	assert.Zero(t, touched(func() error {
		size, err := d.Size()
		assert.Equal(t, int64(n), size)
		return err
	}), "size")
	assert.Zero(t, touched(func() error {
		_, err := d.SizeIn(tx)
		return err
	}), "sizeIn")
}
