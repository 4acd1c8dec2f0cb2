// Created by Yanjunhui

package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPager 基于内存存储的 Pager
// EN: newTestPager builds a Pager over memory storage.
func newTestPager(t *testing.T, pageSize int) *Pager {
	t.Helper()
	s := NewMemoryStorage()
	cache := NewPageCacheWithStorage(DefaultCacheBytes, pageSize, s)
	return NewPager(s, cache, pageSize, 1)
}

func TestPagerAllocateIsAppendOnly(t *testing.T) {
	p := newTestPager(t, PageSize4K)

	a, err := p.AllocatePage()
	require.NoError(t, err)
	b, err := p.AllocatePage()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(2), b)
	assert.Equal(t, uint64(3), p.AllocTail())
	assert.Equal(t, uint64(2), p.AllocatedPageCount())

	p.SetAllocTail(2)
	c, err := p.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c)
}

func TestPagerNodeRoundTrip(t *testing.T) {
	p := newTestPager(t, PageSize4K)

	id, err := p.WriteNewNode(PageTypeBTreeLeaf, 3, []byte("payload"))
	require.NoError(t, err)

	// 清空缓存，强制从存储读取
	// EN: Drop the cache to force a storage read.
	p.Cache().Clear()
	h, payload, err := p.ReadNode(id, PageTypeBTreeLeaf)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), h.ItemCount)
	assert.Equal(t, []byte("payload"), payload)

	_, _, err = p.ReadNode(id, PageTypeOSTLeaf)
	assert.True(t, fxerr.Is(err, fxerr.CodeCorruption))

	_, _, err = p.ReadNode(NoPage)
	assert.True(t, fxerr.Is(err, fxerr.CodeCorruption))
}

func TestPagerDetectsCorruptPage(t *testing.T) {
	p := newTestPager(t, PageSize4K)
	id, err := p.WriteNewNode(PageTypeOSTLeaf, 1, []byte("abcdef"))
	require.NoError(t, err)

	_, err = p.Storage().WriteAt([]byte{0xFF}, PageOffset(id, PageSize4K)+PageHeaderSize+2)
	require.NoError(t, err)
	p.Cache().Clear()

	_, _, err = p.ReadNode(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
	assert.Equal(t, 0, p.Cache().CachedPageCount())
}

func TestPagerChainRoundTrip(t *testing.T) {
	p := newTestPager(t, PageSize4K)

	data := bytes.Repeat([]byte("0123456789"), 2000)
	first, err := p.WriteChain(PageTypeCatalog, data)
	require.NoError(t, err)

	got, err := p.ReadChain(PageTypeCatalog, first)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	pages := 0
	require.NoError(t, p.ChainPages(PageTypeCatalog, first, func(uint64, []byte) error {
		pages++
		return nil
	}))
	chunk := p.PayloadCapacity() - chainHeaderSize
	assert.Equal(t, (len(data)+chunk-1)/chunk, pages)
}

func TestPagerEmptyChain(t *testing.T) {
	p := newTestPager(t, PageSize4K)
	first, err := p.WriteChain(PageTypeCatalog, nil)
	require.NoError(t, err)

	got, err := p.ReadChain(PageTypeCatalog, first)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPagerOverflowValues(t *testing.T) {
	p := newTestPager(t, PageSize4K)

	small := []byte("tiny")
	flags, stored, err := p.storeValue(small, 16)
	require.NoError(t, err)
	assert.Equal(t, valueInline, flags)
	got, err := p.loadValue(flags, stored)
	require.NoError(t, err)
	assert.Equal(t, small, got)

	big := bytes.Repeat([]byte{0xAB}, 3*PageSize4K)
	flags, stored, err = p.storeValue(big, 16)
	require.NoError(t, err)
	assert.Equal(t, valueOverflow, flags)
	assert.Len(t, stored, overflowRefSize)

	got, err = p.loadValue(flags, stored)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	var overflowPages int
	require.NoError(t, p.valuePages(flags, stored, func(_ uint64, pt uint8) error {
		assert.Equal(t, PageTypeOverflow, pt)
		overflowPages++
		return nil
	}))
	assert.Equal(t, 4, overflowPages)

	dst := newTestPager(t, PageSize4K)
	copied, err := p.copyValue(dst, flags, stored)
	require.NoError(t, err)
	got, err = dst.loadValue(flags, copied)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestPagerValueTooLarge(t *testing.T) {
	p := newTestPager(t, PageSize4K)
	_, _, err := p.storeValue(make([]byte, MaxValueSize+1), 0)
	assert.True(t, fxerr.Is(err, fxerr.CodeTooLarge))
}

func TestFileStorageReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.fx")
	s, err := OpenFileStorage(path, false)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)
	require.NoError(t, s.Sync())

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(105), size)

	buf := make([]byte, 5)
	_, err = s.ReadAt(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestMemoryStorageGrowsAndZeroFills(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.WriteAt([]byte{1, 2, 3}, 10)
	require.NoError(t, err)

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)

	buf := make([]byte, 8)
	_, err = s.ReadAt(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, buf)

	_, err = s.ReadAt(buf, 100)
	assert.Error(t, err)
}
