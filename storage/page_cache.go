// Created by Yanjunhui

package storage

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// cacheEntry 缓存项
// EN: cacheEntry is one cached page.
type cacheEntry struct {
	id   uint64
	data []byte
}

// CacheStats 缓存统计
// EN: CacheStats reports cache counters.
type CacheStats struct {
	Pages  int
	Bytes  int64
	Budget int64
	Hits   int64
	Misses int64
}

// PageCache 按字节预算的 LRU 页缓存，写穿到绑定的 Storage
// EN: PageCache is a byte-budgeted LRU page cache that writes through to an
// optionally bound Storage. All methods are safe for concurrent use.
type PageCache struct {
	mu       sync.Mutex
	budget   int64
	pageSize int
	bytes    int64
	lru      *list.List // front = 最近使用 (EN: front = most recently used)
	entries  map[uint64]*list.Element
	storage  Storage
	hits     int64
	misses   int64
}

// NewPageCache 创建未绑定存储的缓存
// EN: NewPageCache creates a standalone cache; bind storage later with SetStorage.
func NewPageCache(budget int64, pageSize int) *PageCache {
	return &PageCache{
		budget:   budget,
		pageSize: pageSize,
		lru:      list.New(),
		entries:  make(map[uint64]*list.Element),
	}
}

// NewPageCacheWithStorage 创建已绑定存储的缓存
// EN: NewPageCacheWithStorage creates a cache bound to s.
func NewPageCacheWithStorage(budget int64, pageSize int, s Storage) *PageCache {
	c := NewPageCache(budget, pageSize)
	c.storage = s
	return c
}

// SetStorage 绑定（或重新绑定）存储；已有缓存项保持不变
// EN: SetStorage binds or rebinds the backing storage. Cached entries are kept.
func (c *PageCache) SetStorage(s Storage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage = s
}

// PageSize 返回页大小
// EN: PageSize returns the page size the cache reads with.
func (c *PageCache) PageSize() int {
	return c.pageSize
}

// Get 返回缓存的页副本并标记为最近使用，不访问存储
// EN: Get returns a copy of the cached page and marks it most recently used.
// It never touches storage and returns nil on a miss.
func (c *PageCache) Get(id uint64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil
	}
	c.lru.MoveToFront(elem)
	return cloneBytes(elem.Value.(*cacheEntry).data)
}

// Put 插入或替换缓存项，然后淘汰最久未使用项直到不超过预算
// EN: Put inserts or replaces id, then evicts least recently used entries until
// the byte total is within budget. The entry just put is never evicted by its own put.
func (c *PageCache) Put(id uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(id, cloneBytes(data))
}

func (c *PageCache) putLocked(id uint64, data []byte) {
	if elem, ok := c.entries[id]; ok {
		entry := elem.Value.(*cacheEntry)
		c.bytes += int64(len(data)) - int64(len(entry.data))
		entry.data = data
		c.lru.MoveToFront(elem)
	} else {
		c.entries[id] = c.lru.PushFront(&cacheEntry{id: id, data: data})
		c.bytes += int64(len(data))
	}
	c.evictLocked()
}

// evictLocked 从尾部逐个淘汰
// EN: evictLocked drops entries from the back one at a time.
func (c *PageCache) evictLocked() {
	for c.bytes > c.budget && c.lru.Len() > 1 {
		back := c.lru.Back()
		entry := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.entries, entry.id)
		c.bytes -= int64(len(entry.data))
	}
}

// Invalidate 移除缓存项，不存在时无操作
// EN: Invalidate removes id if present; absent ids are a no-op.
func (c *PageCache) Invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		c.bytes -= int64(len(elem.Value.(*cacheEntry).data))
		c.lru.Remove(elem)
		delete(c.entries, id)
	}
}

// Clear 清空缓存
// EN: Clear drops every entry.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Init()
	c.entries = make(map[uint64]*list.Element)
	c.bytes = 0
}

// WritePage 写穿到存储，成功后缓存
// EN: WritePage writes through to storage and caches the page on success.
func (c *PageCache) WritePage(id uint64, data []byte) error {
	if err := failpoint.Hit("pagecache.writePage"); err != nil {
		return fxerr.IO(err, fmt.Sprintf("failpoint: pagecache.writePage %d", id))
	}

	c.mu.Lock()
	s := c.storage
	c.mu.Unlock()
	if s == nil {
		return fxerr.NotConfigured("storage not bound to cache")
	}
	if id == NoPage {
		return fxerr.IllegalArgument("cannot write page 0")
	}

	if _, err := s.WriteAt(data, PageOffset(id, c.pageSize)); err != nil {
		return fxerr.IO(err, fmt.Sprintf("failed to write page %d", id))
	}

	c.Put(id, data)
	return nil
}

// ReadPage 命中返回缓存，未命中时从存储读取并缓存
// EN: ReadPage returns the cached page, or reads it from storage and caches it.
func (c *PageCache) ReadPage(id uint64) ([]byte, error) {
	c.mu.Lock()
	if elem, ok := c.entries[id]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		data := cloneBytes(elem.Value.(*cacheEntry).data)
		c.mu.Unlock()
		return data, nil
	}
	c.misses++
	s := c.storage
	c.mu.Unlock()

	if s == nil {
		return nil, fxerr.NotConfigured("storage not bound to cache")
	}
	if id == NoPage {
		return nil, fxerr.IllegalArgument("cannot read page 0")
	}

	buf := make([]byte, c.pageSize)
	if _, err := s.ReadAt(buf, PageOffset(id, c.pageSize)); err != nil {
		return nil, fxerr.IO(err, fmt.Sprintf("failed to read page %d", id))
	}

	c.mu.Lock()
	// 读期间可能已被写入者放入新内容，以缓存为准
	// EN: A writer may have cached a newer image meanwhile; prefer it.
	if elem, ok := c.entries[id]; ok {
		c.lru.MoveToFront(elem)
		data := cloneBytes(elem.Value.(*cacheEntry).data)
		c.mu.Unlock()
		return data, nil
	}
	c.putLocked(id, cloneBytes(buf))
	c.mu.Unlock()
	return buf, nil
}

// CacheBytes 返回当前缓存字节数（O(1)）
// EN: CacheBytes returns the summed length of cached pages in O(1).
func (c *PageCache) CacheBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// CachedPageCount 返回缓存页数
// EN: CachedPageCount returns the number of cached pages.
func (c *PageCache) CachedPageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Budget 返回字节预算
// EN: Budget returns the byte budget.
func (c *PageCache) Budget() int64 {
	return c.budget
}

// Stats 返回缓存统计
// EN: Stats returns a snapshot of the cache counters.
func (c *PageCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Pages:  c.lru.Len(),
		Bytes:  c.bytes,
		Budget: c.budget,
		Hits:   c.hits,
		Misses: c.misses,
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
