// Created by Yanjunhui

package storage

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// MaxValueSize 单个值的最大字节数
const MaxValueSize = 64 << 20

// 值标记
const (
	valueInline   uint8 = 0
	valueOverflow uint8 = 1

	overflowRefSize = 12 // firstPage u64 + totalLen u32
	chainHeaderSize = 8  // next u64
)

// Pager 页面管理器：只追加分配 + 页缓存 + 存储
// 所有树页都是写时复制的，已发布快照可达的页永不被覆盖。
// 分配与写入只由持有写锁的一方调用；读取可并发。
type Pager struct {
	storage   Storage
	cache     *PageCache
	pageSize  int
	allocTail atomic.Uint64 // 下一个待分配页 ID，读路径也会读取
	written   int64         // 自上次 ResetWritten 以来写入的页数
}

// NewPager 创建页面管理器
func NewPager(s Storage, cache *PageCache, pageSize int, allocTail uint64) *Pager {
	if allocTail == NoPage {
		allocTail = 1
	}
	p := &Pager{
		storage:  s,
		cache:    cache,
		pageSize: pageSize,
	}
	p.allocTail.Store(allocTail)
	return p
}

// PageSize 返回页大小
func (p *Pager) PageSize() int {
	return p.pageSize
}

// Cache 返回页缓存
func (p *Pager) Cache() *PageCache {
	return p.cache
}

// Storage 返回底层存储
func (p *Pager) Storage() Storage {
	return p.storage
}

// AllocTail 返回下一个待分配页 ID
func (p *Pager) AllocTail() uint64 {
	return p.allocTail.Load()
}

// SetAllocTail 重置分配位置（回滚时使用）
func (p *Pager) SetAllocTail(tail uint64) {
	if tail == NoPage {
		tail = 1
	}
	p.allocTail.Store(tail)
}

// AllocatedPageCount 返回已分配的页数
func (p *Pager) AllocatedPageCount() uint64 {
	return p.allocTail.Load() - 1
}

// Written 返回自上次重置以来写入的页数
func (p *Pager) Written() int64 {
	return p.written
}

// ResetWritten 重置写入计数
func (p *Pager) ResetWritten() {
	p.written = 0
}

// PayloadCapacity 返回单页负载容量
func (p *Pager) PayloadCapacity() int {
	return PayloadCapacity(p.pageSize)
}

// MaxItemSize 单个节点项的上限，保证每页至少容纳 4 项
func (p *Pager) MaxItemSize() int {
	return p.PayloadCapacity() / 4
}

// AllocatePage 分配一个新页 ID
func (p *Pager) AllocatePage() (uint64, error) {
	if err := failpoint.Hit("pager.allocate"); err != nil {
		return NoPage, fxerr.IO(err, "failpoint: pager.allocate")
	}
	return p.allocTail.Add(1) - 1, nil
}

// WriteNode 编码并写入节点页
func (p *Pager) WriteNode(id uint64, pageType uint8, itemCount int, payload []byte) error {
	buf, err := EncodePage(p.pageSize, PageHeader{
		Type:      pageType,
		ItemCount: uint16(itemCount),
		ID:        id,
	}, payload)
	if err != nil {
		return fxerr.Wrap(fxerr.CodeInternal, err, "encode page")
	}
	if err := p.cache.WritePage(id, buf); err != nil {
		return err
	}
	p.written++
	return nil
}

// WriteNewNode 分配并写入一个新节点页
func (p *Pager) WriteNewNode(pageType uint8, itemCount int, payload []byte) (uint64, error) {
	id, err := p.AllocatePage()
	if err != nil {
		return NoPage, err
	}
	if err := p.WriteNode(id, pageType, itemCount, payload); err != nil {
		return NoPage, err
	}
	return id, nil
}

// ReadNode 读取并校验节点页
func (p *Pager) ReadNode(id uint64, want ...uint8) (PageHeader, []byte, error) {
	if id == NoPage {
		return PageHeader{}, nil, fxerr.Corruption("dangling reference to page 0")
	}
	buf, err := p.cache.ReadPage(id)
	if err != nil {
		return PageHeader{}, nil, err
	}
	h, payload, err := DecodePage(id, buf)
	if err != nil {
		// 损坏的页不应留在缓存中
		p.cache.Invalidate(id)
		return h, nil, err
	}
	if len(want) > 0 {
		if err := expectType(h, want...); err != nil {
			return h, nil, err
		}
	}
	return h, payload, nil
}

// WriteChain 将数据写为页链，返回首页 ID
// 页 ID 预先连续分配，因此每页都能写入后继指针
func (p *Pager) WriteChain(pageType uint8, data []byte) (uint64, error) {
	chunk := p.PayloadCapacity() - chainHeaderSize
	n := (len(data) + chunk - 1) / chunk
	if n == 0 {
		n = 1
	}

	ids := make([]uint64, n)
	for i := range ids {
		id, err := p.AllocatePage()
		if err != nil {
			return NoPage, err
		}
		ids[i] = id
	}

	for i, id := range ids {
		start := i * chunk
		end := start + chunk
		if end > len(data) {
			end = len(data)
		}
		next := NoPage
		if i+1 < n {
			next = ids[i+1]
		}
		payload := make([]byte, chainHeaderSize+end-start)
		binary.LittleEndian.PutUint64(payload[0:8], next)
		copy(payload[chainHeaderSize:], data[start:end])
		if err := p.WriteNode(id, pageType, 1, payload); err != nil {
			return NoPage, err
		}
	}
	return ids[0], nil
}

// ReadChain 读取整条页链
func (p *Pager) ReadChain(pageType uint8, first uint64) ([]byte, error) {
	var out []byte
	err := p.ChainPages(pageType, first, func(id uint64, chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	return out, err
}

// ChainPages 依次访问页链中的每一页
func (p *Pager) ChainPages(pageType uint8, first uint64, fn func(id uint64, chunk []byte) error) error {
	seen := 0
	tail := p.allocTail.Load()
	for id := first; id != NoPage; {
		if id >= tail {
			return fxerr.Corruption(fmt.Sprintf("%s chain references unallocated page %d", PageTypeName(pageType), id))
		}
		_, payload, err := p.ReadNode(id, pageType)
		if err != nil {
			return err
		}
		if len(payload) < chainHeaderSize {
			return fxerr.Corruption(fmt.Sprintf("page %d: short chain page", id))
		}
		if err := fn(id, payload[chainHeaderSize:]); err != nil {
			return err
		}
		id = binary.LittleEndian.Uint64(payload[0:8])
		seen++
		if uint64(seen) > tail {
			return fxerr.Corruption(fmt.Sprintf("%s chain starting at %d has a cycle", PageTypeName(pageType), first))
		}
	}
	return nil
}

// storeValue 小值内联，大值写入溢出链
func (p *Pager) storeValue(value []byte, fixedOverhead int) (uint8, []byte, error) {
	if len(value) > MaxValueSize {
		return 0, nil, fxerr.TooLarge("value", len(value), MaxValueSize)
	}
	if fixedOverhead+len(value) <= p.MaxItemSize() {
		return valueInline, cloneBytes(value), nil
	}
	first, err := p.WriteChain(PageTypeOverflow, value)
	if err != nil {
		return 0, nil, err
	}
	ref := make([]byte, overflowRefSize)
	binary.LittleEndian.PutUint64(ref[0:8], first)
	binary.LittleEndian.PutUint32(ref[8:12], uint32(len(value)))
	return valueOverflow, ref, nil
}

// loadValue 还原存储形式的值
func (p *Pager) loadValue(flags uint8, stored []byte) ([]byte, error) {
	if flags&valueOverflow == 0 {
		return cloneBytes(stored), nil
	}
	first, total, err := decodeOverflowRef(stored)
	if err != nil {
		return nil, err
	}
	data, err := p.ReadChain(PageTypeOverflow, first)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) != total {
		return nil, fxerr.Corruption(fmt.Sprintf("overflow chain %d: length %d, expected %d", first, len(data), total))
	}
	return data, nil
}

// valuePages 访问值占用的溢出页
func (p *Pager) valuePages(flags uint8, stored []byte, fn func(id uint64, pageType uint8) error) error {
	if flags&valueOverflow == 0 {
		return nil
	}
	first, _, err := decodeOverflowRef(stored)
	if err != nil {
		return err
	}
	return p.ChainPages(PageTypeOverflow, first, func(id uint64, _ []byte) error {
		return fn(id, PageTypeOverflow)
	})
}

// copyValue 将值（含溢出链）复制到另一个 Pager
func (p *Pager) copyValue(dst *Pager, flags uint8, stored []byte) ([]byte, error) {
	if flags&valueOverflow == 0 {
		return cloneBytes(stored), nil
	}
	first, total, err := decodeOverflowRef(stored)
	if err != nil {
		return nil, err
	}
	data, err := p.ReadChain(PageTypeOverflow, first)
	if err != nil {
		return nil, err
	}
	newFirst, err := dst.WriteChain(PageTypeOverflow, data)
	if err != nil {
		return nil, err
	}
	ref := make([]byte, overflowRefSize)
	binary.LittleEndian.PutUint64(ref[0:8], newFirst)
	binary.LittleEndian.PutUint32(ref[8:12], total)
	return ref, nil
}

func decodeOverflowRef(stored []byte) (uint64, uint32, error) {
	if len(stored) != overflowRefSize {
		return NoPage, 0, fxerr.Corruption(fmt.Sprintf("bad overflow reference length %d", len(stored)))
	}
	return binary.LittleEndian.Uint64(stored[0:8]), binary.LittleEndian.Uint32(stored[8:12]), nil
}
