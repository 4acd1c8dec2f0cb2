// Created by Yanjunhui

package engine

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Snoworca/FxStore-sub001/storage"
)

// VerifyKind 校验错误类别
// EN: VerifyKind names the structure a verify error was found in.
type VerifyKind string

const (
	VerifySuperblock VerifyKind = "superblock"
	VerifyHeader     VerifyKind = "header"
	VerifyPage       VerifyKind = "page"
	VerifyBTree      VerifyKind = "btree"
	VerifyOST        VerifyKind = "ost"
	VerifyCatalog    VerifyKind = "catalog"
)

// VerifyError 单条校验错误
// EN: VerifyError is one problem found by Verify.
type VerifyError struct {
	Kind    VerifyKind
	PageID  uint64
	Message string
}

func (e VerifyError) String() string {
	if e.PageID != storage.NoPage {
		return fmt.Sprintf("%s: page %d: %s", e.Kind, e.PageID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// VerifyResult 校验结果
// EN: VerifyResult lists every problem found.
type VerifyResult struct {
	Errors []VerifyError
}

// OK 是否没有错误
// EN: OK reports whether no problem was found.
func (r VerifyResult) OK() bool {
	return len(r.Errors) == 0
}

// Verify 校验已提交快照的磁盘结构：超级块、提交头、每个已分配页的校验和、
// 目录与各集合树
// EN: Verify checks the committed state on storage: superblock, commit headers,
// the checksum of every allocated page, the catalog and every collection tree.
// The returned error is only for a closed store; findings go into the result.
func (s *Store) Verify() (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return VerifyResult{}, errClosed("verify")
	}

	snap := s.committed.Load()
	var res VerifyResult
	add := func(kind VerifyKind, page uint64, format string, args ...interface{}) {
		res.Errors = append(res.Errors, VerifyError{Kind: kind, PageID: page, Message: fmt.Sprintf(format, args...)})
	}

	s.verifySuperblock(add)
	size := s.verifyHeaders(snap, add)
	s.verifyPages(snap, size, add)
	s.verifyCatalog(snap, add)
	res.Errors = append(res.Errors, s.verifyCollections(snap)...)

	sort.SliceStable(res.Errors, func(i, j int) bool {
		a, b := res.Errors[i], res.Errors[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.PageID < b.PageID
	})

	if !res.OK() {
		s.log.Warn("verify found problems", map[string]interface{}{
			"path":   s.path,
			"errors": len(res.Errors),
			"first":  res.Errors[0].String(),
		})
	}
	return res, nil
}

type verifyAdd func(kind VerifyKind, page uint64, format string, args ...interface{})

func (s *Store) verifySuperblock(add verifyAdd) {
	buf := make([]byte, storage.SuperblockSize)
	if _, err := s.storage.ReadAt(buf, storage.SuperblockOffset); err != nil {
		add(VerifySuperblock, 0, "read failed: %v", err)
		return
	}
	if !storage.VerifySuperblock(buf) {
		add(VerifySuperblock, 0, "invalid superblock")
	}
}

// verifyHeaders 全零槽位视为未使用；返回存储大小
// EN: verifyHeaders treats an all-zero slot as unused. It returns the storage size.
func (s *Store) verifyHeaders(snap *snapshot, add verifyAdd) int64 {
	valid := 0
	for slot := 0; slot < 2; slot++ {
		buf := make([]byte, storage.CommitHeaderSize)
		if _, err := s.storage.ReadAt(buf, storage.CommitHeaderSlotOffset(slot)); err != nil {
			add(VerifyHeader, 0, "slot %d: read failed: %v", slot, err)
			continue
		}
		if allZero(buf) {
			continue
		}
		if _, err := storage.DecodeCommitHeader(buf); err != nil {
			add(VerifyHeader, 0, "slot %d: %v", slot, err)
			continue
		}
		valid++
	}
	if valid == 0 {
		add(VerifyHeader, 0, "no valid commit header")
	}

	size, err := s.storage.Size()
	if err != nil {
		add(VerifyHeader, 0, "failed to stat storage: %v", err)
		return 0
	}
	if end := storage.PageOffset(snap.allocTail, s.pageSize); end > size {
		add(VerifyHeader, 0, "alloc tail %d ends at %d, beyond storage size %d", snap.allocTail, end, size)
	}
	return size
}

func allZero(b []byte) bool {
	return len(bytes.TrimLeft(b, "\x00")) == 0
}

// verifyPages 绕过缓存直接读取每个已分配页
// EN: verifyPages reads every allocated page straight from storage, bypassing the cache.
func (s *Store) verifyPages(snap *snapshot, size int64, add verifyAdd) {
	buf := make([]byte, s.pageSize)
	for id := uint64(1); id < snap.allocTail; id++ {
		off := storage.PageOffset(id, s.pageSize)
		if off+int64(s.pageSize) > size {
			add(VerifyPage, id, "page lies beyond storage size %d", size)
			break
		}
		if _, err := s.storage.ReadAt(buf, off); err != nil {
			add(VerifyPage, id, "read failed: %v", err)
			continue
		}
		if _, _, err := storage.DecodePage(id, buf); err != nil {
			add(VerifyPage, id, "%v", err)
		}
	}
}

func (s *Store) verifyCatalog(snap *snapshot, add verifyAdd) {
	if snap.catalogRoot == storage.NoPage {
		if len(snap.byID) > 0 {
			add(VerifyCatalog, 0, "collections present but catalog root is empty")
		}
		return
	}
	data, err := s.pager.ReadChain(storage.PageTypeCatalog, snap.catalogRoot)
	if err != nil {
		add(VerifyCatalog, snap.catalogRoot, "%v", err)
		return
	}
	check := newSnapshot()
	check.allocTail = snap.allocTail
	check.nextCollectionID = snap.nextCollectionID
	if err := decodeCatalog(data, check); err != nil {
		add(VerifyCatalog, snap.catalogRoot, "%v", err)
		return
	}
	if len(check.byID) != len(snap.byID) {
		add(VerifyCatalog, snap.catalogRoot, "catalog lists %d collections, snapshot has %d", len(check.byID), len(snap.byID))
	}
}

// verifyCollections 并发校验每个集合的树结构与计数
// EN: verifyCollections checks every collection tree and its cached count concurrently.
func (s *Store) verifyCollections(snap *snapshot) []VerifyError {
	cols := snap.sorted()
	found := make([][]VerifyError, len(cols))

	var g errgroup.Group
	for i, c := range cols {
		i, c := i, c
		g.Go(func() error {
			found[i] = s.verifyCollection(c)
			return nil
		})
	}
	_ = g.Wait()

	var out []VerifyError
	for _, errs := range found {
		out = append(out, errs...)
	}
	return out
}

func (s *Store) verifyCollection(c *collectionState) []VerifyError {
	var (
		kind  VerifyKind
		count int64
		err   error
	)
	if c.Kind.ordered() {
		kind = VerifyBTree
		cmp, ordered := bytes.Compare, false
		if e, ok := s.registry.Lookup(c.KeyCodec.ID); ok {
			cmp, ordered = e.Compare, e.Ordered
		}
		count, err = storage.NewBTree(s.pager, storage.Compare(cmp)).Verify(c.Root, ordered)
	} else {
		kind = VerifyOST
		count, err = s.ost().Verify(c.Root, c.Kind == KindDeque)
	}

	if err != nil {
		return []VerifyError{{Kind: kind, PageID: c.Root, Message: fmt.Sprintf("collection %q: %v", c.Name, err)}}
	}
	if count != c.Count {
		return []VerifyError{{Kind: kind, PageID: c.Root, Message: fmt.Sprintf("collection %q: cached count %d, tree holds %d", c.Name, c.Count, count)}}
	}
	return nil
}
