// Created by Yanjunhui

package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// MaxCollectionNameLength 集合名最大字节数
// EN: MaxCollectionNameLength is the longest allowed collection name in bytes.
const MaxCollectionNameLength = 255

// Store 存储实例：单写者，快照读
// EN: Store is one open store. Writes are serialized by mu; readers load the
// committed snapshot without locking.
type Store struct {
	mu       sync.Mutex
	id       uuid.UUID
	path     string
	opts     Options
	log      *Logger
	storage  storage.Storage
	cache    *storage.PageCache
	pager    *storage.Pager
	pageSize int
	registry *codec.Registry

	committed atomic.Pointer[snapshot]
	working   *snapshot // 受 mu 保护 (EN: guarded by mu)
	pending   bool      // 受 mu 保护 (EN: guarded by mu)

	closed  atomic.Bool
	readers atomic.Int64
}

// Open 打开或创建存储文件
// EN: Open opens the store file at path, creating it when missing or empty.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	st, err := storage.OpenFileStorage(path, opts.FileLock == LockExclusive)
	if err != nil {
		return nil, err
	}
	s, err := open(st, path, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory 创建内存存储
// EN: OpenMemory creates a store kept entirely in memory.
func OpenMemory(opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return open(storage.NewMemoryStorage(), ":memory:", opts)
}

func open(st storage.Storage, path string, opts Options) (*Store, error) {
	s := &Store{
		id:       uuid.New(),
		path:     path,
		opts:     opts,
		log:      opts.Logger.WithComponent("store").WithSlowThreshold(opts.SlowCommitThreshold),
		storage:  st,
		registry: codec.Default,
	}

	size, err := st.Size()
	if err != nil {
		return nil, fxerr.IO(err, "failed to stat storage")
	}

	var header *storage.CommitHeader
	if size == 0 {
		header, err = s.initialize(opts.PageSize)
	} else {
		header, err = s.recover(size)
	}
	if err != nil {
		return nil, err
	}

	s.cache = storage.NewPageCacheWithStorage(opts.CacheBytes, s.pageSize, st)
	s.pager = storage.NewPager(st, s.cache, s.pageSize, header.AllocTail)

	snap, err := loadSnapshot(s.pager, header)
	if err != nil {
		return nil, err
	}
	s.committed.Store(snap)
	s.working = snap

	s.log.Info("store opened", map[string]interface{}{
		"path":        path,
		"storeId":     s.id.String(),
		"pageSize":    s.pageSize,
		"seqNo":       snap.seqNo,
		"collections": len(snap.byID),
		"commitMode":  opts.CommitMode.String(),
	})
	return s, nil
}

// initialize 写入超级块与初始提交头
// EN: initialize writes the superblock, header slot A and a zeroed slot B.
func (s *Store) initialize(pageSize int) (*storage.CommitHeader, error) {
	h, err := writeFreshLayout(s.storage, pageSize, &storage.CommitHeader{AllocTail: 1, NextCollectionID: 1})
	if err != nil {
		return nil, err
	}
	s.pageSize = pageSize
	return h, nil
}

// writeFreshLayout 新文件（或压缩目标）的头部区域
// EN: writeFreshLayout lays out the header region of a new file and syncs it.
func writeFreshLayout(st storage.Storage, pageSize int, h *storage.CommitHeader) (*storage.CommitHeader, error) {
	sb, err := storage.CreateSuperblock(pageSize)
	if err != nil {
		return nil, err
	}
	if _, err := st.WriteAt(sb.Encode(), storage.SuperblockOffset); err != nil {
		return nil, fxerr.IO(err, "failed to write superblock")
	}
	h.SeqNo = 0
	if err := storage.WriteCommitHeader(st, h); err != nil {
		return nil, err
	}
	if _, err := st.WriteAt(make([]byte, storage.CommitHeaderSize), storage.CommitHeaderSlotOffset(1)); err != nil {
		return nil, fxerr.IO(err, "failed to clear commit header slot 1")
	}
	if err := st.Sync(); err != nil {
		return nil, fxerr.IO(err, "failed to sync new store")
	}
	return h, nil
}

// recover 读取超级块并选出最新有效的提交头
// EN: recover reads the superblock and picks the newest valid commit header.
func (s *Store) recover(size int64) (*storage.CommitHeader, error) {
	if size < storage.AllocStart {
		return nil, fxerr.Corruption(fmt.Sprintf("file too short for a store: %d bytes", size))
	}

	buf := make([]byte, storage.SuperblockSize)
	if _, err := s.storage.ReadAt(buf, storage.SuperblockOffset); err != nil {
		return nil, fxerr.IO(err, "failed to read superblock")
	}
	sb, err := storage.DecodeSuperblock(buf)
	if err != nil {
		return nil, err
	}
	s.pageSize = int(sb.PageSize)

	h, fellBack, err := storage.ReadCommitHeaders(s.storage).Latest()
	if err != nil {
		return nil, err
	}
	if fellBack {
		s.log.Warn("newest commit header is invalid, recovered from older slot", map[string]interface{}{
			"path":  s.path,
			"seqNo": h.SeqNo,
		})
	}
	if end := storage.PageOffset(h.AllocTail, s.pageSize); end > size {
		return nil, fxerr.Corruption(fmt.Sprintf("alloc tail %d ends at %d, beyond file size %d", h.AllocTail, end, size))
	}
	return h, nil
}

// ID 存储实例标识（每次打开随机生成，不持久化）
// EN: ID returns the random identity of this open store.
func (s *Store) ID() uuid.UUID {
	return s.id
}

// Path 返回存储路径，内存存储为 ":memory:"
// EN: Path returns the store path, ":memory:" for memory stores.
func (s *Store) Path() string {
	return s.path
}

// PageSize 返回页大小
// EN: PageSize returns the page size of the store.
func (s *Store) PageSize() int {
	return s.pageSize
}

// CommitMode 返回提交模式
// EN: CommitMode returns the configured commit mode.
func (s *Store) CommitMode() CommitMode {
	return s.opts.CommitMode
}

// IsClosed 是否已关闭
// EN: IsClosed reports whether Close has completed.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// ActiveReaders 打开中的读事务数量
// EN: ActiveReaders returns the number of open read transactions.
func (s *Store) ActiveReaders() int64 {
	return s.readers.Load()
}

// Registry 返回校验与导出使用的编解码器注册表
// EN: Registry returns the codec registry used by verify and export.
func (s *Store) Registry() *codec.Registry {
	return s.registry
}

// SetRegistry 替换编解码器注册表
// EN: SetRegistry replaces the codec registry.
func (s *Store) SetRegistry(r *codec.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

// CacheStats 返回页缓存统计
// EN: CacheStats returns page cache counters.
func (s *Store) CacheStats() storage.CacheStats {
	return s.cache.Stats()
}

// HasPendingChanges 是否有未提交的修改
// EN: HasPendingChanges reports whether BATCH changes await Commit.
func (s *Store) HasPendingChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// mutate 在写锁下执行修改；AUTO 模式下立即提交
// fn 返回原快照表示无修改
// EN: mutate runs fn under the write lock and, in AUTO mode, commits the result.
// Returning the input snapshot unchanged means nothing was modified.
func (s *Store) mutate(op string, fn func(w *snapshot) (*snapshot, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errClosed(op)
	}

	w := s.working
	next, err := fn(w)
	if err != nil {
		s.pager.SetAllocTail(w.allocTail)
		return withOp(err, op)
	}
	if next == w {
		s.pager.SetAllocTail(w.allocTail)
		return nil
	}

	next.allocTail = s.pager.AllocTail()
	s.working = next
	s.pending = true

	if s.opts.CommitMode == CommitAuto {
		if err := s.commitLocked(op); err != nil {
			s.rollbackLocked()
			return err
		}
	}
	return nil
}

// withOp 为没有操作名的错误补充操作名
// EN: withOp tags store errors that carry no operation name yet.
func withOp(err error, op string) error {
	if e, ok := err.(*fxerr.Error); ok && e.Op == "" {
		return e.WithOp(op)
	}
	return err
}

// view 在写锁下读取工作快照中的集合
// EN: view runs fn on the working state of collection id under the write lock.
func (s *Store) view(op string, id uint64, fn func(c *collectionState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errClosed(op)
	}
	c, ok := s.working.byID[id]
	if !ok {
		return fxerr.NotFound("collection no longer exists").WithOp(op)
	}
	return withOp(fn(c), op)
}

// update 修改单个集合的状态；fn 返回原状态表示无修改
// EN: update replaces the state of collection id with fn's result.
func (s *Store) update(op string, id uint64, fn func(c *collectionState) (*collectionState, error)) error {
	return s.mutate(op, func(w *snapshot) (*snapshot, error) {
		c, ok := w.byID[id]
		if !ok {
			return nil, fxerr.NotFound("collection no longer exists")
		}
		next, err := fn(c)
		if err != nil {
			return nil, err
		}
		if next == c {
			return w, nil
		}
		return w.withCollection(next), nil
	})
}

// Commit 提交 BATCH 模式下累积的修改；AUTO 模式下无操作
// EN: Commit publishes pending BATCH changes. It is a no-op in AUTO mode.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errClosed("commit")
	}
	if s.opts.CommitMode == CommitAuto || !s.pending {
		return nil
	}
	return s.commitLocked("commit")
}

// commitLocked 写目录链与提交头，然后发布快照
// 顺序：数据页与目录页 -> fsync -> 提交头 -> fsync
// EN: commitLocked writes the catalog chain and commit header, then publishes the
// snapshot. Order: pages, fsync, header, fsync.
func (s *Store) commitLocked(op string) error {
	start := time.Now()
	w := s.working
	prev := s.committed.Load()

	fail := func(err error) error {
		s.pager.SetAllocTail(w.allocTail)
		return withOp(err, op)
	}

	catalogRoot, err := writeCatalog(s.pager, w)
	if err != nil {
		return fail(err)
	}
	if err := s.syncIfDurable(); err != nil {
		return fail(err)
	}

	h := &storage.CommitHeader{
		SeqNo:            prev.seqNo + 1,
		AllocTail:        s.pager.AllocTail(),
		CatalogRoot:      catalogRoot,
		NextCollectionID: w.nextCollectionID,
	}
	if err := failpoint.Hit("store.commit.header"); err != nil {
		return fail(fxerr.IO(err, "failed to write commit header"))
	}
	if err := storage.WriteCommitHeader(s.storage, h); err != nil {
		return fail(err)
	}
	if err := s.syncIfDurable(); err != nil {
		return fail(err)
	}

	next := w.clone()
	next.seqNo = h.SeqNo
	next.catalogRoot = catalogRoot
	next.allocTail = h.AllocTail
	s.committed.Store(next)
	s.working = next
	s.pending = false

	elapsed := time.Since(start)
	ctx := map[string]interface{}{
		"op":           op,
		"seqNo":        h.SeqNo,
		"allocTail":    h.AllocTail,
		"pagesWritten": h.AllocTail - prev.allocTail,
	}
	if s.opts.SlowCommitThreshold > 0 {
		s.log.LogSlowOperation("commit", elapsed, ctx)
	}
	ctx["durationMs"] = elapsed.Milliseconds()
	s.log.Debug("commit", ctx)
	return nil
}

func (s *Store) syncIfDurable() error {
	if s.opts.Durability != DurabilitySync {
		return nil
	}
	if err := s.storage.Sync(); err != nil {
		return fxerr.IO(err, "failed to sync storage")
	}
	return nil
}

// Rollback 丢弃 BATCH 模式下未提交的修改；AUTO 模式下无操作
// EN: Rollback discards pending BATCH changes. It is a no-op in AUTO mode.
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errClosed("rollback")
	}
	if s.opts.CommitMode == CommitAuto || !s.pending {
		return nil
	}
	s.rollbackLocked()
	s.log.Info("rolled back pending changes", map[string]interface{}{
		"seqNo": s.working.seqNo,
	})
	return nil
}

// rollbackLocked 回到已提交快照；其后分配的页可被重用
// EN: rollbackLocked returns to the committed snapshot. Pages allocated since are
// unreachable from any published snapshot and get reused.
func (s *Store) rollbackLocked() {
	c := s.committed.Load()
	s.working = c
	s.pager.SetAllocTail(c.allocTail)
	s.pending = false
}

// Close 关闭存储，按 OnClosePolicy 处理未提交修改；重复关闭无操作
// EN: Close applies OnClosePolicy to pending changes and releases the storage.
// Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil
	}

	if s.pending {
		switch s.opts.OnClosePolicy {
		case CloseCommit:
			if err := s.commitLocked("close"); err != nil {
				return err
			}
		case CloseRollback:
			s.rollbackLocked()
		default:
			return errPending("close")
		}
	}

	s.closed.Store(true)
	err := s.storage.Close()
	s.cache.Clear()
	if err != nil {
		return fxerr.IO(err, "failed to close storage").WithOp("close")
	}

	s.log.Info("store closed", map[string]interface{}{
		"path":    s.path,
		"storeId": s.id.String(),
		"seqNo":   s.committed.Load().seqNo,
	})
	return nil
}

// CollectionInfo 集合概要
// EN: CollectionInfo describes one collection.
type CollectionInfo struct {
	ID         uint64
	Name       string
	Kind       CollectionKind
	KeyCodec   codec.Ref
	ValueCodec codec.Ref
	Size       int64
	CreatedAt  time.Time
}

func infoOf(c *collectionState) CollectionInfo {
	return CollectionInfo{
		ID:         c.ID,
		Name:       c.Name,
		Kind:       c.Kind,
		KeyCodec:   c.KeyCodec,
		ValueCodec: c.ValueCodec,
		Size:       c.Count,
		CreatedAt:  time.UnixMilli(c.CreatedAt),
	}
}

// ValidateCollectionName 检查集合名长度
// EN: ValidateCollectionName requires 1 to MaxCollectionNameLength bytes.
func ValidateCollectionName(name string) error {
	if len(name) == 0 {
		return fxerr.IllegalArgument("collection name must not be empty")
	}
	if len(name) > MaxCollectionNameLength {
		return fxerr.IllegalArgument(fmt.Sprintf("collection name is %d bytes, limit is %d", len(name), MaxCollectionNameLength))
	}
	return nil
}

// List 列出工作快照中的集合（按名称排序）
// EN: List returns the collections of the working snapshot sorted by name.
func (s *Store) List() ([]CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, errClosed("list")
	}
	out := make([]CollectionInfo, 0, len(s.working.byID))
	for _, c := range s.working.byID {
		out = append(out, infoOf(c))
	}
	sortInfos(out)
	return out, nil
}

func sortInfos(infos []CollectionInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
}

// Exists 集合是否存在
// EN: Exists reports whether a collection named name exists.
func (s *Store) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false, errClosed("exists")
	}
	_, ok := s.working.lookup(name)
	return ok, nil
}

// Drop 删除集合；不存在时返回 false
// EN: Drop removes a collection and reports whether it existed. Its pages become
// dead space until compaction.
func (s *Store) Drop(name string) (bool, error) {
	dropped := false
	err := s.mutate("drop", func(w *snapshot) (*snapshot, error) {
		c, ok := w.lookup(name)
		if !ok {
			return w, nil
		}
		dropped = true
		return w.withoutCollection(c.ID), nil
	})
	return dropped, err
}

// Rename 重命名集合；源不存在时返回 false，目标已存在时报错
// EN: Rename renames a collection. It reports false when oldName is missing and
// fails with AlreadyExists when newName is taken. Open handles stay valid.
func (s *Store) Rename(oldName, newName string) (bool, error) {
	if err := ValidateCollectionName(newName); err != nil {
		return false, withOp(err, "rename")
	}
	renamed := false
	err := s.mutate("rename", func(w *snapshot) (*snapshot, error) {
		c, ok := w.lookup(oldName)
		if !ok {
			return w, nil
		}
		if oldName == newName {
			renamed = true
			return w, nil
		}
		if _, taken := w.lookup(newName); taken {
			return nil, fxerr.AlreadyExists(fmt.Sprintf("collection %q already exists", newName))
		}
		next := c.clone()
		next.Name = newName
		renamed = true
		return w.withCollection(next), nil
	})
	return renamed, err
}

type attachMode int

const (
	attachCreate attachMode = iota
	attachOpen
	attachCreateOrOpen
)

// attach 创建或打开集合，返回其句柄信息
// EN: attach creates or opens a collection and returns the handle core.
func (s *Store) attach(op, name string, kind CollectionKind, key, value codec.Ref, mode attachMode) (collectionHandle, error) {
	var h collectionHandle
	if err := ValidateCollectionName(name); err != nil {
		return h, withOp(err, op)
	}

	err := s.mutate(op, func(w *snapshot) (*snapshot, error) {
		if c, ok := w.lookup(name); ok {
			if mode == attachCreate {
				return nil, fxerr.AlreadyExists(fmt.Sprintf("collection %q already exists", name))
			}
			if err := c.matches(kind, key, value); err != nil {
				return nil, err
			}
			h = s.handle(c)
			return w, nil
		}
		if mode == attachOpen {
			return nil, fxerr.NotFound(fmt.Sprintf("collection %q does not exist", name))
		}

		c := &collectionState{
			ID:         w.nextCollectionID,
			Name:       name,
			Kind:       kind,
			KeyCodec:   key,
			ValueCodec: value,
			Root:       storage.NoPage,
			HeadSeq:    -1,
			TailSeq:    0,
			CreatedAt:  time.Now().UnixMilli(),
		}
		next := w.withCollection(c)
		next.nextCollectionID++
		h = s.handle(c)
		return next, nil
	})
	return h, err
}

func (s *Store) handle(c *collectionState) collectionHandle {
	return collectionHandle{store: s, storeID: s.id, id: c.ID, name: c.Name, kind: c.Kind}
}

func (s *Store) btree(cmp codec.Compare) *storage.BTree {
	return storage.NewBTree(s.pager, storage.Compare(cmp))
}

func (s *Store) ost() *storage.OST {
	return storage.NewOST(s.pager)
}

// collectionHandle 所有集合句柄共有的部分
// EN: collectionHandle is the part shared by every typed handle.
type collectionHandle struct {
	store   *Store
	storeID uuid.UUID
	id      uint64
	name    string
	kind    CollectionKind
}

// Name 打开时的集合名
// EN: Name returns the collection name at the time the handle was opened.
func (h *collectionHandle) Name() string { return h.name }

// Kind 集合类型
// EN: Kind returns the collection kind.
func (h *collectionHandle) Kind() CollectionKind { return h.kind }

// Store 句柄所属的存储
// EN: Store returns the owning store.
func (h *collectionHandle) Store() *Store { return h.store }

func (h *collectionHandle) core() *collectionHandle { return h }
