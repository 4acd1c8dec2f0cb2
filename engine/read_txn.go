// Created by Yanjunhui

package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// ReadTxn 只读事务，读取开始时刻的已提交快照
// 典型用法：tx, err := s.BeginRead(); defer tx.Close()
// EN: ReadTxn reads the snapshot committed when it began. Later commits are
// invisible to it. Typical use: tx, err := s.BeginRead(); defer tx.Close().
type ReadTxn struct {
	store  *Store
	snap   *snapshot
	closed atomic.Bool
}

// BeginRead 开始只读事务，不获取写锁
// EN: BeginRead starts a read transaction without taking the write lock.
func (s *Store) BeginRead() (*ReadTxn, error) {
	if s.closed.Load() {
		return nil, errClosed("beginRead")
	}
	tx := &ReadTxn{store: s, snap: s.committed.Load()}
	s.readers.Add(1)
	return tx, nil
}

// Close 结束事务；重复调用无操作
// EN: Close ends the transaction. Closing twice is a no-op.
func (tx *ReadTxn) Close() {
	if tx.closed.CompareAndSwap(false, true) {
		tx.store.readers.Add(-1)
	}
}

// IsActive 事务是否仍可使用
// EN: IsActive reports whether neither the transaction nor its store is closed.
func (tx *ReadTxn) IsActive() bool {
	return !tx.closed.Load() && !tx.store.closed.Load()
}

// SnapshotSeq 事务所见快照的提交序号
// EN: SnapshotSeq returns the commit sequence number the transaction reads.
func (tx *ReadTxn) SnapshotSeq() uint64 {
	return tx.snap.seqNo
}

// Collections 快照中的集合（按名称排序）
// EN: Collections lists the collections visible in the snapshot, sorted by name.
func (tx *ReadTxn) Collections() ([]CollectionInfo, error) {
	if tx.closed.Load() {
		return nil, errTxClosed("collections")
	}
	if tx.store.closed.Load() {
		return nil, errClosed("collections")
	}
	out := make([]CollectionInfo, 0, len(tx.snap.byID))
	for _, c := range tx.snap.sorted() {
		out = append(out, infoOf(c))
	}
	sortInfos(out)
	return out, nil
}

// handleCore 可被事务解析的句柄
// EN: handleCore is implemented by every typed collection handle.
type handleCore interface {
	core() *collectionHandle
}

// resolve 校验事务、存储与句柄归属，返回快照中的集合状态
// EN: resolve validates the transaction, the store and the handle's owner, and
// returns the collection state in the snapshot.
func (tx *ReadTxn) resolve(op string, h handleCore) (*collectionState, error) {
	if tx.closed.Load() {
		return nil, errTxClosed(op)
	}
	if tx.store.closed.Load() {
		return nil, errClosed(op)
	}
	core := h.core()
	if core.storeID != tx.store.id {
		return nil, fxerr.IllegalArgument(fmt.Sprintf("%s: collection belongs to a different store", op))
	}
	c, ok := tx.snap.byID[core.id]
	if !ok {
		return nil, fxerr.NotFound(fmt.Sprintf("collection %q does not exist in this snapshot", core.name)).WithOp(op)
	}
	return c, nil
}

// RawEntry 未解码的条目，供不知道集合类型的工具使用
// EN: RawEntry is an undecoded entry for tools that do not know the collection
// types. Key is nil for lists and deques; Value is empty for sets.
type RawEntry struct {
	Index int64
	Key   []byte
	Value []byte
}

// ScanRaw 按集合顺序遍历快照中的原始条目；fn 返回 false 时停止
// EN: ScanRaw walks the raw entries of the named collection in collection order
// until fn returns false. Slices passed to fn must not be retained.
func (tx *ReadTxn) ScanRaw(name string, fn func(e RawEntry) bool) error {
	const op = "ReadTxn.ScanRaw"
	if tx.closed.Load() {
		return errTxClosed(op)
	}
	if tx.store.closed.Load() {
		return errClosed(op)
	}
	c, ok := tx.snap.lookup(name)
	if !ok {
		return fxerr.NotFound(fmt.Sprintf("collection %q does not exist in this snapshot", name)).WithOp(op)
	}

	s := tx.store
	if c.Kind.ordered() {
		var index int64
		return s.btree(nil).Ascend(c.Root, nil, func(k, v []byte) (bool, error) {
			more := fn(RawEntry{Index: index, Key: k, Value: v})
			index++
			return more, nil
		})
	}
	return s.ost().Ascend(c.Root, 0, func(index uint64, _ int64, v []byte) (bool, error) {
		return fn(RawEntry{Index: int64(index), Value: v}), nil
	})
}
