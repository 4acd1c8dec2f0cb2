// Created by Yanjunhui

package engine

import (
	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// List 按下标访问的列表
// EN: List is an indexed sequence backed by the order-statistics tree.
type List[E any] struct {
	collectionHandle
	ec codec.Codec[E]
}

// CreateList 创建列表
// EN: CreateList creates a list and fails with AlreadyExists if the name is taken.
func CreateList[E any](s *Store, name string, ec codec.Codec[E]) (*List[E], error) {
	return attachList(s, "createList", name, ec, attachCreate)
}

// OpenList 打开已有列表
// EN: OpenList opens an existing list.
func OpenList[E any](s *Store, name string, ec codec.Codec[E]) (*List[E], error) {
	return attachList(s, "openList", name, ec, attachOpen)
}

// CreateOrOpenList 打开列表，不存在时创建
// EN: CreateOrOpenList opens the list, creating it when missing.
func CreateOrOpenList[E any](s *Store, name string, ec codec.Codec[E]) (*List[E], error) {
	return attachList(s, "createOrOpenList", name, ec, attachCreateOrOpen)
}

func attachList[E any](s *Store, op, name string, ec codec.Codec[E], mode attachMode) (*List[E], error) {
	h, err := s.attach(op, name, KindList, codec.Ref{}, codec.RefOf(ec), mode)
	if err != nil {
		return nil, err
	}
	return &List[E]{collectionHandle: h, ec: ec}, nil
}

// checkIndex 校验下标；allowEnd 允许 index == size（插入）
// EN: checkIndex validates index against size; allowEnd admits index == size.
func checkIndex(index, size int64, allowEnd bool) error {
	limit := size
	if allowEnd {
		limit++
	}
	if index < 0 || index >= limit {
		return fxerr.OutOfRange(index, limit)
	}
	return nil
}

// Add 追加到末尾
// EN: Add appends e.
func (l *List[E]) Add(e E) error {
	v, err := l.ec.Encode(e)
	if err != nil {
		return err
	}
	return l.store.update("List.Add", l.id, func(c *collectionState) (*collectionState, error) {
		return l.insert(c, c.Count, v)
	})
}

// Insert 在 index 处插入，0 <= index <= size
// EN: Insert places e at index, shifting later elements. 0 <= index <= size.
func (l *List[E]) Insert(index int64, e E) error {
	v, err := l.ec.Encode(e)
	if err != nil {
		return err
	}
	return l.store.update("List.Insert", l.id, func(c *collectionState) (*collectionState, error) {
		if err := checkIndex(index, c.Count, true); err != nil {
			return nil, err
		}
		return l.insert(c, index, v)
	})
}

func (l *List[E]) insert(c *collectionState, index int64, v []byte) (*collectionState, error) {
	root, err := l.store.ost().InsertAt(c.Root, uint64(index), c.TailSeq, v)
	if err != nil {
		return nil, err
	}
	next := c.clone()
	next.Root = root
	next.Count++
	next.TailSeq++
	return next, nil
}

// Get 读取下标处的元素
// EN: Get returns the element at index.
func (l *List[E]) Get(index int64) (E, error) {
	var out E
	err := l.store.view("List.Get", l.id, func(c *collectionState) error {
		var err error
		out, err = l.get(c, index)
		return err
	})
	return out, err
}

func (l *List[E]) get(c *collectionState, index int64) (E, error) {
	var zero E
	if err := checkIndex(index, c.Count, false); err != nil {
		return zero, err
	}
	_, v, err := l.store.ost().Get(c.Root, uint64(index))
	if err != nil {
		return zero, err
	}
	return l.ec.Decode(v)
}

// Set 替换下标处的元素，返回旧值
// EN: Set replaces the element at index and returns the previous one.
func (l *List[E]) Set(index int64, e E) (E, error) {
	var prev E
	v, err := l.ec.Encode(e)
	if err != nil {
		return prev, err
	}
	err = l.store.update("List.Set", l.id, func(c *collectionState) (*collectionState, error) {
		if err := checkIndex(index, c.Count, false); err != nil {
			return nil, err
		}
		root, old, err := l.store.ost().SetAt(c.Root, uint64(index), v)
		if err != nil {
			return nil, err
		}
		if prev, err = l.ec.Decode(old); err != nil {
			return nil, err
		}
		next := c.clone()
		next.Root = root
		return next, nil
	})
	return prev, err
}

// RemoveAt 删除下标处的元素并返回
// EN: RemoveAt deletes and returns the element at index.
func (l *List[E]) RemoveAt(index int64) (E, error) {
	var removed E
	err := l.store.update("List.RemoveAt", l.id, func(c *collectionState) (*collectionState, error) {
		if err := checkIndex(index, c.Count, false); err != nil {
			return nil, err
		}
		root, _, v, err := l.store.ost().RemoveAt(c.Root, uint64(index))
		if err != nil {
			return nil, err
		}
		if removed, err = l.ec.Decode(v); err != nil {
			return nil, err
		}
		next := c.clone()
		next.Root = root
		next.Count--
		return next, nil
	})
	return removed, err
}

// IndexOf 第一个编码相等的元素下标，未找到返回 -1（线性扫描）
// EN: IndexOf returns the index of the first element whose encoding equals e's,
// or -1. It scans linearly.
func (l *List[E]) IndexOf(e E) (int64, error) {
	v, err := l.ec.Encode(e)
	if err != nil {
		return -1, err
	}
	idx := int64(-1)
	err = l.store.view("List.IndexOf", l.id, func(c *collectionState) error {
		idx, err = l.store.ost().IndexOf(c.Root, v)
		return err
	})
	return idx, err
}

// Size 元素个数（O(1)）
// EN: Size returns the number of elements in O(1).
func (l *List[E]) Size() (int64, error) {
	var n int64
	err := l.store.view("List.Size", l.id, func(c *collectionState) error {
		n = c.Count
		return nil
	})
	return n, err
}

// Ascend 按下标顺序遍历；fn 内不能调用本存储
// EN: Ascend visits elements in index order until fn returns false. fn must not
// call back into the store.
func (l *List[E]) Ascend(fn func(index int64, e E) bool) error {
	return l.store.view("List.Ascend", l.id, func(c *collectionState) error {
		return walkOST(l.store.ost(), c, l.ec, fn)
	})
}

// walkOST 顺序遍历并解码
// EN: walkOST decodes every element of c in rank order.
func walkOST[E any](t *storage.OST, c *collectionState, ec codec.Codec[E], fn func(int64, E) bool) error {
	return t.Ascend(c.Root, 0, func(index uint64, _ int64, v []byte) (bool, error) {
		e, err := ec.Decode(v)
		if err != nil {
			return false, err
		}
		return fn(int64(index), e), nil
	})
}

// Clear 清空列表
// EN: Clear removes every element.
func (l *List[E]) Clear() error {
	return l.store.update("List.Clear", l.id, func(c *collectionState) (*collectionState, error) {
		if c.Root == storage.NoPage {
			return c, nil
		}
		next := c.clone()
		next.Root = storage.NoPage
		next.Count = 0
		return next, nil
	})
}

// GetIn 在读事务快照中按下标读取
// EN: GetIn returns the element at index in the snapshot of tx.
func (l *List[E]) GetIn(tx *ReadTxn, index int64) (E, error) {
	c, err := tx.resolve("List.GetIn", l)
	if err != nil {
		var zero E
		return zero, err
	}
	return l.get(c, index)
}

// IndexOfIn 在读事务快照中查找元素
// EN: IndexOfIn is IndexOf over the snapshot of tx.
func (l *List[E]) IndexOfIn(tx *ReadTxn, e E) (int64, error) {
	c, err := tx.resolve("List.IndexOfIn", l)
	if err != nil {
		return -1, err
	}
	v, err := l.ec.Encode(e)
	if err != nil {
		return -1, err
	}
	return l.store.ost().IndexOf(c.Root, v)
}

// SizeIn 读事务快照中的元素个数
// EN: SizeIn returns the element count in the snapshot of tx.
func (l *List[E]) SizeIn(tx *ReadTxn) (int64, error) {
	c, err := tx.resolve("List.SizeIn", l)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

// AscendIn 在读事务快照中遍历
// EN: AscendIn walks the snapshot of tx without holding the write lock.
func (l *List[E]) AscendIn(tx *ReadTxn, fn func(index int64, e E) bool) error {
	c, err := tx.resolve("List.AscendIn", l)
	if err != nil {
		return err
	}
	return walkOST(l.store.ost(), c, l.ec, fn)
}
