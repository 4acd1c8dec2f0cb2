// Created by Yanjunhui

package engine

import (
	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// Set 有序集合，元素存为没有值的键
// EN: Set is a key-ordered set; elements are stored as keys with empty values.
type Set[E any] struct {
	collectionHandle
	ec codec.Codec[E]
}

// CreateSet 创建集合
// EN: CreateSet creates a set and fails with AlreadyExists if the name is taken.
func CreateSet[E any](s *Store, name string, ec codec.Codec[E]) (*Set[E], error) {
	return attachSet(s, "createSet", name, ec, attachCreate)
}

// OpenSet 打开已有集合
// EN: OpenSet opens an existing set.
func OpenSet[E any](s *Store, name string, ec codec.Codec[E]) (*Set[E], error) {
	return attachSet(s, "openSet", name, ec, attachOpen)
}

// CreateOrOpenSet 打开集合，不存在时创建
// EN: CreateOrOpenSet opens the set, creating it when missing.
func CreateOrOpenSet[E any](s *Store, name string, ec codec.Codec[E]) (*Set[E], error) {
	return attachSet(s, "createOrOpenSet", name, ec, attachCreateOrOpen)
}

func attachSet[E any](s *Store, op, name string, ec codec.Codec[E], mode attachMode) (*Set[E], error) {
	h, err := s.attach(op, name, KindSet, codec.RefOf(ec), codec.Ref{}, mode)
	if err != nil {
		return nil, err
	}
	return &Set[E]{collectionHandle: h, ec: ec}, nil
}

func (s *Set[E]) tree() *storage.BTree {
	return s.store.btree(s.ec.Compare)
}

// Add 加入元素，返回是否新加入
// EN: Add inserts e and reports whether it was not present before.
func (s *Set[E]) Add(e E) (bool, error) {
	k, err := s.ec.Encode(e)
	if err != nil {
		return false, err
	}
	added := false
	err = s.store.update("Set.Add", s.id, func(c *collectionState) (*collectionState, error) {
		found, err := s.tree().Contains(c.Root, k)
		if err != nil || found {
			return c, err
		}
		root, _, err := s.tree().Put(c.Root, k, nil)
		if err != nil {
			return nil, err
		}
		added = true
		next := c.clone()
		next.Root = root
		next.Count++
		return next, nil
	})
	return added, err
}

// Remove 删除元素，返回是否存在
// EN: Remove deletes e and reports whether it was present.
func (s *Set[E]) Remove(e E) (bool, error) {
	k, err := s.ec.Encode(e)
	if err != nil {
		return false, err
	}
	removed := false
	err = s.store.update("Set.Remove", s.id, func(c *collectionState) (*collectionState, error) {
		root, ok, err := s.tree().Delete(c.Root, k)
		if err != nil || !ok {
			return c, err
		}
		removed = true
		next := c.clone()
		next.Root = root
		next.Count--
		return next, nil
	})
	return removed, err
}

// Contains 是否包含元素
// EN: Contains reports whether e is present.
func (s *Set[E]) Contains(e E) (bool, error) {
	k, err := s.ec.Encode(e)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.store.view("Set.Contains", s.id, func(c *collectionState) error {
		found, err = s.tree().Contains(c.Root, k)
		return err
	})
	return found, err
}

// First 最小元素
// EN: First returns the smallest element.
func (s *Set[E]) First() (E, bool, error) {
	return s.edgeLive("Set.First", true)
}

// Last 最大元素
// EN: Last returns the largest element.
func (s *Set[E]) Last() (E, bool, error) {
	return s.edgeLive("Set.Last", false)
}

func (s *Set[E]) edgeLive(op string, first bool) (E, bool, error) {
	var out E
	var found bool
	err := s.store.view(op, s.id, func(c *collectionState) error {
		var err error
		out, found, err = s.edge(c, first)
		return err
	})
	return out, found, err
}

func (s *Set[E]) edge(c *collectionState, first bool) (E, bool, error) {
	var (
		zero  E
		k     []byte
		found bool
		err   error
	)
	if first {
		k, _, found, err = s.tree().First(c.Root)
	} else {
		k, _, found, err = s.tree().Last(c.Root)
	}
	if err != nil || !found {
		return zero, false, err
	}
	e, err := s.ec.Decode(k)
	if err != nil {
		return zero, false, err
	}
	return e, true, nil
}

// Floor 不大于 e 的最大元素
// EN: Floor returns the greatest element less than or equal to e.
func (s *Set[E]) Floor(e E) (E, bool, error) {
	return s.bound("Set.Floor", e, boundFloor)
}

// Ceiling 不小于 e 的最小元素
// EN: Ceiling returns the least element greater than or equal to e.
func (s *Set[E]) Ceiling(e E) (E, bool, error) {
	return s.bound("Set.Ceiling", e, boundCeiling)
}

// Lower 严格小于 e 的最大元素
// EN: Lower returns the greatest element strictly less than e.
func (s *Set[E]) Lower(e E) (E, bool, error) {
	return s.bound("Set.Lower", e, boundLower)
}

// Higher 严格大于 e 的最小元素
// EN: Higher returns the least element strictly greater than e.
func (s *Set[E]) Higher(e E) (E, bool, error) {
	return s.bound("Set.Higher", e, boundHigher)
}

func (s *Set[E]) bound(op string, e E, b boundKind) (E, bool, error) {
	var out E
	k, err := s.ec.Encode(e)
	if err != nil {
		return out, false, err
	}
	var found bool
	err = s.store.view(op, s.id, func(c *collectionState) error {
		kb, _, ok, err := b.search(s.tree(), c.Root, k)
		if err != nil || !ok {
			return err
		}
		out, err = s.ec.Decode(kb)
		found = err == nil
		return err
	})
	return out, found, err
}

// PollFirst 删除并返回最小元素
// EN: PollFirst removes and returns the smallest element.
func (s *Set[E]) PollFirst() (E, bool, error) {
	return s.poll("Set.PollFirst", true)
}

// PollLast 删除并返回最大元素
// EN: PollLast removes and returns the largest element.
func (s *Set[E]) PollLast() (E, bool, error) {
	return s.poll("Set.PollLast", false)
}

func (s *Set[E]) poll(op string, first bool) (E, bool, error) {
	var out, zero E
	found := false
	err := s.store.update(op, s.id, func(c *collectionState) (*collectionState, error) {
		k, _, ok, err := edgeKey(s.tree(), c.Root, first)
		if err != nil || !ok {
			return c, err
		}
		e, err := s.ec.Decode(k)
		if err != nil {
			return nil, err
		}
		root, _, err := s.tree().Delete(c.Root, k)
		if err != nil {
			return nil, err
		}
		out, found = e, true
		next := c.clone()
		next.Root = root
		next.Count--
		return next, nil
	})
	if err != nil {
		return zero, false, err
	}
	return out, found, nil
}

// Size 元素个数（O(1)）
// EN: Size returns the number of elements in O(1).
func (s *Set[E]) Size() (int64, error) {
	var n int64
	err := s.store.view("Set.Size", s.id, func(c *collectionState) error {
		n = c.Count
		return nil
	})
	return n, err
}

// Ascend 升序遍历；fn 内不能调用本存储
// EN: Ascend visits elements in order until fn returns false. fn must not call
// back into the store.
func (s *Set[E]) Ascend(fn func(e E) bool) error {
	return s.store.view("Set.Ascend", s.id, func(c *collectionState) error {
		return s.walk(c, nil, nil, fn)
	})
}

// AscendRange 遍历 [from, to) 区间内的元素
// EN: AscendRange visits elements e with from <= e < to in order.
func (s *Set[E]) AscendRange(from, to E, fn func(e E) bool) error {
	lo, hi, err := s.rangeKeys(from, to)
	if err != nil {
		return err
	}
	return s.store.view("Set.AscendRange", s.id, func(c *collectionState) error {
		return s.walk(c, lo, hi, fn)
	})
}

// Descend 降序遍历
// EN: Descend visits elements in reverse order until fn returns false.
func (s *Set[E]) Descend(fn func(e E) bool) error {
	return s.store.view("Set.Descend", s.id, func(c *collectionState) error {
		return s.walkDesc(c, fn)
	})
}

func (s *Set[E]) rangeKeys(from, to E) ([]byte, []byte, error) {
	lo, err := s.ec.Encode(from)
	if err != nil {
		return nil, nil, err
	}
	hi, err := s.ec.Encode(to)
	if err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

func (s *Set[E]) walk(c *collectionState, lo, hi []byte, fn func(E) bool) error {
	return s.tree().Ascend(c.Root, lo, func(k, _ []byte) (bool, error) {
		if hi != nil && s.ec.Compare(k, hi) >= 0 {
			return false, nil
		}
		e, err := s.ec.Decode(k)
		if err != nil {
			return false, err
		}
		return fn(e), nil
	})
}

func (s *Set[E]) walkDesc(c *collectionState, fn func(E) bool) error {
	return s.tree().Descend(c.Root, nil, func(k, _ []byte) (bool, error) {
		e, err := s.ec.Decode(k)
		if err != nil {
			return false, err
		}
		return fn(e), nil
	})
}

// Clear 清空集合
// EN: Clear removes every element.
func (s *Set[E]) Clear() error {
	return s.store.update("Set.Clear", s.id, func(c *collectionState) (*collectionState, error) {
		if c.Root == storage.NoPage {
			return c, nil
		}
		next := c.clone()
		next.Root = storage.NoPage
		next.Count = 0
		return next, nil
	})
}

// ContainsIn 在读事务快照中检查元素
// EN: ContainsIn checks e in the snapshot of tx.
func (s *Set[E]) ContainsIn(tx *ReadTxn, e E) (bool, error) {
	c, err := tx.resolve("Set.ContainsIn", s)
	if err != nil {
		return false, err
	}
	k, err := s.ec.Encode(e)
	if err != nil {
		return false, err
	}
	return s.tree().Contains(c.Root, k)
}

// FirstIn 读事务快照中的最小元素
// EN: FirstIn returns the smallest element in the snapshot of tx.
func (s *Set[E]) FirstIn(tx *ReadTxn) (E, bool, error) {
	c, err := tx.resolve("Set.FirstIn", s)
	if err != nil {
		var zero E
		return zero, false, err
	}
	return s.edge(c, true)
}

// LastIn 读事务快照中的最大元素
// EN: LastIn returns the largest element in the snapshot of tx.
func (s *Set[E]) LastIn(tx *ReadTxn) (E, bool, error) {
	c, err := tx.resolve("Set.LastIn", s)
	if err != nil {
		var zero E
		return zero, false, err
	}
	return s.edge(c, false)
}

// SizeIn 读事务快照中的元素个数
// EN: SizeIn returns the element count in the snapshot of tx.
func (s *Set[E]) SizeIn(tx *ReadTxn) (int64, error) {
	c, err := tx.resolve("Set.SizeIn", s)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

// AscendIn 在读事务快照中遍历
// EN: AscendIn walks the snapshot of tx without holding the write lock.
func (s *Set[E]) AscendIn(tx *ReadTxn, fn func(e E) bool) error {
	c, err := tx.resolve("Set.AscendIn", s)
	if err != nil {
		return err
	}
	return s.walk(c, nil, nil, fn)
}

// DescendIn 在读事务快照中降序遍历
// EN: DescendIn walks the snapshot of tx in reverse order.
func (s *Set[E]) DescendIn(tx *ReadTxn, fn func(e E) bool) error {
	c, err := tx.resolve("Set.DescendIn", s)
	if err != nil {
		return err
	}
	return s.walkDesc(c, fn)
}
