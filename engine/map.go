// Created by Yanjunhui

package engine

import (
	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// Map 有序映射
// EN: Map is a key-ordered map backed by a copy-on-write B+tree.
type Map[K, V any] struct {
	collectionHandle
	kc codec.Codec[K]
	vc codec.Codec[V]
}

// Entry 键值对
// EN: Entry is one key/value pair.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// boundKind 相对查找的方向
// EN: boundKind selects a relative lookup on an ordered tree.
type boundKind int

const (
	boundFloor boundKind = iota
	boundCeiling
	boundLower
	boundHigher
)

func (b boundKind) search(t *storage.BTree, root uint64, key []byte) ([]byte, []byte, bool, error) {
	switch b {
	case boundFloor:
		return t.Floor(root, key)
	case boundCeiling:
		return t.Ceiling(root, key)
	case boundLower:
		return t.Lower(root, key)
	default:
		return t.Higher(root, key)
	}
}

func edgeKey(t *storage.BTree, root uint64, first bool) ([]byte, []byte, bool, error) {
	if first {
		return t.First(root)
	}
	return t.Last(root)
}

// CreateMap 创建映射；同名集合已存在时报错
// EN: CreateMap creates a map and fails with AlreadyExists if the name is taken.
func CreateMap[K, V any](s *Store, name string, kc codec.Codec[K], vc codec.Codec[V]) (*Map[K, V], error) {
	return attachMap(s, "createMap", name, kc, vc, attachCreate)
}

// OpenMap 打开已有映射
// EN: OpenMap opens an existing map.
func OpenMap[K, V any](s *Store, name string, kc codec.Codec[K], vc codec.Codec[V]) (*Map[K, V], error) {
	return attachMap(s, "openMap", name, kc, vc, attachOpen)
}

// CreateOrOpenMap 打开映射，不存在时创建
// EN: CreateOrOpenMap opens the map, creating it when missing.
func CreateOrOpenMap[K, V any](s *Store, name string, kc codec.Codec[K], vc codec.Codec[V]) (*Map[K, V], error) {
	return attachMap(s, "createOrOpenMap", name, kc, vc, attachCreateOrOpen)
}

func attachMap[K, V any](s *Store, op, name string, kc codec.Codec[K], vc codec.Codec[V], mode attachMode) (*Map[K, V], error) {
	h, err := s.attach(op, name, KindMap, codec.RefOf(kc), codec.RefOf(vc), mode)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{collectionHandle: h, kc: kc, vc: vc}, nil
}

func (m *Map[K, V]) tree() *storage.BTree {
	return m.store.btree(m.kc.Compare)
}

func (m *Map[K, V]) decodeEntry(k, v []byte) (Entry[K, V], error) {
	var e Entry[K, V]
	key, err := m.kc.Decode(k)
	if err != nil {
		return e, err
	}
	val, err := m.vc.Decode(v)
	if err != nil {
		return e, err
	}
	return Entry[K, V]{Key: key, Value: val}, nil
}

// Put 写入键值，覆盖旧值
// EN: Put stores value under key, replacing any previous value.
func (m *Map[K, V]) Put(key K, value V) error {
	k, err := m.kc.Encode(key)
	if err != nil {
		return err
	}
	v, err := m.vc.Encode(value)
	if err != nil {
		return err
	}
	return m.store.update("Map.Put", m.id, func(c *collectionState) (*collectionState, error) {
		root, replaced, err := m.tree().Put(c.Root, k, v)
		if err != nil {
			return nil, err
		}
		next := c.clone()
		next.Root = root
		if !replaced {
			next.Count++
		}
		return next, nil
	})
}

// Get 读取键对应的值
// EN: Get returns the value under key and whether it exists.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var out V
	var found bool
	k, err := m.kc.Encode(key)
	if err != nil {
		return out, false, err
	}
	err = m.store.view("Map.Get", m.id, func(c *collectionState) error {
		out, found, err = m.get(c, k)
		return err
	})
	return out, found, err
}

func (m *Map[K, V]) get(c *collectionState, k []byte) (V, bool, error) {
	var zero V
	v, found, err := m.tree().Get(c.Root, k)
	if err != nil || !found {
		return zero, false, err
	}
	val, err := m.vc.Decode(v)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// ContainsKey 是否包含键
// EN: ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(key K) (bool, error) {
	k, err := m.kc.Encode(key)
	if err != nil {
		return false, err
	}
	var found bool
	err = m.store.view("Map.ContainsKey", m.id, func(c *collectionState) error {
		found, err = m.tree().Contains(c.Root, k)
		return err
	})
	return found, err
}

// Remove 删除键，返回是否存在
// EN: Remove deletes key and reports whether it was present.
func (m *Map[K, V]) Remove(key K) (bool, error) {
	k, err := m.kc.Encode(key)
	if err != nil {
		return false, err
	}
	removed := false
	err = m.store.update("Map.Remove", m.id, func(c *collectionState) (*collectionState, error) {
		root, ok, err := m.tree().Delete(c.Root, k)
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

// Size 元素个数（O(1)）
// EN: Size returns the number of entries in O(1).
func (m *Map[K, V]) Size() (int64, error) {
	var n int64
	err := m.store.view("Map.Size", m.id, func(c *collectionState) error {
		n = c.Count
		return nil
	})
	return n, err
}

// FirstEntry 最小键的条目
// EN: FirstEntry returns the entry with the smallest key.
func (m *Map[K, V]) FirstEntry() (Entry[K, V], bool, error) {
	return m.edgeLive("Map.FirstEntry", true)
}

// LastEntry 最大键的条目
// EN: LastEntry returns the entry with the largest key.
func (m *Map[K, V]) LastEntry() (Entry[K, V], bool, error) {
	return m.edgeLive("Map.LastEntry", false)
}

func (m *Map[K, V]) edgeLive(op string, first bool) (Entry[K, V], bool, error) {
	var e Entry[K, V]
	var found bool
	err := m.store.view(op, m.id, func(c *collectionState) error {
		var err error
		e, found, err = m.edge(c, first)
		return err
	})
	return e, found, err
}

func (m *Map[K, V]) edge(c *collectionState, first bool) (Entry[K, V], bool, error) {
	var (
		k, v  []byte
		found bool
		err   error
	)
	if first {
		k, v, found, err = m.tree().First(c.Root)
	} else {
		k, v, found, err = m.tree().Last(c.Root)
	}
	if err != nil || !found {
		return Entry[K, V]{}, false, err
	}
	e, err := m.decodeEntry(k, v)
	return e, err == nil, err
}

// FloorEntry 不大于 key 的最大条目
// EN: FloorEntry returns the entry with the greatest key less than or equal to key.
func (m *Map[K, V]) FloorEntry(key K) (Entry[K, V], bool, error) {
	return m.bound("Map.FloorEntry", key, boundFloor)
}

// CeilingEntry 不小于 key 的最小条目
// EN: CeilingEntry returns the entry with the least key greater than or equal to key.
func (m *Map[K, V]) CeilingEntry(key K) (Entry[K, V], bool, error) {
	return m.bound("Map.CeilingEntry", key, boundCeiling)
}

// LowerEntry 严格小于 key 的最大条目
// EN: LowerEntry returns the entry with the greatest key strictly less than key.
func (m *Map[K, V]) LowerEntry(key K) (Entry[K, V], bool, error) {
	return m.bound("Map.LowerEntry", key, boundLower)
}

// HigherEntry 严格大于 key 的最小条目
// EN: HigherEntry returns the entry with the least key strictly greater than key.
func (m *Map[K, V]) HigherEntry(key K) (Entry[K, V], bool, error) {
	return m.bound("Map.HigherEntry", key, boundHigher)
}

func (m *Map[K, V]) bound(op string, key K, b boundKind) (Entry[K, V], bool, error) {
	var e Entry[K, V]
	k, err := m.kc.Encode(key)
	if err != nil {
		return e, false, err
	}
	var found bool
	err = m.store.view(op, m.id, func(c *collectionState) error {
		kb, vb, ok, err := b.search(m.tree(), c.Root, k)
		if err != nil || !ok {
			return err
		}
		e, err = m.decodeEntry(kb, vb)
		found = err == nil
		return err
	})
	return e, found, err
}

// PollFirstEntry 删除并返回最小条目
// EN: PollFirstEntry removes and returns the entry with the smallest key.
func (m *Map[K, V]) PollFirstEntry() (Entry[K, V], bool, error) {
	return m.poll("Map.PollFirstEntry", true)
}

// PollLastEntry 删除并返回最大条目
// EN: PollLastEntry removes and returns the entry with the largest key.
func (m *Map[K, V]) PollLastEntry() (Entry[K, V], bool, error) {
	return m.poll("Map.PollLastEntry", false)
}

func (m *Map[K, V]) poll(op string, first bool) (Entry[K, V], bool, error) {
	var e Entry[K, V]
	found := false
	err := m.store.update(op, m.id, func(c *collectionState) (*collectionState, error) {
		k, v, ok, err := edgeKey(m.tree(), c.Root, first)
		if err != nil || !ok {
			return c, err
		}
		got, err := m.decodeEntry(k, v)
		if err != nil {
			return nil, err
		}
		root, _, err := m.tree().Delete(c.Root, k)
		if err != nil {
			return nil, err
		}
		e, found = got, true
		next := c.clone()
		next.Root = root
		next.Count--
		return next, nil
	})
	if err != nil {
		return Entry[K, V]{}, false, err
	}
	return e, found, nil
}

// Ascend 按键升序遍历，fn 返回 false 停止
// 遍历期间持有写锁，fn 内不能调用本存储
// EN: Ascend visits entries in key order until fn returns false. The write lock
// is held during the walk, so fn must not call back into the store.
func (m *Map[K, V]) Ascend(fn func(key K, value V) bool) error {
	return m.ascend("Map.Ascend", nil, fn)
}

// AscendFrom 从不小于 from 的键开始升序遍历
// EN: AscendFrom is Ascend starting at the first key not less than from.
func (m *Map[K, V]) AscendFrom(from K, fn func(key K, value V) bool) error {
	k, err := m.kc.Encode(from)
	if err != nil {
		return err
	}
	return m.ascend("Map.AscendFrom", k, fn)
}

// AscendRange 遍历 [from, to) 区间内的条目
// EN: AscendRange visits entries with from <= key < to in key order.
func (m *Map[K, V]) AscendRange(from, to K, fn func(key K, value V) bool) error {
	lo, hi, err := m.rangeKeys(from, to)
	if err != nil {
		return err
	}
	return m.store.view("Map.AscendRange", m.id, func(c *collectionState) error {
		return m.walkRange(c, lo, hi, fn)
	})
}

// Descend 按键降序遍历；fn 内不能调用本存储
// EN: Descend visits entries in reverse key order until fn returns false.
// fn must not call back into the store.
func (m *Map[K, V]) Descend(fn func(key K, value V) bool) error {
	return m.store.view("Map.Descend", m.id, func(c *collectionState) error {
		return m.walkDesc(c, nil, fn)
	})
}

// DescendFrom 从不大于 from 的键开始降序遍历
// EN: DescendFrom is Descend starting at the last key not greater than from.
func (m *Map[K, V]) DescendFrom(from K, fn func(key K, value V) bool) error {
	k, err := m.kc.Encode(from)
	if err != nil {
		return err
	}
	return m.store.view("Map.DescendFrom", m.id, func(c *collectionState) error {
		return m.walkDesc(c, k, fn)
	})
}

func (m *Map[K, V]) ascend(op string, from []byte, fn func(K, V) bool) error {
	return m.store.view(op, m.id, func(c *collectionState) error {
		return m.walk(c, from, fn)
	})
}

func (m *Map[K, V]) walk(c *collectionState, from []byte, fn func(K, V) bool) error {
	return m.walkRange(c, from, nil, fn)
}

func (m *Map[K, V]) rangeKeys(from, to K) ([]byte, []byte, error) {
	lo, err := m.kc.Encode(from)
	if err != nil {
		return nil, nil, err
	}
	hi, err := m.kc.Encode(to)
	if err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// walkRange hi 为 nil 时不设上界
func (m *Map[K, V]) walkRange(c *collectionState, lo, hi []byte, fn func(K, V) bool) error {
	return m.tree().Ascend(c.Root, lo, func(k, v []byte) (bool, error) {
		if hi != nil && m.kc.Compare(k, hi) >= 0 {
			return false, nil
		}
		e, err := m.decodeEntry(k, v)
		if err != nil {
			return false, err
		}
		return fn(e.Key, e.Value), nil
	})
}

func (m *Map[K, V]) walkDesc(c *collectionState, from []byte, fn func(K, V) bool) error {
	return m.tree().Descend(c.Root, from, func(k, v []byte) (bool, error) {
		e, err := m.decodeEntry(k, v)
		if err != nil {
			return false, err
		}
		return fn(e.Key, e.Value), nil
	})
}

// Clear 清空映射
// EN: Clear removes every entry. Old pages become dead space.
func (m *Map[K, V]) Clear() error {
	return m.store.update("Map.Clear", m.id, func(c *collectionState) (*collectionState, error) {
		if c.Root == storage.NoPage {
			return c, nil
		}
		next := c.clone()
		next.Root = storage.NoPage
		next.Count = 0
		return next, nil
	})
}

// GetIn 在读事务快照中读取
// EN: GetIn reads key in the snapshot of tx.
func (m *Map[K, V]) GetIn(tx *ReadTxn, key K) (V, bool, error) {
	var zero V
	c, err := tx.resolve("Map.GetIn", m)
	if err != nil {
		return zero, false, err
	}
	k, err := m.kc.Encode(key)
	if err != nil {
		return zero, false, err
	}
	return m.get(c, k)
}

// ContainsKeyIn 在读事务快照中检查键
// EN: ContainsKeyIn checks key in the snapshot of tx.
func (m *Map[K, V]) ContainsKeyIn(tx *ReadTxn, key K) (bool, error) {
	c, err := tx.resolve("Map.ContainsKeyIn", m)
	if err != nil {
		return false, err
	}
	k, err := m.kc.Encode(key)
	if err != nil {
		return false, err
	}
	return m.tree().Contains(c.Root, k)
}

// SizeIn 读事务快照中的元素个数
// EN: SizeIn returns the entry count in the snapshot of tx.
func (m *Map[K, V]) SizeIn(tx *ReadTxn) (int64, error) {
	c, err := tx.resolve("Map.SizeIn", m)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

// FirstEntryIn 读事务快照中的最小条目
// EN: FirstEntryIn returns the smallest entry in the snapshot of tx.
func (m *Map[K, V]) FirstEntryIn(tx *ReadTxn) (Entry[K, V], bool, error) {
	c, err := tx.resolve("Map.FirstEntryIn", m)
	if err != nil {
		return Entry[K, V]{}, false, err
	}
	return m.edge(c, true)
}

// LastEntryIn 读事务快照中的最大条目
// EN: LastEntryIn returns the largest entry in the snapshot of tx.
func (m *Map[K, V]) LastEntryIn(tx *ReadTxn) (Entry[K, V], bool, error) {
	c, err := tx.resolve("Map.LastEntryIn", m)
	if err != nil {
		return Entry[K, V]{}, false, err
	}
	return m.edge(c, false)
}

// AscendIn 在读事务快照中遍历，不持有写锁
// EN: AscendIn walks the snapshot of tx without holding the write lock.
func (m *Map[K, V]) AscendIn(tx *ReadTxn, fn func(key K, value V) bool) error {
	c, err := tx.resolve("Map.AscendIn", m)
	if err != nil {
		return err
	}
	return m.walk(c, nil, fn)
}

// AscendRangeIn 在读事务快照中遍历 [from, to)
// EN: AscendRangeIn is AscendRange over the snapshot of tx.
func (m *Map[K, V]) AscendRangeIn(tx *ReadTxn, from, to K, fn func(key K, value V) bool) error {
	c, err := tx.resolve("Map.AscendRangeIn", m)
	if err != nil {
		return err
	}
	lo, hi, err := m.rangeKeys(from, to)
	if err != nil {
		return err
	}
	return m.walkRange(c, lo, hi, fn)
}

// DescendIn 在读事务快照中降序遍历
// EN: DescendIn walks the snapshot of tx in reverse key order.
func (m *Map[K, V]) DescendIn(tx *ReadTxn, fn func(key K, value V) bool) error {
	c, err := tx.resolve("Map.DescendIn", m)
	if err != nil {
		return err
	}
	return m.walkDesc(c, nil, fn)
}
