// Created by Yanjunhui

package engine

import (
	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// Deque 双端队列
// 头部插入使用递减序号，尾部插入使用递增序号，下标顺序与序号顺序一致
// EN: Deque is a double-ended queue. AddFirst takes decreasing sequence numbers
// and AddLast increasing ones, so rank order equals sequence order.
type Deque[E any] struct {
	collectionHandle
	ec codec.Codec[E]
}

// CreateDeque 创建双端队列
// EN: CreateDeque creates a deque and fails with AlreadyExists if the name is taken.
func CreateDeque[E any](s *Store, name string, ec codec.Codec[E]) (*Deque[E], error) {
	return attachDeque(s, "createDeque", name, ec, attachCreate)
}

// OpenDeque 打开已有双端队列
// EN: OpenDeque opens an existing deque.
func OpenDeque[E any](s *Store, name string, ec codec.Codec[E]) (*Deque[E], error) {
	return attachDeque(s, "openDeque", name, ec, attachOpen)
}

// CreateOrOpenDeque 打开双端队列，不存在时创建
// EN: CreateOrOpenDeque opens the deque, creating it when missing.
func CreateOrOpenDeque[E any](s *Store, name string, ec codec.Codec[E]) (*Deque[E], error) {
	return attachDeque(s, "createOrOpenDeque", name, ec, attachCreateOrOpen)
}

func attachDeque[E any](s *Store, op, name string, ec codec.Codec[E], mode attachMode) (*Deque[E], error) {
	h, err := s.attach(op, name, KindDeque, codec.Ref{}, codec.RefOf(ec), mode)
	if err != nil {
		return nil, err
	}
	return &Deque[E]{collectionHandle: h, ec: ec}, nil
}

// AddFirst 头部插入
// EN: AddFirst inserts e at the head.
func (d *Deque[E]) AddFirst(e E) error {
	v, err := d.ec.Encode(e)
	if err != nil {
		return err
	}
	return d.store.update("Deque.AddFirst", d.id, func(c *collectionState) (*collectionState, error) {
		root, err := d.store.ost().InsertAt(c.Root, 0, c.HeadSeq, v)
		if err != nil {
			return nil, err
		}
		next := c.clone()
		next.Root = root
		next.Count++
		next.HeadSeq--
		return next, nil
	})
}

// AddLast 尾部插入
// EN: AddLast inserts e at the tail.
func (d *Deque[E]) AddLast(e E) error {
	v, err := d.ec.Encode(e)
	if err != nil {
		return err
	}
	return d.store.update("Deque.AddLast", d.id, func(c *collectionState) (*collectionState, error) {
		root, err := d.store.ost().InsertAt(c.Root, uint64(c.Count), c.TailSeq, v)
		if err != nil {
			return nil, err
		}
		next := c.clone()
		next.Root = root
		next.Count++
		next.TailSeq++
		return next, nil
	})
}

// PollFirst 取出头部元素；空队列返回 ok=false
// EN: PollFirst removes and returns the head. ok is false when the deque is empty.
func (d *Deque[E]) PollFirst() (E, bool, error) {
	return d.poll("Deque.PollFirst", true)
}

// PollLast 取出尾部元素
// EN: PollLast removes and returns the tail.
func (d *Deque[E]) PollLast() (E, bool, error) {
	return d.poll("Deque.PollLast", false)
}

func (d *Deque[E]) poll(op string, first bool) (E, bool, error) {
	var out E
	ok := false
	err := d.store.update(op, d.id, func(c *collectionState) (*collectionState, error) {
		if c.Count == 0 {
			return c, nil
		}
		index := uint64(0)
		if !first {
			index = uint64(c.Count - 1)
		}
		root, _, v, err := d.store.ost().RemoveAt(c.Root, index)
		if err != nil {
			return nil, err
		}
		if out, err = d.ec.Decode(v); err != nil {
			return nil, err
		}
		ok = true
		next := c.clone()
		next.Root = root
		next.Count--
		return next, nil
	})
	if err != nil {
		var zero E
		return zero, false, err
	}
	return out, ok, nil
}

// PeekFirst 查看头部元素
// EN: PeekFirst returns the head without removing it.
func (d *Deque[E]) PeekFirst() (E, bool, error) {
	return d.peekLive("Deque.PeekFirst", true)
}

// PeekLast 查看尾部元素
// EN: PeekLast returns the tail without removing it.
func (d *Deque[E]) PeekLast() (E, bool, error) {
	return d.peekLive("Deque.PeekLast", false)
}

func (d *Deque[E]) peekLive(op string, first bool) (E, bool, error) {
	var out E
	var found bool
	err := d.store.view(op, d.id, func(c *collectionState) error {
		var err error
		out, found, err = d.peek(c, first)
		return err
	})
	return out, found, err
}

func (d *Deque[E]) peek(c *collectionState, first bool) (E, bool, error) {
	var (
		zero  E
		v     []byte
		found bool
		err   error
	)
	if first {
		_, v, found, err = d.store.ost().First(c.Root)
	} else {
		_, v, found, err = d.store.ost().Last(c.Root)
	}
	if err != nil || !found {
		return zero, false, err
	}
	e, err := d.ec.Decode(v)
	if err != nil {
		return zero, false, err
	}
	return e, true, nil
}

// Get 按下标读取，0 为头部
// EN: Get returns the element at index counted from the head.
func (d *Deque[E]) Get(index int64) (E, error) {
	var out E
	err := d.store.view("Deque.Get", d.id, func(c *collectionState) error {
		if err := checkIndex(index, c.Count, false); err != nil {
			return err
		}
		_, v, err := d.store.ost().Get(c.Root, uint64(index))
		if err != nil {
			return err
		}
		out, err = d.ec.Decode(v)
		return err
	})
	return out, err
}

// Size 元素个数（O(1)）
// EN: Size returns the number of elements in O(1).
func (d *Deque[E]) Size() (int64, error) {
	var n int64
	err := d.store.view("Deque.Size", d.id, func(c *collectionState) error {
		n = c.Count
		return nil
	})
	return n, err
}

// Ascend 从头到尾遍历；fn 内不能调用本存储
// EN: Ascend visits elements head to tail until fn returns false. fn must not
// call back into the store.
func (d *Deque[E]) Ascend(fn func(index int64, e E) bool) error {
	return d.store.view("Deque.Ascend", d.id, func(c *collectionState) error {
		return walkOST(d.store.ost(), c, d.ec, fn)
	})
}

// Clear 清空队列；序号继续递增/递减
// EN: Clear removes every element. Sequence counters keep running.
func (d *Deque[E]) Clear() error {
	return d.store.update("Deque.Clear", d.id, func(c *collectionState) (*collectionState, error) {
		if c.Root == storage.NoPage {
			return c, nil
		}
		next := c.clone()
		next.Root = storage.NoPage
		next.Count = 0
		return next, nil
	})
}

// PeekFirstIn 读事务快照中的头部元素
// EN: PeekFirstIn returns the head in the snapshot of tx.
func (d *Deque[E]) PeekFirstIn(tx *ReadTxn) (E, bool, error) {
	c, err := tx.resolve("Deque.PeekFirstIn", d)
	if err != nil {
		var zero E
		return zero, false, err
	}
	return d.peek(c, true)
}

// PeekLastIn 读事务快照中的尾部元素
// EN: PeekLastIn returns the tail in the snapshot of tx.
func (d *Deque[E]) PeekLastIn(tx *ReadTxn) (E, bool, error) {
	c, err := tx.resolve("Deque.PeekLastIn", d)
	if err != nil {
		var zero E
		return zero, false, err
	}
	return d.peek(c, false)
}

// SizeIn 读事务快照中的元素个数
// EN: SizeIn returns the element count in the snapshot of tx.
func (d *Deque[E]) SizeIn(tx *ReadTxn) (int64, error) {
	c, err := tx.resolve("Deque.SizeIn", d)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}
