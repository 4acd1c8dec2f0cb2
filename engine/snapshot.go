// Created by Yanjunhui

package engine

import (
	"fmt"
	"sort"

	"github.com/Snoworca/FxStore-sub001/codec"
)

// CollectionKind 集合类型
// EN: CollectionKind is the closed set of collection kinds.
type CollectionKind string

const (
	KindMap   CollectionKind = "map"
	KindSet   CollectionKind = "set"
	KindList  CollectionKind = "list"
	KindDeque CollectionKind = "deque"
)

func (k CollectionKind) valid() bool {
	switch k {
	case KindMap, KindSet, KindList, KindDeque:
		return true
	}
	return false
}

// ordered 为真时集合由有序树承载，否则由顺序统计树承载
// EN: ordered reports whether the kind lives in a key-ordered tree.
func (k CollectionKind) ordered() bool {
	return k == KindMap || k == KindSet
}

// collectionState 集合的不可变状态
// EN: collectionState is immutable once published in a snapshot.
type collectionState struct {
	ID         uint64
	Name       string
	Kind       CollectionKind
	KeyCodec   codec.Ref
	ValueCodec codec.Ref
	Root       uint64
	Count      int64
	// HeadSeq 下一个 AddFirst 使用的序号；TailSeq 下一个追加使用的序号
	// EN: HeadSeq is the next AddFirst sequence; TailSeq the next append sequence.
	HeadSeq   int64
	TailSeq   int64
	CreatedAt int64
}

func (c *collectionState) clone() *collectionState {
	cp := *c
	return &cp
}

// matches 检查打开参数与已存储的集合是否一致
// EN: matches reports a TypeMismatch when kind or codecs differ from the stored ones.
func (c *collectionState) matches(kind CollectionKind, key, value codec.Ref) error {
	if c.Kind != kind {
		return errTypeMismatch(fmt.Sprintf("collection %q is a %s, not a %s", c.Name, c.Kind, kind))
	}
	if c.KeyCodec != key {
		return errTypeMismatch(fmt.Sprintf("collection %q uses codec %s, not %s", c.Name, c.KeyCodec, key))
	}
	if c.ValueCodec != value {
		return errTypeMismatch(fmt.Sprintf("collection %q uses value codec %s, not %s", c.Name, c.ValueCodec, value))
	}
	return nil
}

// snapshot 某一时刻的完整存储状态，发布后不再修改
// EN: snapshot is the full store state at one point; never mutated once published.
type snapshot struct {
	seqNo            uint64
	allocTail        uint64
	nextCollectionID uint64
	catalogRoot      uint64
	byID             map[uint64]*collectionState
	byName           map[string]uint64
}

func newSnapshot() *snapshot {
	return &snapshot{
		allocTail:        1,
		nextCollectionID: 1,
		byID:             make(map[uint64]*collectionState),
		byName:           make(map[string]uint64),
	}
}

// clone 浅拷贝；集合状态本身不可变，可共享
// EN: clone copies the indexes; collection states are shared since they are immutable.
func (s *snapshot) clone() *snapshot {
	cp := *s
	cp.byID = make(map[uint64]*collectionState, len(s.byID))
	for id, c := range s.byID {
		cp.byID[id] = c
	}
	cp.byName = make(map[string]uint64, len(s.byName))
	for name, id := range s.byName {
		cp.byName[name] = id
	}
	return &cp
}

func (s *snapshot) lookup(name string) (*collectionState, bool) {
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// withCollection 返回替换（或新增）c 后的快照
// EN: withCollection returns a copy holding c, replacing any state with the same id.
func (s *snapshot) withCollection(c *collectionState) *snapshot {
	next := s.clone()
	if old, ok := next.byID[c.ID]; ok && old.Name != c.Name {
		delete(next.byName, old.Name)
	}
	next.byID[c.ID] = c
	next.byName[c.Name] = c.ID
	return next
}

func (s *snapshot) withoutCollection(id uint64) *snapshot {
	next := s.clone()
	if old, ok := next.byID[id]; ok {
		delete(next.byName, old.Name)
		delete(next.byID, id)
	}
	return next
}

// sorted 按 ID 排序的集合列表
// EN: sorted returns collections ordered by id.
func (s *snapshot) sorted() []*collectionState {
	out := make([]*collectionState, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
