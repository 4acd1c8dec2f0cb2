// Created by Yanjunhui

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// 节点编码开销
const (
	ostLeafItemOverhead = 8 + 1 + 4 // seq + flags + valLen
	ostInternalItemSize = 8 + 8     // child + count
)

// ostItem 叶子项：序号 + 存储形式的值
type ostItem struct {
	seq   int64
	flags uint8
	value []byte
}

// ostNode 顺序统计树节点
// 内部节点为每个孩子缓存子树元素个数，按秩下降时据此选择分支
type ostNode struct {
	id       uint64
	leaf     bool
	items    []ostItem
	children []uint64
	counts   []uint64
}

func (n *ostNode) byteSize() int {
	if !n.leaf {
		return len(n.children) * ostInternalItemSize
	}
	size := 0
	for _, it := range n.items {
		size += ostLeafItemOverhead + len(it.value)
	}
	return size
}

func (n *ostNode) pageType() uint8 {
	if n.leaf {
		return PageTypeOSTLeaf
	}
	return PageTypeOSTInternal
}

func (n *ostNode) itemCount() int {
	if n.leaf {
		return len(n.items)
	}
	return len(n.children)
}

// total 子树元素总数
func (n *ostNode) total() uint64 {
	if n.leaf {
		return uint64(len(n.items))
	}
	var sum uint64
	for _, c := range n.counts {
		sum += c
	}
	return sum
}

func (n *ostNode) marshal() []byte {
	buf := make([]byte, n.byteSize())
	off := 0
	if !n.leaf {
		for i, c := range n.children {
			binary.LittleEndian.PutUint64(buf[off:], c)
			binary.LittleEndian.PutUint64(buf[off+8:], n.counts[i])
			off += ostInternalItemSize
		}
		return buf
	}
	for _, it := range n.items {
		binary.LittleEndian.PutUint64(buf[off:], uint64(it.seq))
		buf[off+8] = it.flags
		binary.LittleEndian.PutUint32(buf[off+9:], uint32(len(it.value)))
		off += ostLeafItemOverhead
		off += copy(buf[off:], it.value)
	}
	return buf
}

func unmarshalOSTNode(h PageHeader, payload []byte) (*ostNode, error) {
	n := &ostNode{id: h.ID, leaf: h.Type == PageTypeOSTLeaf}
	count := int(h.ItemCount)
	short := fxerr.Corruption(fmt.Sprintf("page %d: truncated %s node", h.ID, PageTypeName(h.Type)))

	if !n.leaf {
		if count*ostInternalItemSize > len(payload) || count == 0 {
			return nil, short
		}
		n.children = make([]uint64, count)
		n.counts = make([]uint64, count)
		for i := 0; i < count; i++ {
			n.children[i] = binary.LittleEndian.Uint64(payload[i*ostInternalItemSize:])
			n.counts[i] = binary.LittleEndian.Uint64(payload[i*ostInternalItemSize+8:])
		}
		return n, nil
	}

	n.items = make([]ostItem, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+ostLeafItemOverhead > len(payload) {
			return nil, short
		}
		seq := int64(binary.LittleEndian.Uint64(payload[off:]))
		flags := payload[off+8]
		vlen := int(binary.LittleEndian.Uint32(payload[off+9:]))
		off += ostLeafItemOverhead
		if off+vlen > len(payload) {
			return nil, short
		}
		n.items = append(n.items, ostItem{seq: seq, flags: flags, value: payload[off : off+vlen : off+vlen]})
		off += vlen
	}
	return n, nil
}

// OST 写时复制的顺序统计树（支撑 List / Deque）
// 与 BTree 一样无状态，根页 ID 由快照持有
type OST struct {
	pager *Pager
}

// NewOST 创建顺序统计树访问器
func NewOST(pager *Pager) *OST {
	return &OST{pager: pager}
}

func (t *OST) readNode(id uint64) (*ostNode, error) {
	h, payload, err := t.pager.ReadNode(id, PageTypeOSTLeaf, PageTypeOSTInternal)
	if err != nil {
		return nil, err
	}
	return unmarshalOSTNode(h, payload)
}

func (t *OST) writeNode(n *ostNode) (uint64, error) {
	id, err := t.pager.WriteNewNode(n.pageType(), n.itemCount(), n.marshal())
	if err != nil {
		return NoPage, err
	}
	n.id = id
	return id, nil
}

// Count 从根节点缓存计数得到元素个数（读一页）
func (t *OST) Count(root uint64) (uint64, error) {
	if root == NoPage {
		return 0, nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return 0, err
	}
	return n.total(), nil
}

// Height 根到叶的层数；空树为 0
func (t *OST) Height(root uint64) (int, error) {
	height := 0
	for id := root; id != NoPage; {
		n, err := t.readNode(id)
		if err != nil {
			return 0, err
		}
		height++
		if n.leaf {
			break
		}
		id = n.children[0]
	}
	return height, nil
}

// locate 按秩下降到叶子，返回叶子与叶内下标
func (t *OST) locate(root uint64, index uint64) (*ostNode, int, error) {
	n, err := t.readNode(root)
	if err != nil {
		return nil, 0, err
	}
	for !n.leaf {
		next := -1
		for i, c := range n.counts {
			if index < c {
				next = i
				break
			}
			index -= c
		}
		if next < 0 {
			return nil, 0, fxerr.Corruption(fmt.Sprintf("page %d: rank beyond cached counts", n.id))
		}
		if n, err = t.readNode(n.children[next]); err != nil {
			return nil, 0, err
		}
	}
	if index >= uint64(len(n.items)) {
		return nil, 0, fxerr.Corruption(fmt.Sprintf("page %d: cached count exceeds leaf size", n.id))
	}
	return n, int(index), nil
}

// Get 按下标取值，O(log n)
func (t *OST) Get(root uint64, index uint64) (int64, []byte, error) {
	size, err := t.Count(root)
	if err != nil {
		return 0, nil, err
	}
	if index >= size {
		return 0, nil, fxerr.OutOfRange(int64(index), int64(size))
	}
	leaf, pos, err := t.locate(root, index)
	if err != nil {
		return 0, nil, err
	}
	it := leaf.items[pos]
	value, err := t.pager.loadValue(it.flags, it.value)
	return it.seq, value, err
}

// First 最左下降；空树返回 found=false
func (t *OST) First(root uint64) (seq int64, value []byte, found bool, err error) {
	return t.edge(root, true)
}

// Last 最右下降；空树返回 found=false
func (t *OST) Last(root uint64) (seq int64, value []byte, found bool, err error) {
	return t.edge(root, false)
}

func (t *OST) edge(root uint64, first bool) (int64, []byte, bool, error) {
	if root == NoPage {
		return 0, nil, false, nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return 0, nil, false, err
	}
	for !n.leaf {
		next := n.children[0]
		if !first {
			next = n.children[len(n.children)-1]
		}
		if n, err = t.readNode(next); err != nil {
			return 0, nil, false, err
		}
	}
	if len(n.items) == 0 {
		return 0, nil, false, fxerr.Corruption(fmt.Sprintf("page %d: empty leaf", n.id))
	}
	it := n.items[0]
	if !first {
		it = n.items[len(n.items)-1]
	}
	value, err := t.pager.loadValue(it.flags, it.value)
	if err != nil {
		return 0, nil, false, err
	}
	return it.seq, value, true, nil
}

// InsertAt 在下标 index（0..size）处插入，返回新根
func (t *OST) InsertAt(root uint64, index uint64, seq int64, value []byte) (uint64, error) {
	if err := failpoint.Hit("ost.insert"); err != nil {
		return root, fmt.Errorf("failpoint: ost.insert: %w", err)
	}
	size, err := t.Count(root)
	if err != nil {
		return root, err
	}
	if index > size {
		return root, fxerr.OutOfRange(int64(index), int64(size)+1)
	}

	flags, stored, err := t.pager.storeValue(value, ostLeafItemOverhead)
	if err != nil {
		return root, err
	}
	it := ostItem{seq: seq, flags: flags, value: stored}

	if root == NoPage {
		return t.writeNode(&ostNode{leaf: true, items: []ostItem{it}})
	}

	left, leftCount, right, rightCount, err := t.insert(root, index, it)
	if err != nil {
		return root, err
	}
	if right == NoPage {
		return left, nil
	}
	return t.writeNode(&ostNode{
		children: []uint64{left, right},
		counts:   []uint64{leftCount, rightCount},
	})
}

// insert 递归插入；路径上每个祖先的计数与结构修改在同一次写时复制中更新
func (t *OST) insert(id uint64, index uint64, it ostItem) (left, leftCount, right, rightCount uint64, err error) {
	n, err := t.readNode(id)
	if err != nil {
		return NoPage, 0, NoPage, 0, err
	}

	if n.leaf {
		n.items = insertItemAt(n.items, int(index), it)
	} else {
		i := 0
		for ; i < len(n.counts)-1; i++ {
			if index <= n.counts[i] {
				break
			}
			index -= n.counts[i]
		}
		cl, clc, cr, crc, err := t.insert(n.children[i], index, it)
		if err != nil {
			return NoPage, 0, NoPage, 0, err
		}
		n.children[i], n.counts[i] = cl, clc
		if cr != NoPage {
			n.children = insertPageIDAt(n.children, i+1, cr)
			n.counts = insertCountAt(n.counts, i+1, crc)
		}
	}

	if n.byteSize() <= t.pager.PayloadCapacity() {
		left, err = t.writeNode(n)
		return left, n.total(), NoPage, 0, err
	}

	l, r := t.splitNode(n)
	if left, err = t.writeNode(l); err != nil {
		return NoPage, 0, NoPage, 0, err
	}
	if right, err = t.writeNode(r); err != nil {
		return NoPage, 0, NoPage, 0, err
	}
	return left, l.total(), right, r.total(), nil
}

// splitNode 叶子按字节均分，内部节点按孩子数均分
func (t *OST) splitNode(n *ostNode) (*ostNode, *ostNode) {
	if n.leaf {
		sizes := make([]int, len(n.items))
		for i, it := range n.items {
			sizes[i] = ostLeafItemOverhead + len(it.value)
		}
		mid := findByteDrivenSplitPoint(sizes, 1, len(sizes)-1)
		return &ostNode{leaf: true, items: append([]ostItem(nil), n.items[:mid]...)},
			&ostNode{leaf: true, items: append([]ostItem(nil), n.items[mid:]...)}
	}
	mid := len(n.children) / 2
	return &ostNode{
			children: append([]uint64(nil), n.children[:mid]...),
			counts:   append([]uint64(nil), n.counts[:mid]...),
		}, &ostNode{
			children: append([]uint64(nil), n.children[mid:]...),
			counts:   append([]uint64(nil), n.counts[mid:]...),
		}
}

// RemoveAt 删除下标 index 处的元素，返回新根与被删除的值
func (t *OST) RemoveAt(root uint64, index uint64) (uint64, int64, []byte, error) {
	size, err := t.Count(root)
	if err != nil {
		return root, 0, nil, err
	}
	if index >= size {
		return root, 0, nil, fxerr.OutOfRange(int64(index), int64(size))
	}

	newRoot, removed, err := t.remove(root, index)
	if err != nil {
		return root, 0, nil, err
	}
	value, err := t.pager.loadValue(removed.flags, removed.value)
	if err != nil {
		return root, 0, nil, err
	}

	// 根折叠
	for newRoot != NoPage {
		n, err := t.readNode(newRoot)
		if err != nil {
			return root, 0, nil, err
		}
		if n.leaf || len(n.children) > 1 {
			break
		}
		newRoot = n.children[0]
	}
	return newRoot, removed.seq, value, nil
}

// remove 递归删除；返回 NoPage 表示子树已空
func (t *OST) remove(id uint64, index uint64) (uint64, ostItem, error) {
	n, err := t.readNode(id)
	if err != nil {
		return id, ostItem{}, err
	}

	if n.leaf {
		if index >= uint64(len(n.items)) {
			return id, ostItem{}, fxerr.Corruption(fmt.Sprintf("page %d: cached count exceeds leaf size", id))
		}
		removed := n.items[index]
		n.items = append(n.items[:index], n.items[index+1:]...)
		if len(n.items) == 0 {
			return NoPage, removed, nil
		}
		newID, err := t.writeNode(n)
		return newID, removed, err
	}

	i := 0
	for ; i < len(n.counts); i++ {
		if index < n.counts[i] {
			break
		}
		index -= n.counts[i]
	}
	if i == len(n.counts) {
		return id, ostItem{}, fxerr.Corruption(fmt.Sprintf("page %d: rank beyond cached counts", id))
	}

	child, removed, err := t.remove(n.children[i], index)
	if err != nil {
		return id, ostItem{}, err
	}
	if child == NoPage {
		n.children = append(n.children[:i], n.children[i+1:]...)
		n.counts = append(n.counts[:i], n.counts[i+1:]...)
		if len(n.children) == 0 {
			return NoPage, removed, nil
		}
	} else {
		n.children[i] = child
		n.counts[i]--
		if err := t.mergeSmallChild(n, i); err != nil {
			return id, ostItem{}, err
		}
	}

	newID, err := t.writeNode(n)
	return newID, removed, err
}

// mergeSmallChild 子节点不足半页且与相邻兄弟合并后能放入一页时合并
func (t *OST) mergeSmallChild(parent *ostNode, idx int) error {
	if len(parent.children) < 2 {
		return nil
	}
	child, err := t.readNode(parent.children[idx])
	if err != nil {
		return err
	}
	capacity := t.pager.PayloadCapacity()
	if child.byteSize() >= capacity/2 {
		return nil
	}

	li := idx
	if idx+1 >= len(parent.children) {
		li = idx - 1
	}
	var left, right *ostNode
	if li == idx {
		left = child
		if right, err = t.readNode(parent.children[idx+1]); err != nil {
			return err
		}
	} else {
		if left, err = t.readNode(parent.children[li]); err != nil {
			return err
		}
		right = child
	}

	merged := &ostNode{leaf: left.leaf}
	if left.leaf {
		merged.items = append(append([]ostItem(nil), left.items...), right.items...)
	} else {
		merged.children = append(append([]uint64(nil), left.children...), right.children...)
		merged.counts = append(append([]uint64(nil), left.counts...), right.counts...)
	}
	if merged.byteSize() > capacity {
		return nil
	}

	mergedID, err := t.writeNode(merged)
	if err != nil {
		return err
	}
	parent.children[li] = mergedID
	parent.counts[li] += parent.counts[li+1]
	parent.children = append(parent.children[:li+1], parent.children[li+2:]...)
	parent.counts = append(parent.counts[:li+1], parent.counts[li+2:]...)
	return nil
}

// SetAt 替换下标 index 处的值，序号保持不变；计数不变，只重写路径
func (t *OST) SetAt(root uint64, index uint64, value []byte) (uint64, []byte, error) {
	size, err := t.Count(root)
	if err != nil {
		return root, nil, err
	}
	if index >= size {
		return root, nil, fxerr.OutOfRange(int64(index), int64(size))
	}
	flags, stored, err := t.pager.storeValue(value, ostLeafItemOverhead)
	if err != nil {
		return root, nil, err
	}
	var old ostItem
	left, leftCount, right, rightCount, err := t.set(root, index, flags, stored, &old)
	if err != nil {
		return root, nil, err
	}
	newRoot := left
	if right != NoPage {
		if newRoot, err = t.writeNode(&ostNode{
			children: []uint64{left, right},
			counts:   []uint64{leftCount, rightCount},
		}); err != nil {
			return root, nil, err
		}
	}
	prev, err := t.pager.loadValue(old.flags, old.value)
	return newRoot, prev, err
}

// set 与 insert 相同的分裂传播：更大的内联值可能使叶子溢出
func (t *OST) set(id uint64, index uint64, flags uint8, stored []byte, old *ostItem) (left, leftCount, right, rightCount uint64, err error) {
	n, err := t.readNode(id)
	if err != nil {
		return NoPage, 0, NoPage, 0, err
	}
	if n.leaf {
		if index >= uint64(len(n.items)) {
			return NoPage, 0, NoPage, 0, fxerr.Corruption(fmt.Sprintf("page %d: cached count exceeds leaf size", id))
		}
		*old = n.items[index]
		n.items[index] = ostItem{seq: old.seq, flags: flags, value: stored}
	} else {
		i := 0
		for ; i < len(n.counts)-1; i++ {
			if index < n.counts[i] {
				break
			}
			index -= n.counts[i]
		}
		cl, clc, cr, crc, err := t.set(n.children[i], index, flags, stored, old)
		if err != nil {
			return NoPage, 0, NoPage, 0, err
		}
		n.children[i], n.counts[i] = cl, clc
		if cr != NoPage {
			n.children = insertPageIDAt(n.children, i+1, cr)
			n.counts = insertCountAt(n.counts, i+1, crc)
		}
	}

	if n.byteSize() <= t.pager.PayloadCapacity() {
		left, err = t.writeNode(n)
		return left, n.total(), NoPage, 0, err
	}
	l, r := t.splitNode(n)
	if left, err = t.writeNode(l); err != nil {
		return NoPage, 0, NoPage, 0, err
	}
	if right, err = t.writeNode(r); err != nil {
		return NoPage, 0, NoPage, 0, err
	}
	return left, l.total(), right, r.total(), nil
}

// Ascend 从下标 from 开始按序遍历，fn 返回 false 停止
func (t *OST) Ascend(root uint64, from uint64, fn func(index uint64, seq int64, value []byte) (bool, error)) error {
	if root == NoPage {
		return nil
	}
	index := from
	_, err := t.ascend(root, from, &index, fn)
	return err
}

func (t *OST) ascend(id uint64, skip uint64, index *uint64, fn func(uint64, int64, []byte) (bool, error)) (bool, error) {
	n, err := t.readNode(id)
	if err != nil {
		return false, err
	}
	if n.leaf {
		if skip >= uint64(len(n.items)) {
			return true, nil
		}
		for _, it := range n.items[skip:] {
			value, err := t.pager.loadValue(it.flags, it.value)
			if err != nil {
				return false, err
			}
			cont, err := fn(*index, it.seq, value)
			if err != nil || !cont {
				return false, err
			}
			*index++
		}
		return true, nil
	}
	for i, c := range n.children {
		if skip >= n.counts[i] {
			skip -= n.counts[i]
			continue
		}
		cont, err := t.ascend(c, skip, index, fn)
		if err != nil || !cont {
			return false, err
		}
		skip = 0
	}
	return true, nil
}

// IndexOf 顺序扫描查找第一个等于 value 的下标，未找到返回 -1
func (t *OST) IndexOf(root uint64, value []byte) (int64, error) {
	found := int64(-1)
	err := t.Ascend(root, 0, func(index uint64, _ int64, v []byte) (bool, error) {
		if bytes.Equal(v, value) {
			found = int64(index)
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// Pages 访问树的所有页（含溢出页）
func (t *OST) Pages(root uint64, fn func(id uint64, pageType uint8) error) error {
	if root == NoPage {
		return nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return err
	}
	if err := fn(root, n.pageType()); err != nil {
		return err
	}
	if n.leaf {
		for _, it := range n.items {
			if err := t.pager.valuePages(it.flags, it.value, fn); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range n.children {
		if err := t.Pages(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// CopyTo 将整棵树复制到 dst，返回新根（用于压缩）
func (t *OST) CopyTo(dst *Pager, root uint64) (uint64, error) {
	if root == NoPage {
		return NoPage, nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return NoPage, err
	}
	if n.leaf {
		for i, it := range n.items {
			if n.items[i].value, err = t.pager.copyValue(dst, it.flags, it.value); err != nil {
				return NoPage, err
			}
		}
	} else {
		for i, c := range n.children {
			if n.children[i], err = t.CopyTo(dst, c); err != nil {
				return NoPage, err
			}
		}
	}
	return dst.WriteNewNode(n.pageType(), n.itemCount(), n.marshal())
}

// Verify 校验缓存计数与实际元素个数一致、叶子等深；
// strictSeq 为真时要求序号严格递增（Deque）。返回元素个数
func (t *OST) Verify(root uint64, strictSeq bool) (int64, error) {
	if root == NoPage {
		return 0, nil
	}
	leafDepth := -1
	var lastSeq *int64
	count, err := t.verifyNode(root, 0, &leafDepth, strictSeq, &lastSeq)
	if err != nil {
		return 0, fmt.Errorf("tree structure error: %w", err)
	}
	return int64(count), nil
}

func (t *OST) verifyNode(id uint64, depth int, leafDepth *int, strictSeq bool, lastSeq **int64) (uint64, error) {
	n, err := t.readNode(id)
	if err != nil {
		return 0, fmt.Errorf("failed to read node %d: %w", id, err)
	}
	if n.leaf {
		if len(n.items) == 0 {
			return 0, fxerr.Corruption(fmt.Sprintf("leaf %d is empty", id))
		}
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return 0, fxerr.Corruption(fmt.Sprintf("leaf %d at depth %d, expected %d", id, depth, *leafDepth))
		}
		if strictSeq {
			for _, it := range n.items {
				if *lastSeq != nil && it.seq <= **lastSeq {
					return 0, fxerr.Corruption(fmt.Sprintf("leaf %d: sequence %d not after %d", id, it.seq, **lastSeq))
				}
				seq := it.seq
				*lastSeq = &seq
			}
		}
		return uint64(len(n.items)), nil
	}

	var total uint64
	for i, c := range n.children {
		sub, err := t.verifyNode(c, depth+1, leafDepth, strictSeq, lastSeq)
		if err != nil {
			return 0, err
		}
		if sub != n.counts[i] {
			return 0, fxerr.Corruption(fmt.Sprintf("node %d child %d: cached count %d, actual %d", id, i, n.counts[i], sub))
		}
		total += sub
	}
	return total, nil
}

// 辅助函数

func insertItemAt(slice []ostItem, index int, it ostItem) []ostItem {
	slice = append(slice, ostItem{})
	copy(slice[index+1:], slice[index:])
	slice[index] = it
	return slice
}

func insertCountAt(slice []uint64, index int, value uint64) []uint64 {
	slice = append(slice, 0)
	copy(slice[index+1:], slice[index:])
	slice[index] = value
	return slice
}
