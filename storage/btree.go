// Created by Yanjunhui

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Snoworca/FxStore-sub001/internal/failpoint"
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// Compare 键比较函数
type Compare func(a, b []byte) int

// 节点编码开销
const (
	btreeLeafItemOverhead     = 2 + 1 + 4 // keyLen + flags + valLen
	btreeInternalItemOverhead = 2 + 8     // keyLen + child
	btreeInternalHeaderSize   = 8         // child0
)

// btreeEntry 叶子项；value 为存储形式（内联值或溢出引用）
type btreeEntry struct {
	key   []byte
	flags uint8
	value []byte
}

// btreeNode B+Tree 节点（解码后的内存形式）
// 内部节点：len(keys) == len(children)-1，keys[i] <= children[i+1] 中所有键，且大于 children[i] 中所有键
type btreeNode struct {
	id       uint64
	leaf     bool
	entries  []btreeEntry
	keys     [][]byte
	children []uint64
}

// byteSize 计算节点编码后的负载大小
func (n *btreeNode) byteSize() int {
	if n.leaf {
		size := 0
		for _, e := range n.entries {
			size += btreeLeafItemOverhead + len(e.key) + len(e.value)
		}
		return size
	}
	size := btreeInternalHeaderSize
	for _, k := range n.keys {
		size += btreeInternalItemOverhead + len(k)
	}
	return size
}

func (n *btreeNode) pageType() uint8 {
	if n.leaf {
		return PageTypeBTreeLeaf
	}
	return PageTypeBTreeInternal
}

func (n *btreeNode) itemCount() int {
	if n.leaf {
		return len(n.entries)
	}
	return len(n.keys)
}

func (n *btreeNode) marshal() []byte {
	buf := make([]byte, n.byteSize())
	off := 0
	if n.leaf {
		for _, e := range n.entries {
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.key)))
			buf[off+2] = e.flags
			binary.LittleEndian.PutUint32(buf[off+3:], uint32(len(e.value)))
			off += btreeLeafItemOverhead
			off += copy(buf[off:], e.key)
			off += copy(buf[off:], e.value)
		}
		return buf
	}
	binary.LittleEndian.PutUint64(buf[0:8], n.children[0])
	off = btreeInternalHeaderSize
	for i, k := range n.keys {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(k)))
		off += 2
		off += copy(buf[off:], k)
		binary.LittleEndian.PutUint64(buf[off:], n.children[i+1])
		off += 8
	}
	return buf
}

func unmarshalBTreeNode(h PageHeader, payload []byte) (*btreeNode, error) {
	n := &btreeNode{id: h.ID, leaf: h.Type == PageTypeBTreeLeaf}
	count := int(h.ItemCount)
	off := 0
	short := func() error {
		return fxerr.Corruption(fmt.Sprintf("page %d: truncated %s node", h.ID, PageTypeName(h.Type)))
	}

	if n.leaf {
		n.entries = make([]btreeEntry, 0, count)
		for i := 0; i < count; i++ {
			if off+btreeLeafItemOverhead > len(payload) {
				return nil, short()
			}
			klen := int(binary.LittleEndian.Uint16(payload[off:]))
			flags := payload[off+2]
			vlen := int(binary.LittleEndian.Uint32(payload[off+3:]))
			off += btreeLeafItemOverhead
			if off+klen+vlen > len(payload) {
				return nil, short()
			}
			e := btreeEntry{
				key:   payload[off : off+klen : off+klen],
				flags: flags,
				value: payload[off+klen : off+klen+vlen : off+klen+vlen],
			}
			off += klen + vlen
			n.entries = append(n.entries, e)
		}
		return n, nil
	}

	if len(payload) < btreeInternalHeaderSize {
		return nil, short()
	}
	n.children = make([]uint64, 0, count+1)
	n.keys = make([][]byte, 0, count)
	n.children = append(n.children, binary.LittleEndian.Uint64(payload[0:8]))
	off = btreeInternalHeaderSize
	for i := 0; i < count; i++ {
		if off+2 > len(payload) {
			return nil, short()
		}
		klen := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if off+klen+8 > len(payload) {
			return nil, short()
		}
		n.keys = append(n.keys, payload[off:off+klen:off+klen])
		off += klen
		n.children = append(n.children, binary.LittleEndian.Uint64(payload[off:]))
		off += 8
	}
	return n, nil
}

// BTree 写时复制的键有序 B+Tree
// 树本身无状态，根页 ID 由调用方（快照）持有；每次修改返回新根
type BTree struct {
	pager *Pager
	cmp   Compare
}

// NewBTree 创建 B+Tree 访问器，cmp 为空时按字节序比较
func NewBTree(pager *Pager, cmp Compare) *BTree {
	if cmp == nil {
		cmp = bytes.Compare
	}
	return &BTree{pager: pager, cmp: cmp}
}

// MaxKeySize 单个键的最大字节数
func (t *BTree) MaxKeySize() int {
	return t.pager.MaxItemSize() - btreeLeafItemOverhead - overflowRefSize
}

func (t *BTree) readNode(id uint64) (*btreeNode, error) {
	h, payload, err := t.pager.ReadNode(id, PageTypeBTreeLeaf, PageTypeBTreeInternal)
	if err != nil {
		return nil, err
	}
	return unmarshalBTreeNode(h, payload)
}

// writeNode 写入新页（写时复制，从不覆盖旧页）
func (t *BTree) writeNode(n *btreeNode) (uint64, error) {
	id, err := t.pager.WriteNewNode(n.pageType(), n.itemCount(), n.marshal())
	if err != nil {
		return NoPage, err
	}
	n.id = id
	return id, nil
}

// searchLeaf 返回第一个 >= key 的位置
func (t *BTree) searchLeaf(n *btreeNode, key []byte) (int, bool) {
	pos := sort.Search(len(n.entries), func(i int) bool {
		return t.cmp(n.entries[i].key, key) >= 0
	})
	return pos, pos < len(n.entries) && t.cmp(n.entries[pos].key, key) == 0
}

// childIndex 返回 key 所在子节点下标
func (t *BTree) childIndex(n *btreeNode, key []byte) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return t.cmp(n.keys[i], key) > 0
	})
}

// findLeaf 下降到 key 所在叶子
func (t *BTree) findLeaf(root uint64, key []byte) (*btreeNode, error) {
	n, err := t.readNode(root)
	if err != nil {
		return nil, err
	}
	for !n.leaf {
		if n, err = t.readNode(n.children[t.childIndex(n, key)]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Get 查找键
func (t *BTree) Get(root uint64, key []byte) ([]byte, bool, error) {
	if root == NoPage {
		return nil, false, nil
	}
	leaf, err := t.findLeaf(root, key)
	if err != nil {
		return nil, false, err
	}
	pos, found := t.searchLeaf(leaf, key)
	if !found {
		return nil, false, nil
	}
	e := leaf.entries[pos]
	value, err := t.pager.loadValue(e.flags, e.value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Contains 判断键是否存在（不加载溢出值）
func (t *BTree) Contains(root uint64, key []byte) (bool, error) {
	if root == NoPage {
		return false, nil
	}
	leaf, err := t.findLeaf(root, key)
	if err != nil {
		return false, err
	}
	_, found := t.searchLeaf(leaf, key)
	return found, nil
}

// Put 插入或替换，返回新根以及是否替换了已有键
func (t *BTree) Put(root uint64, key, value []byte) (uint64, bool, error) {
	if err := failpoint.Hit("btree.put"); err != nil {
		return root, false, fmt.Errorf("failpoint: btree.put: %w", err)
	}
	if len(key) > t.MaxKeySize() {
		return root, false, fxerr.TooLarge("key", len(key), t.MaxKeySize())
	}

	flags, stored, err := t.pager.storeValue(value, btreeLeafItemOverhead+len(key))
	if err != nil {
		return root, false, err
	}
	e := btreeEntry{key: cloneBytes(key), flags: flags, value: stored}

	if root == NoPage {
		id, err := t.writeNode(&btreeNode{leaf: true, entries: []btreeEntry{e}})
		return id, false, err
	}

	left, sep, right, replaced, err := t.put(root, e)
	if err != nil {
		return root, false, err
	}
	if right == NoPage {
		return left, replaced, nil
	}

	// 根分裂，树高 +1
	newRoot := &btreeNode{keys: [][]byte{sep}, children: []uint64{left, right}}
	id, err := t.writeNode(newRoot)
	if err != nil {
		return root, false, err
	}
	return id, replaced, nil
}

// put 递归插入；节点超出页容量时按字节分裂，right 非零表示发生分裂
func (t *BTree) put(id uint64, e btreeEntry) (left uint64, sep []byte, right uint64, replaced bool, err error) {
	n, err := t.readNode(id)
	if err != nil {
		return NoPage, nil, NoPage, false, err
	}

	if n.leaf {
		pos, found := t.searchLeaf(n, e.key)
		if found {
			n.entries[pos] = e
			replaced = true
		} else {
			n.entries = insertEntryAt(n.entries, pos, e)
		}
	} else {
		idx := t.childIndex(n, e.key)
		cl, csep, cr, rep, err := t.put(n.children[idx], e)
		if err != nil {
			return NoPage, nil, NoPage, false, err
		}
		replaced = rep
		n.children[idx] = cl
		if cr != NoPage {
			n.keys = insertKeyAt(n.keys, idx, csep)
			n.children = insertPageIDAt(n.children, idx+1, cr)
		}
	}

	if n.byteSize() <= t.pager.PayloadCapacity() {
		left, err = t.writeNode(n)
		return left, nil, NoPage, replaced, err
	}

	l, s, r := t.splitNode(n)
	if left, err = t.writeNode(l); err != nil {
		return NoPage, nil, NoPage, false, err
	}
	if right, err = t.writeNode(r); err != nil {
		return NoPage, nil, NoPage, false, err
	}
	return left, s, right, replaced, nil
}

// splitNode 按字节均分节点
func (t *BTree) splitNode(n *btreeNode) (*btreeNode, []byte, *btreeNode) {
	if n.leaf {
		sizes := make([]int, len(n.entries))
		for i, e := range n.entries {
			sizes[i] = btreeLeafItemOverhead + len(e.key) + len(e.value)
		}
		mid := findByteDrivenSplitPoint(sizes, 1, len(sizes)-1)
		left := &btreeNode{leaf: true, entries: append([]btreeEntry(nil), n.entries[:mid]...)}
		right := &btreeNode{leaf: true, entries: append([]btreeEntry(nil), n.entries[mid:]...)}
		return left, cloneBytes(right.entries[0].key), right
	}

	sizes := make([]int, len(n.keys))
	for i, k := range n.keys {
		sizes[i] = btreeInternalItemOverhead + len(k)
	}
	hi := len(n.keys) - 2
	if hi < 1 {
		hi = 1
	}
	mid := findByteDrivenSplitPoint(sizes, 1, hi)
	left := &btreeNode{
		keys:     append([][]byte(nil), n.keys[:mid]...),
		children: append([]uint64(nil), n.children[:mid+1]...),
	}
	right := &btreeNode{
		keys:     append([][]byte(nil), n.keys[mid+1:]...),
		children: append([]uint64(nil), n.children[mid+1:]...),
	}
	return left, n.keys[mid], right
}

// findByteDrivenSplitPoint 计算字节驱动的分裂点
// 返回 mid，使 [0, mid) 的累计大小首次达到总量一半，并限制在 [lo, hi] 内
func findByteDrivenSplitPoint(sizes []int, lo, hi int) int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	mid := len(sizes) / 2
	acc := 0
	for i, s := range sizes {
		acc += s
		if acc >= total/2 {
			mid = i + 1
			break
		}
	}
	if mid > hi {
		mid = hi
	}
	if mid < lo {
		mid = lo
	}
	return mid
}

// Delete 删除键，返回新根以及是否删除
func (t *BTree) Delete(root uint64, key []byte) (uint64, bool, error) {
	if root == NoPage {
		return NoPage, false, nil
	}
	newRoot, removed, err := t.delete(root, key)
	if err != nil || !removed {
		return root, false, err
	}

	// 根折叠：只有一个孩子的内部根被其孩子替代
	for newRoot != NoPage {
		n, err := t.readNode(newRoot)
		if err != nil {
			return root, false, err
		}
		if n.leaf || len(n.children) > 1 {
			break
		}
		newRoot = n.children[0]
	}
	return newRoot, true, nil
}

// delete 递归删除；返回 NoPage 表示节点已空
func (t *BTree) delete(id uint64, key []byte) (uint64, bool, error) {
	n, err := t.readNode(id)
	if err != nil {
		return id, false, err
	}

	if n.leaf {
		pos, found := t.searchLeaf(n, key)
		if !found {
			return id, false, nil
		}
		n.entries = append(n.entries[:pos], n.entries[pos+1:]...)
		if len(n.entries) == 0 {
			return NoPage, true, nil
		}
		newID, err := t.writeNode(n)
		return newID, true, err
	}

	idx := t.childIndex(n, key)
	child, removed, err := t.delete(n.children[idx], key)
	if err != nil || !removed {
		return id, removed, err
	}

	if child == NoPage {
		n.children = append(n.children[:idx], n.children[idx+1:]...)
		if len(n.keys) > 0 {
			k := idx - 1
			if k < 0 {
				k = 0
			}
			n.keys = append(n.keys[:k], n.keys[k+1:]...)
		}
		if len(n.children) == 0 {
			return NoPage, true, nil
		}
	} else {
		n.children[idx] = child
		if err := t.mergeSmallChild(n, idx); err != nil {
			return id, false, err
		}
	}

	newID, err := t.writeNode(n)
	return newID, true, err
}

// mergeSmallChild 子节点不足半页时，若与相邻兄弟合并后能放入一页则合并
func (t *BTree) mergeSmallChild(parent *btreeNode, idx int) error {
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
	var left, right *btreeNode
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

	merged := &btreeNode{leaf: left.leaf}
	if left.leaf {
		merged.entries = append(append([]btreeEntry(nil), left.entries...), right.entries...)
	} else {
		merged.keys = append(append(append([][]byte(nil), left.keys...), parent.keys[li]), right.keys...)
		merged.children = append(append([]uint64(nil), left.children...), right.children...)
	}
	if merged.byteSize() > capacity {
		return nil
	}

	mergedID, err := t.writeNode(merged)
	if err != nil {
		return err
	}
	parent.children[li] = mergedID
	parent.children = append(parent.children[:li+1], parent.children[li+2:]...)
	parent.keys = append(parent.keys[:li], parent.keys[li+1:]...)
	return nil
}

// First 返回最小项（最左下降）
func (t *BTree) First(root uint64) (key, value []byte, found bool, err error) {
	return t.edge(root, true)
}

// Last 返回最大项（最右下降）
func (t *BTree) Last(root uint64) (key, value []byte, found bool, err error) {
	return t.edge(root, false)
}

func (t *BTree) edge(root uint64, first bool) ([]byte, []byte, bool, error) {
	if root == NoPage {
		return nil, nil, false, nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return nil, nil, false, err
	}
	for !n.leaf {
		next := n.children[0]
		if !first {
			next = n.children[len(n.children)-1]
		}
		if n, err = t.readNode(next); err != nil {
			return nil, nil, false, err
		}
	}
	if len(n.entries) == 0 {
		return nil, nil, false, fxerr.Corruption(fmt.Sprintf("page %d: empty leaf", n.id))
	}
	e := n.entries[0]
	if !first {
		e = n.entries[len(n.entries)-1]
	}
	value, err := t.pager.loadValue(e.flags, e.value)
	if err != nil {
		return nil, nil, false, err
	}
	return cloneBytes(e.key), value, true, nil
}

// Floor 返回 <= key 的最大项
func (t *BTree) Floor(root uint64, key []byte) ([]byte, []byte, bool, error) {
	if root == NoPage {
		return nil, nil, false, nil
	}
	return t.floor(root, key, false)
}

// Lower 返回 < key 的最大项
func (t *BTree) Lower(root uint64, key []byte) ([]byte, []byte, bool, error) {
	if root == NoPage {
		return nil, nil, false, nil
	}
	return t.floor(root, key, true)
}

func (t *BTree) floor(id uint64, key []byte, strict bool) ([]byte, []byte, bool, error) {
	n, err := t.readNode(id)
	if err != nil {
		return nil, nil, false, err
	}
	if n.leaf {
		pos, found := t.searchLeaf(n, key)
		if strict || !found {
			pos--
		}
		if pos < 0 {
			return nil, nil, false, nil
		}
		e := n.entries[pos]
		value, err := t.pager.loadValue(e.flags, e.value)
		return cloneBytes(e.key), value, err == nil, err
	}
	idx := t.childIndex(n, key)
	k, v, ok, err := t.floor(n.children[idx], key, strict)
	if err != nil || ok || idx == 0 {
		return k, v, ok, err
	}
	return t.Last(n.children[idx-1])
}

// Ceiling 返回 >= key 的最小项
func (t *BTree) Ceiling(root uint64, key []byte) ([]byte, []byte, bool, error) {
	var k, v []byte
	found := false
	err := t.Ascend(root, key, func(key, value []byte) (bool, error) {
		k, v, found = key, value, true
		return false, nil
	})
	return k, v, found, err
}

// Higher 返回 > key 的最小项
func (t *BTree) Higher(root uint64, key []byte) ([]byte, []byte, bool, error) {
	var k, v []byte
	found := false
	err := t.Ascend(root, key, func(ek, ev []byte) (bool, error) {
		if t.cmp(ek, key) == 0 {
			return true, nil
		}
		k, v, found = ek, ev, true
		return false, nil
	})
	return k, v, found, err
}

// Ascend 从 from（nil 表示最小键）开始按序遍历，fn 返回 false 停止
func (t *BTree) Ascend(root uint64, from []byte, fn func(key, value []byte) (bool, error)) error {
	if root == NoPage {
		return nil
	}
	_, err := t.ascend(root, from, fn)
	return err
}

func (t *BTree) ascend(id uint64, from []byte, fn func(key, value []byte) (bool, error)) (bool, error) {
	n, err := t.readNode(id)
	if err != nil {
		return false, err
	}
	if n.leaf {
		start := 0
		if from != nil {
			start, _ = t.searchLeaf(n, from)
		}
		for _, e := range n.entries[start:] {
			value, err := t.pager.loadValue(e.flags, e.value)
			if err != nil {
				return false, err
			}
			cont, err := fn(cloneBytes(e.key), value)
			if err != nil || !cont {
				return false, err
			}
		}
		return true, nil
	}

	start := 0
	if from != nil {
		start = t.childIndex(n, from)
	}
	for i := start; i < len(n.children); i++ {
		childFrom := from
		if i > start {
			childFrom = nil
		}
		cont, err := t.ascend(n.children[i], childFrom, fn)
		if err != nil || !cont {
			return false, err
		}
	}
	return true, nil
}

// Descend 从 from（nil 表示最大键）开始按逆序遍历，包含等于 from 的键
func (t *BTree) Descend(root uint64, from []byte, fn func(key, value []byte) (bool, error)) error {
	if root == NoPage {
		return nil
	}
	_, err := t.descend(root, from, fn)
	return err
}

func (t *BTree) descend(id uint64, from []byte, fn func(key, value []byte) (bool, error)) (bool, error) {
	n, err := t.readNode(id)
	if err != nil {
		return false, err
	}
	if n.leaf {
		end := len(n.entries)
		if from != nil {
			pos, found := t.searchLeaf(n, from)
			end = pos
			if found {
				end++
			}
		}
		for i := end - 1; i >= 0; i-- {
			e := n.entries[i]
			value, err := t.pager.loadValue(e.flags, e.value)
			if err != nil {
				return false, err
			}
			cont, err := fn(cloneBytes(e.key), value)
			if err != nil || !cont {
				return false, err
			}
		}
		return true, nil
	}

	start := len(n.children) - 1
	if from != nil {
		start = t.childIndex(n, from)
	}
	for i := start; i >= 0; i-- {
		childFrom := from
		if i < start {
			childFrom = nil
		}
		cont, err := t.descend(n.children[i], childFrom, fn)
		if err != nil || !cont {
			return false, err
		}
	}
	return true, nil
}

// Count 统计元素个数（遍历叶子，仅用于校验）
func (t *BTree) Count(root uint64) (int64, error) {
	if root == NoPage {
		return 0, nil
	}
	return t.count(root)
}

func (t *BTree) count(id uint64) (int64, error) {
	n, err := t.readNode(id)
	if err != nil {
		return 0, err
	}
	if n.leaf {
		return int64(len(n.entries)), nil
	}
	var total int64
	for _, c := range n.children {
		sub, err := t.count(c)
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

// Height 返回树高，空树为 0
func (t *BTree) Height(root uint64) (int, error) {
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

// Pages 访问树的所有页（含溢出页）
func (t *BTree) Pages(root uint64, fn func(id uint64, pageType uint8) error) error {
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
		for _, e := range n.entries {
			if err := t.pager.valuePages(e.flags, e.value, fn); err != nil {
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
func (t *BTree) CopyTo(dst *Pager, root uint64) (uint64, error) {
	if root == NoPage {
		return NoPage, nil
	}
	n, err := t.readNode(root)
	if err != nil {
		return NoPage, err
	}
	if n.leaf {
		for i, e := range n.entries {
			if n.entries[i].value, err = t.pager.copyValue(dst, e.flags, e.value); err != nil {
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

// Verify 校验树结构：键序、分隔键范围、叶子等深、非空节点；返回元素个数
// checkOrder 为假时跳过键序检查（比较器未知时）
func (t *BTree) Verify(root uint64, checkOrder bool) (int64, error) {
	if root == NoPage {
		return 0, nil
	}
	leafDepth := -1
	count, err := t.verifyNode(root, nil, nil, 0, &leafDepth, checkOrder)
	if err != nil {
		return 0, fmt.Errorf("tree structure error: %w", err)
	}
	return count, nil
}

// verifyNode 递归校验节点，键需满足 minKey <= key < maxKey
func (t *BTree) verifyNode(id uint64, minKey, maxKey []byte, depth int, leafDepth *int, checkOrder bool) (int64, error) {
	n, err := t.readNode(id)
	if err != nil {
		return 0, fmt.Errorf("failed to read node %d: %w", id, err)
	}

	keys := n.keys
	if n.leaf {
		keys = make([][]byte, len(n.entries))
		for i, e := range n.entries {
			keys[i] = e.key
		}
		if len(keys) == 0 {
			return 0, fxerr.Corruption(fmt.Sprintf("leaf %d is empty", id))
		}
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return 0, fxerr.Corruption(fmt.Sprintf("leaf %d at depth %d, expected %d", id, depth, *leafDepth))
		}
	} else if len(n.children) != len(n.keys)+1 {
		return 0, fxerr.Corruption(fmt.Sprintf("node %d has incorrect child count: %d vs %d", id, len(n.children), len(n.keys)+1))
	}

	if checkOrder {
		for i := 1; i < len(keys); i++ {
			if t.cmp(keys[i-1], keys[i]) >= 0 {
				return 0, fxerr.Corruption(fmt.Sprintf("node %d keys not in order at index %d", id, i))
			}
		}
		if minKey != nil && len(keys) > 0 && t.cmp(keys[0], minKey) < 0 {
			return 0, fxerr.Corruption(fmt.Sprintf("node %d first key less than min bound", id))
		}
		if maxKey != nil && len(keys) > 0 && t.cmp(keys[len(keys)-1], maxKey) >= 0 {
			return 0, fxerr.Corruption(fmt.Sprintf("node %d last key exceeds max bound", id))
		}
	}

	if n.leaf {
		return int64(len(n.entries)), nil
	}

	var total int64
	for i, c := range n.children {
		childMin, childMax := minKey, maxKey
		if i > 0 {
			childMin = n.keys[i-1]
		}
		if i < len(n.keys) {
			childMax = n.keys[i]
		}
		sub, err := t.verifyNode(c, childMin, childMax, depth+1, leafDepth, checkOrder)
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

// 辅助函数

func insertEntryAt(slice []btreeEntry, index int, e btreeEntry) []btreeEntry {
	slice = append(slice, btreeEntry{})
	copy(slice[index+1:], slice[index:])
	slice[index] = e
	return slice
}

func insertKeyAt(slice [][]byte, index int, value []byte) [][]byte {
	slice = append(slice, nil)
	copy(slice[index+1:], slice[index:])
	slice[index] = value
	return slice
}

func insertPageIDAt(slice []uint64, index int, value uint64) []uint64 {
	slice = append(slice, 0)
	copy(slice[index+1:], slice[index:])
	slice[index] = value
	return slice
}
