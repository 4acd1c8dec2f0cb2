// Created by Yanjunhui

package storage

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func btreeKey(i int) []byte {
	return []byte(fmt.Sprintf("key%06d", i))
}

func TestBTreeBasic(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)

	root := NoPage
	var err error
	for i := 0; i < 1000; i++ {
		root, _, err = tree.Put(root, btreeKey(i), []byte(fmt.Sprintf("value%06d", i)))
		require.NoError(t, err)
	}

	count, err := tree.Verify(root, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), count)

	for i := 0; i < 1000; i++ {
		v, found, err := tree.Get(root, btreeKey(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, fmt.Sprintf("value%06d", i), string(v))
	}

	_, found, err := tree.Get(root, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBTreeReplace(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)

	root, replaced, err := tree.Put(NoPage, []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.False(t, replaced)

	root, replaced, err = tree.Put(root, []byte("a"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, replaced)

	v, _, err := tree.Get(root, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	count, err := tree.Count(root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBTreeCopyOnWriteKeepsOldRoot(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)

	root := NoPage
	var err error
	for i := 0; i < 500; i++ {
		root, _, err = tree.Put(root, btreeKey(i), []byte("v1"))
		require.NoError(t, err)
	}
	old := root

	for i := 0; i < 500; i += 2 {
		root, _, err = tree.Delete(root, btreeKey(i))
		require.NoError(t, err)
	}
	root, _, err = tree.Put(root, btreeKey(1), []byte("v2"))
	require.NoError(t, err)

	// 旧根看到的仍是修改前的数据
	// EN: The old root still sees the data as it was.
	oldCount, err := tree.Verify(old, true)
	require.NoError(t, err)
	assert.Equal(t, int64(500), oldCount)
	v, _, err := tree.Get(old, btreeKey(1))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	newCount, err := tree.Verify(root, true)
	require.NoError(t, err)
	assert.Equal(t, int64(250), newCount)
}

func TestBTreeRandomAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	model := map[string]string{}

	root := NoPage
	for step := 0; step < 5000; step++ {
		k := fmt.Sprintf("k%05d", rng.Intn(1500))
		if rng.Intn(3) == 0 {
			var removed bool
			var err error
			root, removed, err = tree.Delete(root, []byte(k))
			require.NoError(t, err)
			_, had := model[k]
			require.Equal(t, had, removed, "step %d delete %s", step, k)
			delete(model, k)
			continue
		}
		v := fmt.Sprintf("v%d-%s", step, bytes.Repeat([]byte("x"), rng.Intn(200)))
		var err error
		root, _, err = tree.Put(root, []byte(k), []byte(v))
		require.NoError(t, err)
		model[k] = v
	}

	count, err := tree.Verify(root, true)
	require.NoError(t, err)
	require.Equal(t, int64(len(model)), count)

	keys := make([]string, 0, len(model))
	for k := range model {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// 有序遍历与模型一致
	// EN: In-order traversal matches the model.
	var got []string
	require.NoError(t, tree.Ascend(root, nil, func(k, v []byte) (bool, error) {
		require.Equal(t, model[string(k)], string(v))
		got = append(got, string(k))
		return true, nil
	}))
	require.Equal(t, keys, got)

	if len(keys) > 0 {
		fk, _, found, err := tree.First(root)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, keys[0], string(fk))

		lk, _, found, err := tree.Last(root)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, keys[len(keys)-1], string(lk))
	}
}

func TestBTreeFloorCeiling(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 2000; i += 10 {
		root, _, err = tree.Put(root, btreeKey(i), []byte{byte(i)})
		require.NoError(t, err)
	}

	k, _, found, err := tree.Floor(root, btreeKey(155))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btreeKey(150), k)

	k, _, found, err = tree.Ceiling(root, btreeKey(155))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btreeKey(160), k)

	k, _, found, err = tree.Floor(root, btreeKey(150))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btreeKey(150), k)

	_, _, found, err = tree.Floor(root, []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = tree.Ceiling(root, []byte("z"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBTreeLowerHigher(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 2000; i += 10 {
		root, _, err = tree.Put(root, btreeKey(i), []byte{byte(i)})
		require.NoError(t, err)
	}

	// 每个键都与相邻键比较，覆盖跨叶子的情况
	// EN: Check every stored key against its neighbours, including leaf boundaries.
	for i := 0; i < 2000; i += 10 {
		k, _, found, err := tree.Lower(root, btreeKey(i))
		require.NoError(t, err)
		if i == 0 {
			assert.False(t, found)
		} else {
			require.True(t, found, "lower %d", i)
			assert.Equal(t, btreeKey(i-10), k)
		}

		k, _, found, err = tree.Higher(root, btreeKey(i))
		require.NoError(t, err)
		if i == 1990 {
			assert.False(t, found)
		} else {
			require.True(t, found, "higher %d", i)
			assert.Equal(t, btreeKey(i+10), k)
		}
	}

	k, _, found, err := tree.Lower(root, btreeKey(155))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btreeKey(150), k)

	k, _, found, err = tree.Higher(root, btreeKey(155))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, btreeKey(160), k)

	_, _, found, err = tree.Lower(NoPage, btreeKey(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBTreeDescend(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 3000; i += 2 {
		root, _, err = tree.Put(root, btreeKey(i), nil)
		require.NoError(t, err)
	}

	var all [][]byte
	require.NoError(t, tree.Descend(root, nil, func(k, _ []byte) (bool, error) {
		all = append(all, k)
		return true, nil
	}))
	require.Len(t, all, 1500)
	assert.Equal(t, btreeKey(2998), all[0])
	assert.Equal(t, btreeKey(0), all[len(all)-1])

	for _, from := range []int{1001, 1000, 0, 5000} {
		var got [][]byte
		require.NoError(t, tree.Descend(root, btreeKey(from), func(k, _ []byte) (bool, error) {
			got = append(got, k)
			return len(got) < 3, nil
		}))
		want := [][]byte{}
		for i := from; i >= 0 && len(want) < 3; i-- {
			if i%2 == 0 && i < 3000 {
				want = append(want, btreeKey(i))
			}
		}
		assert.Equal(t, want, got, "from %d", from)
	}
}

func TestBTreeDeleteAll(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 3000; i++ {
		root, _, err = tree.Put(root, btreeKey(i), []byte("value"))
		require.NoError(t, err)
	}
	perm := rand.New(rand.NewSource(7)).Perm(3000)
	for n, i := range perm {
		var removed bool
		root, removed, err = tree.Delete(root, btreeKey(i))
		require.NoError(t, err)
		require.True(t, removed)
		if n%500 == 0 {
			_, err := tree.Verify(root, true)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, NoPage, root)

	_, _, found, err := tree.First(root)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBTreeOverflowValues(t *testing.T) {
	p := newTestPager(t, PageSize4K)
	tree := NewBTree(p, nil)

	big := bytes.Repeat([]byte("big-value/"), 3000)
	root, _, err := tree.Put(NoPage, []byte("big"), big)
	require.NoError(t, err)
	root, _, err = tree.Put(root, []byte("small"), []byte("s"))
	require.NoError(t, err)

	p.Cache().Clear()
	v, found, err := tree.Get(root, []byte("big"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, big, v)

	pages := map[uint64]uint8{}
	require.NoError(t, tree.Pages(root, func(id uint64, pt uint8) error {
		pages[id] = pt
		return nil
	}))
	overflow := 0
	for _, pt := range pages {
		if pt == PageTypeOverflow {
			overflow++
		}
	}
	assert.Greater(t, overflow, 1)
}

func TestBTreeKeyTooLarge(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	_, _, err := tree.Put(NoPage, make([]byte, tree.MaxKeySize()+1), nil)
	assert.True(t, fxerr.Is(err, fxerr.CodeTooLarge))

	root, _, err := tree.Put(NoPage, bytes.Repeat([]byte{'k'}, tree.MaxKeySize()), bytes.Repeat([]byte{'v'}, 5000))
	require.NoError(t, err)
	_, err = tree.Verify(root, true)
	require.NoError(t, err)
}

func TestBTreeCustomCompare(t *testing.T) {
	// 逆序比较器
	// EN: Reverse-order comparator.
	reverse := func(a, b []byte) int { return bytes.Compare(b, a) }
	tree := NewBTree(newTestPager(t, PageSize4K), reverse)

	root := NoPage
	var err error
	for i := 0; i < 300; i++ {
		root, _, err = tree.Put(root, btreeKey(i), nil)
		require.NoError(t, err)
	}
	k, _, _, err := tree.First(root)
	require.NoError(t, err)
	assert.Equal(t, btreeKey(299), k)

	_, err = tree.Verify(root, true)
	require.NoError(t, err)
}

func TestBTreeCopyTo(t *testing.T) {
	src := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 800; i++ {
		value := []byte("v")
		if i%100 == 0 {
			value = bytes.Repeat([]byte{byte(i)}, 5000)
		}
		root, _, err = src.Put(root, btreeKey(i), value)
		require.NoError(t, err)
	}

	dstPager := newTestPager(t, PageSize4K)
	newRoot, err := src.CopyTo(dstPager, root)
	require.NoError(t, err)

	dst := NewBTree(dstPager, nil)
	count, err := dst.Verify(newRoot, true)
	require.NoError(t, err)
	assert.Equal(t, int64(800), count)

	v, _, err := dst.Get(newRoot, btreeKey(300))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{44}, 5000), v)
}

func TestBTreeHeightIsLogarithmic(t *testing.T) {
	tree := NewBTree(newTestPager(t, PageSize4K), nil)
	root := NoPage
	var err error
	for i := 0; i < 10000; i++ {
		root, _, err = tree.Put(root, btreeKey(i), []byte("value"))
		require.NoError(t, err)
	}
	h, err := tree.Height(root)
	require.NoError(t, err)
	assert.LessOrEqual(t, h, 4)
}

func TestBTreeVerifyDetectsCorruption(t *testing.T) {
	p := newTestPager(t, PageSize4K)
	tree := NewBTree(p, nil)
	root := NoPage
	var err error
	for i := 0; i < 500; i++ {
		root, _, err = tree.Put(root, btreeKey(i), []byte("value"))
		require.NoError(t, err)
	}

	_, err = p.Storage().WriteAt(bytes.Repeat([]byte{0xFF}, 8), PageOffset(root, PageSize4K)+PageHeaderSize)
	require.NoError(t, err)
	p.Cache().Clear()

	_, err = tree.Verify(root, true)
	require.Error(t, err)
	assert.True(t, fxerr.Is(err, fxerr.CodeCorruption))
}
