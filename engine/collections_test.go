// Created by Yanjunhui

package engine_test

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/engine"
	"github.com/Snoworca/FxStore-sub001/internal/testkit"
)

func TestMapAgainstModel(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "m", codec.Int64, codec.String)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	model := map[int64]string{}
	for i := 0; i < 3000; i++ {
		k := rng.Int63n(800) - 400
		switch rng.Intn(4) {
		case 0:
			removed, err := m.Remove(k)
			require.NoError(t, err)
			_, had := model[k]
			assert.Equal(t, had, removed)
			delete(model, k)
		default:
			v := fmt.Sprintf("v%d-%d", k, i)
			require.NoError(t, m.Put(k, v))
			model[k] = v
		}
	}

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(model)), size)

	keys := make([]int64, 0, len(model))
	for k := range model {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var walked []int64
	require.NoError(t, m.Ascend(func(k int64, v string) bool {
		walked = append(walked, k)
		assert.Equal(t, model[k], v)
		return true
	}))
	assert.Equal(t, keys, walked)

	first, ok, err := m.FirstEntry()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keys[0], first.Key)
	last, ok, err := m.LastEntry()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keys[len(keys)-1], last.Key)

	for _, k := range []int64{-401, -1, 0, 7, 399, 400} {
		_, want := model[k]
		got, err := m.ContainsKey(k)
		require.NoError(t, err)
		assert.Equal(t, want, got, "key %d", k)
	}

	testkit.AssertInvariants(t, s)
}

func TestMapFloorCeilingAndAscendFrom(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	for k := int64(0); k <= 100; k += 10 {
		require.NoError(t, m.Put(k, k*k))
	}

	e, ok, err := m.FloorEntry(35)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Entry[int64, int64]{Key: 30, Value: 900}, e)

	e, ok, err = m.CeilingEntry(35)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(40), e.Key)

	_, ok, err = m.FloorEntry(-1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = m.CeilingEntry(101)
	require.NoError(t, err)
	assert.False(t, ok)

	var got []int64
	require.NoError(t, m.AscendFrom(55, func(k, _ int64) bool {
		got = append(got, k)
		return len(got) < 3
	}))
	assert.Equal(t, []int64{60, 70, 80}, got)
}

func TestMapEmptyAndClear(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "m", codec.String, codec.Bytes)
	require.NoError(t, err)

	_, ok, err := m.FirstEntry()
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = m.Get("x")
	require.NoError(t, err)
	assert.False(t, ok)
	removed, err := m.Remove("x")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, m.Put("a", []byte{1}))
	require.NoError(t, m.Put("a", []byte{2}))
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1), size, "replacing a value keeps the size")

	require.NoError(t, m.Clear())
	size, err = m.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
	testkit.AssertInvariants(t, s)
}

func TestMapLargeValuesUseOverflow(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "blobs", codec.Int64, codec.Bytes)
	require.NoError(t, err)

	big := make([]byte, 100_000)
	for i := range big {
		big[i] = byte(i * 7)
	}
	require.NoError(t, m.Put(1, big))
	require.NoError(t, m.Put(2, []byte("small")))

	got, ok, err := m.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, got)

	testkit.AssertInvariants(t, s)
}

func TestMapKeyTooLarge(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "m", codec.String, codec.Int64)
	require.NoError(t, err)

	err = m.Put(strings.Repeat("k", 5000), 1)
	testkit.AssertCode(t, err, engine.ErrorCodeTooLarge)

	size, err := m.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
	testkit.AssertInvariants(t, s)
}

func TestMapBSONValues(t *testing.T) {
	type user struct {
		Name string `bson:"name"`
		Age  int    `bson:"age"`
	}
	s := testkit.OpenMemoryStore(t, nil)
	m, err := engine.CreateMap(s, "users", codec.String, codec.BSON[user]())
	require.NoError(t, err)
	require.NoError(t, m.Put("u1", user{Name: "ann", Age: 30}))

	u, ok, err := m.Get("u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user{Name: "ann", Age: 30}, u)
}

func TestSetOperations(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	set, err := engine.CreateSet(s, "s", codec.String)
	require.NoError(t, err)

	for _, w := range []string{"pear", "apple", "fig", "apple"} {
		_, err := set.Add(w)
		require.NoError(t, err)
	}
	added, err := set.Add("fig")
	require.NoError(t, err)
	assert.False(t, added)

	size, err := set.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	first, ok, err := set.First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "apple", first)
	last, ok, err := set.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pear", last)

	var all []string
	require.NoError(t, set.Ascend(func(e string) bool {
		all = append(all, e)
		return true
	}))
	assert.Equal(t, []string{"apple", "fig", "pear"}, all)

	removed, err := set.Remove("fig")
	require.NoError(t, err)
	assert.True(t, removed)
	has, err := set.Contains("fig")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, set.Clear())
	_, ok, err = set.First()
	require.NoError(t, err)
	assert.False(t, ok)
	testkit.AssertInvariants(t, s)
}

func TestListAgainstModel(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	l, err := engine.CreateList(s, "l", codec.Int64)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	var model []int64
	for i := int64(0); i < 2000; i++ {
		switch op := rng.Intn(5); {
		case op <= 1 || len(model) == 0:
			require.NoError(t, l.Add(i))
			model = append(model, i)
		case op == 2:
			idx := rng.Intn(len(model) + 1)
			require.NoError(t, l.Insert(int64(idx), i))
			model = append(model, 0)
			copy(model[idx+1:], model[idx:])
			model[idx] = i
		case op == 3:
			idx := rng.Intn(len(model))
			got, err := l.RemoveAt(int64(idx))
			require.NoError(t, err)
			assert.Equal(t, model[idx], got)
			model = append(model[:idx], model[idx+1:]...)
		default:
			idx := rng.Intn(len(model))
			prev, err := l.Set(int64(idx), -i)
			require.NoError(t, err)
			assert.Equal(t, model[idx], prev)
			model[idx] = -i
		}
	}

	size, err := l.Size()
	require.NoError(t, err)
	require.Equal(t, int64(len(model)), size)
	for _, idx := range []int{0, len(model) / 2, len(model) - 1} {
		got, err := l.Get(int64(idx))
		require.NoError(t, err)
		assert.Equal(t, model[idx], got)
	}

	var walked []int64
	require.NoError(t, l.Ascend(func(i int64, v int64) bool {
		assert.Equal(t, int64(len(walked)), i)
		walked = append(walked, v)
		return true
	}))
	assert.Equal(t, model, walked)

	idx, err := l.IndexOf(model[len(model)/3])
	require.NoError(t, err)
	assert.Equal(t, int64(len(model)/3), idx)
	idx, err = l.IndexOf(1 << 50)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), idx)

	testkit.AssertInvariants(t, s)
}

func TestListIndexErrors(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	l, err := engine.CreateList(s, "l", codec.String)
	require.NoError(t, err)
	require.NoError(t, l.Add("a"))

	_, err = l.Get(1)
	testkit.AssertCode(t, err, engine.ErrorCodeOutOfRange)
	_, err = l.Get(-1)
	testkit.AssertCode(t, err, engine.ErrorCodeOutOfRange)
	testkit.AssertCode(t, l.Insert(2, "x"), engine.ErrorCodeOutOfRange)
	_, err = l.RemoveAt(1)
	testkit.AssertCode(t, err, engine.ErrorCodeOutOfRange)
	_, err = l.Set(5, "x")
	testkit.AssertCode(t, err, engine.ErrorCodeOutOfRange)

	require.NoError(t, l.Insert(1, "b"), "insert at size appends")
	require.NoError(t, l.Insert(0, "z"))
	var all []string
	require.NoError(t, l.Ascend(func(_ int64, v string) bool {
		all = append(all, v)
		return true
	}))
	assert.Equal(t, []string{"z", "a", "b"}, all)
}

func TestDequeOrdering(t *testing.T) {
	s := testkit.OpenMemoryStore(t, nil)
	d, err := engine.CreateDeque(s, "d", codec.Int64)
	require.NoError(t, err)

	_, ok, err := d.PollFirst()
	require.NoError(t, err)
	assert.False(t, ok, "poll on empty deque")
	_, ok, err = d.PeekLast()
	require.NoError(t, err)
	assert.False(t, ok)

	// 期望顺序 -3 -2 -1 0 1 2 3
	// EN: Expected order -3 -2 -1 0 1 2 3.
	for i := int64(0); i <= 3; i++ {
		require.NoError(t, d.AddLast(i))
	}
	for i := int64(-1); i >= -3; i-- {
		require.NoError(t, d.AddFirst(i))
	}

	size, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	var all []int64
	require.NoError(t, d.Ascend(func(_ int64, v int64) bool {
		all = append(all, v)
		return true
	}))
	assert.Equal(t, []int64{-3, -2, -1, 0, 1, 2, 3}, all)

	v, err := d.Get(3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	head, ok, err := d.PollFirst()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-3), head)
	tail, ok, err := d.PollLast()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), tail)

	peek, _, err := d.PeekFirst()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), peek)
	peek, _, err = d.PeekLast()
	require.NoError(t, err)
	assert.Equal(t, int64(2), peek)

	size, err = d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	testkit.AssertInvariants(t, s)
}

func TestDequeManyElements(t *testing.T) {
	s := testkit.OpenMemoryStore(t, func(o *engine.Options) { o.CommitMode = engine.CommitBatch })
	d, err := engine.CreateDeque(s, "d", codec.String)
	require.NoError(t, err)

	for i := 0; i < 3000; i++ {
		v := fmt.Sprintf("item-%05d", i)
		if i%2 == 0 {
			require.NoError(t, d.AddLast(v))
		} else {
			require.NoError(t, d.AddFirst(v))
		}
	}
	require.NoError(t, s.Commit())

	for i := 0; i < 1000; i++ {
		_, ok, err := d.PollFirst()
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, s.Commit())

	size, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), size)
	testkit.AssertInvariants(t, s)
}
