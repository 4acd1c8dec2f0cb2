// Created by Yanjunhui

package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/engine"
	"github.com/Snoworca/FxStore-sub001/internal/testkit"
)

func batchMode(o *engine.Options) { o.CommitMode = engine.CommitBatch }

func TestBatchCommitPublishesChanges(t *testing.T) {
	h := testkit.OpenTempStore(t, batchMode)
	s := h.Store
	assert.Equal(t, engine.CommitBatch, s.CommitMode())
	assert.False(t, s.HasPendingChanges())

	m, err := engine.CreateMap(s, "m", codec.Int64, codec.String)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, "one"))
	assert.True(t, s.HasPendingChanges())

	require.NoError(t, s.Commit())
	assert.False(t, s.HasPendingChanges())
	require.NoError(t, s.Commit(), "commit without changes")

	s = h.Reopen()
	m, err = engine.OpenMap(s, "m", codec.Int64, codec.String)
	require.NoError(t, err)
	v, ok, err := m.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", v)
}

func TestBatchRollbackDiscardsChanges(t *testing.T) {
	s := testkit.OpenMemoryStore(t, batchMode)
	m, err := engine.CreateMap(s, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, 1))
	require.NoError(t, s.Commit())
	before, err := s.Stats(engine.StatsFast)
	require.NoError(t, err)

	for i := int64(2); i < 500; i++ {
		require.NoError(t, m.Put(i, i))
	}
	_, err = engine.CreateSet(s, "extra", codec.String)
	require.NoError(t, err)

	require.NoError(t, s.Rollback())
	assert.False(t, s.HasPendingChanges())

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	exists, err := s.Exists("extra")
	require.NoError(t, err)
	assert.False(t, exists)

	after, err := s.Stats(engine.StatsFast)
	require.NoError(t, err)
	assert.Equal(t, before.LiveBytesEstimate, after.LiveBytesEstimate, "rolled back pages still allocated")

	// 回滚后继续写入并提交
	// EN: Work continues normally after a rollback.
	require.NoError(t, m.Put(2, 2))
	require.NoError(t, s.Commit())
	testkit.AssertInvariants(t, s)
}

func TestAutoModeCommitAndRollbackAreNoops(t *testing.T) {
	h := testkit.OpenTempStore(t, nil)
	m, err := engine.CreateMap(h.Store, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, 1))
	assert.False(t, h.Store.HasPendingChanges())
	require.NoError(t, h.Store.Rollback())
	require.NoError(t, h.Store.Commit())

	s := h.Reopen()
	m, err = engine.OpenMap(s, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestFailedOperationLeavesStateUntouched(t *testing.T) {
	s := testkit.OpenMemoryStore(t, batchMode)
	m, err := engine.CreateMap(s, "m", codec.String, codec.Int64)
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	big := make([]byte, 10_000)
	for i := range big {
		big[i] = 'k'
	}
	err = m.Put(string(big), 1)
	testkit.AssertCode(t, err, engine.ErrorCodeTooLarge)
	assert.False(t, s.HasPendingChanges())
}

func TestClosePolicyError(t *testing.T) {
	h := testkit.OpenTempStore(t, batchMode)
	m, err := engine.CreateMap(h.Store, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, 1))

	testkit.AssertCode(t, h.Store.Close(), engine.ErrorCodePendingChanges)
	assert.False(t, h.Store.IsClosed(), "store must stay open")

	require.NoError(t, h.Store.Commit())
	require.NoError(t, h.Store.Close())
	assert.True(t, h.Store.IsClosed())
	require.NoError(t, h.Store.Close(), "second close")
}

func TestClosePolicyCommit(t *testing.T) {
	h := testkit.OpenTempStore(t, func(o *engine.Options) {
		o.CommitMode = engine.CommitBatch
		o.OnClosePolicy = engine.CloseCommit
	})
	l, err := engine.CreateList(h.Store, "l", codec.String)
	require.NoError(t, err)
	require.NoError(t, l.Add("kept"))
	require.NoError(t, h.Store.Close())

	s := h.Reopen()
	l, err = engine.OpenList(s, "l", codec.String)
	require.NoError(t, err)
	v, err := l.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "kept", v)
}

func TestClosePolicyRollback(t *testing.T) {
	h := testkit.OpenTempStore(t, func(o *engine.Options) {
		o.CommitMode = engine.CommitBatch
		o.OnClosePolicy = engine.CloseRollback
	})
	_, err := engine.CreateDeque(h.Store, "d", codec.Int64)
	require.NoError(t, err)
	require.NoError(t, h.Store.Close())

	s := h.Reopen()
	exists, err := s.Exists("d")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompactRejectsPendingChanges(t *testing.T) {
	h := testkit.OpenTempStore(t, batchMode)
	m, err := engine.CreateMap(h.Store, "m", codec.Int64, codec.Int64)
	require.NoError(t, err)
	require.NoError(t, m.Put(1, 1))

	target := filepath.Join(t.TempDir(), "compact.fx")
	testkit.AssertCode(t, h.Store.CompactTo(target), engine.ErrorCodePendingChanges)
	assert.NoFileExists(t, target)

	require.NoError(t, h.Store.Commit())
	require.NoError(t, h.Store.CompactTo(target))
	assert.FileExists(t, target)
}

func TestAsyncDurabilityStillPersistsOnClose(t *testing.T) {
	h := testkit.OpenTempStore(t, func(o *engine.Options) { o.Durability = engine.DurabilityAsync })
	set, err := engine.CreateSet(h.Store, "s", codec.Int64)
	require.NoError(t, err)
	for i := int64(0); i < 50; i++ {
		_, err := set.Add(i)
		require.NoError(t, err)
	}

	s := h.Reopen()
	set, err = engine.OpenSet(s, "s", codec.Int64)
	require.NoError(t, err)
	size, err := set.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(50), size)
	testkit.AssertInvariants(t, s)
}
