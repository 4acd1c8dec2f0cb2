package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/engine"
)

// AssertInvariants runs every store-level invariant check.
func AssertInvariants(t *testing.T, s *engine.Store) {
	t.Helper()

	AssertStatsInvariants(t, s)
	AssertVerifyOK(t, s)
}

// AssertStatsInvariants compares FAST and DEEP stats of the same state.
func AssertStatsInvariants(t *testing.T, s *engine.Store) (fast, deep engine.Stats) {
	t.Helper()

	fast, err := s.Stats(engine.StatsFast)
	require.NoError(t, err)
	deep, err = s.Stats(engine.StatsDeep)
	require.NoError(t, err)

	assert.Equal(t, fast.FileBytes, deep.FileBytes, "file bytes differ between modes")
	assert.Equal(t, fast.CollectionCount, deep.CollectionCount, "collection count differs between modes")
	assert.LessOrEqual(t, deep.LiveBytesEstimate, fast.LiveBytesEstimate, "deep live bytes exceed fast estimate")
	assert.Positive(t, fast.LiveBytesEstimate)
	assert.Positive(t, deep.LiveBytesEstimate)

	for _, st := range []engine.Stats{fast, deep} {
		assert.GreaterOrEqual(t, st.DeadBytesEstimate, int64(0))
		assert.GreaterOrEqual(t, st.DeadRatio, 0.0)
		assert.LessOrEqual(t, st.DeadRatio, 1.0)
	}
	return fast, deep
}

// AssertVerifyOK fails the test with every verify finding.
func AssertVerifyOK(t *testing.T, s *engine.Store) {
	t.Helper()

	res, err := s.Verify()
	require.NoError(t, err)
	if !res.OK() {
		for _, e := range res.Errors {
			t.Errorf("verify: %s", e.String())
		}
		t.FailNow()
	}
}

// AssertCode fails unless err carries code.
func AssertCode(t *testing.T, err error, code int) {
	t.Helper()

	require.Error(t, err)
	e := engine.AsError(err)
	require.NotNil(t, e, "not a store error: %v", err)
	assert.Equal(t, code, e.Code, "unexpected error: %v", err)
}
