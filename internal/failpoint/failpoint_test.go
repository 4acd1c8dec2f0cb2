package failpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModes(t *testing.T) {
	if !Enabled() {
		Enable("x", AlwaysError)
		assert.NoError(t, Hit("x"), "hooks must be no-ops without the failpoint tag")
		assert.Zero(t, HitCount("x"))
		return
	}
	t.Cleanup(DisableAll)

	assert.NoError(t, Hit("unarmed"))

	Enable("once", FailOnce)
	assert.ErrorIs(t, Hit("once"), ErrInjected)
	assert.NoError(t, Hit("once"))

	Enable("times", FailTimes(2))
	assert.Error(t, Hit("times"))
	assert.Error(t, Hit("times"))
	assert.NoError(t, Hit("times"))

	Enable("after", FailAfter(2))
	assert.NoError(t, Hit("after"))
	assert.NoError(t, Hit("after"))
	assert.Error(t, Hit("after"))
	assert.Equal(t, int64(3), HitCount("after"))

	custom := errors.New("disk full")
	Enable("custom", Config{Mode: Always, Err: custom})
	require.ErrorIs(t, Hit("custom"), custom)
	Disable("custom")
	assert.NoError(t, Hit("custom"))
}
