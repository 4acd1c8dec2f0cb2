// Created by Yanjunhui

package engine_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/codec"
	"github.com/Snoworca/FxStore-sub001/engine"
	"github.com/Snoworca/FxStore-sub001/internal/testkit"
	"github.com/Snoworca/FxStore-sub001/storage"
)

func flipByte(t *testing.T, path string, off int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	b := make([]byte, 1)
	_, err = f.ReadAt(b, off)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}

func fillMap(t *testing.T, s *engine.Store, n int64) {
	t.Helper()
	m, err := engine.CreateOrOpenMap(s, "m", codec.Int64, codec.String)
	require.NoError(t, err)
	for i := int64(0); i < n; i++ {
		require.NoError(t, m.Put(i, "value"))
	}
}

func TestVerifyCleanStore(t *testing.T) {
	h := testkit.OpenTempStore(t, nil)
	fillMap(t, h.Store, 500)
	_, err := engine.CreateDeque(h.Store, "d", codec.Int64)
	require.NoError(t, err)

	res, err := h.Store.Verify()
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Errors)
}

func TestVerifyReportsCorruptDeadPage(t *testing.T) {
	h := testkit.OpenTempStore(t, nil)
	fillMap(t, h.Store, 20)
	require.NoError(t, h.Store.Close())

	// 页 1 是第一次提交的目录页，之后已不可达
	// EN: Page 1 held the first catalog and is unreachable by now.
	flipByte(t, h.Path, storage.PageOffset(1, storage.DefaultPageSize)+storage.PageHeaderSize)

	s := h.Reopen()
	res, err := s.Verify()
	require.NoError(t, err)
	require.False(t, res.OK())

	var pageErr *engine.VerifyError
	for i := range res.Errors {
		if res.Errors[i].Kind == engine.VerifyPage {
			pageErr = &res.Errors[i]
			break
		}
	}
	require.NotNil(t, pageErr, "no page finding in %v", res.Errors)
	assert.Equal(t, uint64(1), pageErr.PageID)
	assert.Contains(t, pageErr.Message, "checksum")
	assert.Contains(t, h.Logs.String(), "verify found problems")

	// 活数据不受影响
	// EN: Live data is unaffected.
	m, err := engine.OpenMap(s, "m", codec.Int64, codec.String)
	require.NoError(t, err)
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(20), size)
}

func TestOpenRejectsCorruptCatalog(t *testing.T) {
	h := testkit.OpenTempStore(t, nil)
	fillMap(t, h.Store, 5)
	fast, err := h.Store.Stats(engine.StatsFast)
	require.NoError(t, err)
	require.NoError(t, h.Store.Close())

	// 最后分配的页是最新的目录页
	// EN: The last allocated page is the newest catalog page.
	last := fast.LiveBytesEstimate - int64(storage.DefaultPageSize)
	flipByte(t, h.Path, last+storage.PageHeaderSize)

	_, err = engine.Open(h.Path, h.Opts)
	testkit.AssertCode(t, err, engine.ErrorCodeCorruption)
}
