// Package testkit provides store fixtures and invariant checks for tests.
package testkit

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/engine"
)

// StoreHandle is a file-backed test store that can be reopened.
type StoreHandle struct {
	Store *engine.Store
	Path  string
	Opts  engine.Options
	Logs  *bytes.Buffer
	t     *testing.T
}

// TestOptions returns default options with a private logger writing to logs,
// so tests can assert on log output without touching the global logger.
func TestOptions(logs *bytes.Buffer) engine.Options {
	opts := engine.DefaultOptions()
	opts.Logger = engine.NewLogger(logs)
	opts.Logger.SetLevel(engine.LogLevelDebug)
	return opts
}

// OpenTempStore opens a fresh store file in t.TempDir() and closes it at test end.
// mutate may adjust the options before opening.
func OpenTempStore(t *testing.T, mutate func(*engine.Options)) *StoreHandle {
	t.Helper()

	logs := &bytes.Buffer{}
	opts := TestOptions(logs)
	if mutate != nil {
		mutate(&opts)
	}
	h := &StoreHandle{
		Path: filepath.Join(t.TempDir(), "test.fx"),
		Opts: opts,
		Logs: logs,
		t:    t,
	}

	s, err := engine.Open(h.Path, opts)
	require.NoError(t, err, "failed to open store")
	h.Store = s

	t.Cleanup(func() {
		if h.Store != nil && !h.Store.IsClosed() {
			// Pending BATCH changes must not fail cleanup.
			_ = h.Store.Rollback()
			_ = h.Store.Close()
		}
	})
	return h
}

// Reopen closes the store and opens the same file again with the same options.
func (h *StoreHandle) Reopen() *engine.Store {
	h.t.Helper()

	if !h.Store.IsClosed() {
		require.NoError(h.t, h.Store.Close(), "failed to close store before reopen")
	}
	s, err := engine.Open(h.Path, h.Opts)
	require.NoError(h.t, err, "failed to reopen store")
	h.Store = s
	return s
}

// OpenMemoryStore opens an in-memory store closed at test end.
func OpenMemoryStore(t *testing.T, mutate func(*engine.Options)) *engine.Store {
	t.Helper()

	opts := TestOptions(&bytes.Buffer{})
	if mutate != nil {
		mutate(&opts)
	}
	s, err := engine.OpenMemory(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Rollback()
		_ = s.Close()
	})
	return s
}
