// Created by Yanjunhui

package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snoworca/FxStore-sub001/codec"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line %q", sc.Text())
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Info("hello", map[string]interface{}{"b": 2, "a": "x"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "hello", lines[0]["msg"])
	assert.Equal(t, "FXSTORE", lines[0]["component"])
	assert.Equal(t, "x", lines[0]["a"])
	assert.EqualValues(t, 2, lines[0]["b"])
	assert.Contains(t, lines[0], "ts")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Debug("hidden")
	l.SetLevel(LogLevelDebug)
	l.Debug("shown")
	l.SetLevel(LogLevelError)
	l.Warn("hidden too")
	l.Error("kept")
	l.SetLevel(42)
	l.Warn("still hidden")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "kept", lines[1]["msg"])
}

func TestLoggerComponentSharesOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := NewLogger(&first)
	child := l.WithComponent("store")
	assert.Equal(t, "store", child.Component())

	l.SetOutput(&second)
	child.Info("moved")
	assert.Zero(t, first.Len())

	lines := decodeLines(t, &second)
	require.Len(t, lines, 1)
	assert.Equal(t, "store", lines[0]["component"])
}

func TestLoggerSlowOperation(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf).WithSlowThreshold(50 * time.Millisecond)
	l.LogSlowOperation("commit", 10*time.Millisecond, nil)
	assert.Zero(t, buf.Len())

	l.LogSlowOperation("commit", 120*time.Millisecond, map[string]interface{}{"seqNo": 7})
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "slow operation detected", lines[0]["msg"])
	assert.Equal(t, "commit", lines[0]["operation"])
	assert.EqualValues(t, 120, lines[0]["durationMs"])
	assert.EqualValues(t, 7, lines[0]["seqNo"])
}

func TestWithSlowThresholdIsIndependent(t *testing.T) {
	l := NewLogger(&bytes.Buffer{})
	c := l.WithSlowThreshold(time.Second)
	l.SetSlowThreshold(time.Millisecond)
	assert.Equal(t, time.Second, c.SlowThreshold())
	assert.Equal(t, time.Millisecond, l.SlowThreshold())
}

func TestStoreLogsSlowCommits(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = NewLogger(&buf)
	opts.SlowCommitThreshold = time.Nanosecond

	s, err := OpenMemory(opts)
	require.NoError(t, err)
	defer s.Close()
	_, err = CreateSet(s, "s", codec.Int64)
	require.NoError(t, err)

	var slow int
	for _, line := range decodeLines(t, &buf) {
		if line["msg"] == "slow operation detected" {
			slow++
			assert.Equal(t, "store", line["component"])
			assert.Equal(t, "commit", line["operation"])
		}
	}
	assert.Equal(t, 1, slow)
}
