// Created by Yanjunhui

package storage

import (
	"testing"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitHeaderRoundTrip(t *testing.T) {
	h := &CommitHeader{SeqNo: 7, AllocTail: 42, CatalogRoot: 40, NextCollectionID: 3, CommittedAt: 1700000000000}
	decoded, err := DecodeCommitHeader(h.Encode())
	require.NoError(t, err)
	assert.Equal(t, *h, *decoded)
	assert.Equal(t, 1, h.Slot())
}

func TestCommitHeaderLatestPicksHigherSeq(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, WriteCommitHeader(s, &CommitHeader{SeqNo: 4, AllocTail: 10}))
	require.NoError(t, WriteCommitHeader(s, &CommitHeader{SeqNo: 5, AllocTail: 12}))

	h, fellBack, err := ReadCommitHeaders(s).Latest()
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Equal(t, uint64(5), h.SeqNo)
	assert.Equal(t, uint64(12), h.AllocTail)
}

func TestCommitHeaderTornWriteFallsBack(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, WriteCommitHeader(s, &CommitHeader{SeqNo: 2, AllocTail: 10}))
	require.NoError(t, WriteCommitHeader(s, &CommitHeader{SeqNo: 3, AllocTail: 20}))

	// 破坏槽位 B（seq 3）
	// EN: Corrupt slot B (seq 3).
	_, err := s.WriteAt([]byte{0xDE, 0xAD}, CommitHeaderSlotOffset(1)+20)
	require.NoError(t, err)

	h, fellBack, err := ReadCommitHeaders(s).Latest()
	require.NoError(t, err)
	assert.True(t, fellBack)
	assert.Equal(t, uint64(2), h.SeqNo)
}

func TestCommitHeaderNoValidSlot(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.WriteAt(make([]byte, AllocStart), 0)
	require.NoError(t, err)

	_, _, err = ReadCommitHeaders(s).Latest()
	require.Error(t, err)
	assert.True(t, fxerr.Is(err, fxerr.CodeCorruption))
}

func TestCommitHeaderRejectsZeroAllocTail(t *testing.T) {
	h := &CommitHeader{SeqNo: 1}
	_, err := DecodeCommitHeader(h.Encode())
	assert.True(t, fxerr.Is(err, fxerr.CodeCorruption))
}
