// Created by Yanjunhui

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// 提交头常量
const (
	CommitHeaderVersion uint32 = 1
	commitHeaderCRCOff         = CommitHeaderSize - 4
)

// CommitHeaderMagic 提交头魔数
var CommitHeaderMagic = [8]byte{'F', 'X', 'H', 'D', 'R', 0, 0, 0}

// CommitHeader 提交头，A/B 两个槽位交替写入（按 SeqNo 奇偶）
// 打开时取校验通过且 SeqNo 最大的一个，写一半的槽位会被忽略
type CommitHeader struct {
	SeqNo            uint64
	AllocTail        uint64 // 下一个待分配页 ID
	CatalogRoot      uint64 // 目录链首页，0 表示空目录
	NextCollectionID uint64
	CommittedAt      int64
}

// Slot 返回该头应写入的槽位
func (h *CommitHeader) Slot() int {
	return int(h.SeqNo % 2)
}

// Encode 编码为 4096 字节
func (h *CommitHeader) Encode() []byte {
	buf := make([]byte, CommitHeaderSize)
	copy(buf[0:8], CommitHeaderMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], CommitHeaderVersion)
	binary.LittleEndian.PutUint64(buf[16:24], h.SeqNo)
	binary.LittleEndian.PutUint64(buf[24:32], h.AllocTail)
	binary.LittleEndian.PutUint64(buf[32:40], h.CatalogRoot)
	binary.LittleEndian.PutUint64(buf[40:48], h.NextCollectionID)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.CommittedAt))
	binary.LittleEndian.PutUint32(buf[commitHeaderCRCOff:], crc32c(buf[:commitHeaderCRCOff]))
	return buf
}

// DecodeCommitHeader 解析提交头
func DecodeCommitHeader(data []byte) (*CommitHeader, error) {
	if len(data) < CommitHeaderSize {
		return nil, fxerr.Corruption(fmt.Sprintf("commit header too short: %d bytes", len(data)))
	}
	if !bytes.Equal(data[0:8], CommitHeaderMagic[:]) {
		return nil, fxerr.Corruption("invalid commit header magic")
	}
	stored := binary.LittleEndian.Uint32(data[commitHeaderCRCOff:CommitHeaderSize])
	if actual := crc32c(data[:commitHeaderCRCOff]); actual != stored {
		return nil, fxerr.Corruption(fmt.Sprintf("commit header checksum mismatch: expected %08x, got %08x", actual, stored))
	}
	if v := binary.LittleEndian.Uint32(data[8:12]); v != CommitHeaderVersion {
		return nil, fxerr.New(fxerr.CodeVersionMismatch, fmt.Sprintf("unsupported commit header version %d", v))
	}
	h := &CommitHeader{
		SeqNo:            binary.LittleEndian.Uint64(data[16:24]),
		AllocTail:        binary.LittleEndian.Uint64(data[24:32]),
		CatalogRoot:      binary.LittleEndian.Uint64(data[32:40]),
		NextCollectionID: binary.LittleEndian.Uint64(data[40:48]),
		CommittedAt:      int64(binary.LittleEndian.Uint64(data[48:56])),
	}
	if h.AllocTail == NoPage {
		return nil, fxerr.Corruption("commit header has zero alloc tail")
	}
	return h, nil
}

// WriteCommitHeader 将提交头写入其槽位
func WriteCommitHeader(s Storage, h *CommitHeader) error {
	if h.CommittedAt == 0 {
		h.CommittedAt = time.Now().UnixMilli()
	}
	if _, err := s.WriteAt(h.Encode(), CommitHeaderSlotOffset(h.Slot())); err != nil {
		return fxerr.IO(err, fmt.Sprintf("failed to write commit header slot %d", h.Slot()))
	}
	return nil
}

// HeaderSlots 两个槽位的读取结果
type HeaderSlots struct {
	Headers [2]*CommitHeader
	Errors  [2]error
}

// ReadCommitHeaders 读取 A/B 两个槽位
func ReadCommitHeaders(s Storage) HeaderSlots {
	var slots HeaderSlots
	for slot := 0; slot < 2; slot++ {
		buf := make([]byte, CommitHeaderSize)
		if _, err := s.ReadAt(buf, CommitHeaderSlotOffset(slot)); err != nil {
			slots.Errors[slot] = fxerr.IO(err, fmt.Sprintf("failed to read commit header slot %d", slot))
			continue
		}
		slots.Headers[slot], slots.Errors[slot] = DecodeCommitHeader(buf)
	}
	return slots
}

// Latest 返回有效且 SeqNo 最大的头；fellBack 表示较新的槽位损坏
func (hs HeaderSlots) Latest() (h *CommitHeader, fellBack bool, err error) {
	a, b := hs.Headers[0], hs.Headers[1]
	switch {
	case a == nil && b == nil:
		return nil, false, fxerr.Corruption(fmt.Sprintf("no valid commit header (A: %v, B: %v)", hs.Errors[0], hs.Errors[1]))
	case a == nil:
		return b, hs.Errors[0] != nil && b.SeqNo > 0, nil
	case b == nil:
		return a, hs.Errors[1] != nil && a.SeqNo > 0, nil
	case a.SeqNo >= b.SeqNo:
		return a, false, nil
	default:
		return b, false, nil
	}
}
