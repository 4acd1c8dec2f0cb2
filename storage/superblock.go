// Created by Yanjunhui

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// 超级块格式常量
// EN: Superblock format constants.
const (
	SuperblockFormatVersion uint32 = 1
	superblockCRCOffset            = SuperblockSize - 4
)

// SuperblockMagic 超级块魔数
// EN: SuperblockMagic opens every store file.
var SuperblockMagic = [8]byte{'F', 'X', 'S', 'T', 'O', 'R', 'E', 0}

// Superblock 文件头（4096 字节，位于偏移 0）
// EN: Superblock is the 4096-byte header at offset 0.
// 布局（小端）：
// EN: Layout (little endian):
//   - Magic (8 bytes) "FXSTORE\0"
//   - FormatVersion (4 bytes)
//   - PageSize (4 bytes)
//   - FeatureFlags (8 bytes)
//   - CreatedAt (8 bytes) - Unix 毫秒
//
// EN:   - CreatedAt (8 bytes) - unix millis
//   - 零填充至 4092 (EN: zero padding up to 4092)
//   - Checksum (4 bytes) - CRC32C(bytes[0:4092])
type Superblock struct {
	FormatVersion uint32
	PageSize      uint32
	FeatureFlags  uint64
	CreatedAt     int64
}

// CreateSuperblock 为给定页大小创建超级块
// EN: CreateSuperblock builds a superblock for pageSize with default metadata.
func CreateSuperblock(pageSize int) (*Superblock, error) {
	if !ValidPageSize(pageSize) {
		return nil, fxerr.IllegalArgument(fmt.Sprintf("unsupported page size %d", pageSize))
	}
	return &Superblock{
		FormatVersion: SuperblockFormatVersion,
		PageSize:      uint32(pageSize),
		FeatureFlags:  0,
		CreatedAt:     time.Now().UnixMilli(),
	}, nil
}

// Encode 编码为 4096 字节，末尾为校验和
// EN: Encode serializes the superblock into SuperblockSize bytes ending in the checksum.
func (sb *Superblock) Encode() []byte {
	buf := make([]byte, SuperblockSize)
	copy(buf[0:8], SuperblockMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], sb.FormatVersion)
	binary.LittleEndian.PutUint32(buf[12:16], sb.PageSize)
	binary.LittleEndian.PutUint64(buf[16:24], sb.FeatureFlags)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(sb.CreatedAt))
	binary.LittleEndian.PutUint32(buf[superblockCRCOffset:], crc32c(buf[:superblockCRCOffset]))
	return buf
}

// DecodeSuperblock 解析超级块；魔数、校验和或长度不对时返回格式错误
// EN: DecodeSuperblock parses data, failing with a format error on short input,
// bad magic, bad checksum, unknown version or unsupported page size.
func DecodeSuperblock(data []byte) (*Superblock, error) {
	if len(data) < SuperblockSize {
		return nil, fxerr.Corruption(fmt.Sprintf("superblock too short: %d bytes, need %d", len(data), SuperblockSize))
	}
	if !bytes.Equal(data[0:8], SuperblockMagic[:]) {
		return nil, fxerr.Corruption("invalid superblock magic (file may be corrupted or not a store file)")
	}

	stored := binary.LittleEndian.Uint32(data[superblockCRCOffset:SuperblockSize])
	if actual := crc32c(data[:superblockCRCOffset]); actual != stored {
		return nil, fxerr.Corruption(fmt.Sprintf("superblock checksum mismatch: expected %08x, got %08x", actual, stored))
	}

	sb := &Superblock{
		FormatVersion: binary.LittleEndian.Uint32(data[8:12]),
		PageSize:      binary.LittleEndian.Uint32(data[12:16]),
		FeatureFlags:  binary.LittleEndian.Uint64(data[16:24]),
		CreatedAt:     int64(binary.LittleEndian.Uint64(data[24:32])),
	}

	if sb.FormatVersion != SuperblockFormatVersion {
		return nil, fxerr.New(fxerr.CodeVersionMismatch, fmt.Sprintf(
			"incompatible format version: file has version %d, this build supports version %d",
			sb.FormatVersion, SuperblockFormatVersion))
	}
	if !ValidPageSize(int(sb.PageSize)) {
		return nil, fxerr.Corruption(fmt.Sprintf("superblock has unsupported page size %d", sb.PageSize))
	}
	return sb, nil
}

// VerifySuperblock 纯校验，不返回错误
// EN: VerifySuperblock reports whether data is a well-formed, uncorrupted superblock.
// It never fails; nil, empty and short input yield false.
func VerifySuperblock(data []byte) bool {
	_, err := DecodeSuperblock(data)
	return err == nil
}
