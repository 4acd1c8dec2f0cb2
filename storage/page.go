// Created by Yanjunhui

package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// 页头常量
// EN: Page header constants.
const (
	// PageMagic 页魔数 "FXPG"
	// EN: PageMagic is "FXPG" read as little endian.
	PageMagic uint32 = 0x47505846
	// PageHeaderSize 页头大小
	// EN: PageHeaderSize is the node page header size in bytes.
	PageHeaderSize = 32
)

// Page 类型
// EN: Page types.
const (
	// PageTypeBTreeInternal 有序树内部节点
	// EN: PageTypeBTreeInternal is a key-ordered tree internal node.
	PageTypeBTreeInternal uint8 = 0x01
	// PageTypeBTreeLeaf 有序树叶子节点
	// EN: PageTypeBTreeLeaf is a key-ordered tree leaf.
	PageTypeBTreeLeaf uint8 = 0x02
	// PageTypeOSTInternal 顺序统计树内部节点（带子树计数）
	// EN: PageTypeOSTInternal is an order-statistics internal node (with subtree counts).
	PageTypeOSTInternal uint8 = 0x03
	// PageTypeOSTLeaf 顺序统计树叶子节点
	// EN: PageTypeOSTLeaf is an order-statistics leaf.
	PageTypeOSTLeaf uint8 = 0x04
	// PageTypeCatalog 目录页
	// EN: PageTypeCatalog holds a chunk of the catalog document.
	PageTypeCatalog uint8 = 0x05
	// PageTypeOverflow 溢出页（存储大值）
	// EN: PageTypeOverflow holds a chunk of a large value.
	PageTypeOverflow uint8 = 0x06
)

var pageTypeNames = map[uint8]string{
	PageTypeBTreeInternal: "btree-internal",
	PageTypeBTreeLeaf:     "btree-leaf",
	PageTypeOSTInternal:   "ost-internal",
	PageTypeOSTLeaf:       "ost-leaf",
	PageTypeCatalog:       "catalog",
	PageTypeOverflow:      "overflow",
}

// PageTypeName 返回页类型名称
// EN: PageTypeName returns a printable name for a page type.
func PageTypeName(t uint8) string {
	if name, ok := pageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type-%d", t)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crc32c 计算 CRC32C 校验和
// EN: crc32c computes the Castagnoli checksum of data.
func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// PageHeader 节点页头
// EN: PageHeader is the decoded header of a node page.
// 页头结构（32 字节）：
// EN: Header layout (32 bytes):
//   - Magic (4 bytes)
//   - Type (1 byte)
//   - Flags (1 byte)
//   - ItemCount (2 bytes)
//   - PageId (8 bytes) - 自身 ID，用于检测错位写入
//
// EN:   - PageId (8 bytes) - self id, detects misdirected writes
//   - PayloadLen (4 bytes)
//   - Reserved (8 bytes)
//   - Checksum (4 bytes) - CRC32C(header[0:28] + payload)
type PageHeader struct {
	Type       uint8
	Flags      uint8
	ItemCount  uint16
	ID         uint64
	PayloadLen uint32
}

// PayloadCapacity 返回单页可用负载大小
// EN: PayloadCapacity returns the usable payload bytes of one page.
func PayloadCapacity(pageSize int) int {
	return pageSize - PageHeaderSize
}

// EncodePage 将页头和负载编码为完整页
// EN: EncodePage lays out header and payload into a full page buffer.
func EncodePage(pageSize int, h PageHeader, payload []byte) ([]byte, error) {
	if len(payload) > PayloadCapacity(pageSize) {
		return nil, fmt.Errorf("page %d payload too large: %d > %d", h.ID, len(payload), PayloadCapacity(pageSize))
	}

	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], PageMagic)
	buf[4] = h.Type
	buf[5] = h.Flags
	binary.LittleEndian.PutUint16(buf[6:8], h.ItemCount)
	binary.LittleEndian.PutUint64(buf[8:16], h.ID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	// reserved 20:28
	copy(buf[PageHeaderSize:], payload)

	binary.LittleEndian.PutUint32(buf[28:32], pageChecksum(buf, len(payload)))
	return buf, nil
}

// DecodePage 校验并解析页，返回页头与负载切片
// EN: DecodePage validates a page read for id and returns its header and payload.
func DecodePage(id uint64, buf []byte) (PageHeader, []byte, error) {
	var h PageHeader
	if len(buf) < PageHeaderSize {
		return h, nil, fxerr.Corruption(fmt.Sprintf("page %d: short page (%d bytes)", id, len(buf)))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != PageMagic {
		return h, nil, fxerr.Corruption(fmt.Sprintf("page %d: bad magic %08x", id, magic))
	}

	h.Type = buf[4]
	h.Flags = buf[5]
	h.ItemCount = binary.LittleEndian.Uint16(buf[6:8])
	h.ID = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])

	if h.ID != id {
		return h, nil, fxerr.Corruption(fmt.Sprintf("page %d: header claims id %d", id, h.ID))
	}
	if int(h.PayloadLen) > len(buf)-PageHeaderSize {
		return h, nil, fxerr.Corruption(fmt.Sprintf("page %d: payload length %d exceeds page", id, h.PayloadLen))
	}

	stored := binary.LittleEndian.Uint32(buf[28:32])
	if actual := pageChecksum(buf, int(h.PayloadLen)); actual != stored {
		return h, nil, fxerr.Corruption(fmt.Sprintf("page %d: checksum mismatch: expected %08x, got %08x", id, actual, stored))
	}

	return h, buf[PageHeaderSize : PageHeaderSize+int(h.PayloadLen)], nil
}

// pageChecksum 计算 header[0:28] 与负载的 CRC32C
// EN: pageChecksum covers header[0:28] followed by the payload.
func pageChecksum(buf []byte, payloadLen int) uint32 {
	crc := crc32.Update(0, castagnoli, buf[0:28])
	return crc32.Update(crc, castagnoli, buf[PageHeaderSize:PageHeaderSize+payloadLen])
}

// expectType 检查页类型
// EN: expectType fails with a corruption error when h is not one of want.
func expectType(h PageHeader, want ...uint8) error {
	for _, t := range want {
		if h.Type == t {
			return nil
		}
	}
	return fxerr.Corruption(fmt.Sprintf("page %d: unexpected page type %s", h.ID, PageTypeName(h.Type)))
}
