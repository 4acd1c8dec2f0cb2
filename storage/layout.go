// Created by Yanjunhui

package storage

// 文件布局常量
// EN: File layout constants.
//
//	[0, 4096)       superblock
//	[4096, 8192)    commit header slot A
//	[8192, 12288)   commit header slot B
//	[12288, ...)    page area, page id 1 at 12288
const (
	SuperblockOffset   = 0
	SuperblockSize     = 4096
	CommitHeaderSize   = 4096
	CommitHeaderOffset = SuperblockOffset + SuperblockSize
	AllocStart         = CommitHeaderOffset + 2*CommitHeaderSize
)

// 页大小
// EN: Supported page sizes.
const (
	PageSize4K  = 4096
	PageSize8K  = 8192
	PageSize16K = 16384
	PageSize32K = 32768

	DefaultPageSize   = PageSize4K
	DefaultCacheBytes = 64 << 20
)

// NoPage 表示空指针（空树 / 链表结尾）
// EN: NoPage is the null page id (empty tree, end of chain).
const NoPage uint64 = 0

// ValidPageSize 检查页大小是否受支持
// EN: ValidPageSize reports whether size is a supported page size.
func ValidPageSize(size int) bool {
	switch size {
	case PageSize4K, PageSize8K, PageSize16K, PageSize32K:
		return true
	}
	return false
}

// PageOffset 计算页在存储中的字节偏移
// EN: PageOffset returns the byte offset of page id.
func PageOffset(id uint64, pageSize int) int64 {
	return int64(AllocStart) + int64(id-1)*int64(pageSize)
}

// CommitHeaderSlotOffset 返回 A/B 槽位偏移
// EN: CommitHeaderSlotOffset returns the offset of header slot 0 (A) or 1 (B).
func CommitHeaderSlotOffset(slot int) int64 {
	return int64(CommitHeaderOffset + slot*CommitHeaderSize)
}
