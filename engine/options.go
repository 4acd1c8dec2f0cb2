// Created by Yanjunhui

package engine

import (
	"fmt"
	"time"

	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
	"github.com/Snoworca/FxStore-sub001/storage"
)

// CommitMode 提交模式
// EN: CommitMode selects when mutations become durable.
type CommitMode int

const (
	// CommitAuto 每次修改后立即提交
	// EN: CommitAuto commits every mutating call before it returns.
	CommitAuto CommitMode = iota
	// CommitBatch 修改累积到 Commit() 为止
	// EN: CommitBatch accumulates mutations until Commit.
	CommitBatch
)

func (m CommitMode) String() string {
	switch m {
	case CommitAuto:
		return "AUTO"
	case CommitBatch:
		return "BATCH"
	}
	return fmt.Sprintf("CommitMode(%d)", int(m))
}

// Durability 持久化强度
// EN: Durability selects the fsync policy of commits.
type Durability int

const (
	// DurabilitySync 写提交头前后都 fsync
	// EN: DurabilitySync fsyncs before and after the commit header write.
	DurabilitySync Durability = iota
	// DurabilityAsync 由操作系统决定何时落盘
	// EN: DurabilityAsync leaves flushing to the OS.
	DurabilityAsync
)

func (d Durability) String() string {
	switch d {
	case DurabilitySync:
		return "SYNC"
	case DurabilityAsync:
		return "ASYNC"
	}
	return fmt.Sprintf("Durability(%d)", int(d))
}

// OnClosePolicy 关闭时存在未提交修改的处理方式
// EN: OnClosePolicy decides what Close does with pending BATCH changes.
type OnClosePolicy int

const (
	CloseError OnClosePolicy = iota
	CloseCommit
	CloseRollback
)

func (p OnClosePolicy) String() string {
	switch p {
	case CloseError:
		return "ERROR"
	case CloseCommit:
		return "COMMIT"
	case CloseRollback:
		return "ROLLBACK"
	}
	return fmt.Sprintf("OnClosePolicy(%d)", int(p))
}

// FileLockMode 文件锁模式
// EN: FileLockMode selects inter-process locking of the store file.
type FileLockMode int

const (
	LockExclusive FileLockMode = iota
	LockNone
)

func (m FileLockMode) String() string {
	switch m {
	case LockExclusive:
		return "EXCLUSIVE"
	case LockNone:
		return "NONE"
	}
	return fmt.Sprintf("FileLockMode(%d)", int(m))
}

// Options 存储选项
// EN: Options configures a store.
type Options struct {
	CommitMode    CommitMode
	Durability    Durability
	OnClosePolicy OnClosePolicy
	FileLock      FileLockMode
	// PageSize 仅在创建新文件时生效，打开已有文件时以超级块为准
	// EN: PageSize applies to new files only; existing files keep their superblock's size.
	PageSize            int
	CacheBytes          int64
	Logger              *Logger
	SlowCommitThreshold time.Duration
}

// DefaultOptions 返回默认选项
// EN: DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		CommitMode:          CommitAuto,
		Durability:          DurabilitySync,
		OnClosePolicy:       CloseError,
		FileLock:            LockExclusive,
		PageSize:            storage.DefaultPageSize,
		CacheBytes:          storage.DefaultCacheBytes,
		Logger:              GetLogger(),
		SlowCommitThreshold: 100 * time.Millisecond,
	}
}

// Validate 校验选项
// EN: Validate reports the first invalid option as an IllegalArgument error.
func (o Options) Validate() error {
	switch {
	case o.CommitMode != CommitAuto && o.CommitMode != CommitBatch:
		return fxerr.IllegalArgument(fmt.Sprintf("invalid commit mode %d", int(o.CommitMode)))
	case o.Durability != DurabilitySync && o.Durability != DurabilityAsync:
		return fxerr.IllegalArgument(fmt.Sprintf("invalid durability %d", int(o.Durability)))
	case o.OnClosePolicy < CloseError || o.OnClosePolicy > CloseRollback:
		return fxerr.IllegalArgument(fmt.Sprintf("invalid close policy %d", int(o.OnClosePolicy)))
	case o.FileLock != LockExclusive && o.FileLock != LockNone:
		return fxerr.IllegalArgument(fmt.Sprintf("invalid file lock mode %d", int(o.FileLock)))
	case !storage.ValidPageSize(o.PageSize):
		return fxerr.IllegalArgument(fmt.Sprintf("unsupported page size %d", o.PageSize))
	case o.CacheBytes < int64(o.PageSize):
		return fxerr.IllegalArgument(fmt.Sprintf("cache budget %d is smaller than one page (%d)", o.CacheBytes, o.PageSize))
	case o.SlowCommitThreshold < 0:
		return fxerr.IllegalArgument("slow commit threshold must not be negative")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
	return o
}
