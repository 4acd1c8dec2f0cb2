// Created by Yanjunhui

// Package fxerr 定义存储引擎统一的错误族
// EN: Package fxerr defines the single error family used across the store.
package fxerr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
// EN: Kind groups error codes into the categories callers react to.
type Kind int

const (
	KindInternal Kind = iota
	KindFormat
	KindValidation
	KindState
	KindConfiguration
	KindIO
)

var kindNames = map[Kind]string{
	KindInternal:      "Internal",
	KindFormat:        "Format",
	KindValidation:    "Validation",
	KindState:         "State",
	KindConfiguration: "Configuration",
	KindIO:            "IO",
}

// String 返回类别名称
// EN: String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// 错误码定义
// EN: Error code definitions.
const (
	CodeOK              = 0
	CodeInternal        = 1
	CodeIO              = 2
	CodeCorruption      = 3
	CodeVersionMismatch = 4
	CodeLockFailed      = 5
	CodeClosed          = 6
	CodeIllegalState    = 7
	CodePendingChanges  = 8
	CodeNotFound        = 9
	CodeAlreadyExists   = 10
	CodeTypeMismatch    = 11
	CodeIllegalArgument = 12
	CodeOutOfRange      = 13
	CodeTooLarge        = 14
	CodeCodecNotFound   = 15
	CodeNotConfigured   = 16
	CodeUnsupported     = 17
)

// 错误码名称映射
// EN: Error code name mapping.
var codeNames = map[int]string{
	CodeOK:              "OK",
	CodeInternal:        "Internal",
	CodeIO:              "IO",
	CodeCorruption:      "Corruption",
	CodeVersionMismatch: "VersionMismatch",
	CodeLockFailed:      "LockFailed",
	CodeClosed:          "Closed",
	CodeIllegalState:    "IllegalState",
	CodePendingChanges:  "PendingChanges",
	CodeNotFound:        "NotFound",
	CodeAlreadyExists:   "AlreadyExists",
	CodeTypeMismatch:    "TypeMismatch",
	CodeIllegalArgument: "IllegalArgument",
	CodeOutOfRange:      "OutOfRange",
	CodeTooLarge:        "TooLarge",
	CodeCodecNotFound:   "CodecNotFound",
	CodeNotConfigured:   "NotConfigured",
	CodeUnsupported:     "Unsupported",
}

var codeKinds = map[int]Kind{
	CodeInternal:        KindInternal,
	CodeIO:              KindIO,
	CodeCorruption:      KindFormat,
	CodeVersionMismatch: KindFormat,
	CodeLockFailed:      KindState,
	CodeClosed:          KindState,
	CodeIllegalState:    KindState,
	CodePendingChanges:  KindState,
	CodeNotFound:        KindValidation,
	CodeAlreadyExists:   KindValidation,
	CodeTypeMismatch:    KindValidation,
	CodeIllegalArgument: KindValidation,
	CodeOutOfRange:      KindValidation,
	CodeTooLarge:        KindValidation,
	CodeCodecNotFound:   KindConfiguration,
	CodeNotConfigured:   KindConfiguration,
	CodeUnsupported:     KindConfiguration,
}

// Error 存储引擎错误
// EN: Error is the store-level error type.
type Error struct {
	Code     int    // 错误码 (EN: error code)
	CodeName string // 错误码名称 (EN: error code name)
	Kind     Kind   // 错误类别 (EN: error category)
	Op       string // 触发错误的操作，可为空 (EN: failing operation, optional)
	Message  string // 错误消息 (EN: error message)
	Err      error  // 底层原因 (EN: underlying cause)
}

// Error 实现 error 接口
// EN: Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (%d): %s", e.CodeName, e.Code, msg)
}

// Unwrap 返回底层原因
// EN: Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新的错误
// EN: New creates a new error for code.
func New(code int, message string) *Error {
	codeName, ok := codeNames[code]
	if !ok {
		codeName = "Unknown"
	}
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindInternal
	}
	return &Error{
		Code:     code,
		CodeName: codeName,
		Kind:     kind,
		Message:  message,
	}
}

// Newf 创建带格式化消息的错误
// EN: Newf creates an error with a formatted message.
func Newf(code int, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误
// EN: Wrap attaches a cause to a new error.
func Wrap(code int, err error, message string) *Error {
	e := New(code, message)
	e.Err = err
	return e
}

// WithOp 设置操作名（返回副本）
// EN: WithOp returns a copy of e tagged with the failing operation.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// 常用错误构造函数
// EN: Common error constructors.

func Corruption(msg string) *Error { return New(CodeCorruption, msg) }

func IO(err error, msg string) *Error { return Wrap(CodeIO, err, msg) }

func Closed(msg string) *Error { return New(CodeClosed, msg) }

func IllegalState(msg string) *Error { return New(CodeIllegalState, msg) }

func IllegalArgument(msg string) *Error { return New(CodeIllegalArgument, msg) }

func NotFound(msg string) *Error { return New(CodeNotFound, msg) }

func AlreadyExists(msg string) *Error { return New(CodeAlreadyExists, msg) }

func TypeMismatch(msg string) *Error { return New(CodeTypeMismatch, msg) }

func NotConfigured(msg string) *Error { return New(CodeNotConfigured, msg) }

// OutOfRange 下标越界
// EN: OutOfRange reports an index outside [0, size).
func OutOfRange(index, size int64) *Error {
	return Newf(CodeOutOfRange, "index %d out of range [0, %d)", index, size)
}

// TooLarge 数据超出上限
// EN: TooLarge reports an oversized key or value.
func TooLarge(what string, size, max int) *Error {
	return Newf(CodeTooLarge, "%s is too large: %d bytes, max size is %d bytes", what, size, max)
}

// As 将 error 转换为 *Error
// EN: As extracts *Error from err's chain, or nil.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// Is 检查错误链中是否包含指定错误码
// EN: Is reports whether err's chain carries code.
func Is(err error, code int) bool {
	fe := As(err)
	return fe != nil && fe.Code == code
}

// KindOf 返回错误类别，非本族错误视为内部错误
// EN: KindOf returns err's kind; foreign errors count as internal.
func KindOf(err error) Kind {
	if fe := As(err); fe != nil {
		return fe.Kind
	}
	return KindInternal
}

// IsKind 检查错误类别
// EN: IsKind reports whether err belongs to kind.
func IsKind(err error, kind Kind) bool {
	fe := As(err)
	return fe != nil && fe.Kind == kind
}
