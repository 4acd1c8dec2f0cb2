// Created by Yanjunhui

package engine

import (
	"github.com/Snoworca/FxStore-sub001/internal/fxerr"
)

// Error 存储引擎统一错误类型
// EN: Error is the single error type returned by the store.
type Error = fxerr.Error

// ErrorKind 错误类别
// EN: ErrorKind groups error codes.
type ErrorKind = fxerr.Kind

// 错误类别
// EN: Error kinds.
const (
	ErrKindInternal      = fxerr.KindInternal
	ErrKindFormat        = fxerr.KindFormat
	ErrKindValidation    = fxerr.KindValidation
	ErrKindState         = fxerr.KindState
	ErrKindConfiguration = fxerr.KindConfiguration
	ErrKindIO            = fxerr.KindIO
)

// 错误码
// EN: Error codes.
const (
	ErrorCodeOK              = fxerr.CodeOK
	ErrorCodeInternal        = fxerr.CodeInternal
	ErrorCodeIO              = fxerr.CodeIO
	ErrorCodeCorruption      = fxerr.CodeCorruption
	ErrorCodeVersionMismatch = fxerr.CodeVersionMismatch
	ErrorCodeLockFailed      = fxerr.CodeLockFailed
	ErrorCodeClosed          = fxerr.CodeClosed
	ErrorCodeIllegalState    = fxerr.CodeIllegalState
	ErrorCodePendingChanges  = fxerr.CodePendingChanges
	ErrorCodeNotFound        = fxerr.CodeNotFound
	ErrorCodeAlreadyExists   = fxerr.CodeAlreadyExists
	ErrorCodeTypeMismatch    = fxerr.CodeTypeMismatch
	ErrorCodeIllegalArgument = fxerr.CodeIllegalArgument
	ErrorCodeOutOfRange      = fxerr.CodeOutOfRange
	ErrorCodeTooLarge        = fxerr.CodeTooLarge
	ErrorCodeCodecNotFound   = fxerr.CodeCodecNotFound
	ErrorCodeNotConfigured   = fxerr.CodeNotConfigured
	ErrorCodeUnsupported     = fxerr.CodeUnsupported
)

// IsErrorCode 检查错误链中是否包含指定错误码
// EN: IsErrorCode reports whether err carries code.
func IsErrorCode(err error, code int) bool {
	return fxerr.Is(err, code)
}

// ErrorKindOf 返回错误类别
// EN: ErrorKindOf returns the kind of err; foreign errors are internal.
func ErrorKindOf(err error) ErrorKind {
	return fxerr.KindOf(err)
}

// AsError 从错误链中提取 *Error
// EN: AsError extracts *Error from err's chain, or nil.
func AsError(err error) *Error {
	return fxerr.As(err)
}

func errClosed(op string) error {
	return fxerr.Closed("store is closed").WithOp(op)
}

func errTxClosed(op string) error {
	return fxerr.Closed("read transaction is closed").WithOp(op)
}

func errPending(op string) error {
	return fxerr.New(fxerr.CodePendingChanges, "uncommitted changes pending").WithOp(op)
}

func errTypeMismatch(msg string) error {
	return fxerr.TypeMismatch(msg)
}
