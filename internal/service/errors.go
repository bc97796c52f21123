package service

import (
	"context"
	"errors"
	"fmt"

	"clipsync/internal/repository"
)

// ErrorKind 是稳定的、机器可读的错误类别，由 HTTP 层映射为状态码。
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindInvalidReference ErrorKind = "INVALID_REFERENCE"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindConflict         ErrorKind = "CONFLICT"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindBadRequest       ErrorKind = "BAD_REQUEST"
	KindUnauthorized     ErrorKind = "UNAUTHORIZED"
	KindInternal         ErrorKind = "INTERNAL_ERROR"
)

// Error 是服务层返回给边界层的错误。Message 可以直接展示给用户，Err 只用于日志。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrConflict) 这类按类别的判断成立
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// 每种类别的哨兵值，只用于 errors.Is 比较
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrInvalidReference = &Error{Kind: KindInvalidReference}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrBadRequest       = &Error{Kind: KindBadRequest}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrInternal         = &Error{Kind: KindInternal}
)

// 常用的业务错误
var (
	ErrRoomNotFound         = NotFoundError("room not found")
	ErrInvalidInviteCode    = NotFoundError("invalid or expired invite code")
	ErrNoActiveSession      = BadRequestError("no active session")
	ErrAlreadyInSession     = ForbiddenError("already in a session")
	ErrAuthenticationFailed = &Error{Kind: KindUnauthorized, Message: "authentication failed"}
	ErrInternalServer       = InternalError("internal server error", nil)
)

func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InvalidReferenceError(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidReference, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func BadRequestError(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// InternalError 包装底层错误，对外只暴露 message
func InternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 返回错误的类别，非 *Error 的错误一律视为内部错误
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// mapRepoError 将仓库层的错误映射到服务层错误。
// 未找到时返回 notFound；超时和其他存储错误都是内部错误，调用方不得重试。
func mapRepoError(err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) && notFound != nil {
		return notFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return InternalError("store operation timed out", err)
	}
	return InternalError("store operation failed", err)
}
