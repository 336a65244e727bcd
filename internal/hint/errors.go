package hint

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalid         Code = "INVALID"
	CodeVersionConflict Code = "VERSION_CONFLICT"
	CodeSecretRejected  Code = "SECRET_REJECTED"
	CodeScopeInvalid    Code = "SCOPE_INVALID"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"

	// CodeUnavailable marks connectivity failures between a follower and the
	// leader. It is the only retryable code.
	CodeUnavailable Code = "UNAVAILABLE"

	// CodeInternal covers unexpected failures that fit no other category.
	CodeInternal Code = "INTERNAL"
)

// Quota causes reported in Error.Data["cause"].
const (
	QuotaCauseComponent = "component"
	QuotaCauseKey       = "key"
	QuotaCauseTotal     = "total"
)

// RPCCode maps a code to the numeric JSON-RPC error code used on the wire.
func (c Code) RPCCode() int {
	switch c {
	case CodeNotFound:
		return 40401
	case CodeInvalid:
		return 40001
	case CodeSecretRejected:
		return 40002
	case CodeScopeInvalid:
		return 40003
	case CodeVersionConflict:
		return 40901
	case CodeQuotaExceeded:
		return 42901
	case CodeUnavailable:
		return 50301
	default:
		return -32603
	}
}

// CodeFromRPC is the inverse of RPCCode. Unknown numbers map to CodeInternal.
func CodeFromRPC(n int) Code {
	for _, c := range []Code{
		CodeNotFound, CodeInvalid, CodeSecretRejected, CodeScopeInvalid,
		CodeVersionConflict, CodeQuotaExceeded, CodeUnavailable,
	} {
		if c.RPCCode() == n {
			return c
		}
	}
	return CodeInternal
}

// Error is the error type returned by the store and relayed unchanged by the
// transports.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the caller may retry the same call unchanged.
func (e *Error) Retryable() bool {
	return e.Code == CodeUnavailable
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FieldError builds an *Error naming the offending field.
func FieldError(code Code, field, format string, args ...any) *Error {
	return &Error{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing or expired (component, key).
func NotFound(component, key string) *Error {
	return Errorf(CodeNotFound, "hint %s/%s not found", component, key)
}

// VersionConflict reports a failed optimistic concurrency check.
func VersionConflict(expected, current int64) *Error {
	return &Error{
		Code:    CodeVersionConflict,
		Message: fmt.Sprintf("version mismatch: expected %d, current %d", expected, current),
		Data: map[string]any{
			"expected_version": expected,
			"current_version":  current,
		},
	}
}

// QuotaExceeded reports a size bound hit while creating a component or key.
func QuotaExceeded(cause string, limit int) *Error {
	var what string
	switch cause {
	case QuotaCauseComponent:
		what = "components"
	case QuotaCauseKey:
		what = "hints per component"
	default:
		what = "total hints"
	}
	return &Error{
		Code:    CodeQuotaExceeded,
		Message: fmt.Sprintf("maximum %s (%d) exceeded", what, limit),
		Data:    map[string]any{"cause": cause, "limit": limit},
	}
}

// Unavailable wraps a connectivity failure as a retryable error.
func Unavailable(err error) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf("leader unavailable: %v", err)}
}

// CodeOf returns the code carried by err, CodeInternal for foreign errors and
// the empty code for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var he *Error
	if errors.As(err, &he) {
		return he.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err is a connectivity failure the caller may
// retry. Business errors are never retryable.
func IsRetryable(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Retryable()
	}
	return false
}
