package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a casefile error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrValueTooLarge      ErrorCode = "VALUE_TOO_LARGE"     // 413
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 503
	ErrRemoteUnavailable  ErrorCode = "REMOTE_UNAVAILABLE"  // 503
)

// CaseError represents a structured error with code, status, and details.
type CaseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *CaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CaseError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CaseError {
	return &CaseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. For the remote authority this is a
// definitive answer, not a transient failure.
func NewNotFound(identifier string) *CaseError {
	return &CaseError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *CaseError {
	return &CaseError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewValueTooLarge creates a 413 error when a serialized value exceeds a
// backend's per-value ceiling.
func NewValueTooLarge(max, actual int) *CaseError {
	return &CaseError{
		Code:    ErrValueTooLarge,
		Status:  413,
		Message: fmt.Sprintf("value exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewStorageUnavailable creates a 503 error for a storage backend that could
// not be reached or refused the operation.
func NewStorageUnavailable(backend string, err error) *CaseError {
	msg := fmt.Sprintf("storage backend %s unavailable", backend)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &CaseError{
		Code:    ErrStorageUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"backend": backend},
		cause:   err,
	}
}

// NewRemoteUnavailable creates a 503 error for a failed or timed out call to
// the remote authority. Callers treat it as "status unknown".
func NewRemoteUnavailable(op string, err error) *CaseError {
	msg := fmt.Sprintf("remote %s failed", op)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &CaseError{
		Code:    ErrRemoteUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"operation": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CaseError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CaseError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a CaseError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CaseError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As reports whether err wraps a CaseError and returns it.
func As(err error) (*CaseError, bool) {
	var cErr *CaseError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}
