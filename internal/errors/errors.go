// Package errors provides error code definitions shared across the agent.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for retry decisions and for surfacing to
// observers through an action's last_error/error_code fields.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Remote delivery errors
	ErrNetwork       ErrorCode = "NETWORK_ERROR"
	ErrSyncTimeout   ErrorCode = "SYNC_TIMEOUT"
	ErrSyncConflict  ErrorCode = "SYNC_CONFLICT"
	ErrSyncFailed    ErrorCode = "SYNC_FAILED"
	ErrUnknownAction ErrorCode = "UNKNOWN_ACTION"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the error code from an error chain. Errors that carry
// no AppError report ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is checks whether any error in the chain carries the given code, even
// a code wrapped beneath another AppError.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
