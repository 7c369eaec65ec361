// Package errors defines the coded error type shared by the job engine, its
// stores and the CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an AppError.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeForeignKey ErrorCode = "foreign_key"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
	// ErrCodeNotReady means the job exists but has not reached the requested state.
	ErrCodeNotReady ErrorCode = "not_ready"
	// ErrCodeUnavailable means a queue or store could not be reached. Callers may retry.
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// AppError carries a code and message and optionally wraps a cause. Field
// names the offending input for validation and constraint errors.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

// New returns an AppError without a cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Validationf reports invalid input.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField reports invalid input for a named field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// NotReadyf reports a job that has not reached the requested state.
func NotReadyf(format string, args ...any) *AppError {
	return Newf(ErrCodeNotReady, format, args...)
}

// Unavailable marks an infrastructure failure as retryable.
func Unavailable(err error, message string) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: message, Cause: err}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// HasCode reports whether the outermost AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return code != "" && GetCode(err) == code
}

func IsNotFound(err error) bool    { return HasCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool    { return HasCode(err, ErrCodeConflict) }
func IsValidation(err error) bool  { return HasCode(err, ErrCodeValidation) }
func IsTimeout(err error) bool     { return HasCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool    { return HasCode(err, ErrCodeCanceled) }
func IsNotReady(err error) bool    { return HasCode(err, ErrCodeNotReady) }
func IsUnavailable(err error) bool { return HasCode(err, ErrCodeUnavailable) }

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
