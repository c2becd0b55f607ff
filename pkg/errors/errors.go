package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrUnauthorized
	ErrPreconditionFailed
	ErrConflict
	ErrDoctorUnavailable
	ErrNoDoctorAvailable
	ErrInternal
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
	}
}

// PreconditionFailed marks a transition attempted from the wrong state or
// without a required field. The record is left untouched.
func PreconditionFailed(message string) *AppError {
	return &AppError{
		Code:    ErrPreconditionFailed,
		Message: message,
	}
}

// Conflict marks a conditional update that lost a race. Callers are expected
// to re-read and retry; every other code is terminal for the attempt.
func Conflict(resource string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("%s was modified concurrently", resource),
	}
}

func DoctorUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrDoctorUnavailable,
		Message: message,
	}
}

func NoDoctorAvailable() *AppError {
	return &AppError{
		Code:    ErrNoDoctorAvailable,
		Message: "no doctor available for assignment",
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Unknown errors report ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
