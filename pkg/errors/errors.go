// Package errors provides structured error types for the poster board.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the engine, CLI and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Load-time codes (terminal for a screen):
//   - FETCH_FAILED: the poster info request failed or returned a non-2xx status
//   - INVALID_METADATA: a poster entry cannot be turned into an entity
//
// Mutation-time codes (local to one intent):
//   - ENTITY_NOT_FOUND: a move or resize named an id the board does not hold
//   - INVALID_SIZE: a resize asked for a non-positive width
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidSize, "width must be positive, got %v", w)
//	if errors.Is(err, errors.ErrCodeInvalidSize) {
//	    // Reject the gesture, keep the board
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchFailed, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Load errors
	ErrCodeFetchFailed     Code = "FETCH_FAILED"
	ErrCodeInvalidMetadata Code = "INVALID_METADATA"

	// Mutation errors
	ErrCodeEntityNotFound Code = "ENTITY_NOT_FOUND"
	ErrCodeInvalidSize    Code = "INVALID_SIZE"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidName   Code = "INVALID_NAME"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Lifecycle errors
	ErrCodeNotLoaded      Code = "NOT_LOADED"
	ErrCodeAlreadyMounted Code = "ALREADY_MOUNTED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
