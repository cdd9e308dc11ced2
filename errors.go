package burrow

import (
	"errors"
	"fmt"
)

// Error represents a burrow error with a status code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("burrow: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("burrow: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode represents a status code as observed at the cursor boundary.
type ErrorCode int

// Status codes
const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrOutOfMemory indicates an allocation was refused by the allocator
	ErrOutOfMemory ErrorCode = -6

	// ErrInvalidParameter indicates an invalid argument
	ErrInvalidParameter ErrorCode = -8

	// ErrKeyNotFound indicates the key (or duplicate) was not found; also
	// reported when ordered traversal runs past either end of the tree
	ErrKeyNotFound ErrorCode = -11

	// ErrDuplicateKey indicates the key already exists and neither
	// Overwrite nor Duplicate was requested
	ErrDuplicateKey ErrorCode = -12

	// ErrInternal indicates an unexpected internal error
	ErrInternal ErrorCode = -14

	// ErrBlobNotFound indicates a record id does not address a stored blob
	ErrBlobNotFound ErrorCode = -16

	// ErrIO indicates an I/O failure in the blob heap
	ErrIO ErrorCode = -18

	// ErrNotInitialized indicates an operation was requested but no
	// backend is attached to the database
	ErrNotInitialized ErrorCode = -27

	// ErrPluginNotFound indicates a plugin could not be loaded, validated
	// or found in the registry
	ErrPluginNotFound ErrorCode = -36

	// ErrCursorIsNil indicates an operation requires a cursor position
	// and there is none
	ErrCursorIsNil ErrorCode = -100

	// ErrPageNotFound indicates a requested page is neither resident nor
	// evicted (corruption)
	ErrPageNotFound ErrorCode = -200
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:             "success",
	ErrOutOfMemory:      "out of memory",
	ErrInvalidParameter: "invalid parameter",
	ErrKeyNotFound:      "key not found",
	ErrDuplicateKey:     "key already exists",
	ErrInternal:         "unexpected internal error",
	ErrBlobNotFound:     "blob not found",
	ErrIO:               "i/o error",
	ErrNotInitialized:   "database not initialized",
	ErrPluginNotFound:   "plugin not found",
	ErrCursorIsNil:      "cursor is nil",
	ErrPageNotFound:     "requested page not found",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// Code returns the status code from an error, or ErrInternal if the error
// did not originate here. A nil error maps to Success.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// IsKeyNotFound returns true if the error is ErrKeyNotFound
func IsKeyNotFound(err error) bool {
	return Code(err) == ErrKeyNotFound
}

// IsCursorNil returns true if the error is ErrCursorIsNil
func IsCursorNil(err error) bool {
	return Code(err) == ErrCursorIsNil
}

// IsDuplicateKey returns true if the error is ErrDuplicateKey
func IsDuplicateKey(err error) bool {
	return Code(err) == ErrDuplicateKey
}

// IsPluginNotFound returns true if the error is ErrPluginNotFound
func IsPluginNotFound(err error) bool {
	return Code(err) == ErrPluginNotFound
}
