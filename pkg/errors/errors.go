// Package errors provides structured error handling for sqlpool with rich context,
// stack traces, and error categorization.
//
// # Overview
//
// Every failure surfaced by the pools, caches and the SQLite layer is an *Error
// carrying an ErrorType:
//   - closed: a borrow was attempted on a pool that is shutting down
//   - not_found: a cache eviction named a key the cache does not hold
//   - config: a pool, cache or deque was constructed with invalid parameters
//   - internal: an invariant was violated; these are raised with panic
//   - connection / query: failures reported by the SQLite engine
//
// # Basic Usage
//
//	obj, err := p.BorrowObject(ctx)
//	if errors.IsType(err, errors.ErrorTypeClosed) {
//	    return err // stop borrowing
//	}
//
// Error instances are not thread-safe for modification. Add details before
// sharing an error across goroutines.
package errors

import (
	"errors"
	"runtime"

	stringpool "github.com/ajitpratap0/sqlpool/pkg/strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents violated internal invariants
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing cache keys
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents invalid construction parameters
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeClosed represents operations on a closed pool or engine
	ErrorTypeClosed ErrorType = "closed"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"
)

var (
	// ErrPoolClosed is returned by borrows on a pool that has been closed.
	ErrPoolClosed = &Error{Type: ErrorTypeClosed, Message: "pool is closed"}
	// ErrNotFound is returned when evicting a key that is not cached.
	ErrNotFound = &Error{Type: ErrorTypeNotFound, Message: "key not found"}
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same type and message, so that a detailed copy of
// a sentinel still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a key-value detail to the error. Details on the package
// sentinels are never mutated; a copy is returned instead.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e == ErrPoolClosed || e == ErrNotFound {
		clone := *e
		clone.Details = nil
		clone.Stack = captureStack(2)
		e = &clone
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// captureStack captures the current call stack up to maxFrames deep
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
