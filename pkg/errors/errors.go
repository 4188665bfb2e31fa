package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies one of the error kinds from §7 of the reconciliation
// design: each maps to a fatal-before-mutation, per-entry, or end-of-run
// failure mode.
type ErrorCode string

const (
	ErrUnknown ErrorCode = "UNKNOWN"

	// ConfigurationError: invariants I3/I4/I5 violated. Fatal before any mutation.
	ErrConfiguration ErrorCode = "CONFIGURATION"

	// RenderError: template failed to render. Per-entry fatal.
	ErrRender ErrorCode = "RENDER"

	// FilesystemError: read/write/stat failure. Per-entry fatal.
	ErrFilesystem ErrorCode = "FILESYSTEM"

	// CollisionError: non-fatal, produces a Skip.
	ErrCollision ErrorCode = "COLLISION"

	// UserModifiedError: non-fatal, produces a Skip.
	ErrUserModified ErrorCode = "USER_MODIFIED"

	// HookError: non-fatal, reported.
	ErrHook ErrorCode = "HOOK"

	// CachePersistError: fatal to the process, cannot corrupt previous cache.
	ErrCachePersist ErrorCode = "CACHE_PERSIST"
)

// DirError is a structured error carrying a stable code, a message, and an
// optional wrapped cause.
type DirError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *DirError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DirError) Unwrap() error {
	return e.Wrapped
}

func (e *DirError) Is(target error) bool {
	var targetErr *DirError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new DirError with the given code and message.
func New(code ErrorCode, message string) *DirError {
	return &DirError{Code: code, Message: message, Details: make(map[string]interface{})}
}

// Newf creates a new DirError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *DirError {
	return &DirError{Code: code, Message: fmt.Sprintf(format, args...), Details: make(map[string]interface{})}
}

// Wrap wraps an existing error with a DirError. Returns nil if err is nil.
func Wrap(err error, code ErrorCode, message string) *DirError {
	if err == nil {
		return nil
	}
	return &DirError{Code: code, Message: message, Details: make(map[string]interface{}), Wrapped: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *DirError {
	if err == nil {
		return nil
	}
	return &DirError{Code: code, Message: fmt.Sprintf(format, args...), Details: make(map[string]interface{}), Wrapped: err}
}

func (e *DirError) WithDetail(key string, value interface{}) *DirError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Code returns the error code from an error, or ErrUnknown if not a DirError.
func Code(err error) ErrorCode {
	var dirErr *DirError
	if errors.As(err, &dirErr) {
		return dirErr.Code
	}
	return ErrUnknown
}

// Is reports whether err carries the given ErrorCode.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}

// MultiError aggregates the per-entry errors collected over one Executor
// run into the single end-of-run diagnostic described in §7.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	lines := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		lines[i] = err.Error()
	}
	return fmt.Sprintf("%d error(s) occurred:\n  %s", len(m.Errors), strings.Join(lines, "\n  "))
}

// ErrOrNil returns m if it has accumulated errors, or nil otherwise, so
// callers can `return diag.ErrOrNil()` without a HasErrors branch.
func (m *MultiError) ErrOrNil() error {
	if m.HasErrors() {
		return m
	}
	return nil
}
