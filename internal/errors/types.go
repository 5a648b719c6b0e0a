// Package errors provides the structured error types used across docserve.
//
// Errors carry a Type that decides how far they propagate: bind and config
// errors are fatal at startup, build and watch errors are reported and the
// pipeline keeps running.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeBind     ErrorType = "bind"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeWatch    ErrorType = "watch"
	ErrorTypeInternal ErrorType = "internal"
)

// Exit codes returned by the docserve binary.
const (
	ExitOK          = 0
	ExitUnhandled   = 1
	ExitBindFailure = 2
)

// DocError is a structured error type with context.
type DocError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Path        string
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *DocError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DocError with the same type and code.
func (e *DocError) Is(target error) bool {
	var t *DocError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *DocError) WithContext(key string, value interface{}) *DocError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the filesystem path the error refers to.
func (e *DocError) WithPath(path string) *DocError {
	e.Path = path

	return e
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a renderer failure. Build errors are recoverable:
// the next change retries.
func NewBuildError(code, message string, cause error) *DocError {
	return &DocError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewBindError creates a listener bind failure.
func NewBindError(addr string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeBind,
		Code:    "BIND_FAILED",
		Message: "cannot listen on " + addr,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *DocError {
	return &DocError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewWatchError creates a watcher backend error.
func NewWatchError(code, message string, cause error) *DocError {
	return &DocError{
		Type:        ErrorTypeWatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Recoverable
	}

	return false
}

// IsType reports whether err wraps a DocError of the given type.
func IsType(err error, t ErrorType) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Type == t
	}

	return false
}

// IsBindError checks if an error is a listener bind failure.
func IsBindError(err error) bool {
	return IsType(err, ErrorTypeBind)
}

// ExitCode maps an error returned by the command layer to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsBindError(err):
		return ExitBindFailure
	default:
		return ExitUnhandled
	}
}
