package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, preserving the path and
// context of an inner DocError.
func Wrap(err error, errType ErrorType, code, message string) *DocError {
	if err == nil {
		return nil
	}

	var de *DocError
	if errors.As(err, &de) {
		return &DocError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       de,
			Path:        de.Path,
			Context:     de.Context,
			Recoverable: de.Recoverable,
		}
	}

	return &DocError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeBuild || errType == ErrorTypeWatch || errType == ErrorTypeIO,
	}
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// FormatError formats an error for user display.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var ee *EnhancedError
	if errors.As(err, &ee) {
		return ee.Error()
	}

	return err.Error()
}

// GetErrorContext extracts context information from a DocError.
func GetErrorContext(err error) map[string]interface{} {
	var de *DocError
	if errors.As(err, &de) {
		context := make(map[string]interface{}, len(de.Context)+4)
		for k, v := range de.Context {
			context[k] = v
		}
		if de.Path != "" {
			context["path"] = de.Path
		}
		context["type"] = string(de.Type)
		context["code"] = de.Code
		context["recoverable"] = de.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// BuildOutput returns the renderer output attached to a build error, or
// the empty string.
func BuildOutput(err error) string {
	var de *DocError
	if !errors.As(err, &de) {
		return ""
	}
	if output, ok := de.Context["output"]; ok {
		return fmt.Sprint(output)
	}
	return ""
}
