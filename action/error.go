package action

import (
	"errors"
	"fmt"
)

// ToolError represents a structured action failure that preserves message and
// causal context while still implementing the standard error interface.
// Errors may nest via Cause to retain diagnostics across retries.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// NewToolError constructs a ToolError with the provided message.
func NewToolError(message string) *ToolError {
	if message == "" {
		message = "action error"
	}
	return &ToolError{Message: message}
}

// NewToolErrorWithCause constructs a ToolError that wraps an underlying error.
func NewToolErrorWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: toolErrorFromError(cause)}
}

func toolErrorFromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: toolErrorFromError(errors.Unwrap(err))}
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Errorf formats a ToolError message.
func Errorf(format string, args ...any) *ToolError {
	return NewToolError(fmt.Sprintf(format, args...))
}
