package errors

import (
	"fmt"
)

// ErrorType categorises failures surfaced by the analysis pipeline
type ErrorType string

const (
	// Input errors
	ErrInput ErrorType = "INPUT_ERROR"

	// Per-command soft failures
	ErrTokenize ErrorType = "TOKENIZE_ERROR"
	ErrDecode   ErrorType = "DECODE_ERROR"
	ErrArgument ErrorType = "ARGUMENT_ERROR"

	// Analysis aborts
	ErrDepthExceeded ErrorType = "DEPTH_EXCEEDED"

	// Host errors
	ErrConfig ErrorType = "CONFIG_ERROR"
	ErrOutput ErrorType = "OUTPUT_ERROR"
)

// DeobError is a structured error with a type and context
type DeobError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *DeobError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows error unwrapping
func (e *DeobError) Unwrap() error {
	return e.Cause
}

// Is reports a match when target is a *DeobError of the same type, so
// errors.Is(err, errors.New(ErrDepthExceeded, "")) works through wrapping.
func (e *DeobError) Is(target error) bool {
	t, ok := target.(*DeobError)
	return ok && t.Type == e.Type
}

// New creates a new DeobError
func New(errorType ErrorType, message string) *DeobError {
	return &DeobError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Wrap creates a new DeobError wrapping an existing error
func Wrap(errorType ErrorType, message string, cause error) *DeobError {
	return &DeobError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *DeobError) WithContext(key string, value interface{}) *DeobError {
	e.Context[key] = value
	return e
}

// GetContext returns context value by key
func (e *DeobError) GetContext(key string) (interface{}, bool) {
	value, exists := e.Context[key]
	return value, exists
}

// NewInputError creates an input-related error
func NewInputError(message string, cause error) *DeobError {
	return Wrap(ErrInput, message, cause)
}

// NewTokenizeError reports a command whose arguments could not be split
func NewTokenizeError(command string, cause error) *DeobError {
	return Wrap(ErrTokenize, "cannot tokenize command arguments", cause).
		WithContext("command", command)
}

// NewDecodeError reports a payload that failed to decode
func NewDecodeError(command string, cause error) *DeobError {
	return Wrap(ErrDecode, "cannot decode payload", cause).
		WithContext("command", command)
}

// NewArgumentError reports a recognised command with unusable arguments
func NewArgumentError(command, message string) *DeobError {
	return New(ErrArgument, message).WithContext("command", command)
}

// NewDepthError reports that recursion passed the configured cap
func NewDepthError(depth, limit int, command string) *DeobError {
	return New(ErrDepthExceeded, fmt.Sprintf("recursion depth %d exceeds limit %d", depth, limit)).
		WithContext("depth", depth).
		WithContext("command", command)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *DeobError {
	return Wrap(ErrConfig, message, cause)
}

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	for err != nil {
		if deobErr, ok := err.(*DeobError); ok && deobErr.Type == errorType {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
