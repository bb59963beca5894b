package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Job dispatch errors
	ErrCodeJobFailed         ErrorCode = "JOB_FAILED"
	ErrCodeDispatcherClosed  ErrorCode = "DISPATCHER_CLOSED"
	ErrCodeQueueClosed       ErrorCode = "QUEUE_CLOSED"
	ErrCodeDependencyCycle   ErrorCode = "DEPENDENCY_CYCLE"
	ErrCodeEntityNotFound    ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeExpressionFailed  ErrorCode = "EXPRESSION_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// IndexError represents a structured error with context
type IndexError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *IndexError) WithDetail(key string, value interface{}) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *IndexError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new IndexError
func New(code ErrorCode, message string) *IndexError {
	return &IndexError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an IndexError
func Wrap(err error, code ErrorCode, message string) *IndexError {
	return &IndexError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific IndexError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	indexErr, ok := err.(*IndexError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if indexErr.Code == code {
		return true
	}
	// A job failure wraps the worker's own error; look through it.
	if indexErr.Cause != nil {
		return Is(indexErr.Cause, code)
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	indexErr, ok := err.(*IndexError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return indexErr.Code
}
