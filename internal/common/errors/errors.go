// Package errors provides the standardized error type used by handlers and the
// bus layer to decide whether a failed message is worth redelivering.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidPayload      ErrorCode = "INVALID_PAYLOAD"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQueryFailed      ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeCaseLinkFailed           ErrorCode = "CASE_LINK_FAILED"

	ErrCodePublishFailed       ErrorCode = "PUBLISH_FAILED"
	ErrCodeRegistryUnavailable ErrorCode = "REGISTRY_UNAVAILABLE"
	ErrCodeRegistryTimeout     ErrorCode = "REGISTRY_TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured processing error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Constructors
// ==========================

// NewApplicationNotFoundError is returned when an event references an
// application that is not (yet) stored. Retryable: the submission may still be
// in flight on another partition.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	e := newError(ErrCodeApplicationNotFound, "Application not found", nil, true)
	e.Details = fmt.Sprintf("applicationId: %s", applicationID)
	return e
}

// NewInvalidPayloadError marks a structurally valid message whose values cannot
// be interpreted. Redelivery cannot fix it.
func NewInvalidPayloadError(details string) *StandardError {
	e := newError(ErrCodeInvalidPayload, "Invalid event payload", nil, false)
	e.Details = details
	return e
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, fmt.Sprintf("Database query '%s' failed", operation), err, true)
}

func NewDatabaseInsertFailedError(table string, err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, fmt.Sprintf("Insert into '%s' failed", table), err, true)
}

func NewCaseLinkFailedError(err error) *StandardError {
	return newError(ErrCodeCaseLinkFailed, "Case link could not be stored", err, true)
}

func NewPublishFailedError(eventName string, err error) *StandardError {
	return newError(ErrCodePublishFailed, fmt.Sprintf("Publishing '%s' failed", eventName), err, true)
}

func NewRegistryUnavailableError(err error) *StandardError {
	return newError(ErrCodeRegistryUnavailable, "Decision registry unavailable", err, true)
}

func NewRegistryTimeoutError(err error) *StandardError {
	return newError(ErrCodeRegistryTimeout, "Decision registry timeout", err, true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, true)
}

// ==========================
// 3. Classification
// ==========================

// AsStandard normalizes any error into a StandardError. Unknown errors are
// treated as retryable internal failures: redelivery is always safe.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsRetryable reports whether a failed message should be redelivered. A
// joined error is retryable when any of its parts is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsRetryable(e) {
				return true
			}
		}
		return false
	}
	return AsStandard(err).Retryable
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "APPLICATION"):
		return "APPLICATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CASE_LINK"):
		return "DATABASE"
	case strings.Contains(codeStr, "REGISTRY"):
		return "REGISTRY"
	case strings.Contains(codeStr, "PUBLISH"):
		return "BUS"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
