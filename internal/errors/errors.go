package errors

import (
	"context"
	"errors"
	"fmt"
)

// OttoError is the structured error type used across the pipeline.
type OttoError struct {
	// Code is the unique error code (e.g., "ERR_502_RETRIEVAL_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the caller.
	Suggestion string
}

// Error implements the error interface.
func (e *OttoError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OttoError) Unwrap() error {
	return e.Cause
}

// Is matches another *OttoError by code, so errors.Is works against
// code-only sentinels such as &OttoError{Code: ErrCodeQueryEmpty}.
func (e *OttoError) Is(target error) bool {
	if t, ok := target.(*OttoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *OttoError) WithDetail(key, value string) *OttoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion.
func (e *OttoError) WithSuggestion(suggestion string) *OttoError {
	e.Suggestion = suggestion
	return e
}

// New creates an OttoError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *OttoError {
	return &OttoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an OttoError from an existing error. Returns nil for nil.
func Wrap(code string, err error) *OttoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *OttoError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a storage error.
func StorageError(message string, cause error) *OttoError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// CollaboratorError creates an error for a failed external collaborator call.
// Timeouts get the timeout code so they are flagged retryable.
func CollaboratorError(message string, cause error) *OttoError {
	if IsTimeout(cause) {
		return New(ErrCodeCollaboratorTimeout, message, cause)
	}
	return New(ErrCodeCollaboratorUnavailable, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *OttoError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *OttoError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable OttoError.
func IsRetryable(err error) bool {
	var oe *OttoError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var oe *OttoError
	if errors.As(err, &oe) {
		return oe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not an OttoError.
func GetCode(err error) string {
	var oe *OttoError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// GetCategory extracts the category, or "" if err is not an OttoError.
func GetCategory(err error) Category {
	var oe *OttoError
	if errors.As(err, &oe) {
		return oe.Category
	}
	return ""
}

// timeout is implemented by net.Error and friends.
type timeout interface {
	Timeout() bool
}

// IsTimeout reports whether err is a deadline or transport timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
