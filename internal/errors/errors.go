package errors

import (
	"errors"
	"fmt"
)

// HybridError is the structured error type returned across package
// boundaries. Callers match it with errors.Is against a sentinel carrying the
// same code, or with errors.As to read its fields.
type HybridError struct {
	// Code is the unique error code (e.g., "ERR_402_LENGTH_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates the operation can be retried unchanged.
	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

// Error implements the error interface.
func (e *HybridError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *HybridError) Unwrap() error {
	return e.Cause
}

// Is matches another *HybridError by code.
func (e *HybridError) Is(target error) bool {
	if t, ok := target.(*HybridError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *HybridError) WithDetail(key, value string) *HybridError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint and returns the error for chaining.
func (e *HybridError) WithSuggestion(suggestion string) *HybridError {
	e.Suggestion = suggestion
	return e
}

// New creates a HybridError. Category, severity and retryability derive from
// the code.
func New(code string, message string, cause error) *HybridError {
	return &HybridError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *HybridError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a HybridError from err, reusing its message.
// Returns nil for a nil err.
func Wrap(code string, err error) *HybridError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel returns a bare error carrying code, for errors.Is comparisons.
func Sentinel(code string) error {
	return &HybridError{Code: code}
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *HybridError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an IO error.
func IOError(message string, cause error) *HybridError {
	return New(ErrCodeCorpusNotFound, message, cause)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *HybridError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *HybridError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HybridError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err wraps a retryable HybridError.
func IsRetryable(err error) bool {
	var he *HybridError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// IsFatal reports whether err wraps a fatal HybridError.
func IsFatal(err error) bool {
	var he *HybridError
	if errors.As(err, &he) {
		return he.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first HybridError in err's chain, or "".
func GetCode(err error) string {
	var he *HybridError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// GetCategory returns the category of the first HybridError in err's chain, or "".
func GetCategory(err error) Category {
	var he *HybridError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// IsConfigError reports whether err is a configuration or validation error,
// the two classes callers must fix rather than retry.
func IsConfigError(err error) bool {
	switch GetCategory(err) {
	case CategoryConfig, CategoryValidation:
		return true
	default:
		return false
	}
}
