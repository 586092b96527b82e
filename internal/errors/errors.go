package errors

import (
	"errors"
	"fmt"
)

// KBError is the structured error type for kb-fusion.
// It provides context for error handling, logging, and user presentation.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_201_NOT_INDEXED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KBError.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new KBError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a KBError from an existing error.
// The error's message becomes the KBError message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error (invalid chunking parameters,
// malformed config file, etc.). Fatal to the call, never retried.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// EmbeddingError creates an error for a failed external embedding call.
// The cause from the provider is preserved unchanged on the chain.
func EmbeddingError(message string, cause error) *KBError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// NotIndexedError creates an error for a search against a document that has
// no valid cache entry under the current version key.
func NotIndexedError(path string) *KBError {
	return New(ErrCodeNotIndexed,
		fmt.Sprintf("document not indexed: %s (run 'kbfusion index' first)", path), nil).
		WithDetail("path", path)
}

// CorruptEntryError creates a warning-severity error for a cache entry that
// failed to deserialize. Callers treat it as a cache miss.
func CorruptEntryError(path, versionKey string, cause error) *KBError {
	return New(ErrCodeCorruptEntry,
		fmt.Sprintf("corrupt cache entry for %s", path), cause).
		WithDetail("path", path).
		WithDetail("version_key", versionKey)
}

// DimensionMismatchError creates an error for an embedding batch whose vector
// count or dimension does not match the configured model.
func DimensionMismatchError(expected, got int) *KBError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil)
}

// IsNotIndexed reports whether err is a NotIndexedError.
func IsNotIndexed(err error) bool {
	return hasCode(err, ErrCodeNotIndexed)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfigInvalid)
}

// IsEmbeddingError reports whether err is an embedding failure, including
// dimension mismatches from the provider.
func IsEmbeddingError(err error) bool {
	return hasCode(err, ErrCodeEmbeddingFailed) || hasCode(err, ErrCodeDimensionMismatch)
}

// IsCorruptEntry reports whether err is a corrupt-entry warning.
func IsCorruptEntry(err error) bool {
	return hasCode(err, ErrCodeCorruptEntry)
}

// GetCode extracts the error code from a KBError anywhere on the chain.
// Returns empty string if no KBError is present.
func GetCode(err error) string {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// GetCategory extracts the category from a KBError anywhere on the chain.
func GetCategory(err error) Category {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Category
	}
	return ""
}

func hasCode(err error, code string) bool {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}
