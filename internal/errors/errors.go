package errors

import (
	stderrors "errors"
	"fmt"
)

// ServiceError is the structured error type for the service.
// It carries enough context for logging, API responses, and retry decisions.
type ServiceError struct {
	// Code is the unique error code (e.g., "ERR_403_DOCUMENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Ingest, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ServiceError.
func (e *ServiceError) Is(target error) bool {
	if t, ok := target.(*ServiceError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ServiceError) WithDetail(key, value string) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code the API reports for this error.
func (e *ServiceError) HTTPStatus() int {
	return httpStatusForCode(e.Code)
}

// New creates a new ServiceError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new ServiceError with a formatted message.
func Newf(code string, format string, args ...any) *ServiceError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a ServiceError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *ServiceError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Common constructors for the kinds the pipeline raises.

// FileTooLarge reports an upload above the configured size ceiling.
func FileTooLarge(size, limit int64) *ServiceError {
	return Newf(ErrCodeFileTooLarge, "file size %d bytes exceeds limit of %d bytes", size, limit)
}

// UnsupportedFormat reports a file extension the loader has no handler for.
func UnsupportedFormat(ext string) *ServiceError {
	return Newf(ErrCodeUnsupportedFormat, "unsupported file format %q", ext).
		WithDetail("extension", ext)
}

// DecodeFailed reports a payload that matched a handler but could not be parsed.
func DecodeFailed(format string, cause error) *ServiceError {
	e := Wrap(ErrCodeDecodeFailed, cause)
	e.Message = fmt.Sprintf("failed to decode %s content: %v", format, cause)
	return e.WithDetail("format", format)
}

// DocumentNotFound reports an unknown document id.
func DocumentNotFound(docID string) *ServiceError {
	return Newf(ErrCodeDocumentNotFound, "document %s not found", docID).
		WithDetail("doc_id", docID)
}

// DocumentNotReady reports a document still moving through the ingestion
// pipeline, or one that failed it.
func DocumentNotReady(docID, status string) *ServiceError {
	return Newf(ErrCodeDocumentNotReady, "document %s is not ready (status: %s)", docID, status).
		WithDetail("doc_id", docID).
		WithDetail("status", status)
}

// QueryEmpty reports an empty or whitespace-only query string.
func QueryEmpty() *ServiceError {
	return New(ErrCodeQueryEmpty, "query must not be empty", nil)
}

// StoreFailure wraps a metadata store error.
func StoreFailure(op string, cause error) *ServiceError {
	e := Wrap(ErrCodeStoreFailure, cause)
	e.Message = fmt.Sprintf("store %s failed: %v", op, cause)
	return e
}

// EmbedderUnavailable reports that no embedding provider could serve the call.
func EmbedderUnavailable(cause error) *ServiceError {
	e := New(ErrCodeEmbedderUnavailable, "embedding provider unavailable", cause)
	if cause != nil {
		e.Message = fmt.Sprintf("embedding provider unavailable: %v", cause)
	}
	return e
}

// Cancelled wraps a context cancellation.
func Cancelled(cause error) *ServiceError {
	return New(ErrCodeCancelled, "operation cancelled", cause)
}

// Internal wraps an unexpected error.
func Internal(cause error) *ServiceError {
	e := Wrap(ErrCodeInternal, cause)
	if e == nil {
		return New(ErrCodeInternal, "internal error", nil)
	}
	return e
}

// CodeOf extracts the service error code from any error in the chain.
// Returns ErrCodeInternal for errors that carry no code.
func CodeOf(err error) string {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HTTPStatus extracts the HTTP status for any error in the chain.
func HTTPStatus(err error) int {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.HTTPStatus()
	}
	return 500
}

// IsRetryable reports whether any error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}
