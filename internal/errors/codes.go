// Package errors provides structured error handling for the document
// context service.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and startup errors
//   - 2XX: Ingestion and storage errors
//   - 3XX: Embedding provider and network errors
//   - 4XX: Request validation and lookup errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIngest indicates document loading and storage errors.
	CategoryIngest Category = "INGEST"
	// CategoryNetwork indicates embedding provider and network errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates request validation and lookup errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the service continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeTokenizerInit  = "ERR_102_TOKENIZER_INIT"
	ErrCodeSpoolUnusable  = "ERR_103_SPOOL_UNUSABLE"

	// Ingestion and storage errors (200-299)
	ErrCodeFileTooLarge      = "ERR_201_FILE_TOO_LARGE"
	ErrCodeUnsupportedFormat = "ERR_202_UNSUPPORTED_FORMAT"
	ErrCodeDecodeFailed      = "ERR_203_DECODE_FAILED"
	ErrCodeStoreFailure      = "ERR_204_STORE_FAILURE"
	ErrCodeArtifactCorrupt   = "ERR_205_ARTIFACT_CORRUPT"

	// Embedding provider and network errors (300-399)
	ErrCodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	ErrCodeEmbedTimeout        = "ERR_302_EMBED_TIMEOUT"

	// Validation and lookup errors (400-499)
	ErrCodeQueryEmpty        = "ERR_401_QUERY_EMPTY"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeDocumentNotFound  = "ERR_403_DOCUMENT_NOT_FOUND"
	ErrCodeDocumentNotReady  = "ERR_404_DOCUMENT_NOT_READY"
	ErrCodeInvalidInput      = "ERR_405_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal  = "ERR_501_INTERNAL"
	ErrCodeCancelled = "ERR_502_CANCELLED"
)

// categoryFromCode derives the category from the code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIngest
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the code.
// Config errors abort startup; embedding outages only degrade retrieval.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeTokenizerInit, ErrCodeSpoolUnusable:
		return SeverityFatal
	case ErrCodeEmbedderUnavailable, ErrCodeEmbedTimeout, ErrCodeArtifactCorrupt:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may
// succeed on retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeEmbedTimeout, ErrCodeStoreFailure:
		return true
	default:
		return false
	}
}

// httpStatusForCode maps an error code to the HTTP status the API surface
// reports for it.
func httpStatusForCode(code string) int {
	switch code {
	case ErrCodeFileTooLarge, ErrCodeUnsupportedFormat, ErrCodeDecodeFailed, ErrCodeInvalidInput:
		return 400
	case ErrCodeDocumentNotFound:
		return 404
	case ErrCodeDocumentNotReady:
		return 409
	case ErrCodeQueryEmpty:
		return 422
	case ErrCodeCancelled:
		// Client closed request, nginx convention.
		return 499
	case ErrCodeEmbedderUnavailable, ErrCodeEmbedTimeout:
		return 503
	default:
		return 500
	}
}
