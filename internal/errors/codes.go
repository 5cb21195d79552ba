// Package errors provides structured errors for hybridrag.
//
// Codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors
//   - 2XX: IO errors (corpus files, data dir)
//   - 3XX: network errors (embedding backend, vector collaborator)
//   - 4XX: validation errors (bad call arguments)
//   - 5XX: internal errors
package errors

// Category classifies an error by code range.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal means the operation must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning means the operation continued in a degraded mode.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeAlphaOutOfRange = "ERR_103_ALPHA_OUT_OF_RANGE"
	ErrCodeUnknownBackend  = "ERR_104_UNKNOWN_BACKEND"

	// IO errors (200-299)
	ErrCodeCorpusNotFound = "ERR_201_CORPUS_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex   = "ERR_203_CORRUPT_INDEX"
	ErrCodeIndexLocked    = "ERR_204_INDEX_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeEmbedderUnavailable = "ERR_302_EMBEDDER_UNAVAILABLE"
	ErrCodeVectorUnavailable   = "ERR_303_VECTOR_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeLengthMismatch    = "ERR_402_LENGTH_MISMATCH"
	ErrCodeDuplicateID       = "ERR_403_DUPLICATE_ID"
	ErrCodeEmptyID           = "ERR_404_EMPTY_ID"
	ErrCodeInvalidTopK       = "ERR_405_INVALID_TOP_K"
	ErrCodeDimensionMismatch = "ERR_406_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// categoryFromCode reads the hundreds digit of ERR_NNN_....
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeEmbedderUnavailable, ErrCodeVectorUnavailable, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
