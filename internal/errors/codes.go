// Package errors provides structured error handling for the otto retrieval
// pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (catalog, indexes, caches)
//   - 3XX: Collaborator errors (LLM, embedder, cross-encoder over the network)
//   - 4XX: Validation errors
//   - 5XX: Pipeline and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig       Category = "CONFIG"
	CategoryStorage      Category = "STORAGE"
	CategoryCollaborator Category = "COLLABORATOR"
	CategoryValidation   Category = "VALIDATION"
	CategoryPipeline     Category = "PIPELINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current request.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning means a stage degraded but the request continued.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeStoreCorrupt     = "ERR_202_STORE_CORRUPT"
	ErrCodeStoreLocked      = "ERR_203_STORE_LOCKED"
	ErrCodeCatalogInvalid   = "ERR_204_CATALOG_INVALID"

	// Collaborator errors (300-399)
	ErrCodeCollaboratorTimeout     = "ERR_301_COLLABORATOR_TIMEOUT"
	ErrCodeCollaboratorUnavailable = "ERR_302_COLLABORATOR_UNAVAILABLE"
	ErrCodeCollaboratorResponse    = "ERR_303_COLLABORATOR_BAD_RESPONSE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeSchemaMismatch    = "ERR_404_SCHEMA_MISMATCH"

	// Pipeline errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeRetrievalFailed = "ERR_502_RETRIEVAL_FAILED"
	ErrCodeEmbeddingFailed = "ERR_503_EMBEDDING_FAILED"
	ErrCodeRerankFailed    = "ERR_504_RERANK_FAILED"
	ErrCodeExpansionFailed = "ERR_505_EXPANSION_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	// "ERR_101_..." -> '1'
	if len(code) < 7 {
		return CategoryPipeline
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryValidation
	default:
		return CategoryPipeline
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeRetrievalFailed:
		return SeverityFatal
	case ErrCodeExpansionFailed, ErrCodeRerankFailed:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCollaboratorTimeout, ErrCodeCollaboratorUnavailable, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
