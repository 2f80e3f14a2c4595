package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pipeline execution errors
const (
	// ErrCodeOperationFailed indicates a stage or wrapped function failed.
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"
	// ErrCodeParseError indicates raw output could not be decoded.
	ErrCodeParseError ErrorCode = "PARSE_ERROR"
	// ErrCodeValidationFailed indicates decoded output violates its declared shape.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeAggregateFailure indicates one or more parallel branches failed.
	ErrCodeAggregateFailure ErrorCode = "AGGREGATE_FAILURE"
	// ErrCodeTimeout indicates an operation exceeded its allotted time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCancelled indicates the invocation was cancelled before completion.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeInvalidPipeline indicates a pipeline could not be constructed.
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
)

// Request errors
const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Dependency errors (retryable)
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeExternalService    ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// ErrCodeInternal indicates an unexpected internal error.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var retryableCodes = map[ErrorCode]bool{
	ErrCodeOperationFailed:    false,
	ErrCodeParseError:         true,
	ErrCodeValidationFailed:   false,
	ErrCodeTimeout:            true,
	ErrCodeServiceUnavailable: true,
	ErrCodeRateLimited:        true,
	ErrCodeExternalService:    true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// Parse errors count as retryable: re-prompting a model often fixes syntax.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
