// Error codes returned in ErrorResponse.Code. Generic codes follow the HTTP
// status; the lifecycle codes separate failures that share one, such as a
// stale precondition and a lost acceptance race, which are both 409.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeTimeout          = "timeout"

	// Lifecycle:
	ErrCodeValidation           = "validation_failed"
	ErrCodePrecondition         = "precondition_failed"
	ErrCodeConcurrentAcceptance = "concurrent_acceptance"
	ErrCodePartialWrite         = "partial_write"
	ErrCodeTopicForbidden       = "topic_forbidden"
)
