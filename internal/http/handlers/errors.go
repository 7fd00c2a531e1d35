// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These symbolic constants are mapped to HTTP responses via the `fail()`
// helper, giving clients a stable, machine-readable taxonomy alongside the
// human-readable message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Domain-specific codes cover pipeline failures that a status alone
//     cannot convey (e.g. intake_failed vs. flush_failed).
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeIntakeFailed     = "intake_failed"
	ErrCodeFlushFailed      = "flush_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeResumeFailed     = "resume_failed"
	ErrCodeNotConfigured    = "not_configured"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
