// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., slot_sold_out, hold_expired) are reserved for
//     booking outcomes that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "slot_sold_out",
//     "message": "not enough seats remaining for this time"
//   }

package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeDateClosed          = "date_closed"
	ErrCodePastDate            = "past_date"
	ErrCodeRangeTooLarge       = "range_too_large"
	ErrCodeSlotSoldOut         = "slot_sold_out"
	ErrCodeSlotDisabled        = "slot_disabled"
	ErrCodeHoldExpired         = "hold_expired"
	ErrCodeIdempotencyConflict = "idempotency_conflict"
	ErrCodeInvalidSignature    = "invalid_signature"
	ErrCodePaymentFailed       = "payment_failed"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
