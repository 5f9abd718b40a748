// Package services defines the business logic for availability, booking,
// payment reconciliation, and hold expiry. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors represent expected control flow (validation failures and
// booking conflicts), not faults. Translation into HTTP status codes is
// performed at the handler layer.
package services

import "errors"

// Validation errors (4xx at the boundary).
var (
	// ErrInvalidDate is returned when a request carries a malformed ISO date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidTime is returned when the requested time is not one of the
	// configured service times.
	ErrInvalidTime = errors.New("invalid time")

	// ErrInvalidGuests is returned when the party size is outside the
	// configured [min, max] bounds.
	ErrInvalidGuests = errors.New("invalid guests")

	// ErrPastDate is returned when the requested service date has already
	// passed in the restaurant's timezone.
	ErrPastDate = errors.New("date is in the past")

	// ErrRangeTooLarge is returned when an availability range query exceeds
	// the configured window cap.
	ErrRangeTooLarge = errors.New("range too large")

	// ErrInvalidRange is returned when a range query's `to` precedes `from`.
	ErrInvalidRange = errors.New("to must not precede from")
)

// Conflict errors (409 at the boundary).
var (
	// ErrDateClosed is returned when the restaurant does not serve on the
	// requested weekday.
	ErrDateClosed = errors.New("no availability for this date")

	// ErrIdempotencyConflict is returned when an Idempotency-Key is reused
	// with a different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")

	// ErrHoldExpired is returned when a retried checkout resumes a
	// reservation whose capacity hold has already lapsed.
	ErrHoldExpired = errors.New("reservation hold expired")

	// ErrNotPending is returned when a checkout session is requested for a
	// reservation that is no longer pending payment.
	ErrNotPending = errors.New("reservation is not pending payment")
)

// ErrReservationNotFound indicates that the requested reservation does not
// exist or cannot be resolved from the given checkout session.
var ErrReservationNotFound = errors.New("reservation not found")
