// Checkout HTTP handlers.
//
// This file exposes the checkout initiation endpoint:
//   - POST /checkout-sessions    (acquire a hold, open a payment session)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The booking service owns the
// idempotency semantics; the handler only forwards the validated header key
// and picks 201 vs 200 from the result flags.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/payments"
	"github.com/tbourn/go-booking-backend/internal/repo"
	"github.com/tbourn/go-booking-backend/internal/services"

	"github.com/tbourn/go-booking-backend/internal/http/middleware"
)

//
// Service contracts (context-aware)
//

// AvailabilityService defines the read-side availability queries consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AvailabilityService interface {
	// Day returns the per-seating availability for one service date.
	Day(ctx context.Context, date string) (*services.DayAvailability, error)
	// Range returns the coarse per-day status over a bounded window.
	Range(ctx context.Context, from, to string) (*services.RangeAvailability, error)
}

// BookingService defines checkout initiation as consumed by HTTP handlers.
type BookingService interface {
	// Checkout acquires a capacity hold, creates the reservation, and opens
	// the payment gateway session.
	Checkout(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error)
}

// ReservationService defines reservation lookups for the confirmation page.
type ReservationService interface {
	// ByCheckoutSession resolves a reservation from a gateway session id.
	ByCheckoutSession(ctx context.Context, sessionID string) (*domain.Reservation, error)
}

// WaitlistService records interest in fully booked dates.
type WaitlistService interface {
	// Join adds an email to the waitlist for a date (idempotent).
	Join(ctx context.Context, date, email string) error
}

// WebhookProcessor applies one verified payment gateway event.
type WebhookProcessor interface {
	// Process records and applies the event; see services.Reconciler.
	Process(ctx context.Context, ev *payments.Event) (*services.ProcessResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for availability, checkout, reservation
// lookup, waitlist, and the payment webhook. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	availSvc   AvailabilityService
	bookingSvc BookingService
	resSvc     ReservationService
	waitSvc    WaitlistService
	reconciler WebhookProcessor

	webhookSecret string
	// parseEvent verifies and decodes a raw webhook delivery. Overridable in
	// tests to sidestep real signature computation.
	parseEvent func(payload []byte, sigHeader, secret string) (*payments.Event, error)
}

// New constructs a Handlers instance bound to the given services. The
// webhookSecret is the gateway's endpoint signing secret.
func New(avail AvailabilityService, booking BookingService, res ReservationService, wait WaitlistService, rec WebhookProcessor, webhookSecret string) *Handlers {
	return &Handlers{
		availSvc:      avail,
		bookingSvc:    booking,
		resSvc:        res,
		waitSvc:       wait,
		reconciler:    rec,
		webhookSecret: webhookSecret,
		parseEvent:    payments.ParseEvent,
	}
}

//
// DTOs
//

// CheckoutCustomer is the optional contact block of a checkout payload.
type CheckoutCustomer struct {
	Email string `json:"email" binding:"omitempty,email,max=255"`
	Name  string `json:"name"  binding:"omitempty,max=255"`
	Phone string `json:"phone" binding:"omitempty,max=64"`
}

// CreateCheckoutRequest is the JSON payload for checkout initiation.
type CreateCheckoutRequest struct {
	// Date is the service date (YYYY-MM-DD).
	Date string `json:"date" binding:"required"`
	// Time is the seating time (HH:MM); must match a configured service time.
	Time string `json:"time" binding:"required"`
	// Guests is the party size.
	Guests int `json:"guests" binding:"required"`
	// Notes carries free-form guest notes (allergies, occasions).
	Notes string `json:"notes" binding:"omitempty,max=1000"`
	// Customer optionally pre-fills the payment page contact fields.
	Customer *CheckoutCustomer `json:"customer"`
}

//
// Handlers
//

// CreateCheckout initiates a checkout: it validates the payload, acquires a
// capacity hold, creates the reservation, and returns the payment session the
// client is redirected to.
//
// Responses:
//   - 201 when a new payment session was opened
//   - 200 when an idempotent retry replayed or resumed a previous attempt
//   - 400 invalid payload or malformed Idempotency-Key
//   - 409 sold out, closed date, expired hold, or idempotency conflict
//   - 500 persistence or gateway failure
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	svcReq := services.CheckoutRequest{
		Date:           strings.TrimSpace(req.Date),
		Time:           strings.TrimSpace(req.Time),
		Guests:         req.Guests,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: middleware.IdempotencyKeyFrom(c),
	}
	if req.Customer != nil {
		svcReq.Customer = &services.Customer{
			Email: strings.TrimSpace(req.Customer.Email),
			Name:  strings.TrimSpace(req.Customer.Name),
			Phone: strings.TrimSpace(req.Customer.Phone),
		}
	}

	result, err := h.bookingSvc.Checkout(c.Request.Context(), svcReq)
	if err != nil {
		failCheckout(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	ok(c, status, result.Response)
}

// failCheckout maps booking service errors onto the HTTP error taxonomy.
func failCheckout(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidDate):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be a valid YYYY-MM-DD")
	case errors.Is(err, services.ErrInvalidTime):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "time is not a service time")
	case errors.Is(err, services.ErrInvalidGuests):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "guests outside the allowed party size")
	case errors.Is(err, services.ErrPastDate):
		fail(c, http.StatusBadRequest, ErrCodePastDate, "date is in the past")
	case errors.Is(err, services.ErrDateClosed):
		fail(c, http.StatusConflict, ErrCodeDateClosed, "the restaurant is closed on this date")
	case errors.Is(err, repo.ErrSoldOut):
		fail(c, http.StatusConflict, ErrCodeSlotSoldOut, "not enough seats remaining for this time")
	case errors.Is(err, repo.ErrSlotDisabled):
		fail(c, http.StatusConflict, ErrCodeSlotDisabled, "this seating is not currently bookable")
	case errors.Is(err, services.ErrIdempotencyConflict):
		fail(c, http.StatusConflict, ErrCodeIdempotencyConflict, "idempotency key reused with a different payload")
	case errors.Is(err, services.ErrHoldExpired):
		fail(c, http.StatusConflict, ErrCodeHoldExpired, "the previous hold for this key has expired; retry with a new key")
	case errors.Is(err, services.ErrNotPending):
		fail(c, http.StatusConflict, ErrCodeConflict, "reservation is no longer pending payment")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not initiate checkout")
	}
}
