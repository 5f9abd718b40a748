// Package services – BookingService
//
// This file implements checkout initiation: validation of the requested
// (date, time, guests) against the booking policy, the idempotency guard,
// the transactional capacity hold + reservation creation, and the opening of
// the payment gateway session that must eventually settle the deposit.
//
// The guard guarantees that for a given (Idempotency-Key, scope) at most one
// reservation and at most one gateway session are ever produced, regardless
// of retry count or where a previous attempt crashed: a completed record
// replays its cached response, an in-progress record linked to a reservation
// resumes from it, and a reused key with a different payload is rejected.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/dates"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/payments"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// idempotencyScope namespaces checkout-initiation keys so the same token
// cannot collide with a future operation type.
const idempotencyScope = "checkout_session_create"

// stripeMinExpiry is the shortest session expiry the gateway accepts; holds
// shorter than this run without a session-side expiry and rely on the
// sweeper alone.
const stripeMinExpiry = 30 * time.Minute

// Customer carries optional guest contact details supplied at checkout.
type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CheckoutRequest is the validated input for checkout initiation.
type CheckoutRequest struct {
	Date           string
	Time           string
	Guests         int
	Notes          string
	Customer       *Customer
	IdempotencyKey string // optional; empty disables the guard
}

// CheckoutAmount is the pricing snapshot block of a checkout response.
type CheckoutAmount struct {
	Currency string `json:"currency"`
	Deposit  int64  `json:"deposit"`
	Total    int64  `json:"total"`
}

// CheckoutPayment carries the gateway session handle the client is sent to.
type CheckoutPayment struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	CheckoutURL       string `json:"checkout_url"`
}

// CheckoutResponse is the client-facing result of checkout initiation. It is
// also the body cached on the idempotency record for replays.
type CheckoutResponse struct {
	ReservationID string          `json:"reservation_id"`
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	HoldExpiresAt time.Time       `json:"hold_expires_at"`
	Amount        CheckoutAmount  `json:"amount"`
	Payment       CheckoutPayment `json:"payment"`
}

// CheckoutResult wraps the response with flags the transport layer uses to
// pick a status code.
type CheckoutResult struct {
	Response CheckoutResponse
	// Created is true when this call opened a new gateway session (201).
	Created bool
	// Replayed is true when the cached response of a completed idempotent
	// request was returned without re-running the operation.
	Replayed bool
}

// BookingService implements checkout initiation against the capacity ledger
// and the payment gateway.
type BookingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Booking is the booking policy.
	Booking config.BookingConfig
	// Gateway opens and retrieves payment sessions.
	Gateway payments.Gateway
	// IdempotencyTTL bounds the retention window of idempotency records.
	IdempotencyTTL time.Duration
	// Location resolves "today" in the restaurant's timezone.
	Location *time.Location
	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time
}

// NewBookingService constructs a BookingService, resolving the configured
// timezone (falling back to UTC when it cannot be loaded).
func NewBookingService(db *gorm.DB, booking config.BookingConfig, gw payments.Gateway, idemTTL time.Duration) *BookingService {
	loc, err := time.LoadLocation(booking.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &BookingService{
		DB:             db,
		Booking:        booking,
		Gateway:        gw,
		IdempotencyTTL: idemTTL,
		Location:       loc,
	}
}

func (s *BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Checkout validates the request, acquires a capacity hold, creates the
// reservation, and opens the gateway session. See the file comment for the
// idempotency semantics.
func (s *BookingService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	hash := requestHash(req)

	var record *domain.IdempotencyKey
	if req.IdempotencyKey != "" {
		rec, replay, err := s.beginIdempotent(ctx, req.IdempotencyKey, hash)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			return &CheckoutResult{Response: *replay, Replayed: true}, nil
		}
		record = rec
	}

	now := s.now().UTC()

	// Resume the reservation a previous attempt created under this key, or
	// create a fresh one inside a single transaction with the capacity hold.
	reservation, err := s.resumeReservation(ctx, record, now)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		reservation, err = s.createReservation(ctx, req, record, now)
		if err != nil {
			return nil, err
		}
		reservationsCreated.Inc()
	}

	if reservation.Status != domain.StatusPendingPayment {
		return nil, ErrNotPending
	}

	session, created, err := s.ensureSession(ctx, req, reservation)
	if err != nil {
		return nil, err
	}

	resp := CheckoutResponse{
		ReservationID: reservation.ID,
		Reference:     reservation.ReferenceCode,
		Status:        reservation.Status,
		HoldExpiresAt: reservation.HoldExpiresAt,
		Amount: CheckoutAmount{
			Currency: reservation.Currency,
			Deposit:  reservation.DepositAmount,
			Total:    reservation.TotalAmount,
		},
		Payment: CheckoutPayment{
			CheckoutSessionID: session.ID,
			CheckoutURL:       session.URL,
		},
	}

	if record != nil {
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		if err := repo.CompleteIdempotencyKey(ctx, s.DB, record.ID, string(body)); err != nil {
			return nil, err
		}
	}

	return &CheckoutResult{Response: resp, Created: created}, nil
}

// validate applies the booking policy to the raw request.
func (s *BookingService) validate(req CheckoutRequest) error {
	if !dates.Valid(req.Date) {
		return ErrInvalidDate
	}
	if !s.timeAllowed(req.Time) {
		return ErrInvalidTime
	}
	if req.Guests < s.Booking.MinGuests || req.Guests > s.Booking.MaxGuests {
		return ErrInvalidGuests
	}

	today := dates.Today(s.now(), s.Location)
	if dates.Before(req.Date, today) {
		return ErrPastDate
	}
	weekday, err := dates.Weekday(req.Date)
	if err != nil {
		return ErrInvalidDate
	}
	for _, closed := range s.Booking.ClosedWeekdays {
		if weekday == closed {
			return ErrDateClosed
		}
	}
	return nil
}

func (s *BookingService) timeAllowed(t string) bool {
	for _, st := range s.Booking.ServiceTimes {
		if st == t {
			return true
		}
	}
	return false
}

// beginIdempotent inserts or loads the idempotency record for key. The third
// return value is non-nil when a completed record short-circuits the request
// with its cached response.
func (s *BookingService) beginIdempotent(ctx context.Context, key, hash string) (*domain.IdempotencyKey, *CheckoutResponse, error) {
	rec, err := repo.CreateIdempotencyKey(ctx, s.DB, key, idempotencyScope, hash, s.IdempotencyTTL)
	if err == nil {
		return rec, nil, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, nil, err
	}

	rec, err = repo.GetIdempotencyKey(ctx, s.DB, key, idempotencyScope)
	if err != nil {
		return nil, nil, err
	}
	if rec.RequestHash != hash {
		return nil, nil, ErrIdempotencyConflict
	}
	if rec.Status == domain.IdempotencyCompleted && rec.ResponseBody != "" {
		var cached CheckoutResponse
		if err := json.Unmarshal([]byte(rec.ResponseBody), &cached); err != nil {
			return nil, nil, err
		}
		return rec, &cached, nil
	}
	return rec, nil, nil
}

// resumeReservation loads the reservation a previous attempt linked to the
// idempotency record, rejecting it when its hold has already lapsed. Returns
// (nil, nil) when there is nothing to resume.
func (s *BookingService) resumeReservation(ctx context.Context, record *domain.IdempotencyKey, now time.Time) (*domain.Reservation, error) {
	if record == nil || record.ReservationID == "" {
		return nil, nil
	}
	r, err := repo.GetReservation(ctx, s.DB, record.ReservationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if r.HoldExpiresAt.Before(now) {
		return nil, ErrHoldExpired
	}
	return r, nil
}

// createReservation runs the hold acquisition and reservation insert as one
// transaction: an observer never sees the held counter move without its
// reservation row, or vice versa.
func (s *BookingService) createReservation(ctx context.Context, req CheckoutRequest, record *domain.IdempotencyKey, now time.Time) (*domain.Reservation, error) {
	total := int64(req.Guests) * s.Booking.PricePerPerson
	deposit := total * int64(s.Booking.DepositBps) / 10000

	var created *domain.Reservation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := repo.UpsertSlot(ctx, tx, req.Date, req.Time, SlotLabel(req.Time), s.Booking.CapacityTotal)
		if err != nil {
			return err
		}
		if err := repo.ReserveCapacity(ctx, tx, slot.ID, req.Guests); err != nil {
			return err
		}

		created, err = repo.CreateReservation(ctx, tx, &domain.Reservation{
			SlotID:         slot.ID,
			Guests:         req.Guests,
			Notes:          req.Notes,
			Currency:       s.Booking.Currency,
			PricePerPerson: s.Booking.PricePerPerson,
			DepositBps:     s.Booking.DepositBps,
			DepositAmount:  deposit,
			TotalAmount:    total,
			HoldExpiresAt:  now.Add(s.Booking.HoldTTL),
		}, s.Booking.ReferencePrefix)
		if err != nil {
			return err
		}

		if record != nil {
			return repo.LinkReservation(ctx, tx, record.ID, created.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ensureSession retrieves the reservation's existing gateway session or opens
// a new one and persists its id. The bool result reports whether a session
// was newly created.
func (s *BookingService) ensureSession(ctx context.Context, req CheckoutRequest, r *domain.Reservation) (*payments.Session, bool, error) {
	if r.CheckoutSessionID != "" {
		session, err := s.Gateway.RetrieveSession(ctx, r.CheckoutSessionID)
		if err != nil {
			return nil, false, err
		}
		return session, false, nil
	}

	params := payments.SessionParams{
		ReservationID:  r.ID,
		ReferenceCode:  r.ReferenceCode,
		ServiceDate:    req.Date,
		ServiceTime:    req.Time,
		Guests:         r.Guests,
		Currency:       r.Currency,
		DepositAmount:  r.DepositAmount,
		ProductName:    "Reservation Deposit",
		SuccessURL:     s.Booking.FrontendOrigin + "/#/confirmation?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.Booking.FrontendOrigin + "/#/reservations?canceled=1",
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Customer != nil {
		params.CustomerEmail = req.Customer.Email
	}
	if s.Booking.HoldTTL >= stripeMinExpiry {
		params.ExpiresAt = r.HoldExpiresAt
	}

	session, err := s.Gateway.CreateSession(ctx, params)
	if err != nil {
		return nil, false, err
	}
	if err := repo.SetCheckoutSession(ctx, s.DB, r.ID, session.ID); err != nil {
		return nil, false, err
	}
	r.CheckoutSessionID = session.ID
	return session, true, nil
}

// requestHash digests the normalized request payload. Struct field order is
// fixed, so the JSON encoding is a stable canonical form.
func requestHash(req CheckoutRequest) string {
	normalized := struct {
		Date     string    `json:"date"`
		Time     string    `json:"time"`
		Guests   int       `json:"guests"`
		Notes    string    `json:"notes"`
		Customer *Customer `json:"customer"`
	}{req.Date, req.Time, req.Guests, req.Notes, req.Customer}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
