// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reservation
// model, including the conditional status transition that the reconciler and
// the expiry sweeper use to resolve their races: the update is guarded by the
// expected prior status, and the loser of a race observes zero affected rows
// instead of overwriting the winner.
package repo

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// referenceAttempts bounds retries when a generated reference code collides.
const referenceAttempts = 8

// ErrReferenceExhausted is returned when no unique reference code could be
// generated within referenceAttempts tries.
var ErrReferenceExhausted = errors.New("reference code generation failed")

// NewReferenceCode generates a short human-facing booking reference such as
// "AK-4821". The space is deliberately small for readability; CreateReservation
// retries on collisions.
func NewReferenceCode(prefix string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		// crypto/rand failing is unrecoverable for this process.
		panic(err)
	}
	return fmt.Sprintf("%s%d", prefix, n.Int64()+1000)
}

// CreateReservation inserts a new PENDING_PAYMENT reservation with a freshly
// generated reference code, retrying a bounded number of times when the code
// collides with an existing one. All other fields of r are persisted as given;
// ID and Status are assigned here.
func CreateReservation(ctx context.Context, db *gorm.DB, r *domain.Reservation, refPrefix string) (*domain.Reservation, error) {
	r.ID = uuid.NewString()
	r.Status = domain.StatusPendingPayment
	r.CreatedAt = time.Now().UTC()

	for attempt := 0; attempt < referenceAttempts; attempt++ {
		r.ReferenceCode = NewReferenceCode(refPrefix)
		err := db.WithContext(ctx).Create(r).Error
		if err == nil {
			return r, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, ErrReferenceExhausted
}

// GetReservation fetches a reservation by id, or ErrNotFound.
func GetReservation(ctx context.Context, db *gorm.DB, id string) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByCheckoutSession resolves a reservation from a gateway checkout
// session id, falling back to an embedded reservation id carried in the
// session metadata. Returns ErrNotFound when neither matches.
func FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID, reservationID string) (*domain.Reservation, error) {
	var r domain.Reservation
	q := db.WithContext(ctx)
	if reservationID != "" {
		q = q.Where("checkout_session_id = ? OR id = ?", sessionID, reservationID)
	} else {
		q = q.Where("checkout_session_id = ?", sessionID)
	}
	if err := q.First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByCheckoutSessionWithSlot is FindByCheckoutSession with the booked
// slot preloaded, for read-side views that render the seating.
func FindByCheckoutSessionWithSlot(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Reservation, error) {
	var r domain.Reservation
	err := db.WithContext(ctx).
		Preload("Slot").
		Where("checkout_session_id = ?", sessionID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionStatus attempts the state machine move from → to for one
// reservation. The WHERE clause pins the expected prior status, so the update
// is a compare-and-swap: it reports whether this caller won the transition.
// extra columns (timestamps, contact fields) are written only when it does.
func TransitionStatus(ctx context.Context, db *gorm.DB, id, from, to string, extra map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range extra {
		values[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetCheckoutSession records the gateway checkout session id on a reservation.
func SetCheckoutSession(ctx context.Context, db *gorm.DB, id, sessionID string) error {
	return db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		UpdateColumn("checkout_session_id", sessionID).Error
}

// UpdateContact stores gateway-collected contact and payment identifiers
// without touching status or capacity. Empty values are skipped so a partial
// event cannot blank out previously captured fields.
func UpdateContact(ctx context.Context, db *gorm.DB, id, customerEmail, paymentIntentID string) error {
	values := map[string]interface{}{}
	if customerEmail != "" {
		values["customer_email"] = customerEmail
	}
	if paymentIntentID != "" {
		values["payment_intent_id"] = paymentIntentID
	}
	if len(values) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		Updates(values).Error
}

// ListExpiredPending returns up to limit PENDING_PAYMENT reservations whose
// hold window lapsed before now, oldest holds first. Rows stay selectable
// until a sweep (or the reconciler) transitions them away.
func ListExpiredPending(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := db.WithContext(ctx).
		Where("status = ? AND hold_expires_at < ?", domain.StatusPendingPayment, now).
		Order("hold_expires_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// isUniqueViolation reports whether err is a uniqueness-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
