// Package services – Reconciler
//
// This file translates verified payment gateway events into reservation state
// transitions. The gateway delivers at least once, so every event is first
// recorded as a PaymentEvent row (the dedup barrier) and only marked
// processed after the reservation-side work committed; a crash mid-processing
// leaves the row retryable by the next delivery.
//
// The reconciler races the expiry sweeper over PENDING_PAYMENT rows. The race
// is resolved without locks: each side transitions the row with a
// compare-and-swap guarded by the expected prior status, and whoever observes
// zero affected rows re-reads and decides again. A payment success that loses
// to the sweeper therefore falls into the EXPIRED branch, where the seats are
// reclaimed only if the slot still has room; otherwise the reservation is
// parked for manual review and capacity stays untouched.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/payments"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// Event processing outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeDeduped   = "deduped"
	OutcomeOrphaned  = "orphaned" // no reservation resolvable; acked without retry
	OutcomeIgnored   = "ignored"  // event type outside the checkout lifecycle
)

// errLostTransition signals that a conditional status update matched no row,
// i.e. a concurrent actor moved the reservation first. Used to roll back a
// transaction without surfacing an error to the gateway.
var errLostTransition = errors.New("lost status transition")

// ProcessResult reports what the reconciler did with an event.
type ProcessResult struct {
	Outcome       string
	ReservationID string
}

// Reconciler drives reservation transitions from payment gateway events.
type Reconciler struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Booking supplies the late-confirmation grace window.
	Booking config.BookingConfig
	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(db *gorm.DB, booking config.BookingConfig) *Reconciler {
	return &Reconciler{DB: db, Booking: booking}
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Process records and applies one verified gateway event. The event must have
// passed signature verification before this point. An error return means the
// event stays unprocessed and should surface as a retryable failure to the
// gateway; nil means the event is settled (processed, deduped, or orphaned).
func (r *Reconciler) Process(ctx context.Context, ev *payments.Event) (*ProcessResult, error) {
	rec, err := repo.CreatePaymentEvent(ctx, r.DB, ev.ID, ev.Type, ev.Livemode, string(ev.Payload))
	if errors.Is(err, repo.ErrDuplicate) {
		rec, err = repo.GetPaymentEvent(ctx, r.DB, ev.ID)
		if err != nil {
			return nil, err
		}
		if rec.ProcessedAt != nil {
			paymentEvents.WithLabelValues(ev.Type, OutcomeDeduped).Inc()
			return &ProcessResult{Outcome: OutcomeDeduped, ReservationID: rec.ReservationID}, nil
		}
		// Recorded by an earlier delivery that crashed before finishing;
		// fall through and process it now.
	} else if err != nil {
		return nil, err
	}

	now := r.now().UTC()

	var reservationID string
	outcome := OutcomeIgnored
	switch {
	case ev.Paid():
		reservationID, err = r.handlePaid(ctx, ev.Session, now)
	case ev.Failed():
		reservationID, err = r.handleFailed(ctx, ev.Session, now)
	}
	if err != nil {
		paymentEvents.WithLabelValues(ev.Type, "failed").Inc()
		return nil, err
	}
	if ev.Paid() || ev.Failed() {
		outcome = OutcomeProcessed
		if reservationID == "" {
			outcome = OutcomeOrphaned
		}
	}

	if err := repo.MarkPaymentEventProcessed(ctx, r.DB, rec.ID, now, reservationID); err != nil {
		return nil, err
	}

	paymentEvents.WithLabelValues(ev.Type, outcome).Inc()
	return &ProcessResult{Outcome: outcome, ReservationID: reservationID}, nil
}

// handlePaid applies a payment success. Returns the resolved reservation id,
// or "" when the session matches no reservation (logged and acked so the
// gateway does not retry-loop an orphan).
func (r *Reconciler) handlePaid(ctx context.Context, sess payments.Session, now time.Time) (string, error) {
	res, err := r.resolve(ctx, sess)
	if err != nil || res == nil {
		return "", err
	}

	// The gateway says success but the payment is not actually settled
	// (e.g. requires further verification): park for a human.
	if sess.PaymentStatus != payments.PaymentStatusPaid {
		return res.ID, r.markReview(ctx, res.ID, sess)
	}

	switch res.Status {
	case domain.StatusConfirmed:
		// Already confirmed (duplicate success): contact metadata only.
		return res.ID, repo.UpdateContact(ctx, r.DB, res.ID, sess.CustomerEmail, sess.PaymentIntentID)

	case domain.StatusCancelled:
		// Money arrived for a cancelled booking; a human must refund or reinstate.
		return res.ID, r.markReview(ctx, res.ID, sess)

	case domain.StatusPendingPayment:
		won, err := r.confirmPending(ctx, res, sess, now)
		if err != nil {
			return res.ID, err
		}
		if won {
			return res.ID, nil
		}
		// Lost the race (sweeper expired it between our read and the
		// conditional update). Re-read and decide from the new state.
		res, err = repo.GetReservation(ctx, r.DB, res.ID)
		if err != nil {
			return "", err
		}
		if res.Status != domain.StatusExpired {
			return res.ID, repo.UpdateContact(ctx, r.DB, res.ID, sess.CustomerEmail, sess.PaymentIntentID)
		}
		fallthrough

	case domain.StatusExpired:
		return res.ID, r.confirmExpired(ctx, res, sess, now)

	default:
		return res.ID, repo.UpdateContact(ctx, r.DB, res.ID, sess.CustomerEmail, sess.PaymentIntentID)
	}
}

// confirmPending attempts the PENDING_PAYMENT → CONFIRMED transition together
// with the held → confirmed capacity conversion in one transaction. The bool
// result reports whether this caller won the transition.
func (r *Reconciler) confirmPending(ctx context.Context, res *domain.Reservation, sess payments.Session, now time.Time) (bool, error) {
	won := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionStatus(ctx, tx, res.ID, domain.StatusPendingPayment, domain.StatusConfirmed, confirmExtras(sess, now))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := repo.ConvertCapacity(ctx, tx, res.SlotID, res.Guests); err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		// A conversion failure here means the ledger disagrees with the
		// reservation; roll back and park for a human.
		if errors.Is(err, repo.ErrSoldOut) {
			return false, r.markReview(ctx, res.ID, sess)
		}
		return false, err
	}
	if won {
		reservationsTransitioned.WithLabelValues(domain.StatusConfirmed).Inc()
	}
	return won, nil
}

// confirmExpired handles a payment success arriving after the hold was
// reclaimed. The hold's seats were released, so they are re-claimed against
// remaining capacity; when the slot has since filled up, or the event is
// older than the late-confirmation grace window, the reservation goes to
// manual review and capacity is untouched.
func (r *Reconciler) confirmExpired(ctx context.Context, res *domain.Reservation, sess payments.Session, now time.Time) error {
	if r.Booking.LateConfirmGrace > 0 && now.After(res.HoldExpiresAt.Add(r.Booking.LateConfirmGrace)) {
		return r.markReview(ctx, res.ID, sess)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ConfirmReleasedCapacity(ctx, tx, res.SlotID, res.Guests); err != nil {
			return err
		}
		ok, err := repo.TransitionStatus(ctx, tx, res.ID, domain.StatusExpired, domain.StatusConfirmed, confirmExtras(sess, now))
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved the row meanwhile; undo the claim.
			return errLostTransition
		}
		return nil
	})
	if errors.Is(err, repo.ErrSoldOut) {
		return r.markReview(ctx, res.ID, sess)
	}
	if errors.Is(err, errLostTransition) {
		return repo.UpdateContact(ctx, r.DB, res.ID, sess.CustomerEmail, sess.PaymentIntentID)
	}
	if err != nil {
		return err
	}
	reservationsTransitioned.WithLabelValues(domain.StatusConfirmed).Inc()
	return nil
}

// handleFailed applies a payment failure or session expiry: the reservation
// is expired and its held seats released, once, guarded by the status
// transition. The gateway-collected email is kept for follow-up regardless.
func (r *Reconciler) handleFailed(ctx context.Context, sess payments.Session, now time.Time) (string, error) {
	res, err := r.resolve(ctx, sess)
	if err != nil || res == nil {
		return "", err
	}

	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionStatus(ctx, tx, res.ID, domain.StatusPendingPayment, domain.StatusExpired, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		reservationsTransitioned.WithLabelValues(domain.StatusExpired).Inc()
		return repo.ReleaseCapacity(ctx, tx, res.SlotID, res.Guests)
	})
	if err != nil {
		return res.ID, err
	}

	return res.ID, repo.UpdateContact(ctx, r.DB, res.ID, sess.CustomerEmail, "")
}

// resolve finds the reservation a session pays for, by stored session id or
// the reservation id embedded in the session metadata. A miss is logged and
// reported as (nil, nil): there is no retry value in failing the delivery.
func (r *Reconciler) resolve(ctx context.Context, sess payments.Session) (*domain.Reservation, error) {
	res, err := repo.FindByCheckoutSession(ctx, r.DB, sess.ID, sess.ReservationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Str("checkout_session_id", sess.ID).Msg("payment event matches no reservation")
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// markReview parks a reservation for operator intervention, keeping the
// gateway contact fields but never touching capacity.
func (r *Reconciler) markReview(ctx context.Context, id string, sess payments.Session) error {
	values := map[string]interface{}{"status": domain.StatusManualReview}
	if sess.CustomerEmail != "" {
		values["customer_email"] = sess.CustomerEmail
	}
	if sess.PaymentIntentID != "" {
		values["payment_intent_id"] = sess.PaymentIntentID
	}
	err := r.DB.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		Updates(values).Error
	if err == nil {
		reservationsTransitioned.WithLabelValues(domain.StatusManualReview).Inc()
	}
	return err
}

// confirmExtras builds the column set written alongside a CONFIRMED
// transition: contact fields plus the payment timestamps.
func confirmExtras(sess payments.Session, now time.Time) map[string]interface{} {
	extras := map[string]interface{}{
		"paid_at":      now,
		"confirmed_at": now,
	}
	if sess.CustomerEmail != "" {
		extras["customer_email"] = sess.CustomerEmail
	}
	if sess.PaymentIntentID != "" {
		extras["payment_intent_id"] = sess.PaymentIntentID
	}
	return extras
}
