package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/payments"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

func newTestReconciler(t *testing.T, db *gorm.DB) *Reconciler {
	t.Helper()
	rec := NewReconciler(db, testBookingConfig())
	rec.Now = func() time.Time { return testClock }
	return rec
}

// bookPending runs a real checkout so the ledger, reservation, and session id
// are in the exact state the reconciler sees in production.
func bookPending(t *testing.T, db *gorm.DB, guests int, key string) *domain.Reservation {
	t.Helper()
	svc := newTestBookingService(t, db, &fakeGateway{})
	result, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date: "2026-07-02", Time: "19:00", Guests: guests, IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	res, err := repo.GetReservation(context.Background(), db, result.Response.ReservationID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	return res
}

func paidEvent(id string, res *domain.Reservation) *payments.Event {
	return &payments.Event{
		ID:       id,
		Type:     payments.EventCheckoutCompleted,
		Payload:  []byte(`{"id":"` + id + `"}`),
		Session: payments.Session{
			ID:              res.CheckoutSessionID,
			PaymentStatus:   payments.PaymentStatusPaid,
			CustomerEmail:   "guest@example.com",
			PaymentIntentID: "pi_1",
			ReservationID:   res.ID,
		},
	}
}

func failedEvent(id string, res *domain.Reservation) *payments.Event {
	return &payments.Event{
		ID:      id,
		Type:    payments.EventCheckoutSessionExpired,
		Payload: []byte(`{"id":"` + id + `"}`),
		Session: payments.Session{
			ID:            res.CheckoutSessionID,
			PaymentStatus: "unpaid",
			ReservationID: res.ID,
		},
	}
}

func TestProcess_PaidConfirmsPendingReservation(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-paid")

	result, err := rec.Process(context.Background(), paidEvent("evt_paid_1", res))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeProcessed || result.ReservationID != res.ID {
		t.Fatalf("result: %+v", result)
	}

	got, err := repo.GetReservation(context.Background(), db, res.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q, want CONFIRMED", got.Status)
	}
	if got.PaidAt == nil || got.ConfirmedAt == nil {
		t.Fatalf("payment timestamps missing: %+v", got)
	}
	if got.CustomerEmail != "guest@example.com" || got.PaymentIntentID != "pi_1" {
		t.Fatalf("contact fields missing: %+v", got)
	}

	// Held seats became confirmed seats.
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 0 || slot.CapacityConfirmed != 2 {
		t.Fatalf("ledger: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}

	// The event is marked processed.
	ev, err := repo.GetPaymentEvent(context.Background(), db, "evt_paid_1")
	if err != nil {
		t.Fatalf("GetPaymentEvent: %v", err)
	}
	if ev.ProcessedAt == nil || ev.ReservationID != res.ID {
		t.Fatalf("event row: %+v", ev)
	}
}

func TestProcess_DuplicateEventIsDeduped(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-dup")

	if _, err := rec.Process(context.Background(), paidEvent("evt_dup", res)); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	result, err := rec.Process(context.Background(), paidEvent("evt_dup", res))
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if result.Outcome != OutcomeDeduped {
		t.Fatalf("outcome = %q, want deduped", result.Outcome)
	}

	// Replay must not double-convert capacity.
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 0 || slot.CapacityConfirmed != 2 {
		t.Fatalf("ledger after replay: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}
}

func TestProcess_FailedExpiresAndReleases(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 3, "idem-fail")

	result, err := rec.Process(context.Background(), failedEvent("evt_fail", res))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %q", result.Outcome)
	}

	got, _ := repo.GetReservation(context.Background(), db, res.ID)
	if got.Status != domain.StatusExpired {
		t.Fatalf("status = %q, want EXPIRED", got.Status)
	}
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 0 || slot.CapacityConfirmed != 0 {
		t.Fatalf("ledger: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}
}

func TestProcess_PaidAfterExpiryReclaimsSeats(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-late")

	// The sweeper expired the hold and released the seats.
	sweeper := NewSweeper(db, time.Minute, 100)
	if _, err := sweeper.ExpireOnce(context.Background(), testClock.Add(time.Hour)); err != nil {
		t.Fatalf("ExpireOnce: %v", err)
	}

	// Payment success lands within the grace window.
	rec.Now = func() time.Time { return testClock.Add(time.Hour) }
	result, err := rec.Process(context.Background(), paidEvent("evt_late", res))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %q", result.Outcome)
	}

	got, _ := repo.GetReservation(context.Background(), db, res.ID)
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q, want CONFIRMED", got.Status)
	}
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 0 || slot.CapacityConfirmed != 2 {
		t.Fatalf("ledger: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}
}

func TestProcess_PaidAfterExpirySoldOutParksForReview(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-lost-seats")

	sweeper := NewSweeper(db, time.Minute, 100)
	if _, err := sweeper.ExpireOnce(context.Background(), testClock.Add(time.Hour)); err != nil {
		t.Fatalf("ExpireOnce: %v", err)
	}

	// Another party takes every released seat before the late payment lands.
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if err := repo.ReserveCapacity(context.Background(), db, slot.ID, 8); err != nil {
		t.Fatalf("backfill slot: %v", err)
	}

	rec.Now = func() time.Time { return testClock.Add(time.Hour) }
	if _, err := rec.Process(context.Background(), paidEvent("evt_lost", res)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := repo.GetReservation(context.Background(), db, res.ID)
	if got.Status != domain.StatusManualReview {
		t.Fatalf("status = %q, want REQUIRES_MANUAL_REVIEW", got.Status)
	}
	// Capacity untouched by the parked reservation.
	slot = loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 8 || slot.CapacityConfirmed != 0 {
		t.Fatalf("ledger: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}
}

func TestProcess_PaidBeyondGraceParksForReview(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-too-late")

	sweeper := NewSweeper(db, time.Minute, 100)
	if _, err := sweeper.ExpireOnce(context.Background(), testClock.Add(time.Hour)); err != nil {
		t.Fatalf("ExpireOnce: %v", err)
	}

	// 25 hours past hold expiry exceeds the 24 hour grace window.
	rec.Now = func() time.Time { return res.HoldExpiresAt.Add(25 * time.Hour) }
	if _, err := rec.Process(context.Background(), paidEvent("evt_ancient", res)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := repo.GetReservation(context.Background(), db, res.ID)
	if got.Status != domain.StatusManualReview {
		t.Fatalf("status = %q, want REQUIRES_MANUAL_REVIEW", got.Status)
	}
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityConfirmed != 0 {
		t.Fatalf("stale payment must not claim capacity: confirmed=%d", slot.CapacityConfirmed)
	}
}

func TestProcess_UnsettledPaymentStatusParksForReview(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)
	res := bookPending(t, db, 2, "idem-unsettled")

	ev := paidEvent("evt_unsettled", res)
	ev.Session.PaymentStatus = "unpaid"
	if _, err := rec.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := repo.GetReservation(context.Background(), db, res.ID)
	if got.Status != domain.StatusManualReview {
		t.Fatalf("status = %q, want REQUIRES_MANUAL_REVIEW", got.Status)
	}
}

func TestProcess_OrphanEventIsAcked(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)

	ev := &payments.Event{
		ID:      "evt_orphan",
		Type:    payments.EventCheckoutCompleted,
		Payload: []byte(`{}`),
		Session: payments.Session{ID: "cs_unknown", PaymentStatus: payments.PaymentStatusPaid},
	}
	result, err := rec.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeOrphaned {
		t.Fatalf("outcome = %q, want orphaned", result.Outcome)
	}

	// Acked means recorded and marked processed so redeliveries dedup.
	row, err := repo.GetPaymentEvent(context.Background(), db, "evt_orphan")
	if err != nil {
		t.Fatalf("GetPaymentEvent: %v", err)
	}
	if row.ProcessedAt == nil {
		t.Fatalf("orphan event left unprocessed")
	}
}

func TestProcess_IrrelevantEventTypeIsIgnored(t *testing.T) {
	db := newServiceDB(t)
	rec := newTestReconciler(t, db)

	ev := &payments.Event{ID: "evt_other", Type: "invoice.created", Payload: []byte(`{}`)}
	result, err := rec.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want ignored", result.Outcome)
	}
}
