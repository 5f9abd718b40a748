package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func newTestReservation(t *testing.T, db *gorm.DB, holdExpiresAt time.Time) (*domain.Reservation, *domain.ServiceSlot) {
	t.Helper()
	slot := mustUpsertSlot(t, db, "2026-07-01", "19:00", 8)
	r, err := CreateReservation(context.Background(), db, &domain.Reservation{
		SlotID:         slot.ID,
		Guests:         2,
		Currency:       "usd",
		PricePerPerson: 18000,
		DepositBps:     5000,
		DepositAmount:  18000,
		TotalAmount:    36000,
		HoldExpiresAt:  holdExpiresAt,
	}, "AK-")
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	return r, slot
}

func TestCreateReservation_AssignsIdentityAndReference(t *testing.T) {
	db := newBookingDB(t)
	r, _ := newTestReservation(t, db, time.Now().UTC().Add(15*time.Minute))

	if r.ID == "" {
		t.Fatalf("missing id")
	}
	if r.Status != domain.StatusPendingPayment {
		t.Fatalf("status = %q, want PENDING_PAYMENT", r.Status)
	}
	if !strings.HasPrefix(r.ReferenceCode, "AK-") || len(r.ReferenceCode) != 7 {
		t.Fatalf("unexpected reference code %q", r.ReferenceCode)
	}

	got, err := GetReservation(context.Background(), db, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.TotalAmount != 36000 || got.DepositAmount != 18000 {
		t.Fatalf("pricing snapshot lost: %+v", got)
	}
}

func TestNewReferenceCode_Shape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := NewReferenceCode("AK-")
		if !strings.HasPrefix(code, "AK-") || len(code) != 7 {
			t.Fatalf("unexpected code %q", code)
		}
	}
}

func TestTransitionStatus_CompareAndSwap(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()
	r, _ := newTestReservation(t, db, time.Now().UTC().Add(15*time.Minute))

	now := time.Now().UTC()
	won, err := TransitionStatus(ctx, db, r.ID, domain.StatusPendingPayment, domain.StatusConfirmed,
		map[string]interface{}{"paid_at": now, "confirmed_at": now})
	if err != nil || !won {
		t.Fatalf("first transition: won=%v err=%v", won, err)
	}

	// The losing side of the race observes won=false and changes nothing.
	won, err = TransitionStatus(ctx, db, r.ID, domain.StatusPendingPayment, domain.StatusExpired, nil)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if won {
		t.Fatalf("stale transition must not win")
	}

	got, err := GetReservation(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q, want CONFIRMED", got.Status)
	}
	if got.PaidAt == nil || got.ConfirmedAt == nil {
		t.Fatalf("extra columns not written: %+v", got)
	}
}

func TestFindByCheckoutSession_WithMetadataFallback(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()
	r, _ := newTestReservation(t, db, time.Now().UTC().Add(15*time.Minute))

	// Before the session id is persisted, only the metadata fallback resolves.
	if _, err := FindByCheckoutSession(ctx, db, "cs_unknown", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := FindByCheckoutSession(ctx, db, "cs_unknown", r.ID)
	if err != nil {
		t.Fatalf("fallback lookup: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("fallback resolved wrong row: %s", got.ID)
	}

	if err := SetCheckoutSession(ctx, db, r.ID, "cs_live_123"); err != nil {
		t.Fatalf("SetCheckoutSession: %v", err)
	}
	got, err = FindByCheckoutSession(ctx, db, "cs_live_123", "")
	if err != nil || got.ID != r.ID {
		t.Fatalf("session lookup: got=%v err=%v", got, err)
	}

	withSlot, err := FindByCheckoutSessionWithSlot(ctx, db, "cs_live_123")
	if err != nil {
		t.Fatalf("FindByCheckoutSessionWithSlot: %v", err)
	}
	if withSlot.Slot.StartTime != "19:00" {
		t.Fatalf("slot not preloaded: %+v", withSlot.Slot)
	}
}

func TestUpdateContact_SkipsEmptyValues(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()
	r, _ := newTestReservation(t, db, time.Now().UTC().Add(15*time.Minute))

	if err := UpdateContact(ctx, db, r.ID, "guest@example.com", "pi_123"); err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	// Empty values must not blank out what was captured before.
	if err := UpdateContact(ctx, db, r.ID, "", ""); err != nil {
		t.Fatalf("UpdateContact no-op: %v", err)
	}

	got, err := GetReservation(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.CustomerEmail != "guest@example.com" || got.PaymentIntentID != "pi_123" {
		t.Fatalf("contact fields lost: %+v", got)
	}
}

func TestListExpiredPending_OrderAndLimit(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	slot := mustUpsertSlot(t, db, "2026-07-01", "20:00", 20)
	mk := func(holdExpiresAt time.Time) *domain.Reservation {
		r, err := CreateReservation(ctx, db, &domain.Reservation{
			SlotID:        slot.ID,
			Guests:        2,
			Currency:      "usd",
			HoldExpiresAt: holdExpiresAt,
		}, "AK-")
		if err != nil {
			t.Fatalf("CreateReservation: %v", err)
		}
		return r
	}

	oldest := mk(now.Add(-30 * time.Minute))
	middle := mk(now.Add(-10 * time.Minute))
	mk(now.Add(20 * time.Minute)) // still live, must not appear

	confirmed := mk(now.Add(-5 * time.Minute))
	if _, err := TransitionStatus(ctx, db, confirmed.ID, domain.StatusPendingPayment, domain.StatusConfirmed, nil); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	got, err := ListExpiredPending(ctx, db, now, 10)
	if err != nil {
		t.Fatalf("ListExpiredPending: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].ID != oldest.ID || got[1].ID != middle.ID {
		t.Fatalf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}

	limited, err := ListExpiredPending(ctx, db, now, 1)
	if err != nil || len(limited) != 1 || limited[0].ID != oldest.ID {
		t.Fatalf("limit not honored: %v err=%v", limited, err)
	}
}
