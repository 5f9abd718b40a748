package services

import (
	"context"
	"errors"
	"testing"
)

func TestByCheckoutSession_ResolvesWithSlot(t *testing.T) {
	db := newServiceDB(t)
	res := bookPending(t, db, 2, "idem-lookup")

	svc := NewReservationService(db)
	got, err := svc.ByCheckoutSession(context.Background(), res.CheckoutSessionID)
	if err != nil {
		t.Fatalf("ByCheckoutSession: %v", err)
	}
	if got.ID != res.ID {
		t.Fatalf("resolved wrong reservation: %s", got.ID)
	}
	if got.Slot.ServiceDate != "2026-07-02" || got.Slot.StartTime != "19:00" {
		t.Fatalf("slot not preloaded: %+v", got.Slot)
	}
}

func TestByCheckoutSession_NotFound(t *testing.T) {
	db := newServiceDB(t)
	svc := NewReservationService(db)

	if _, err := svc.ByCheckoutSession(context.Background(), "cs_missing"); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}
