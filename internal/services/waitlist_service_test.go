package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func TestWaitlistJoin_IdempotentPerDateAndEmail(t *testing.T) {
	db := newServiceDB(t)
	svc := NewWaitlistService(db)
	ctx := context.Background()

	if err := svc.Join(ctx, "2026-07-04", "guest@example.com"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	// Repeat submission is a silent success.
	if err := svc.Join(ctx, "2026-07-04", "guest@example.com"); err != nil {
		t.Fatalf("repeat Join: %v", err)
	}

	var count int64
	if err := db.Model(&domain.WaitlistEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("entries = %d, want 1", count)
	}
}

func TestWaitlistJoin_RejectsBadDate(t *testing.T) {
	db := newServiceDB(t)
	svc := NewWaitlistService(db)

	if err := svc.Join(context.Background(), "04/07/2026", "guest@example.com"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
