package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

func TestCreateIdempotencyKey_DuplicateDetection(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotencyKey(ctx, db, "key-1", "checkout_session_create", "hash-a", time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotencyKey: %v", err)
	}
	if rec.Status != domain.IdempotencyInProgress {
		t.Fatalf("status = %q, want IN_PROGRESS", rec.Status)
	}
	if !rec.ExpiresAt.After(time.Now().UTC().Add(55 * time.Minute)) {
		t.Fatalf("ExpiresAt not honoring TTL: %v", rec.ExpiresAt)
	}

	if _, err := CreateIdempotencyKey(ctx, db, "key-1", "checkout_session_create", "hash-b", time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same key under a different scope is a different record.
	if _, err := CreateIdempotencyKey(ctx, db, "key-1", "other_scope", "hash-a", time.Hour); err != nil {
		t.Fatalf("cross-scope create: %v", err)
	}
}

func TestIdempotencyKey_LinkAndComplete(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotencyKey(ctx, db, "key-2", "checkout_session_create", "hash-a", time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotencyKey: %v", err)
	}

	if err := LinkReservation(ctx, db, rec.ID, "res-42"); err != nil {
		t.Fatalf("LinkReservation: %v", err)
	}
	if err := CompleteIdempotencyKey(ctx, db, rec.ID, `{"reservation_id":"res-42"}`); err != nil {
		t.Fatalf("CompleteIdempotencyKey: %v", err)
	}

	got, err := GetIdempotencyKey(ctx, db, "key-2", "checkout_session_create")
	if err != nil {
		t.Fatalf("GetIdempotencyKey: %v", err)
	}
	if got.ReservationID != "res-42" {
		t.Fatalf("reservation link lost: %+v", got)
	}
	if got.Status != domain.IdempotencyCompleted || got.ResponseBody == "" {
		t.Fatalf("completion not persisted: %+v", got)
	}

	if _, err := GetIdempotencyKey(ctx, db, "missing", "checkout_session_create"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeExpiredIdempotencyKeys(t *testing.T) {
	db := newBookingDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotencyKey(ctx, db, "stale", "s", "h", -time.Minute); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if _, err := CreateIdempotencyKey(ctx, db, "live", "s", "h", time.Hour); err != nil {
		t.Fatalf("create live: %v", err)
	}

	n, err := PurgeExpiredIdempotencyKeys(ctx, db, time.Now().UTC())
	if err != nil {
		t.Fatalf("PurgeExpiredIdempotencyKeys: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
	if _, err := GetIdempotencyKey(ctx, db, "live", "s"); err != nil {
		t.Fatalf("live record purged: %v", err)
	}
	if _, err := GetIdempotencyKey(ctx, db, "stale", "s"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale record survived: %v", err)
	}
}
