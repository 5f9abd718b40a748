package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/payments"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// newServiceDB opens a throwaway SQLite database with the full schema.
// Shared by all service tests in this package.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("booking_svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testClock is a fixed Wednesday at noon UTC.
var testClock = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		Timezone:         "UTC",
		ServiceTimes:     []string{"18:30", "19:00", "20:00", "21:30"},
		ClosedWeekdays:   []int{0}, // Sunday
		CapacityTotal:    8,
		MinGuests:        1,
		MaxGuests:        8,
		Currency:         "usd",
		PricePerPerson:   18000,
		DepositBps:       5000,
		LimitedThreshold: 2,
		RangeMaxDays:     93,
		HoldTTL:          15 * time.Minute,
		SweepInterval:    30 * time.Second,
		SweepBatchSize:   200,
		LateConfirmGrace: 24 * time.Hour,
		ReferencePrefix:  "AK-",
		FrontendOrigin:   "https://book.example.com",
	}
}

// fakeGateway is an in-memory payments.Gateway: deterministic session ids,
// parameter capture, and a one-shot failure switch.
type fakeGateway struct {
	createCalls   int
	retrieveCalls int
	failNext      error
	lastParams    payments.SessionParams
}

func (f *fakeGateway) CreateSession(ctx context.Context, p payments.SessionParams) (*payments.Session, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.createCalls++
	f.lastParams = p
	id := fmt.Sprintf("cs_test_%d", f.createCalls)
	return &payments.Session{
		ID:            id,
		URL:           "https://pay.example.com/" + id,
		PaymentStatus: "unpaid",
		ReservationID: p.ReservationID,
	}, nil
}

func (f *fakeGateway) RetrieveSession(ctx context.Context, id string) (*payments.Session, error) {
	f.retrieveCalls++
	return &payments.Session{
		ID:            id,
		URL:           "https://pay.example.com/" + id,
		PaymentStatus: "unpaid",
	}, nil
}

func newTestBookingService(t *testing.T, db *gorm.DB, gw payments.Gateway) *BookingService {
	t.Helper()
	svc := NewBookingService(db, testBookingConfig(), gw, 24*time.Hour)
	svc.Now = func() time.Time { return testClock }
	return svc
}

func loadSlot(t *testing.T, db *gorm.DB, date, tm string) *domain.ServiceSlot {
	t.Helper()
	var slot domain.ServiceSlot
	if err := db.Where("service_date = ? AND start_time = ?", date, tm).First(&slot).Error; err != nil {
		t.Fatalf("load slot %s %s: %v", date, tm, err)
	}
	return &slot
}

func TestCheckout_HappyPath(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := newTestBookingService(t, db, gw)

	result, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date:           "2026-07-02",
		Time:           "19:00",
		Guests:         2,
		Notes:          "window table",
		Customer:       &Customer{Email: "guest@example.com"},
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !result.Created || result.Replayed {
		t.Fatalf("flags: created=%v replayed=%v", result.Created, result.Replayed)
	}

	resp := result.Response
	if resp.Status != domain.StatusPendingPayment {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Amount.Total != 36000 || resp.Amount.Deposit != 18000 {
		t.Fatalf("pricing: %+v", resp.Amount)
	}
	if want := testClock.Add(15 * time.Minute); !resp.HoldExpiresAt.Equal(want) {
		t.Fatalf("hold expiry = %v, want %v", resp.HoldExpiresAt, want)
	}
	if resp.Payment.CheckoutSessionID != "cs_test_1" || resp.Payment.CheckoutURL == "" {
		t.Fatalf("payment block: %+v", resp.Payment)
	}

	// Ledger holds the seats.
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 2 || slot.CapacityConfirmed != 0 {
		t.Fatalf("ledger: held=%d confirmed=%d", slot.CapacityHeld, slot.CapacityConfirmed)
	}

	// Session id persisted on the reservation.
	res, err := repo.GetReservation(context.Background(), db, resp.ReservationID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if res.CheckoutSessionID != "cs_test_1" {
		t.Fatalf("session id not persisted: %+v", res)
	}

	// Gateway saw the reservation metadata and redirect URLs.
	if gw.lastParams.ReservationID != resp.ReservationID || gw.lastParams.Guests != 2 {
		t.Fatalf("gateway params: %+v", gw.lastParams)
	}
	if gw.lastParams.SuccessURL != "https://book.example.com/#/confirmation?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("success url: %q", gw.lastParams.SuccessURL)
	}
	if gw.lastParams.CustomerEmail != "guest@example.com" {
		t.Fatalf("customer email not forwarded: %q", gw.lastParams.CustomerEmail)
	}
	// HoldTTL is below the gateway's 30 minute floor; no session expiry sent.
	if !gw.lastParams.ExpiresAt.IsZero() {
		t.Fatalf("expected no session expiry for short holds, got %v", gw.lastParams.ExpiresAt)
	}
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := newTestBookingService(t, db, gw)

	req := CheckoutRequest{
		Date: "2026-07-02", Time: "19:00", Guests: 2, IdempotencyKey: "idem-replay",
	}
	first, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	second, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if !second.Replayed || second.Created {
		t.Fatalf("flags: created=%v replayed=%v", second.Created, second.Replayed)
	}
	if second.Response.ReservationID != first.Response.ReservationID {
		t.Fatalf("replay produced a different reservation")
	}
	if gw.createCalls != 1 {
		t.Fatalf("gateway sessions created: %d, want 1", gw.createCalls)
	}

	// Capacity held exactly once.
	slot := loadSlot(t, db, "2026-07-02", "19:00")
	if slot.CapacityHeld != 2 {
		t.Fatalf("held = %d after replay, want 2", slot.CapacityHeld)
	}
}

func TestCheckout_IdempotencyConflictOnDifferentPayload(t *testing.T) {
	db := newServiceDB(t)
	svc := newTestBookingService(t, db, &fakeGateway{})

	if _, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date: "2026-07-02", Time: "19:00", Guests: 2, IdempotencyKey: "idem-x",
	}); err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date: "2026-07-02", Time: "19:00", Guests: 4, IdempotencyKey: "idem-x",
	})
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestCheckout_ResumesAfterGatewayFailure(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{failNext: errors.New("gateway down")}
	svc := newTestBookingService(t, db, gw)

	req := CheckoutRequest{
		Date: "2026-07-02", Time: "20:00", Guests: 3, IdempotencyKey: "idem-resume",
	}

	// First attempt: hold and reservation are created, session opening fails.
	if _, err := svc.Checkout(context.Background(), req); err == nil {
		t.Fatalf("expected gateway failure")
	}
	slot := loadSlot(t, db, "2026-07-02", "20:00")
	if slot.CapacityHeld != 3 {
		t.Fatalf("held after crash = %d, want 3", slot.CapacityHeld)
	}

	// Retry under the same key resumes the reservation instead of holding again.
	result, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !result.Created {
		t.Fatalf("retry should open the missing session")
	}

	slot = loadSlot(t, db, "2026-07-02", "20:00")
	if slot.CapacityHeld != 3 {
		t.Fatalf("held after resume = %d, want 3", slot.CapacityHeld)
	}
	var count int64
	if err := db.Model(&domain.Reservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 1 {
		t.Fatalf("reservations = %d, want 1", count)
	}
}

func TestCheckout_ResumeRejectedAfterHoldLapsed(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{failNext: errors.New("gateway down")}
	svc := newTestBookingService(t, db, gw)

	req := CheckoutRequest{
		Date: "2026-07-02", Time: "20:00", Guests: 2, IdempotencyKey: "idem-stale",
	}
	if _, err := svc.Checkout(context.Background(), req); err == nil {
		t.Fatalf("expected gateway failure")
	}

	// The retry arrives after the hold window.
	svc.Now = func() time.Time { return testClock.Add(20 * time.Minute) }
	if _, err := svc.Checkout(context.Background(), req); !errors.Is(err, ErrHoldExpired) {
		t.Fatalf("expected ErrHoldExpired, got %v", err)
	}
}

func TestCheckout_SoldOut(t *testing.T) {
	db := newServiceDB(t)
	svc := newTestBookingService(t, db, &fakeGateway{})

	if _, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date: "2026-07-02", Time: "21:30", Guests: 8, IdempotencyKey: "idem-full",
	}); err != nil {
		t.Fatalf("full-house checkout: %v", err)
	}

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Date: "2026-07-02", Time: "21:30", Guests: 1, IdempotencyKey: "idem-late",
	})
	if !errors.Is(err, repo.ErrSoldOut) {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}

	slot := loadSlot(t, db, "2026-07-02", "21:30")
	if slot.CapacityHeld != 8 {
		t.Fatalf("held = %d, want 8", slot.CapacityHeld)
	}
}

func TestCheckout_Validation(t *testing.T) {
	db := newServiceDB(t)
	svc := newTestBookingService(t, db, &fakeGateway{})
	ctx := context.Background()

	cases := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"malformed date", CheckoutRequest{Date: "02-07-2026", Time: "19:00", Guests: 2}, ErrInvalidDate},
		{"unknown time", CheckoutRequest{Date: "2026-07-02", Time: "17:00", Guests: 2}, ErrInvalidTime},
		{"too many guests", CheckoutRequest{Date: "2026-07-02", Time: "19:00", Guests: 9}, ErrInvalidGuests},
		{"zero guests", CheckoutRequest{Date: "2026-07-02", Time: "19:00", Guests: 0}, ErrInvalidGuests},
		{"past date", CheckoutRequest{Date: "2026-06-30", Time: "19:00", Guests: 2}, ErrPastDate},
		{"closed sunday", CheckoutRequest{Date: "2026-07-05", Time: "19:00", Guests: 2}, ErrDateClosed},
	}
	for _, tc := range cases {
		if _, err := svc.Checkout(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCheckout_WithoutKeySkipsGuard(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := newTestBookingService(t, db, gw)

	req := CheckoutRequest{Date: "2026-07-02", Time: "18:30", Guests: 1}
	if _, err := svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Without a key every call is a fresh booking.
	if _, err := svc.Checkout(context.Background(), req); err != nil {
		t.Fatalf("second: %v", err)
	}
	if gw.createCalls != 2 {
		t.Fatalf("gateway sessions = %d, want 2", gw.createCalls)
	}
	slot := loadSlot(t, db, "2026-07-02", "18:30")
	if slot.CapacityHeld != 2 {
		t.Fatalf("held = %d, want 2", slot.CapacityHeld)
	}
}
