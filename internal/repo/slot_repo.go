// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the capacity ledger: every mutation of a
// slot's held/confirmed counters happens through one of the conditional
// updates below, where the capacity check and the increment execute as a
// single atomic statement. Two concurrent reservations racing for the last
// seat can therefore never both succeed; the loser observes zero affected
// rows and is handed a classified error instead.
//
// Error semantics:
//   - ErrSoldOut: the slot cannot cover the requested guests.
//   - ErrSlotDisabled: the slot exists but is switched off by an operator.
//   - ErrNotFound: the slot does not exist.
//   - Other DB errors are propagated raw.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// Ledger errors, distinguishable by callers as expected conflict outcomes.
var (
	// ErrSoldOut indicates the slot lacks remaining capacity for the request.
	ErrSoldOut = errors.New("slot sold out")

	// ErrSlotDisabled indicates the slot has been disabled by an operator.
	ErrSlotDisabled = errors.New("slot disabled")
)

// UpsertSlot creates the slot for (serviceDate, startTime) if it does not
// exist yet, then returns the current row. Creation is lazy: slots come into
// being on the first booking attempt for their (date, time) pair. The insert
// uses ON CONFLICT DO NOTHING so concurrent first bookings converge on the
// same row.
func UpsertSlot(ctx context.Context, db *gorm.DB, serviceDate, startTime, label string, capacityTotal int) (*domain.ServiceSlot, error) {
	slot := &domain.ServiceSlot{
		ID:            uuid.NewString(),
		ServiceDate:   serviceDate,
		StartTime:     startTime,
		Label:         label,
		CapacityTotal: capacityTotal,
		IsEnabled:     true,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service_date"}, {Name: "start_time"}},
			DoNothing: true,
		}).
		Create(slot).Error
	if err != nil {
		return nil, err
	}

	// Re-read: either our insert or the pre-existing row.
	var out domain.ServiceSlot
	err = db.WithContext(ctx).
		Where("service_date = ? AND start_time = ?", serviceDate, startTime).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSlot fetches a slot by id, or ErrNotFound.
func GetSlot(ctx context.Context, db *gorm.DB, id string) (*domain.ServiceSlot, error) {
	var s domain.ServiceSlot
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSlotsByDate returns the stored slots for one service date restricted to
// the given start times. Times without a stored row are simply absent; the
// availability service fills in defaults for them.
func ListSlotsByDate(ctx context.Context, db *gorm.DB, serviceDate string, startTimes []string) ([]domain.ServiceSlot, error) {
	var out []domain.ServiceSlot
	err := db.WithContext(ctx).
		Where("service_date = ? AND start_time IN ?", serviceDate, startTimes).
		Find(&out).Error
	return out, err
}

// ListSlotsInRange returns the stored slots between from and to (inclusive
// ISO dates) restricted to the given start times.
func ListSlotsInRange(ctx context.Context, db *gorm.DB, from, to string, startTimes []string) ([]domain.ServiceSlot, error) {
	var out []domain.ServiceSlot
	err := db.WithContext(ctx).
		Where("service_date >= ? AND service_date <= ?", from, to).
		Where("start_time IN ?", startTimes).
		Find(&out).Error
	return out, err
}

// ReserveCapacity places a hold of guests seats on the slot. The remaining
// capacity check and the increment run as one conditional UPDATE; when no row
// matches, the slot is re-read to classify the failure as ErrSlotDisabled,
// ErrSoldOut, or ErrNotFound. The slot row is left untouched on any failure.
func ReserveCapacity(ctx context.Context, db *gorm.DB, slotID string, guests int) error {
	res := db.WithContext(ctx).
		Model(&domain.ServiceSlot{}).
		Where("id = ? AND is_enabled = ? AND capacity_held + capacity_confirmed + ? <= capacity_total", slotID, true, guests).
		UpdateColumn("capacity_held", gorm.Expr("capacity_held + ?", guests))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	slot, err := GetSlot(ctx, db, slotID)
	if err != nil {
		return err
	}
	if !slot.IsEnabled {
		return ErrSlotDisabled
	}
	return ErrSoldOut
}

// ReleaseCapacity returns guests held seats to the pool, used when a hold
// expires or a payment fails. Callers guard it behind a successful status
// transition so it fires exactly once per reservation; the held >= guests
// condition keeps a stray double call from driving the counter negative.
func ReleaseCapacity(ctx context.Context, db *gorm.DB, slotID string, guests int) error {
	res := db.WithContext(ctx).
		Model(&domain.ServiceSlot{}).
		Where("id = ? AND capacity_held >= ?", slotID, guests).
		UpdateColumn("capacity_held", gorm.Expr("capacity_held - ?", guests))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSoldOut
	}
	return nil
}

// ConvertCapacity moves guests seats from held to confirmed in one atomic
// statement, used when a payment succeeds while the hold is still in place.
func ConvertCapacity(ctx context.Context, db *gorm.DB, slotID string, guests int) error {
	res := db.WithContext(ctx).
		Model(&domain.ServiceSlot{}).
		Where("id = ? AND capacity_held >= ?", slotID, guests).
		Updates(map[string]interface{}{
			"capacity_held":      gorm.Expr("capacity_held - ?", guests),
			"capacity_confirmed": gorm.Expr("capacity_confirmed + ?", guests),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSoldOut
	}
	return nil
}

// ConfirmReleasedCapacity claims guests seats directly into confirmed,
// used when a payment success arrives after the hold was already reclaimed.
// The expiry released the hold, so the seats may meanwhile have been taken by
// another booking; the conditional remaining-capacity check makes the claim
// fail with ErrSoldOut instead of overselling.
func ConfirmReleasedCapacity(ctx context.Context, db *gorm.DB, slotID string, guests int) error {
	res := db.WithContext(ctx).
		Model(&domain.ServiceSlot{}).
		Where("id = ? AND capacity_held + capacity_confirmed + ? <= capacity_total", slotID, guests).
		UpdateColumn("capacity_confirmed", gorm.Expr("capacity_confirmed + ?", guests))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSoldOut
	}
	return nil
}
