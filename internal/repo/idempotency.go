// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// IdempotencyKey model used to implement at-most-once checkout initiation.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// ErrDuplicate indicates that a record already exists for a unique key
// (idempotency (key, scope) pair, waitlist (date, email) pair, …).
var ErrDuplicate = gorm.ErrDuplicatedKey

// CreateIdempotencyKey inserts an IN_PROGRESS record for (key, scope) and
// returns ErrDuplicate on a uniqueness violation, in which case the caller
// loads the existing record via GetIdempotencyKey instead.
func CreateIdempotencyKey(ctx context.Context, db *gorm.DB, key, scope, requestHash string, ttl time.Duration) (*domain.IdempotencyKey, error) {
	now := time.Now().UTC()
	rec := &domain.IdempotencyKey{
		ID:          uuid.NewString(),
		Key:         key,
		Scope:       scope,
		RequestHash: requestHash,
		Status:      domain.IdempotencyInProgress,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// GetIdempotencyKey returns the record for (key, scope), or ErrNotFound.
// Expiry is not filtered here: an expired record is treated as absent by the
// caller only when it is also not linked to live state.
func GetIdempotencyKey(ctx context.Context, db *gorm.DB, key, scope string) (*domain.IdempotencyKey, error) {
	var rec domain.IdempotencyKey
	err := db.WithContext(ctx).
		Where("key = ? AND scope = ?", key, scope).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LinkReservation records the reservation created under this idempotency
// record, enabling a retried request to resume mid-flight work after a crash.
func LinkReservation(ctx context.Context, db *gorm.DB, id, reservationID string) error {
	return db.WithContext(ctx).
		Model(&domain.IdempotencyKey{}).
		Where("id = ?", id).
		UpdateColumn("reservation_id", reservationID).Error
}

// CompleteIdempotencyKey promotes the record to COMPLETED and stores the
// serialized response body for replay on subsequent retries.
func CompleteIdempotencyKey(ctx context.Context, db *gorm.DB, id, responseBody string) error {
	return db.WithContext(ctx).
		Model(&domain.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.IdempotencyCompleted,
			"response_body": responseBody,
		}).Error
}

// PurgeExpiredIdempotencyKeys deletes records past their retention window.
// Run opportunistically by the sweeper; losing a record simply re-enables the
// underlying operation, which is safe once the retention window passed.
func PurgeExpiredIdempotencyKeys(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
