// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency record status values.
const (
	IdempotencyInProgress = "IN_PROGRESS"
	IdempotencyCompleted  = "COMPLETED"
)

// IdempotencyKey represents a recorded outcome of a previously observed
// request, keyed by (key, scope). It enables safe retries of checkout
// initiation: a replayed key returns the originally produced response without
// re-running side effects, and a reused key with a different payload is
// rejected as a conflict.
//
// The record is immutable once observed apart from the IN_PROGRESS →
// COMPLETED promotion and the reservation link written mid-flight, which is
// what allows a crashed request to resume from its partially created
// reservation.
type IdempotencyKey struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	Key           string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_key_scope,priority:1"`
	Scope         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_key_scope,priority:2"`
	RequestHash   string    `gorm:"type:char(64);not null"`
	Status        string    `gorm:"type:varchar(16);not null"`
	ResponseBody  string    `gorm:"type:text"`
	ReservationID string    `gorm:"type:char(36);index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	ExpiresAt     time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }
