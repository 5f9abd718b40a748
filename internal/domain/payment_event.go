// Package domain defines the core persistence models for the application.
package domain

import "time"

// PaymentEvent is the dedup barrier against the payment gateway's
// at-least-once webhook delivery. Each external event id is recorded exactly
// once; ProcessedAt is only set after the reservation-side work for the event
// committed, so a crash mid-processing leaves the row retryable by the next
// delivery of the same event.
type PaymentEvent struct {
	ID            string     `gorm:"type:char(36);primaryKey"`
	EventID       string     `gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_event_id"`
	Type          string     `gorm:"type:varchar(64);not null"`
	Livemode      bool       `gorm:"not null"`
	Payload       string     `gorm:"type:text;not null"`
	ReservationID string     `gorm:"type:char(36);index"`
	ProcessedAt   *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (PaymentEvent) TableName() string { return "payment_events" }
