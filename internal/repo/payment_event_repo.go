// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the PaymentEvent
// model, the dedup barrier against at-least-once webhook delivery.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// CreatePaymentEvent records a webhook event keyed by its external id and
// returns ErrDuplicate when the event was seen before.
func CreatePaymentEvent(ctx context.Context, db *gorm.DB, eventID, eventType string, livemode bool, payload string) (*domain.PaymentEvent, error) {
	rec := &domain.PaymentEvent{
		ID:       uuid.NewString(),
		EventID:  eventID,
		Type:     eventType,
		Livemode: livemode,
		Payload:  payload,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// GetPaymentEvent returns the record for an external event id, or ErrNotFound.
func GetPaymentEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.PaymentEvent, error) {
	var rec domain.PaymentEvent
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkPaymentEventProcessed stamps processed_at and the resolved reservation
// once the reservation-side work for the event committed. Until this runs the
// event stays unprocessed and a redelivery will retry it.
func MarkPaymentEventProcessed(ctx context.Context, db *gorm.DB, id string, processedAt time.Time, reservationID string) error {
	values := map[string]interface{}{"processed_at": processedAt}
	if reservationID != "" {
		values["reservation_id"] = reservationID
	}
	return db.WithContext(ctx).
		Model(&domain.PaymentEvent{}).
		Where("id = ?", id).
		Updates(values).Error
}
