// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the waitlist repository.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
)

// CreateWaitlistEntry records an email against a service date. A duplicate
// (date, email) pair returns ErrDuplicate, which callers treat as an
// idempotent success.
func CreateWaitlistEntry(ctx context.Context, db *gorm.DB, serviceDate, email string) (*domain.WaitlistEntry, error) {
	rec := &domain.WaitlistEntry{
		ID:          uuid.NewString(),
		ServiceDate: serviceDate,
		Email:       email,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
