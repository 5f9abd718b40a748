// Package services – WaitlistService
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/dates"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// WaitlistService records interest in fully booked dates.
type WaitlistService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewWaitlistService constructs a WaitlistService.
func NewWaitlistService(db *gorm.DB) *WaitlistService {
	return &WaitlistService{DB: db}
}

// Join adds email to the waitlist for date. A repeat submission for the same
// (date, email) pair is an idempotent success.
func (s *WaitlistService) Join(ctx context.Context, date, email string) error {
	if !dates.Valid(date) {
		return ErrInvalidDate
	}
	_, err := repo.CreateWaitlistEntry(ctx, s.DB, date, email)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
