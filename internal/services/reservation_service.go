// Package services – ReservationService
//
// Read-side reservation lookups for the confirmation page. The page polls by
// checkout session id because that is the only identifier the gateway
// redirect carries.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// ReservationService provides reservation views.
type ReservationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewReservationService constructs a ReservationService.
func NewReservationService(db *gorm.DB) *ReservationService {
	return &ReservationService{DB: db}
}

// ByCheckoutSession resolves a reservation (with its slot) from a gateway
// checkout session id, or ErrReservationNotFound.
func (s *ReservationService) ByCheckoutSession(ctx context.Context, sessionID string) (*domain.Reservation, error) {
	r, err := repo.FindByCheckoutSessionWithSlot(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return r, nil
}
