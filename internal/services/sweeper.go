// Package services – Sweeper
//
// This file implements the recurring task that reclaims capacity from
// reservations whose payment hold window lapsed. Each candidate is handled in
// its own transaction so one failure never blocks the batch, and the
// PENDING_PAYMENT → EXPIRED transition is conditional on the row still being
// pending at commit time, which is what keeps the sweeper from trampling a
// payment success landing at the same instant. A row that fails stays
// selectable and is retried on the next cycle.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Scanned int
	Expired int
}

// Sweeper owns the hold expiry loop. It is started once at process init and
// stopped via Stop during shutdown.
type Sweeper struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Interval is the sweep cadence.
	Interval time.Duration
	// BatchSize bounds the number of lapsed holds reclaimed per cycle.
	BatchSize int
	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(db *gorm.DB, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{DB: db, Interval: interval, BatchSize: batchSize}
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start launches the recurring sweep in a background goroutine. It returns
// immediately; use Stop to halt the loop and wait for it to drain.
func (s *Sweeper) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				res, err := s.ExpireOnce(ctx, s.now().UTC())
				if err != nil {
					log.Error().Err(err).Msg("hold expiry sweep failed")
					continue
				}
				if res.Expired > 0 {
					log.Info().Int("scanned", res.Scanned).Int("expired", res.Expired).Msg("holds expired")
				}
				if n, err := repo.PurgeExpiredIdempotencyKeys(ctx, s.DB, s.now().UTC()); err == nil && n > 0 {
					log.Debug().Int64("purged", n).Msg("idempotency keys purged")
				}
			}
		}
	}()
}

// Stop signals the loop to halt and blocks until it has drained. Safe to call
// only after Start.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// ExpireOnce runs a single sweep cycle: select a bounded batch of lapsed
// PENDING_PAYMENT reservations and, for each in its own transaction,
// conditionally expire it and release its held seats. Running it twice over
// the same reservation releases capacity only once; the second pass finds the
// row no longer pending and skips it.
func (s *Sweeper) ExpireOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	candidates, err := repo.ListExpiredPending(ctx, s.DB, now, s.BatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(candidates)}
	for _, res := range candidates {
		expired, err := s.expireOne(ctx, res, now)
		if err != nil {
			log.Error().Err(err).Str("reservation_id", res.ID).Msg("expire hold failed")
			continue
		}
		if expired {
			result.Expired++
			holdsExpired.Inc()
			reservationsTransitioned.WithLabelValues(domain.StatusExpired).Inc()
		}
	}
	return result, nil
}

// expireOne expires a single reservation, pairing the conditional status
// transition with the capacity release in one transaction.
func (s *Sweeper) expireOne(ctx context.Context, res domain.Reservation, now time.Time) (bool, error) {
	expired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionStatus(ctx, tx, res.ID, domain.StatusPendingPayment, domain.StatusExpired, nil)
		if err != nil {
			return err
		}
		if !ok {
			// A payment success beat us to the row; nothing to reclaim.
			return nil
		}
		if err := repo.ReleaseCapacity(ctx, tx, res.SlotID, res.Guests); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}
