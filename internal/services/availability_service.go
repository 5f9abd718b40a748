// Package services – AvailabilityService
//
// This file implements read-side availability summaries derived from the
// capacity ledger. Service times without a stored slot row are reported with
// the configured default capacity: slots are created lazily by the booking
// flow, so their absence simply means nobody has booked that seating yet.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/dates"
	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// Slot status values surfaced to clients.
const (
	SlotAvailable   = "available"
	SlotLimited     = "limited"
	SlotUnavailable = "unavailable"
)

// defaultSlotLabels names the standard seatings. Unknown times fall back to
// the raw HH:MM string.
var defaultSlotLabels = map[string]string{
	"18:30": "Early Evening",
	"19:00": "Sunset",
	"20:00": "Prime Time",
	"21:30": "Late Night",
}

// SlotLabel returns the display label for a service time.
func SlotLabel(t string) string {
	if l, ok := defaultSlotLabels[t]; ok {
		return l
	}
	return t
}

// SlotAvailability is one seating's capacity summary for a day view.
type SlotAvailability struct {
	Time      string `json:"time"`
	Label     string `json:"label"`
	Capacity  int    `json:"capacity"`
	Confirmed int    `json:"confirmed"`
	Held      int    `json:"held"`
	Remaining int    `json:"remaining"`
	Status    string `json:"status"`
}

// Pricing is the public pricing block attached to availability responses.
type Pricing struct {
	Currency       string `json:"currency"`
	PricePerPerson int64  `json:"price_per_person"`
	DepositBps     int    `json:"deposit_bps"`
}

// DayAvailability is the per-time-slot summary for one service date.
type DayAvailability struct {
	Date     string             `json:"date"`
	Timezone string             `json:"timezone"`
	Slots    []SlotAvailability `json:"slots"`
	Pricing  Pricing            `json:"pricing"`
}

// DayStatus is the coarse per-day classification for range queries.
type DayStatus struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// RangeAvailability is the bounded-window summary for the calendar widget.
type RangeAvailability struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Timezone string      `json:"timezone"`
	Dates    []DayStatus `json:"dates"`
}

// AvailabilityService computes availability summaries against the ledger.
// It never mutates capacity.
type AvailabilityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Booking is the booking policy (times, capacity, thresholds, pricing).
	Booking config.BookingConfig
	// Location resolves "today" in the restaurant's timezone.
	Location *time.Location
	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time
}

// NewAvailabilityService constructs an AvailabilityService, resolving the
// configured timezone (falling back to UTC when it cannot be loaded).
func NewAvailabilityService(db *gorm.DB, booking config.BookingConfig) *AvailabilityService {
	loc, err := time.LoadLocation(booking.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &AvailabilityService{DB: db, Booking: booking, Location: loc}
}

func (s *AvailabilityService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AvailabilityService) isClosedWeekday(wd int) bool {
	for _, c := range s.Booking.ClosedWeekdays {
		if c == wd {
			return true
		}
	}
	return false
}

// classify maps remaining capacity onto the public status vocabulary.
func (s *AvailabilityService) classify(enabled bool, remaining int) string {
	switch {
	case !enabled, remaining <= 0:
		return SlotUnavailable
	case remaining <= s.Booking.LimitedThreshold:
		return SlotLimited
	default:
		return SlotAvailable
	}
}

// Day returns the per-time-slot availability for one service date, merging
// stored slots with configured defaults for times nobody has booked yet.
func (s *AvailabilityService) Day(ctx context.Context, date string) (*DayAvailability, error) {
	if !dates.Valid(date) {
		return nil, ErrInvalidDate
	}

	today := dates.Today(s.now(), s.Location)
	weekday, err := dates.Weekday(date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	closed := s.isClosedWeekday(weekday) || dates.Before(date, today)

	stored, err := repo.ListSlotsByDate(ctx, s.DB, date, s.Booking.ServiceTimes)
	if err != nil {
		return nil, err
	}
	byTime := make(map[string]domain.ServiceSlot, len(stored))
	for _, row := range stored {
		byTime[row.StartTime] = row
	}

	out := &DayAvailability{
		Date:     date,
		Timezone: s.Booking.Timezone,
		Slots:    make([]SlotAvailability, 0, len(s.Booking.ServiceTimes)),
		Pricing: Pricing{
			Currency:       s.Booking.Currency,
			PricePerPerson: s.Booking.PricePerPerson,
			DepositBps:     s.Booking.DepositBps,
		},
	}

	for _, t := range s.Booking.ServiceTimes {
		capTotal := s.Booking.CapacityTotal
		confirmed, held := 0, 0
		enabled := true
		label := SlotLabel(t)
		if row, ok := byTime[t]; ok {
			capTotal = row.CapacityTotal
			confirmed = row.CapacityConfirmed
			held = row.CapacityHeld
			enabled = row.IsEnabled
			label = row.Label
		}
		enabled = enabled && !closed

		remaining := capTotal - confirmed - held
		if remaining < 0 {
			remaining = 0
		}

		out.Slots = append(out.Slots, SlotAvailability{
			Time:      t,
			Label:     label,
			Capacity:  capTotal,
			Confirmed: confirmed,
			Held:      held,
			Remaining: remaining,
			Status:    s.classify(enabled, remaining),
		})
	}
	return out, nil
}

// Range returns the coarse per-day status over a bounded window. A day is as
// good as its best enabled seating: one open table is enough to surface the
// date as available.
func (s *AvailabilityService) Range(ctx context.Context, from, to string) (*RangeAvailability, error) {
	if !dates.Valid(from) || !dates.Valid(to) {
		return nil, ErrInvalidDate
	}
	if dates.Before(to, from) {
		return nil, ErrInvalidRange
	}

	days, err := dates.ListInclusive(from, to)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if len(days) > s.Booking.RangeMaxDays {
		return nil, ErrRangeTooLarge
	}

	stored, err := repo.ListSlotsInRange(ctx, s.DB, from, to, s.Booking.ServiceTimes)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string]map[string]domain.ServiceSlot)
	for _, row := range stored {
		day := grouped[row.ServiceDate]
		if day == nil {
			day = make(map[string]domain.ServiceSlot)
			grouped[row.ServiceDate] = day
		}
		day[row.StartTime] = row
	}

	today := dates.Today(s.now(), s.Location)
	out := &RangeAvailability{
		From:     from,
		To:       to,
		Timezone: s.Booking.Timezone,
		Dates:    make([]DayStatus, 0, len(days)),
	}

	for _, date := range days {
		weekday, err := dates.Weekday(date)
		if err != nil {
			return nil, ErrInvalidDate
		}
		if s.isClosedWeekday(weekday) || dates.Before(date, today) {
			out.Dates = append(out.Dates, DayStatus{Date: date, Status: SlotUnavailable})
			continue
		}

		dayRows := grouped[date]
		maxRemaining := 0
		anyEnabled := false
		for _, t := range s.Booking.ServiceTimes {
			capTotal := s.Booking.CapacityTotal
			confirmed, held := 0, 0
			enabled := true
			if row, ok := dayRows[t]; ok {
				capTotal = row.CapacityTotal
				confirmed = row.CapacityConfirmed
				held = row.CapacityHeld
				enabled = row.IsEnabled
			}
			if !enabled {
				continue
			}
			anyEnabled = true
			remaining := capTotal - confirmed - held
			if remaining > maxRemaining {
				maxRemaining = remaining
			}
		}

		out.Dates = append(out.Dates, DayStatus{Date: date, Status: s.classify(anyEnabled, maxRemaining)})
	}
	return out, nil
}
