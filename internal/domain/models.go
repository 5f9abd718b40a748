// Package domain defines the persistence models for service slots,
// reservations, and waitlist entries. These types are mapped with GORM and
// form the core data layer of the booking application.
package domain

import "time"

// Reservation status values. A reservation starts in StatusPendingPayment and
// moves through at most one more externally visible state. EXPIRED is
// soft-terminal: a late payment success may still reopen it to CONFIRMED when
// capacity allows (see services.Reconciler).
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusConfirmed      = "CONFIRMED"
	StatusExpired        = "EXPIRED"
	StatusCancelled      = "CANCELLED"
	StatusManualReview   = "REQUIRES_MANUAL_REVIEW"
)

// ServiceSlot represents the seat capacity for a single (service date, start
// time) pair. Slots are created lazily on the first booking attempt and are
// never deleted; all capacity mutations go through the conditional updates in
// the repo package so that capacity_held + capacity_confirmed can never exceed
// capacity_total. The CHECK constraint is defense in depth for the same rule.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ServiceDate: ISO date (YYYY-MM-DD); unique together with StartTime.
//   - StartTime: service time (HH:MM).
//   - Label: human-readable name of the seating ("Sunset", "Prime Time", …).
//   - CapacityTotal / CapacityHeld / CapacityConfirmed: the capacity ledger.
//   - IsEnabled: operator kill-switch for a single slot.
type ServiceSlot struct {
	ID                string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	ServiceDate       string    `json:"service_date"       gorm:"type:varchar(10);not null;uniqueIndex:ux_slot_date_time,priority:1"`
	StartTime         string    `json:"start_time"         gorm:"type:varchar(5);not null;uniqueIndex:ux_slot_date_time,priority:2"`
	Label             string    `json:"label"              gorm:"type:varchar(64);not null"`
	CapacityTotal     int       `json:"capacity_total"     gorm:"not null"`
	CapacityHeld      int       `json:"capacity_held"      gorm:"not null;default:0;check:chk_slot_capacity,capacity_held + capacity_confirmed <= capacity_total"`
	CapacityConfirmed int       `json:"capacity_confirmed" gorm:"not null;default:0"`
	IsEnabled         bool      `json:"is_enabled"         gorm:"not null;default:true"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for ServiceSlot.
func (ServiceSlot) TableName() string { return "service_slots" }

// Remaining returns the number of seats still bookable on the slot.
func (s ServiceSlot) Remaining() int {
	r := s.CapacityTotal - s.CapacityHeld - s.CapacityConfirmed
	if r < 0 {
		return 0
	}
	return r
}

// Reservation is a guest booking against one ServiceSlot. Reservations are
// created by the checkout flow in PENDING_PAYMENT, and are only ever mutated
// by the payment reconciler and the hold expiry sweeper through conditional
// status updates. Rows are retained indefinitely as an audit trail.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ReferenceCode: short human-facing booking reference (unique).
//   - SlotID: lookup key of the slot; many reservations reference one slot.
//   - Status: one of the Status* constants above.
//   - Guests / Notes: party size and free-form guest notes.
//   - Currency, PricePerPerson, DepositBps, DepositAmount, TotalAmount:
//     pricing snapshot in minor units, frozen at checkout time.
//   - HoldExpiresAt: end of the capacity hold window; the sweeper reclaims
//     capacity from PENDING_PAYMENT rows past this instant.
//   - CheckoutSessionID / PaymentIntentID / CustomerEmail: external payment
//     gateway identifiers and gateway-collected contact address.
//   - PaidAt / ConfirmedAt: set when a payment success is reconciled.
type Reservation struct {
	ID                string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	ReferenceCode     string     `json:"reference_code"      gorm:"type:varchar(16);not null;uniqueIndex:ux_reservation_reference"`
	SlotID            string     `json:"slot_id"             gorm:"type:char(36);not null;index"`
	Status            string     `json:"status"              gorm:"type:varchar(32);not null;index:idx_reservation_status_hold,priority:1;check:status IN ('PENDING_PAYMENT','CONFIRMED','EXPIRED','CANCELLED','REQUIRES_MANUAL_REVIEW')"`
	Guests            int        `json:"guests"              gorm:"not null"`
	Notes             string     `json:"notes"               gorm:"type:text"`
	Currency          string     `json:"currency"            gorm:"type:varchar(8);not null"`
	PricePerPerson    int64      `json:"price_per_person"    gorm:"not null"`
	DepositBps        int        `json:"deposit_bps"         gorm:"not null"`
	DepositAmount     int64      `json:"deposit_amount"      gorm:"not null"`
	TotalAmount       int64      `json:"total_amount"        gorm:"not null"`
	HoldExpiresAt     time.Time  `json:"hold_expires_at"     gorm:"not null;index:idx_reservation_status_hold,priority:2"`
	CheckoutSessionID string     `json:"checkout_session_id" gorm:"type:varchar(255);index"`
	PaymentIntentID   string     `json:"payment_intent_id"   gorm:"type:varchar(255)"`
	CustomerEmail     string     `json:"customer_email"      gorm:"type:varchar(255)"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Slot is the booked seating. Loaded on demand; reservations never
	// cascade into slot mutations outside the ledger operations.
	Slot ServiceSlot `json:"-" gorm:"foreignKey:SlotID;references:ID"`
}

// TableName returns the database table name for Reservation.
func (Reservation) TableName() string { return "reservations" }

// WaitlistEntry records an email address interested in a fully booked date.
// The (service_date, email) pair is unique so repeat submissions stay
// idempotent.
type WaitlistEntry struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ServiceDate string    `json:"service_date" gorm:"type:varchar(10);not null;uniqueIndex:ux_waitlist_date_email,priority:1"`
	Email       string    `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex:ux_waitlist_date_email,priority:2"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for WaitlistEntry.
func (WaitlistEntry) TableName() string { return "waitlist_entries" }
