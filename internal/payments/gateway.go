// Package payments isolates the external payment gateway behind a narrow
// interface. Services depend on Gateway and the neutral Session/Event views
// defined here, never on gateway SDK types, so the booking engine stays
// testable without network access and the SDK swap surface is one file.
package payments

import (
	"context"
	"time"
)

// Gateway event types, mirroring the checkout lifecycle notifications the
// payment provider delivers to the webhook endpoint.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded  = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired = "checkout.session.expired"
	EventAsyncPaymentFailed     = "checkout.session.async_payment_failed"
)

// PaymentStatusPaid is the gateway-reported status of a settled payment.
// Anything else on a success event means the payment needs human eyes.
const PaymentStatusPaid = "paid"

// MetadataReservationID is the metadata key under which the checkout session
// carries the reservation it pays for.
const MetadataReservationID = "reservation_id"

// Session is the neutral view of a gateway checkout session consumed by the
// booking and reconciliation services.
type Session struct {
	ID              string
	URL             string
	PaymentStatus   string
	CustomerEmail   string
	PaymentIntentID string
	ReservationID   string // from session metadata, may be empty
}

// SessionParams describes the checkout session to open for a reservation
// deposit. Amounts are minor units.
type SessionParams struct {
	ReservationID  string
	ReferenceCode  string
	ServiceDate    string
	ServiceTime    string
	Guests         int
	Currency       string
	DepositAmount  int64
	ProductName    string
	CustomerEmail  string    // optional
	ExpiresAt      time.Time // zero: let the gateway apply its default
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string // optional, forwarded to the gateway
}

// Event is a verified webhook notification.
type Event struct {
	ID       string
	Type     string
	Livemode bool
	Payload  []byte // raw event JSON, persisted for audit
	Session  Session
}

// Paid reports whether the event signals a completed payment.
func (e *Event) Paid() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventAsyncPaymentSucceeded
}

// Failed reports whether the event signals an abandoned or failed checkout.
func (e *Event) Failed() bool {
	return e.Type == EventCheckoutSessionExpired || e.Type == EventAsyncPaymentFailed
}

// Gateway is the payment provider contract used by the services layer.
//
// Implementations must be safe for concurrent use and must honor the provided
// context for cancellation and timeouts.
type Gateway interface {
	// CreateSession opens a hosted checkout session for a deposit.
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
	// RetrieveSession loads an existing session by id.
	RetrieveSession(ctx context.Context, id string) (*Session, error)
}
