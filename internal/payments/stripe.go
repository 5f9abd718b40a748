// Package payments – Stripe implementation of the Gateway interface plus
// webhook signature verification.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrBadSignature is returned when a webhook payload fails signature
// verification. It is the only webhook failure rejected without retry value.
var ErrBadSignature = errors.New("invalid webhook signature")

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway constructs a gateway client with the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

// CreateSession opens a Stripe Checkout session collecting the deposit as a
// single line item, with the reservation identifiers embedded in metadata so
// webhook events can be resolved even if the stored session id is lost.
func (g *StripeGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.DepositAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(p.ProductName),
						Description: stripe.String(fmt.Sprintf("%d guests - %s %s", p.Guests, p.ServiceDate, p.ServiceTime)),
					},
				},
			},
		},
		ClientReferenceID: stripe.String(p.ReferenceCode),
	}
	params.AddMetadata(MetadataReservationID, p.ReservationID)
	params.AddMetadata("reference_code", p.ReferenceCode)
	params.AddMetadata("service_date", p.ServiceDate)
	params.AddMetadata("service_time", p.ServiceTime)
	params.AddMetadata("guests", fmt.Sprintf("%d", p.Guests))

	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return sessionView(sess), nil
}

// RetrieveSession loads an existing checkout session by id.
func (g *StripeGateway) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	sess, err := g.api.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return sessionView(sess), nil
}

// ParseEvent verifies the webhook signature against the shared secret and
// returns the neutral event view. No side effects happen before the signature
// check; a failed check yields ErrBadSignature.
func ParseEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrBadSignature
	}

	out := &Event{
		ID:       ev.ID,
		Type:     string(ev.Type),
		Livemode: ev.Livemode,
		Payload:  payload,
	}

	if out.Paid() || out.Failed() {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = *sessionView(&sess)
	}
	return out, nil
}

// sessionView maps a Stripe checkout session onto the neutral Session type.
func sessionView(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
	}
	if s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Metadata != nil {
		out.ReservationID = s.Metadata[MetadataReservationID]
	}
	return out
}
