// Payment webhook HTTP handler.
//
// This file exposes:
//   - POST /webhooks/stripe    (gateway event intake)
//
// The body is read raw because signature verification covers the exact bytes
// on the wire. Response codes drive the gateway's redelivery behavior:
//   - 400 only for signature failures (redelivery would never succeed)
//   - 500 for processing failures, so the gateway redelivers and the
//     unprocessed event row gets another chance
//   - 200 for everything settled, including duplicates and orphans
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/http/middleware"
	"github.com/tbourn/go-booking-backend/internal/payments"
)

// StripeWebhook verifies and applies one gateway event delivery.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read request body")
		return
	}

	ev, err := h.parseEvent(payload, c.GetHeader(payments.SignatureHeader), h.webhookSecret)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook signature rejected")
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid webhook signature")
		return
	}

	result, err := h.reconciler.Process(c.Request.Context(), ev)
	if err != nil {
		middleware.LoggerFrom(c).Error().
			Err(err).
			Str("event_id", ev.ID).
			Str("event_type", ev.Type).
			Msg("webhook processing failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "event processing failed")
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("outcome", result.Outcome).
		Str("reservation_id", result.ReservationID).
		Msg("webhook processed")

	ok(c, http.StatusOK, gin.H{"received": true, "outcome": result.Outcome})
}
