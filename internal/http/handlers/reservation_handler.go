// Reservation HTTP handlers.
//
// This file exposes the confirmation-page lookup:
//   - GET /reservations/by-checkout-session/{sessionID}
//
// The client lands back from the payment gateway knowing only the checkout
// session id. Payment events arrive asynchronously, so a reservation still in
// PENDING_PAYMENT is answered with 202 and a polling hint rather than a final
// state.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/services"
)

// nextPollMillis is the polling hint returned while payment settlement is
// still in flight.
const nextPollMillis = 1500

// ReservationView is the public reservation representation returned once a
// reservation reaches a settled state.
type ReservationView struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	SlotLabel     string `json:"slot_label"`
	Guests        int    `json:"guests"`
	Currency      string `json:"currency"`
	DepositAmount int64  `json:"deposit_amount"`
	TotalAmount   int64  `json:"total_amount"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// PendingReservationResponse is the 202 body returned while the payment is
// still being reconciled.
type PendingReservationResponse struct {
	Status     string `json:"status"`
	NextPollMs int    `json:"next_poll_ms"`
}

// GetReservationBySession resolves a reservation from the checkout session id
// in the path.
//
// Responses:
//   - 200 with the ReservationView once the reservation left PENDING_PAYMENT
//   - 202 with a polling hint while payment settlement is in flight
//   - 404 when the session matches no reservation
//   - 500 persistence failure
func (h *Handlers) GetReservationBySession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionID"))
	if sessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id required")
		return
	}

	res, err := h.resSvc.ByCheckoutSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, services.ErrReservationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reservation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load reservation")
		return
	}

	if res.Status == domain.StatusPendingPayment {
		ok(c, http.StatusAccepted, PendingReservationResponse{
			Status:     res.Status,
			NextPollMs: nextPollMillis,
		})
		return
	}

	ok(c, http.StatusOK, ReservationView{
		ID:            res.ID,
		Reference:     res.ReferenceCode,
		Status:        res.Status,
		Date:          res.Slot.ServiceDate,
		Time:          res.Slot.StartTime,
		SlotLabel:     res.Slot.Label,
		Guests:        res.Guests,
		Currency:      res.Currency,
		DepositAmount: res.DepositAmount,
		TotalAmount:   res.TotalAmount,
		CustomerEmail: res.CustomerEmail,
	})
}
