// Waitlist HTTP handlers.
//
// This file exposes:
//   - POST /waitlist    (record interest in a fully booked date)
//
// Joining is idempotent per (date, email); a repeat submission is reported as
// success so the client never has to special-case it.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/services"
)

// JoinWaitlistRequest is the JSON payload for a waitlist submission.
type JoinWaitlistRequest struct {
	// Date is the service date of interest (YYYY-MM-DD).
	Date string `json:"date" binding:"required"`
	// Email is notified when seats open up.
	Email string `json:"email" binding:"required,email,max=255"`
}

// JoinWaitlist records interest in a date.
//
// Responses:
//   - 201 WAITLISTED (including repeat submissions)
//   - 400 invalid payload
//   - 500 persistence failure
func (h *Handlers) JoinWaitlist(c *gin.Context) {
	var req JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date and a valid email are required")
		return
	}

	err := h.waitSvc.Join(c.Request.Context(), strings.TrimSpace(req.Date), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, services.ErrInvalidDate) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be a valid YYYY-MM-DD")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not join waitlist")
		return
	}
	ok(c, http.StatusCreated, gin.H{"status": "WAITLISTED"})
}
