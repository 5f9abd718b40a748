// Availability HTTP handlers.
//
// This file exposes the read-side availability endpoints:
//   - GET /availability          (per-seating breakdown for one date)
//   - GET /availability/range    (coarse per-day status for a window)
//
// Both endpoints are pure reads against the capacity ledger and never mutate
// capacity.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/services"
)

// GetDayAvailability returns the per-seating availability for the date given
// in the `date` query parameter.
//
// Responses:
//   - 200 with the DayAvailability body
//   - 400 missing or malformed date
//   - 500 persistence failure
func (h *Handlers) GetDayAvailability(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date query parameter required")
		return
	}

	day, err := h.availSvc.Day(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDate) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be a valid YYYY-MM-DD")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load availability")
		return
	}
	ok(c, http.StatusOK, day)
}

// GetRangeAvailability returns the coarse per-day availability status for the
// inclusive window given by the `from` and `to` query parameters. The window
// is capped server-side; oversized requests are rejected rather than clamped
// so that clients notice the limit.
//
// Responses:
//   - 200 with the RangeAvailability body
//   - 400 missing or malformed bounds, inverted window, or oversized window
//   - 500 persistence failure
func (h *Handlers) GetRangeAvailability(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to query parameters required")
		return
	}

	rng, err := h.availSvc.Range(c.Request.Context(), from, to)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidDate):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to must be valid YYYY-MM-DD dates")
		case errors.Is(err, services.ErrInvalidRange):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to must not precede from")
		case errors.Is(err, services.ErrRangeTooLarge):
			fail(c, http.StatusBadRequest, ErrCodeRangeTooLarge, "requested window exceeds the maximum range")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load availability")
		}
		return
	}
	ok(c, http.StatusOK, rng)
}
