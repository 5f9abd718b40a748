// Package services – Prometheus instrumentation for the booking engine.
//
// Domain counters complement the HTTP-level metrics in the middleware
// package. Label cardinality is kept small and bounded: event types come from
// a fixed gateway vocabulary, outcomes from a fixed result set.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// reservationsCreated counts reservations entering PENDING_PAYMENT.
	reservationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_reservations_created_total",
		Help: "Total number of reservations created by checkout initiation.",
	})

	// reservationsTransitioned counts state machine transitions by target state.
	reservationsTransitioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_reservation_transitions_total",
			Help: "Total number of reservation status transitions.",
		},
		[]string{"to"},
	)

	// paymentEvents counts webhook events by type and processing outcome
	// (processed, deduped, orphaned, failed).
	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_payment_events_total",
			Help: "Total number of payment gateway events received.",
		},
		[]string{"type", "outcome"},
	)

	// holdsExpired counts holds reclaimed by the expiry sweeper.
	holdsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_holds_expired_total",
		Help: "Total number of lapsed payment holds reclaimed by the sweeper.",
	})
)

func init() {
	prometheus.MustRegister(reservationsCreated, reservationsTransitioned, paymentEvents, holdsExpired)
}
