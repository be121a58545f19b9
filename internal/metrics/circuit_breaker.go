// Copyright (c) 2026 City Access Media

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vod_circuit_breaker_status",
		Help: "Circuit breaker state as an integer (0=closed, 1=open, 2=half-open), per breaker name",
	}, []string{"breaker"})

	circuitBreakerTripsVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips into the open state, by reason",
	}, []string{"breaker", "reason"})

	vodCircuitOpenVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_circuit_open_total",
		Help: "Total number of times a VOD breaker entered the open state",
	}, []string{"breaker"})

	vodCircuitTripsVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_circuit_trips_total",
		Help: "Total number of VOD breaker trips, by reason",
	}, []string{"reason"})

	vodCircuitHalfOpenVec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vod_circuit_half_open_total",
		Help: "Total number of times a VOD breaker entered the half-open probe state",
	})
)

// SetCircuitBreakerState accepts the human-readable breaker state and records
// nothing; the state is exported only through SetCircuitBreakerStatus's numeric gauge.
func SetCircuitBreakerState(name, state string) {
	// State is also visible via SetCircuitBreakerStatus's numeric value; this
	// stub exists so callers don't need two code paths for state changes.
	_ = state
}

// SetCircuitBreakerStatus records the current state of the named breaker as
// an integer gauge (0=closed, 1=open, 2=half-open).
func SetCircuitBreakerStatus(name string, status int) {
	circuitBreakerStatus.WithLabelValues(name).Set(float64(status))
}

// RecordCircuitBreakerTrip increments the trip counter for the named breaker.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTripsVec.WithLabelValues(name, reason).Inc()
}

// IncVODCircuitOpen increments the open-transition counter for a VOD breaker.
func IncVODCircuitOpen(name string) { vodCircuitOpenVec.WithLabelValues(name).Inc() }

// IncVODCircuitTrips increments the VOD breaker trip counter by reason.
func IncVODCircuitTrips(reason string) { vodCircuitTripsVec.WithLabelValues(reason).Inc() }

// IncVODCircuitHalfOpen increments the half-open probe counter.
func IncVODCircuitHalfOpen() { vodCircuitHalfOpenVec.Inc() }
