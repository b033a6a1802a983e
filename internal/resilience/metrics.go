package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentnotifier"

var (
	breakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "breaker_trips_total",
			Help:      "Number of times the delivery circuit breaker opened",
		},
	)

	breakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "breaker_open",
			Help:      "1 while the delivery circuit breaker rejects calls",
		},
	)
)

func recordBreakerTrip() {
	breakerTrips.Inc()
}

// RecordBreakerState updates the breaker gauge.
func RecordBreakerState(state BreakerState) {
	if state.Open {
		breakerOpen.Set(1)
		return
	}
	breakerOpen.Set(0)
}
