package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentnotifier"

var (
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Provider send attempts by outcome",
		},
		[]string{"provider", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "send_duration_seconds",
			Help:      "Provider send latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)
)

func recordSend(provider string, res Result, duration time.Duration) {
	status := "success"
	if !res.OK {
		status = "failed"
	}
	sendsTotal.WithLabelValues(provider, status).Inc()
	sendDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
