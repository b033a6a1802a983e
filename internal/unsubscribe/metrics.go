package unsubscribe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentnotifier"

var (
	tokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unsubscribe",
			Name:      "tokens_issued_total",
			Help:      "Unsubscribe tokens issued by type",
		},
		[]string{"type"},
	)

	tokensConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unsubscribe",
			Name:      "tokens_consumed_total",
			Help:      "Unsubscribe token consumption attempts by result",
		},
		[]string{"result"},
	)
)
