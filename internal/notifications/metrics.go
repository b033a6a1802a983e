package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentnotifier"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notification records by status",
		},
		[]string{"status"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notification send attempts by outcome",
		},
		[]string{"provider", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to render and send one notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	notificationsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total records handed to the worker pool. Sum of sent_total should match this.",
		},
	)

	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by operation and result",
		},
		[]string{"operation", "result"},
	)

	pipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	unnotifiedContent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "unnotified_items",
			Help:      "Content items not yet fully notified",
		},
	)
)

// recordNotificationSent records a send outcome.
func recordNotificationSent(provider, status string) {
	notificationsSent.WithLabelValues(provider, status).Inc()
}

// recordNotificationDuration records notification send duration.
func recordNotificationDuration(provider string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// recordQueueProcessed records the number of records handed to workers.
func recordQueueProcessed(count int) {
	notificationsProcessed.Add(float64(count))
}

func recordRun(operation string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	pipelineRuns.WithLabelValues(operation, result).Inc()
	pipelineRunDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	notificationQueueSize.WithLabelValues("retry_scheduled").Set(float64(stats.RetryScheduled))
	notificationQueueSize.WithLabelValues("terminal").Set(float64(stats.Terminal))
}

// RecordUnnotified updates the unnotified content gauge.
func RecordUnnotified(count int) {
	unnotifiedContent.Set(float64(count))
}
