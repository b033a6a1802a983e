package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentnotifier"

var syncItemsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "sync_items_total",
		Help:      "Content documents seen by sync, by outcome",
	},
	[]string{"outcome"},
)

func recordSync(r SyncResult) {
	syncItemsTotal.WithLabelValues("created").Add(float64(r.Created))
	syncItemsTotal.WithLabelValues("updated").Add(float64(r.Updated))
	syncItemsTotal.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	syncItemsTotal.WithLabelValues("skipped").Add(float64(r.Skipped))
}
