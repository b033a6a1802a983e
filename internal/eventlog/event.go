// Package eventlog records pipeline operations as correlated spans so a run
// can be traced end to end.
package eventlog

import (
	"context"
	"time"
)

// Status is the state recorded for a span transition.
type Status string

// Event statuses.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one persisted span transition.
type Event struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	SpanID        string         `json:"span_id"`
	ParentID      string         `json:"parent_id,omitempty"`
	Operation     string         `json:"operation"`
	Status        Status         `json:"status"`
	DurationMs    *int64         `json:"duration_ms,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Repository defines the interface for event persistence.
type Repository interface {
	Insert(ctx context.Context, event *Event) error
	ListByCorrelation(ctx context.Context, correlationID string) ([]Event, error)
	RecentFailures(ctx context.Context, limit int) ([]Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
