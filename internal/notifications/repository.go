package notifications

import (
	"context"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
)

// RecordStats counts notification records by status.
type RecordStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// AllSent reports whether no record is pending or failed.
func (s RecordStats) AllSent() bool {
	return s.Pending == 0 && s.Failed == 0
}

// QueueStats is the queue-wide view of notification records.
type QueueStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	// RetryScheduled are failed records still below the retry cap.
	RetryScheduled int `json:"retry_scheduled"`
	// Terminal are failed records that will not be attempted again.
	Terminal int `json:"terminal"`
}

// FailureUpdate describes a failed attempt.
type FailureUpdate struct {
	Kind    string
	Message string
	// RetryAfter nil makes the failure terminal.
	RetryAfter *time.Time
	// CountAttempt increments retry_count. Fail-fast rejections do not count.
	CountAttempt bool
}

// Repository defines data access for notification records.
type Repository interface {
	// CreatePending inserts a pending record per subscriber and skips pairs
	// that already have one. Returns the number of records created.
	CreatePending(ctx context.Context, item domain.ContentItem, subscriberIDs []string) (int, error)
	ListPendingByContent(ctx context.Context, contentID string) ([]domain.NotificationRecord, error)
	// ListDueRetries returns failed records with retry_count below maxRetries
	// and retry_after at or before now, oldest first.
	ListDueRetries(ctx context.Context, now time.Time, maxRetries, limit int) ([]domain.NotificationRecord, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	MarkSent(ctx context.Context, id, providerMessageID string) error
	MarkFailed(ctx context.Context, id string, update FailureUpdate) error
	ContentStats(ctx context.Context, contentID string) (RecordStats, error)
	QueueStats(ctx context.Context, maxRetries int) (QueueStats, error)
}
