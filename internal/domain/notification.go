package domain

import "time"

// NotificationStatus represents delivery state of a notification record.
type NotificationStatus string

// Notification statuses.
const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// NotificationRecord tracks delivery of one content item to one subscriber.
// At most one record exists per (SubscriberID, ContentID).
type NotificationRecord struct {
	ID                string             `json:"id"`
	SubscriberID      string             `json:"subscriber_id"`
	ContentID         string             `json:"content_id"`
	ContentType       ContentType        `json:"content_type"`
	Status            NotificationStatus `json:"status"`
	ProviderMessageID string             `json:"provider_message_id,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	ErrorKind         string             `json:"error_kind,omitempty"`
	RetryCount        int                `json:"retry_count"`
	RetryAfter        *time.Time         `json:"retry_after,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	SentAt            *time.Time         `json:"sent_at,omitempty"`
}

// IsTerminal reports whether the record will not be attempted again.
func (r *NotificationRecord) IsTerminal(maxRetries int) bool {
	switch r.Status {
	case NotificationStatusSent:
		return true
	case NotificationStatusFailed:
		return r.RetryAfter == nil || r.RetryCount >= maxRetries
	}
	return false
}
