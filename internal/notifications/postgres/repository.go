// Package postgres provides PostgreSQL implementation of notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `
	id, subscriber_id, content_id, content_type, status,
	COALESCE(provider_message_id, ''), COALESCE(error_message, ''), COALESCE(error_kind, ''),
	retry_count, retry_after, created_at, updated_at, sent_at
`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanRecord(row pgx.Row) (*domain.NotificationRecord, error) {
	var rec domain.NotificationRecord
	err := row.Scan(
		&rec.ID,
		&rec.SubscriberID,
		&rec.ContentID,
		&rec.ContentType,
		&rec.Status,
		&rec.ProviderMessageID,
		&rec.ErrorMessage,
		&rec.ErrorKind,
		&rec.RetryCount,
		&rec.RetryAfter,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]domain.NotificationRecord, error) {
	defer rows.Close()

	records := make([]domain.NotificationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}

// CreatePending inserts one pending record per subscriber. The unique
// (subscriber_id, content_id) constraint makes existing pairs a no-op.
func (r *Repository) CreatePending(ctx context.Context, item domain.ContentItem, subscriberIDs []string) (int, error) {
	if len(subscriberIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO notifications (subscriber_id, content_id, content_type, status)
		SELECT s, $2::uuid, $3::text, 'pending' FROM unnest($1::text[]) AS s
		ON CONFLICT (subscriber_id, content_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, subscriberIDs, item.ID, item.ContentType)
	if err != nil {
		return 0, fmt.Errorf("create pending notifications: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListPendingByContent returns pending records of a content item, oldest first.
func (r *Repository) ListPendingByContent(ctx context.Context, contentID string) ([]domain.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications
		WHERE content_id = $1 AND status = 'pending'
		ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return collectRecords(rows)
}

// ListDueRetries returns failed records whose retry time has come.
func (r *Repository) ListDueRetries(ctx context.Context, now time.Time, maxRetries, limit int) ([]domain.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications
		WHERE status = 'failed'
		  AND retry_after IS NOT NULL
		  AND retry_after <= $1
		  AND retry_count < $2
		ORDER BY retry_after, created_at
		LIMIT $3`
	rows, err := r.db.Query(ctx, query, now, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}
	return collectRecords(rows)
}

// GetByID retrieves a record by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return rec, nil
}

// MarkSent moves a record to the terminal sent state.
func (r *Repository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	query := `
		UPDATE notifications
		SET status = 'sent',
		    provider_message_id = NULLIF($2, ''),
		    error_message = NULL,
		    error_kind = NULL,
		    retry_after = NULL,
		    sent_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'sent'
	`
	result, err := r.db.Exec(ctx, query, id, providerMessageID)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrRecordNotFound
	}
	return nil
}

// MarkFailed records a failed attempt. A sent record is never downgraded.
func (r *Repository) MarkFailed(ctx context.Context, id string, update notifications.FailureUpdate) error {
	increment := 0
	if update.CountAttempt {
		increment = 1
	}

	query := `
		UPDATE notifications
		SET status = 'failed',
		    error_kind = $2,
		    error_message = $3,
		    retry_after = $4,
		    retry_count = retry_count + $5,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'sent'
	`
	result, err := r.db.Exec(ctx, query, id, update.Kind, update.Message, update.RetryAfter, increment)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrRecordNotFound
	}
	return nil
}

// ContentStats counts the records of a content item by status.
func (r *Repository) ContentStats(ctx context.Context, contentID string) (notifications.RecordStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notifications
		WHERE content_id = $1
	`
	var stats notifications.RecordStats
	err := r.db.QueryRow(ctx, query, contentID).Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return notifications.RecordStats{}, fmt.Errorf("content notification stats: %w", err)
	}
	return stats, nil
}

// QueueStats counts records across all content.
func (r *Repository) QueueStats(ctx context.Context, maxRetries int) (notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_after IS NOT NULL AND retry_count < $1),
			COUNT(*) FILTER (WHERE status = 'failed' AND (retry_after IS NULL OR retry_count >= $1))
		FROM notifications
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query, maxRetries).Scan(&stats.Pending, &stats.Sent, &stats.RetryScheduled, &stats.Terminal)
	if err != nil {
		return notifications.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
