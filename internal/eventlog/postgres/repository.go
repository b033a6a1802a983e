// Package postgres provides PostgreSQL implementation of the event log repository.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/content-notifier/internal/eventlog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, correlation_id, span_id, COALESCE(parent_id, ''), operation, status, duration_ms, metadata, COALESCE(error_message, ''), created_at`

// Repository implements eventlog.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert stores one event.
func (r *Repository) Insert(ctx context.Context, e *eventlog.Event) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO pipeline_events (id, correlation_id, span_id, parent_id, operation, status, duration_ms, metadata, error_message, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), $10)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID,
		e.CorrelationID,
		e.SpanID,
		e.ParentID,
		e.Operation,
		e.Status,
		e.DurationMs,
		metadata,
		e.ErrorMessage,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]eventlog.Event, error) {
	defer rows.Close()

	events := make([]eventlog.Event, 0)
	for rows.Next() {
		var (
			e        eventlog.Event
			metadata []byte
		)
		err := rows.Scan(
			&e.ID,
			&e.CorrelationID,
			&e.SpanID,
			&e.ParentID,
			&e.Operation,
			&e.Status,
			&e.DurationMs,
			&metadata,
			&e.ErrorMessage,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// ListByCorrelation returns a trace in chronological order.
func (r *Repository) ListByCorrelation(ctx context.Context, correlationID string) ([]eventlog.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM pipeline_events WHERE correlation_id = $1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// RecentFailures returns the newest failed events.
func (r *Repository) RecentFailures(ctx context.Context, limit int) ([]eventlog.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM pipeline_events WHERE status = 'failed' ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	return scanEvents(rows)
}

// DeleteOlderThan removes events created before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM pipeline_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return result.RowsAffected(), nil
}
