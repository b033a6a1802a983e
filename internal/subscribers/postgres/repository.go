// Package postgres provides PostgreSQL implementation of the subscriber store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/subscribers"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriberColumns = `id, email, blog_updates, thought_updates, announcements, global_opt_out, email_status`

// Repository implements subscribers.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var s domain.Subscriber
	err := row.Scan(
		&s.ID,
		&s.Email,
		&s.Preferences.BlogUpdates,
		&s.Preferences.ThoughtUpdates,
		&s.Preferences.Announcements,
		&s.GlobalOptOut,
		&s.EmailStatus,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// categoryColumn whitelists the preference column for a category.
func categoryColumn(c domain.Category) (string, error) {
	switch c {
	case domain.CategoryBlogUpdates:
		return "blog_updates", nil
	case domain.CategoryThoughtUpdates:
		return "thought_updates", nil
	case domain.CategoryAnnouncements:
		return "announcements", nil
	}
	return "", fmt.Errorf("unknown category %q", c)
}

// ListByCategory returns active, opted-in subscribers of the category.
func (r *Repository) ListByCategory(ctx context.Context, category domain.Category) ([]domain.Subscriber, error) {
	column, err := categoryColumn(category)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE ` + column + ` = TRUE
		  AND global_opt_out = FALSE
		  AND email_status = 'active'
		  AND email <> ''
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return subs, nil
}

// GetByID retrieves a subscriber by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	s, err := scanSubscriber(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscribers.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

// UpdatePreferences replaces the category flags and the global opt-out.
func (r *Repository) UpdatePreferences(ctx context.Context, id string, prefs domain.Preferences, globalOptOut bool) error {
	query := `
		UPDATE subscribers
		SET blog_updates = $2, thought_updates = $3, announcements = $4, global_opt_out = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, prefs.BlogUpdates, prefs.ThoughtUpdates, prefs.Announcements, globalOptOut)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscribers.ErrSubscriberNotFound
	}
	return nil
}

// Create inserts a subscriber. The account system owns subscriber creation;
// this exists for local runs and tests.
func (r *Repository) Create(ctx context.Context, s *domain.Subscriber) error {
	query := `
		INSERT INTO subscribers (email, blog_updates, thought_updates, announcements, global_opt_out, email_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	status := s.EmailStatus
	if status == "" {
		status = domain.EmailStatusActive
	}
	err := r.db.QueryRow(ctx, query,
		s.Email,
		s.Preferences.BlogUpdates,
		s.Preferences.ThoughtUpdates,
		s.Preferences.Announcements,
		s.GlobalOptOut,
		status,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	s.EmailStatus = status
	return nil
}
