// Package postgres provides PostgreSQL implementation of the content repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/content-notifier/internal/content"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const itemColumns = `id, slug, content_type, title, excerpt, publish_date, tags, content_fingerprint, notified, created_at, updated_at`

// Repository implements content.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanItem(row pgx.Row) (*domain.ContentItem, error) {
	var item domain.ContentItem
	err := row.Scan(
		&item.ID,
		&item.Slug,
		&item.ContentType,
		&item.Title,
		&item.Excerpt,
		&item.PublishDate,
		&item.Tags,
		&item.Fingerprint,
		&item.Notified,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetBySlug retrieves a content item by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*domain.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE slug = $1`
	item, err := scanItem(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrContentNotFound
		}
		return nil, fmt.Errorf("get content by slug: %w", err)
	}
	return item, nil
}

// GetByID retrieves a content item by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE id = $1`
	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrContentNotFound
		}
		return nil, fmt.Errorf("get content by id: %w", err)
	}
	return item, nil
}

// Create inserts a new unnotified content item.
func (r *Repository) Create(ctx context.Context, item *domain.ContentItem) error {
	query := `
		INSERT INTO content_items (slug, content_type, title, excerpt, publish_date, tags, content_fingerprint, notified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING id, notified, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		item.Slug,
		item.ContentType,
		item.Title,
		item.Excerpt,
		item.PublishDate,
		tagsOrEmpty(item.Tags),
		item.Fingerprint,
	).Scan(&item.ID, &item.Notified, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

// UpdateContent stores edited metadata and resets the notified flag.
func (r *Repository) UpdateContent(ctx context.Context, item *domain.ContentItem) error {
	query := `
		UPDATE content_items
		SET content_type = $2, title = $3, excerpt = $4, publish_date = $5,
		    tags = $6, content_fingerprint = $7, notified = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING notified, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		item.ID,
		item.ContentType,
		item.Title,
		item.Excerpt,
		item.PublishDate,
		tagsOrEmpty(item.Tags),
		item.Fingerprint,
	).Scan(&item.Notified, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return content.ErrContentNotFound
		}
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

// ListUnnotified returns items awaiting notification, oldest publish date first.
func (r *Repository) ListUnnotified(ctx context.Context) ([]domain.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE notified = FALSE ORDER BY publish_date, created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unnotified content: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ContentItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}

	return items, nil
}

// CountUnnotified returns the number of items awaiting notification.
func (r *Repository) CountUnnotified(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_items WHERE notified = FALSE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unnotified content: %w", err)
	}
	return count, nil
}

// MarkNotified flags an item as fully notified.
func (r *Repository) MarkNotified(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `UPDATE content_items SET notified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark content notified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return content.ErrContentNotFound
	}
	return nil
}

// tagsOrEmpty keeps the NOT NULL tags column from receiving NULL.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
