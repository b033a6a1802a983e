// Package postgres provides PostgreSQL implementation of the unsubscribe token repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/unsubscribe"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, subscriber_id, token_hash, token_type, expires_at, used_at, created_at`

// Repository implements unsubscribe.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanToken(row pgx.Row) (*domain.UnsubscribeToken, error) {
	var t domain.UnsubscribeToken
	err := row.Scan(
		&t.ID,
		&t.SubscriberID,
		&t.TokenHash,
		&t.TokenType,
		&t.ExpiresAt,
		&t.UsedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a new token hash.
func (r *Repository) Create(ctx context.Context, token *domain.UnsubscribeToken) error {
	query := `
		INSERT INTO unsubscribe_tokens (subscriber_id, token_hash, token_type, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		token.SubscriberID,
		token.TokenHash,
		token.TokenType,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by hash regardless of its state.
func (r *Repository) GetByHash(ctx context.Context, hash string) (*domain.UnsubscribeToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM unsubscribe_tokens WHERE token_hash = $1`
	t, err := scanToken(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, unsubscribe.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// MarkUsed consumes the token in a single statement so concurrent clicks
// cannot both succeed.
func (r *Repository) MarkUsed(ctx context.Context, hash string, now time.Time) (*domain.UnsubscribeToken, error) {
	query := `
		UPDATE unsubscribe_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING ` + tokenColumns
	t, err := scanToken(r.db.QueryRow(ctx, query, hash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, unsubscribe.ErrTokenNotFound
		}
		return nil, fmt.Errorf("mark token used: %w", err)
	}
	return t, nil
}

// Release clears used_at.
func (r *Repository) Release(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE unsubscribe_tokens SET used_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release token: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes tokens that expired before cutoff.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM unsubscribe_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
