package unsubscribe

import (
	"context"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
)

// Repository defines the interface for unsubscribe token persistence.
// Tokens are addressed by the hash of their secret.
type Repository interface {
	Create(ctx context.Context, token *domain.UnsubscribeToken) error
	GetByHash(ctx context.Context, hash string) (*domain.UnsubscribeToken, error)
	// MarkUsed atomically consumes the token if it is unused and unexpired at now.
	// It returns ErrTokenNotFound otherwise.
	MarkUsed(ctx context.Context, hash string, now time.Time) (*domain.UnsubscribeToken, error)
	// Release clears used_at so a consumed token can be used again.
	Release(ctx context.Context, id string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
