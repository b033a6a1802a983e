package content

import (
	"context"

	"github.com/bissquit/content-notifier/internal/domain"
)

// Repository defines the interface for content item persistence.
type Repository interface {
	GetBySlug(ctx context.Context, slug string) (*domain.ContentItem, error)
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)
	Create(ctx context.Context, item *domain.ContentItem) error
	// UpdateContent stores new metadata and fingerprint and resets notified.
	UpdateContent(ctx context.Context, item *domain.ContentItem) error
	ListUnnotified(ctx context.Context) ([]domain.ContentItem, error)
	CountUnnotified(ctx context.Context) (int, error)
	MarkNotified(ctx context.Context, id string) error
}

// Source lists the currently published content documents.
type Source interface {
	ListChanged(ctx context.Context) ([]Document, error)
}
