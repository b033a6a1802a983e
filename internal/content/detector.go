package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/content-notifier/internal/domain"
)

// SyncResult summarizes one Sync pass.
type SyncResult struct {
	Discovered int `json:"discovered"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Skipped    int `json:"skipped"`
}

// Detector reconciles the content source with tracked items.
type Detector struct {
	source Source
	repo   Repository
}

// NewDetector creates a new content change detector.
func NewDetector(source Source, repo Repository) *Detector {
	return &Detector{source: source, repo: repo}
}

// Sync inserts new documents and resets the notified flag of edited ones.
// Invalid documents and later documents reusing an already seen slug are
// skipped with a warning.
func (d *Detector) Sync(ctx context.Context) (SyncResult, error) {
	docs, err := d.source.ListChanged(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list content: %w", err)
	}

	result := SyncResult{Discovered: len(docs)}
	seen := make(map[string]domain.ContentType, len(docs))

	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			slog.Warn("skipping invalid content document", "slug", doc.Slug, "error", err)
			result.Skipped++
			continue
		}
		if first, dup := seen[doc.Slug]; dup {
			slog.Warn("skipping content document with duplicate slug",
				"slug", doc.Slug, "content_type", doc.Type, "kept_content_type", first)
			result.Skipped++
			continue
		}
		seen[doc.Slug] = doc.Type

		item := doc.Item()

		existing, err := d.repo.GetBySlug(ctx, doc.Slug)
		switch {
		case errors.Is(err, ErrContentNotFound):
			if err := d.repo.Create(ctx, &item); err != nil {
				return result, fmt.Errorf("create content %s: %w", doc.Slug, err)
			}
			result.Created++
			slog.Info("new content detected", "slug", item.Slug, "content_type", item.ContentType)
		case err != nil:
			return result, fmt.Errorf("get content %s: %w", doc.Slug, err)
		case existing.Fingerprint == item.Fingerprint:
			result.Unchanged++
		default:
			item.ID = existing.ID
			if err := d.repo.UpdateContent(ctx, &item); err != nil {
				return result, fmt.Errorf("update content %s: %w", doc.Slug, err)
			}
			result.Updated++
			slog.Info("edited content detected", "slug", item.Slug, "content_id", item.ID)
		}
	}

	recordSync(result)

	return result, nil
}

// ListUnnotified returns items awaiting notification, oldest publish date first.
func (d *Detector) ListUnnotified(ctx context.Context) ([]domain.ContentItem, error) {
	items, err := d.repo.ListUnnotified(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unnotified content: %w", err)
	}
	return items, nil
}

// CountUnnotified returns the number of items awaiting notification.
func (d *Detector) CountUnnotified(ctx context.Context) (int, error) {
	return d.repo.CountUnnotified(ctx)
}

// MarkNotified flags an item as fully notified.
func (d *Detector) MarkNotified(ctx context.Context, id string) error {
	return d.repo.MarkNotified(ctx, id)
}

// GetBySlug returns a tracked item.
func (d *Detector) GetBySlug(ctx context.Context, slug string) (*domain.ContentItem, error) {
	return d.repo.GetBySlug(ctx, slug)
}

// GetByID returns a tracked item.
func (d *Detector) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	return d.repo.GetByID(ctx, id)
}
