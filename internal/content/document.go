// Package content detects new and edited content and tracks which items
// still need subscriber notifications.
package content

import (
	"fmt"
	"time"

	"github.com/bissquit/content-notifier/internal/domain"
)

// Format is the markup of a document body.
type Format string

// Body formats.
const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Document is one content entry as reported by a Source.
type Document struct {
	Slug        string
	Type        domain.ContentType
	Title       string
	Body        string
	Format      Format
	Excerpt     string
	PublishDate time.Time
	Tags        []string
	Draft       bool
}

// Validate checks required fields.
func (d Document) Validate() error {
	switch {
	case d.Slug == "":
		return fmt.Errorf("%w: slug is required", ErrInvalidDocument)
	case !d.Type.IsValid():
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidDocument, d.Slug, d.Type)
	case d.Title == "":
		return fmt.Errorf("%w: %s: title is required", ErrInvalidDocument, d.Slug)
	case d.PublishDate.IsZero():
		return fmt.Errorf("%w: %s: publish date is required", ErrInvalidDocument, d.Slug)
	}
	return nil
}

// Item builds the tracked content item for the document.
func (d Document) Item() domain.ContentItem {
	excerpt := d.Excerpt
	if excerpt == "" {
		excerpt = Excerpt(d.Body, d.Format)
	}
	return domain.ContentItem{
		Slug:        d.Slug,
		ContentType: d.Type,
		Title:       d.Title,
		Excerpt:     excerpt,
		PublishDate: d.PublishDate.UTC(),
		Tags:        d.Tags,
		Fingerprint: Fingerprint(d),
	}
}
