// Package subscribers is the narrow adapter onto the subscriber directory
// owned by the account system.
package subscribers

import (
	"context"
	"errors"

	"github.com/bissquit/content-notifier/internal/domain"
)

// ErrSubscriberNotFound is returned when a subscriber does not exist.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// Store reads subscribers and applies preference changes.
type Store interface {
	// ListByCategory returns active, opted-in subscribers of the category.
	ListByCategory(ctx context.Context, category domain.Category) ([]domain.Subscriber, error)
	GetByID(ctx context.Context, id string) (*domain.Subscriber, error)
	UpdatePreferences(ctx context.Context, id string, prefs domain.Preferences, globalOptOut bool) error
}

// OptOutAll returns preferences with every category disabled.
func OptOutAll() domain.Preferences {
	return domain.Preferences{}
}
