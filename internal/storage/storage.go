package storage

import (
	"context"
	"errors"

	"conferencebot/internal/models"
)

// ErrMalformed is returned by Initialize when persisted preferences cannot be parsed
var ErrMalformed = errors.New("malformed preference data")

// Storage defines the interface for user preference persistence
type Storage interface {
	// GetPreferences returns the user's record, or the default record
	// (all countries, all topics, unsubscribed) for a user never seen before.
	GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error)

	// SavePreferences stores the record, replacing any previous one for the user
	SavePreferences(ctx context.Context, prefs models.UserPreferences) error

	// ListSubscribed returns every record with Subscribed set, ordered by user ID
	ListSubscribed(ctx context.Context) ([]models.UserPreferences, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
