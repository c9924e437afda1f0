package stubs

import (
	"context"
	"sort"
	"sync"

	"conferencebot/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu    sync.RWMutex
	users map[int64]models.UserPreferences

	// Saves counts SavePreferences calls
	Saves int
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		users: make(map[int64]models.UserPreferences),
	}
}

// Initialize does nothing; the mock starts empty
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// GetPreferences returns the stored record or the default one
func (m *MockDB) GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefs, ok := m.users[userID]; ok {
		return prefs, nil
	}
	prefs := models.DefaultPreferences(userID)
	m.users[userID] = prefs
	return prefs, nil
}

// SavePreferences stores the record
func (m *MockDB) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[prefs.UserID] = prefs
	m.Saves++
	return nil
}

// ListSubscribed returns subscribed users ordered by ID
func (m *MockDB) ListSubscribed(ctx context.Context) ([]models.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subscribed []models.UserPreferences
	for _, prefs := range m.users {
		if prefs.Subscribed {
			subscribed = append(subscribed, prefs)
		}
	}

	// Sort by user ID
	sort.Slice(subscribed, func(i, j int) bool {
		return subscribed[i].UserID < subscribed[j].UserID
	})

	return subscribed, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
