package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"conferencebot/internal/models"
	"conferencebot/internal/storage"
)

// FileDB keeps all preferences in memory and rewrites the whole JSON file
// after every change
type FileDB struct {
	mu    sync.RWMutex
	path  string
	users map[int64]models.UserPreferences
}

// NewFileDB creates a store backed by the file at path. Nothing is read until Initialize.
func NewFileDB(path string) *FileDB {
	return &FileDB{
		path:  path,
		users: make(map[int64]models.UserPreferences),
	}
}

// Initialize loads every record from disk. A missing file means no users yet.
func (db *FileDB) Initialize(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := os.ReadFile(db.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			db.users = make(map[int64]models.UserPreferences)
			return nil
		}
		return fmt.Errorf("reading preferences: %w", err)
	}

	users, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", storage.ErrMalformed, db.path, err)
	}
	db.users = users
	return nil
}

// GetPreferences returns the stored record or a default one. The default is
// remembered so the next save persists it.
func (db *FileDB) GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if prefs, ok := db.users[userID]; ok {
		return prefs, nil
	}
	prefs := models.DefaultPreferences(userID)
	db.users[userID] = prefs
	return prefs, nil
}

// SavePreferences updates the record and rewrites the file
func (db *FileDB) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	previous, existed := db.users[prefs.UserID]
	db.users[prefs.UserID] = prefs

	if err := db.flush(); err != nil {
		if existed {
			db.users[prefs.UserID] = previous
		} else {
			delete(db.users, prefs.UserID)
		}
		return err
	}
	return nil
}

// ListSubscribed returns subscribed users ordered by ID
func (db *FileDB) ListSubscribed(ctx context.Context) ([]models.UserPreferences, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var subscribed []models.UserPreferences
	for _, prefs := range db.users {
		if prefs.Subscribed {
			subscribed = append(subscribed, prefs)
		}
	}
	sort.Slice(subscribed, func(i, j int) bool {
		return subscribed[i].UserID < subscribed[j].UserID
	})
	return subscribed, nil
}

// Close does nothing; every save is already on disk
func (db *FileDB) Close() error {
	return nil
}

// flush replaces the file atomically: write a sibling temp file, then rename
func (db *FileDB) flush() error {
	data, err := encode(db.users)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	dir := filepath.Dir(db.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}

func encode(users map[int64]models.UserPreferences) ([]byte, error) {
	byKey := make(map[string]models.UserPreferences, len(users))
	for id, prefs := range users {
		byKey[strconv.FormatInt(id, 10)] = prefs
	}
	return json.MarshalIndent(byKey, "", "  ")
}

func decode(data []byte) (map[int64]models.UserPreferences, error) {
	var byKey map[string]models.UserPreferences
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, err
	}

	users := make(map[int64]models.UserPreferences, len(byKey))
	for key, prefs := range byKey {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", key)
		}
		prefs.UserID = id
		users[id] = prefs
	}
	return users, nil
}
