package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"conferencebot/internal/models"
)

// Catalog holds the conference list. It is read-only for handlers; only
// Merge (driven by discovery) adds entries.
type Catalog struct {
	mu          sync.RWMutex
	path        string
	conferences []models.Conference
}

// New creates a catalog from the given conferences, sorted by date
func New(conferences []models.Conference) *Catalog {
	c := &Catalog{conferences: append([]models.Conference(nil), conferences...)}
	sortByDate(c.conferences)
	return c
}

// Load reads a catalog file in the {"<id>": {...}} layout.
// A missing file yields the sample set; a malformed one is an error.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(Sample()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c := New(Sample())
			c.path = path
			return c, nil
		}
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var byID map[string]models.Conference
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	conferences := make([]models.Conference, 0, len(byID))
	for id, conf := range byID {
		if conf.ID == "" {
			conf.ID = id
		}
		conferences = append(conferences, conf)
	}

	c := New(conferences)
	c.path = path
	return c, nil
}

// List returns a copy of all conferences in catalog order
func (c *Catalog) List() []models.Conference {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Conference, len(c.conferences))
	copy(out, c.conferences)
	return out
}

// Len returns the number of conferences
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conferences)
}

// Merge adds conferences not yet known by ID or URL and returns the added ones
func (c *Catalog) Merge(found []models.Conference) []models.Conference {
	c.mu.Lock()
	defer c.mu.Unlock()

	seenIDs := make(map[string]bool, len(c.conferences))
	seenURLs := make(map[string]bool, len(c.conferences))
	for _, conf := range c.conferences {
		seenIDs[conf.ID] = true
		if conf.URL != "" {
			seenURLs[normalizeURL(conf.URL)] = true
		}
	}

	var added []models.Conference
	for _, conf := range found {
		if seenIDs[conf.ID] || (conf.URL != "" && seenURLs[normalizeURL(conf.URL)]) {
			continue
		}
		seenIDs[conf.ID] = true
		if conf.URL != "" {
			seenURLs[normalizeURL(conf.URL)] = true
		}
		added = append(added, conf)
	}

	if len(added) > 0 {
		c.conferences = append(c.conferences, added...)
		sortByDate(c.conferences)
		sortByDate(added)
	}
	return added
}

// Save writes the catalog back to its file. It is a no-op for catalogs
// that were not loaded from a file.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}

	byID := make(map[string]models.Conference, len(c.conferences))
	for _, conf := range c.conferences {
		byID[conf.ID] = conf
	}

	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".conferences-*.json")
	if err != nil {
		return fmt.Errorf("creating temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing catalog: %w", err)
	}
	return nil
}

func sortByDate(confs []models.Conference) {
	sort.SliceStable(confs, func(i, j int) bool {
		if confs[i].Date != confs[j].Date {
			return confs[i].Date < confs[j].Date
		}
		return confs[i].ID < confs[j].ID
	})
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(u)), "/")
}
