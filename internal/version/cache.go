package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cacheTTL bounds how long a check result is reused.
const cacheTTL = 24 * time.Hour

// CacheEntry is a persisted check result.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

// Cache stores check results in a JSON file.
type Cache struct {
	Path string
	Now  func() time.Time
}

// NewCache returns a cache file inside dir.
func NewCache(dir string) *Cache {
	return &Cache{Path: filepath.Join(dir, "version_cache.json"), Now: time.Now}
}

// Load reads the cached entry.
func (c *Cache) Load() (*CacheEntry, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, err
	}
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save writes e, creating the directory if needed.
func (c *Cache) Save(e *CacheEntry) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0644)
}

// Valid reports whether e answers a check for current.
func (c *Cache) Valid(e *CacheEntry, current string) bool {
	if e == nil || e.CurrentVersion != current {
		return false
	}
	return c.Now().Sub(e.CheckedAt) < cacheTTL
}
