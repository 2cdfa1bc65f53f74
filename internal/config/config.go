// Package config holds the global lists settings stored at
// ~/.config/lists/config.json. Every getter resolves an environment
// override first, then the file, then a default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/lists/internal/models"
)

const (
	configFile = "config.json"
	lockFile   = "config.json.lock"
)

// Defaults.
const (
	DefaultTable         = "lists"
	DefaultConcurrency   = 4
	DefaultWatchDebounce = 2 * time.Second
	DefaultWatchInterval = 5 * time.Minute
	DefaultLogLevel      = "warn"
)

// RemoteConfig locates the DynamoDB table.
type RemoteConfig struct {
	Table    string `json:"table,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// SyncConfig tunes sync runs and the watcher.
type SyncConfig struct {
	Concurrency   int    `json:"concurrency,omitempty"`
	WatchDebounce string `json:"watch_debounce,omitempty"` // duration string, default "2s"
	WatchInterval string `json:"watch_interval,omitempty"` // duration string, default "5m"
}

// LogConfig selects level, format and an optional rotating log file.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
	File   string `json:"file,omitempty"`
}

// Config is the global config file.
type Config struct {
	// UserID is the signed-in user; empty means anonymous.
	UserID string       `json:"user_id,omitempty"`
	Remote RemoteConfig `json:"remote"`
	Sync   SyncConfig   `json:"sync"`
	Log    LogConfig    `json:"log"`
}

// Dir returns ~/.config/lists, creating it if necessary.
// LISTS_CONFIG_DIR overrides the location.
func Dir() (string, error) {
	dir := os.Getenv("LISTS_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "lists")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config. A missing file yields an empty config.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// Save writes the config atomically (temp file + rename).
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, configFile))
}

// Update loads, modifies and saves the config while holding the config lock.
func Update(fn func(*Config) error) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return withConfigLock(filepath.Join(dir, lockFile), func() error {
		cfg, err := Load()
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return Save(cfg)
	})
}

// SetUser records the signed-in user. An empty id signs out.
func SetUser(userID string) error {
	return Update(func(cfg *Config) error {
		cfg.UserID = userID
		return nil
	})
}

// User returns the active user.
// Priority: LISTS_USER env > config.json user_id > Anonymous.
func (c *Config) User() string {
	if v := os.Getenv("LISTS_USER"); v != "" {
		return v
	}
	if c.UserID != "" {
		return c.UserID
	}
	return models.AnonymousUser
}

// SignedIn reports whether a real user is active.
func (c *Config) SignedIn() bool {
	return c.User() != models.AnonymousUser
}

// Table returns the DynamoDB table name.
// Priority: LISTS_DYNAMO_TABLE env > config.json remote.table > "lists".
func (c *Config) Table() string {
	if v := os.Getenv("LISTS_DYNAMO_TABLE"); v != "" {
		return v
	}
	if c.Remote.Table != "" {
		return c.Remote.Table
	}
	return DefaultTable
}

// Region returns the AWS region; empty defers to the SDK's own resolution.
// Priority: AWS_REGION env > config.json remote.region.
func (c *Config) Region() string {
	if v := os.Getenv("AWS_REGION"); v != "" {
		return v
	}
	return c.Remote.Region
}

// Endpoint returns the DynamoDB endpoint override, if any.
// Priority: AWS_ENDPOINT env > config.json remote.endpoint.
func (c *Config) Endpoint() string {
	if v := os.Getenv("AWS_ENDPOINT"); v != "" {
		return v
	}
	return c.Remote.Endpoint
}

// Concurrency returns how many lists a sync applies in parallel.
// Priority: LISTS_SYNC_CONCURRENCY env > config.json sync.concurrency > 4.
func (c *Config) Concurrency() int {
	if v := os.Getenv("LISTS_SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if c.Sync.Concurrency > 0 {
		return c.Sync.Concurrency
	}
	return DefaultConcurrency
}

// WatchDebounce returns how long the watcher waits for writes to settle.
// Priority: LISTS_WATCH_DEBOUNCE env > config.json sync.watch_debounce > 2s.
func (c *Config) WatchDebounce() time.Duration {
	return duration("LISTS_WATCH_DEBOUNCE", c.Sync.WatchDebounce, DefaultWatchDebounce)
}

// WatchInterval returns the periodic sync interval in watch mode.
// Priority: LISTS_WATCH_INTERVAL env > config.json sync.watch_interval > 5m.
func (c *Config) WatchInterval() time.Duration {
	return duration("LISTS_WATCH_INTERVAL", c.Sync.WatchInterval, DefaultWatchInterval)
}

// LogLevel returns the configured level name.
// Priority: LISTS_LOG_LEVEL env > config.json log.level > "warn".
func (c *Config) LogLevel() string {
	if v := os.Getenv("LISTS_LOG_LEVEL"); v != "" {
		return strings.ToLower(v)
	}
	if c.Log.Level != "" {
		return strings.ToLower(c.Log.Level)
	}
	return DefaultLogLevel
}

func duration(envKey, fromFile string, def time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	if fromFile != "" {
		if d, err := time.ParseDuration(fromFile); err == nil && d > 0 {
			return d
		}
	}
	return def
}
