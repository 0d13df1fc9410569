// Package config provides configuration management for Black Paper.
//
// The config file carries operating parameters only: relay URLs, the cache
// location, timeouts, and the HTTP listen address. Signing keys are never
// stored here; identity travels with each request.
//
// Config file locations (priority order):
//  1. $BLACKPAPER_CONFIG
//  2. ./blackpaper.yaml
//  3. ~/.config/blackpaper/config.yaml
//  4. /etc/blackpaper/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when the file leaves a value unset.
const (
	DefaultAddr           = ":8090"
	DefaultDatabasePath   = "./blackpaper.db"
	DefaultCollectWindow  = 5 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultSyncInterval   = 5 * time.Minute
	DefaultSyncLookback   = 24 * time.Hour
)

// DefaultRelays seed a new installation with public relays.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Relays:   append([]string(nil), DefaultRelays...),
		Server:   ServerConfig{Addr: DefaultAddr},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
	}
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if len(c.Relays) == 0 {
		c.Relays = append([]string(nil), DefaultRelays...)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
}

func (c *Config) validate() error {
	for _, u := range c.Relays {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return fmt.Errorf("relay %q: URL must use ws:// or wss://", u)
		}
	}
	return nil
}

// CollectWindow returns the effective stored-events fallback window.
func (c *Config) CollectWindow() time.Duration {
	return c.Timeouts.CollectWindow.Value(DefaultCollectWindow)
}

// PublishTimeout returns the effective publish verdict timeout.
func (c *Config) PublishTimeout() time.Duration {
	return c.Timeouts.PublishTimeout.Value(DefaultPublishTimeout)
}

// DialTimeout returns the effective websocket handshake timeout.
func (c *Config) DialTimeout() time.Duration {
	return c.Timeouts.DialTimeout.Value(DefaultDialTimeout)
}

// SyncInterval returns the effective background sync interval.
func (c *Config) SyncInterval() time.Duration {
	return c.Sync.Interval.Value(DefaultSyncInterval)
}

// SyncLookback returns the effective background sync lookback.
func (c *Config) SyncLookback() time.Duration {
	return c.Sync.Lookback.Value(DefaultSyncLookback)
}

// Summary returns a human-readable config summary.
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Relays (%d): %s\n", len(c.Relays), strings.Join(c.Relays, " "))
	summary += fmt.Sprintf("Cache: %s, Listen: %s\n", c.Database.Path, c.Server.Addr)
	summary += fmt.Sprintf("Collect window: %s, Publish timeout: %s",
		c.CollectWindow(), c.PublishTimeout())
	return summary
}
