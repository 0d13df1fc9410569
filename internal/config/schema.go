package config

import "time"

// Config is the root configuration.
type Config struct {
	Version int `yaml:"version"`

	// Relays to publish to and read from.
	Relays []string `yaml:"relays"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Sync     SyncConfig     `yaml:"sync"`

	// BlockedDomains extends the built-in source URL blocklist.
	BlockedDomains []string `yaml:"blocked_domains,omitempty"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the local event cache.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TimeoutConfig bounds the relay operations.
type TimeoutConfig struct {
	// CollectWindow is the fallback wait for relays that never signal the
	// end of stored events.
	CollectWindow Duration `yaml:"collect_window"`
	// PublishTimeout bounds the wait for a relay's accept/reject verdict.
	PublishTimeout Duration `yaml:"publish_timeout"`
	// DialTimeout bounds the websocket handshake.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// SyncConfig configures the background cache syncer.
type SyncConfig struct {
	// Enabled turns the periodic relay-to-cache sync on. Off by default;
	// reads mirror into the cache on their own.
	Enabled bool `yaml:"enabled"`
	// Interval between sync rounds.
	Interval Duration `yaml:"interval"`
	// Lookback bounds how far back a sync round asks the relays to go.
	Lookback Duration `yaml:"lookback"`
}

// Duration wraps time.Duration for YAML values like "5s" or "1m".
type Duration string

// Value parses the duration, returning fallback when unset or malformed.
func (d Duration) Value(fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(string(d))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
