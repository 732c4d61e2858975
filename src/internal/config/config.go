// FILE: logkeep/src/internal/config/config.go
package config

import (
	"fmt"
	"time"
)

const (
	DefaultSyslogPort       = 5514
	DefaultAPIPort          = 8080
	DefaultMaxPayloadSize   = 8192
	DefaultIngestBufferSize = 1024
	DefaultStoragePath      = "./logkeep.db"
	DefaultPoolSize         = 4
)

type Config struct {
	Ingest  IngestConfig  `toml:"ingest"`
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Query   QueryConfig   `toml:"query"`
	Stats   StatsConfig   `toml:"stats"`
	Logging *LogConfig    `toml:"logging"`
}

// IngestConfig controls the UDP syslog listener.
type IngestConfig struct {
	// Bind address for the UDP listener. Empty means all interfaces.
	Host string `toml:"host"`
	Port int64  `toml:"port"`

	// Datagrams larger than this are truncated before parsing.
	MaxPayloadSize int64 `toml:"max_payload_size"`

	// Per-subscriber channel depth between the listener and the writer.
	BufferSize int64 `toml:"buffer_size"`

	// IANA zone name assumed for syslog timestamps, which carry no
	// zone of their own. Empty or "Local" uses the host zone.
	Timezone string `toml:"timezone"`
}

// Location resolves the configured timezone for timestamp parsing.
func (c *IngestConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ingest timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type StorageConfig struct {
	// SQLite database file path.
	Path string `toml:"path"`

	// Reader connection pool size. The writer holds its own connection.
	PoolSize int64 `toml:"pool_size"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int64  `toml:"port"`

	ReadTimeoutSeconds  int64 `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int64 `toml:"write_timeout_seconds"`

	Auth      *AuthConfig     `toml:"auth"`
	RateLimit *NetLimitConfig `toml:"rate_limit"`
}

type QueryConfig struct {
	// Window applied to /logs when neither since nor until is given.
	DefaultWindowHours int64 `toml:"default_window_hours"`
}

type StatsConfig struct {
	WindowHours      int64 `toml:"window_hours"`
	TopHosts         int64 `toml:"top_hosts"`
	TopMessages      int64 `toml:"top_messages"`
	MessagePrefixLen int64 `toml:"message_prefix_len"`
}

// NetLimitConfig throttles HTTP clients per source IP.
type NetLimitConfig struct {
	Enabled bool `toml:"enabled"`
	// Requests allowed per second per client IP. 0 disables the limiter.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst allowance on top of the steady rate. Defaults to the rate.
	Burst int64 `toml:"burst"`
	// Upper bound on tracked client states before eviction.
	MaxClients int64 `toml:"max_clients"`
}

func (c *Config) validate() error {
	if c.Ingest.Port < 1 || c.Ingest.Port > 65535 {
		return fmt.Errorf("invalid syslog port: %d", c.Ingest.Port)
	}
	if c.Ingest.MaxPayloadSize < 0 {
		return fmt.Errorf("max payload size cannot be negative: %d", c.Ingest.MaxPayloadSize)
	}
	if c.Ingest.BufferSize < 0 {
		return fmt.Errorf("ingest buffer size cannot be negative: %d", c.Ingest.BufferSize)
	}
	if _, err := c.Ingest.Location(); err != nil {
		return err
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty")
	}
	if c.Storage.PoolSize < 1 {
		return fmt.Errorf("storage pool size must be positive: %d", c.Storage.PoolSize)
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			return fmt.Errorf("invalid API port: %d", c.API.Port)
		}
		if err := validateAuth(c.API.Auth); err != nil {
			return err
		}
		if err := validateNetLimit(c.API.RateLimit); err != nil {
			return err
		}
	}

	if c.Query.DefaultWindowHours < 0 {
		return fmt.Errorf("default query window cannot be negative: %d", c.Query.DefaultWindowHours)
	}

	if c.Stats.WindowHours < 0 {
		return fmt.Errorf("stats window cannot be negative: %d", c.Stats.WindowHours)
	}
	if c.Stats.TopHosts < 0 || c.Stats.TopMessages < 0 {
		return fmt.Errorf("stats top-N values cannot be negative")
	}
	if c.Stats.MessagePrefixLen < 0 {
		return fmt.Errorf("stats message prefix length cannot be negative: %d", c.Stats.MessagePrefixLen)
	}

	if c.Logging != nil {
		if err := validateLogConfig(c.Logging); err != nil {
			return err
		}
	}

	return nil
}

func validateNetLimit(cfg *NetLimitConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit requests per second cannot be negative")
	}
	if cfg.Burst < 0 {
		return fmt.Errorf("rate limit burst cannot be negative")
	}
	if cfg.MaxClients < 0 {
		return fmt.Errorf("rate limit max clients cannot be negative")
	}
	return nil
}
