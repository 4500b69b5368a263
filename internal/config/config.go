// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ConfigPathEnvVar overrides the config file search paths when set.
const ConfigPathEnvVar = "FEED_CONFIG_PATH"

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"feedengine.yaml",
	"config/feedengine.yaml",
	"/etc/feedengine/config.yaml",
}

// Config is the complete runtime configuration, assembled from defaults,
// an optional YAML file, and FEED_-prefixed environment variables.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Feed     FeedConfig     `koanf:"feed"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
	Realtime RealtimeConfig `koanf:"realtime"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

// FeedConfig tunes page assembly and caching.
type FeedConfig struct {
	PageSize        int           `koanf:"page_size" validate:"min=1,max=100"`
	QualityFloor    float64       `koanf:"quality_floor" validate:"min=0,max=100"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	SourceTimeout   time.Duration `koanf:"source_timeout"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	SwipeQuota      int           `koanf:"swipe_quota" validate:"min=0"`
	SuperLikeQuota  int           `koanf:"super_like_quota" validate:"min=0"`
	AutoRefresh     bool          `koanf:"auto_refresh"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// NATSConfig controls the optional event bridge. When URL is empty the
// engine runs standalone against the in-memory store's own event stream.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig mirrors logging.Config for unmarshalling.
type LoggingConfig struct {
	Level     string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format    string `koanf:"format" validate:"oneof=json console"`
	Caller    bool   `koanf:"caller"`
	Timestamp bool   `koanf:"timestamp"`
}

// RealtimeConfig tunes websocket push and invalidation debouncing.
type RealtimeConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Debounce     time.Duration `koanf:"debounce"`
	PingInterval time.Duration `koanf:"ping_interval"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			RateWindow:      time.Minute,
		},
		Feed: FeedConfig{
			PageSize:        20,
			QualityFloor:    30,
			CacheTTL:        3 * time.Minute,
			SourceTimeout:   10 * time.Second,
			SessionTTL:      30 * time.Minute,
			SwipeQuota:      100,
			SuperLikeQuota:  5,
			AutoRefresh:     true,
			RefreshInterval: 5 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "",
			SubjectPrefix: "feed.events",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Caller:    false,
			Timestamp: true,
		},
		Realtime: RealtimeConfig{
			Enabled:      true,
			Debounce:     2 * time.Second,
			PingInterval: 30 * time.Second,
		},
	}
}

var validate = validator.New()

// Validate checks the configuration for values that would break the engine
// at runtime. Checks run in order and the first failure is returned.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	validators := []func() error{
		c.validateDurations,
		c.validateRealtime,
	}
	for _, fn := range validators {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDurations() error {
	if c.Feed.CacheTTL <= 0 {
		return fmt.Errorf("feed.cache_ttl must be positive, got %s", c.Feed.CacheTTL)
	}
	if c.Feed.SourceTimeout <= 0 {
		return fmt.Errorf("feed.source_timeout must be positive, got %s", c.Feed.SourceTimeout)
	}
	if c.Feed.SessionTTL < time.Minute {
		return fmt.Errorf("feed.session_ttl must be at least 1m, got %s", c.Feed.SessionTTL)
	}
	if c.Feed.AutoRefresh && c.Feed.RefreshInterval <= 0 {
		return fmt.Errorf("feed.refresh_interval must be positive when auto_refresh is enabled")
	}
	return nil
}

func (c *Config) validateRealtime() error {
	if !c.Realtime.Enabled {
		return nil
	}
	if c.Realtime.Debounce < 0 {
		return fmt.Errorf("realtime.debounce must not be negative, got %s", c.Realtime.Debounce)
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.ping_interval must be positive, got %s", c.Realtime.PingInterval)
	}
	return nil
}
