// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package config provides layered configuration for EventLedger using
// Koanf v2. Precedence: environment variables > YAML config file > built-in
// defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Compactor CompactorConfig `koanf:"compactor"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// StoreConfig holds settings for the backing key-value table.
type StoreConfig struct {
	// Path is the directory holding badger data. The table name is appended,
	// so two tables under one path never share files.
	Path string `koanf:"path"`
	// Table names the backing table (EVENTLEDGER_TABLE).
	Table string `koanf:"table"`
	// InMemory runs badger without disk persistence. For tests and local
	// development only.
	InMemory bool `koanf:"in_memory"`
}

// LedgerConfig holds engine-level settings.
type LedgerConfig struct {
	// MaxPollLimit caps the limit query parameter on poll requests.
	MaxPollLimit int `koanf:"max_poll_limit"`
	// DeletePageSize caps rows removed per store call during stream purges.
	DeletePageSize int `koanf:"delete_page_size"`
}

// CompactorConfig holds compaction worker settings.
type CompactorConfig struct {
	Enabled bool `koanf:"enabled"`
	// Topic is the change-feed topic the compactor consumes.
	Topic string `koanf:"topic"`
	// PoisonTopic receives change records that exhausted retries.
	PoisonTopic string `koanf:"poison_topic"`
	// RetryCount is the number of redeliveries before a record is poisoned.
	RetryCount int `koanf:"retry_count"`
	// RetryInterval is the initial backoff between redeliveries.
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// NATSConfig holds JetStream settings for the multi-process change-feed
// transport (build tag: nats). The default in-process transport ignores it.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	StreamName     string        `koanf:"stream_name"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8680,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Path:     "/data/eventledger",
			Table:    "eventledger",
			InMemory: false,
		},
		Ledger: LedgerConfig{
			MaxPollLimit:   1000,
			DeletePageSize: 500,
		},
		Compactor: CompactorConfig{
			Enabled:       true,
			Topic:         "ledger.changes",
			PoisonTopic:   "ledger.changes.poison",
			RetryCount:    3,
			RetryInterval: 100 * time.Millisecond,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			StreamName:     "eventledger-changes",
			DurableName:    "compactor",
			QueueGroup:     "compactors",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			AckWaitTimeout: 30 * time.Second,
			CloseTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Store.Table == "" {
		return fmt.Errorf("store.table must not be empty")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty when not in memory")
	}
	if c.Ledger.MaxPollLimit < 1 {
		return fmt.Errorf("ledger.max_poll_limit must be >= 1, got %d", c.Ledger.MaxPollLimit)
	}
	if c.Ledger.DeletePageSize < 1 {
		return fmt.Errorf("ledger.delete_page_size must be >= 1, got %d", c.Ledger.DeletePageSize)
	}
	if c.Compactor.Enabled && c.Compactor.Topic == "" {
		return fmt.Errorf("compactor.topic must not be empty when the compactor is enabled")
	}
	return nil
}
