// Package storesqlite provides the SQLite-backed client side of go-storesync:
// an offline-first local store whose pending writes and deletions are
// reconciled against a sync server in periodic full-cycle syncs.
// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gestionstore/go-storesync/storesync"
)

// Client manages the SQLite local store and the sync cycle against the server.
type Client struct {
	DB      *sql.DB
	BaseURL string
	// Token returns the bearer token supplied by the login flow. An empty
	// token sends the request unauthenticated.
	Token func(context.Context) (string, error)
	// Online reports device connectivity. Defaults to always-online.
	Online func() bool

	http   *resty.Client
	config *Config
	logger *slog.Logger

	// In-flight guard: a second cycle (manual call or timer tick) while one is
	// outstanding is refused instead of overlapping.
	syncing int32
}

// Config holds configuration for the SQLite sync client.
type Config struct {
	Tables          []storesync.TableSpec // Synced tables; Tables() covers the full set
	Interval        time.Duration         // Auto-sync tick interval
	RequestTimeout  time.Duration         // Per-cycle HTTP timeout
	MaxPushAttempts int                   // Cycles a record may stay rejected before it is marked failed
}

// DefaultConfig returns the default configuration over the full table set.
func DefaultConfig() *Config {
	return &Config{
		Tables:          storesync.Tables(),
		Interval:        30 * time.Second,
		RequestTimeout:  30 * time.Second,
		MaxPushAttempts: 5,
	}
}

// NewClient creates a new SQLite sync client and initializes the local schema
// for all configured tables.
func NewClient(db *sql.DB, baseURL string, tok func(ctx context.Context) (string, error), config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Tables) == 0 {
		config.Tables = storesync.Tables()
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxPushAttempts <= 0 {
		config.MaxPushAttempts = 5
	}
	if tok == nil {
		tok = func(context.Context) (string, error) { return "", nil }
	}

	if err := initializeDatabase(db, config.Tables); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Client{
		DB:      db,
		BaseURL: baseURL,
		Token:   tok,
		Online:  func() bool { return true },
		http:    resty.New().SetTimeout(config.RequestTimeout),
		config:  config,
		logger:  slog.Default(),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// initializeDatabase creates the per-entity tables and the sync metadata
// tables (watermarks and tombstones).
func initializeDatabase(db *sql.DB, tables []storesync.TableSpec) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	meta := []string{
		// One watermark per table, keyed by logical name (the lastSync_<table>
		// value of the original client, normalized into a table)
		`CREATE TABLE IF NOT EXISTS _sync_watermarks (
			table_name     TEXT NOT NULL,
			last_synced_at TEXT NOT NULL,
			PRIMARY KEY (table_name)
		)`,

		// Local deletions awaiting propagation (ids only, no payload)
		`CREATE TABLE IF NOT EXISTS _sync_tombstones (
			table_name TEXT NOT NULL,
			pk         TEXT NOT NULL,
			deleted_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (table_name, pk)
		)`,
	}
	for _, stmt := range meta {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create sync metadata table: %w", err)
		}
	}

	for _, spec := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id             TEXT PRIMARY KEY,
			payload        TEXT NOT NULL,
			sync_status    TEXT NOT NULL DEFAULT 'pending'
				CHECK (sync_status IN ('pending','synced','conflict','failed')),
			push_attempts  INTEGER NOT NULL DEFAULT 0,
			last_synced_at TEXT
		)`, spec.SQLName)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sync_status ON %q (sync_status)`,
			spec.SQLName, spec.SQLName)
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to index table %s: %w", spec.Name, err)
		}
	}

	return nil
}

// syncInFlight reports whether a sync cycle is currently running.
func (c *Client) syncInFlight() bool {
	return atomic.LoadInt32(&c.syncing) == 1
}
