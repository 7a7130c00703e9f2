// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gestionstore/go-storesync/storesync"
)

// ErrNotFound is returned when a record does not exist locally.
var ErrNotFound = errors.New("record not found")

func (c *Client) spec(table string) (storesync.TableSpec, error) {
	for _, s := range c.config.Tables {
		if s.Name == table {
			return s, nil
		}
	}
	return storesync.TableSpec{}, fmt.Errorf("table %s not configured for sync", table)
}

// Put upserts a record into the local table and marks it pending for the next
// sync cycle. A record without an id gets a fresh collision-resistant one.
// Returns the record id.
func (c *Client) Put(ctx context.Context, table string, rec storesync.Record) (string, error) {
	spec, err := c.spec(table)
	if err != nil {
		return "", err
	}

	id, ok := rec.ID()
	if !ok {
		id = uuid.New().String()
		rec = rec.Clone()
		rec[storesync.FieldID] = id
	}
	if _, ok := rec.CreatedAt(); !ok {
		rec = rec.Clone()
		rec[storesync.FieldCreatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	payload, err := json.Marshal(rec.StripClientFields())
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	_, err = c.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (id, payload, sync_status, push_attempts, last_synced_at)
		VALUES (?, ?, 'pending', 0, NULL)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			sync_status = 'pending',
			push_attempts = 0
	`, spec.SQLName), id, string(payload))
	if err != nil {
		return "", fmt.Errorf("put %s.%s: %w", table, id, err)
	}

	// A re-created id supersedes any tombstone for it
	if _, err := c.DB.ExecContext(ctx,
		`DELETE FROM _sync_tombstones WHERE table_name = ? AND pk = ?`, table, id); err != nil {
		return "", fmt.Errorf("clear tombstone %s.%s: %w", table, id, err)
	}

	return id, nil
}

// Get returns one local record with its sync bookkeeping fields attached.
func (c *Client) Get(ctx context.Context, table, id string) (storesync.Record, error) {
	spec, err := c.spec(table)
	if err != nil {
		return nil, err
	}

	var (
		payload      string
		status       string
		lastSyncedAt sql.NullString
	)
	err = c.DB.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload, sync_status, last_synced_at FROM %q WHERE id = ?`, spec.SQLName), id).
		Scan(&payload, &status, &lastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s.%s: %w", table, id, err)
	}
	return decodeRow(payload, status, lastSyncedAt)
}

// List returns all local records of a table.
func (c *Client) List(ctx context.Context, table string) ([]storesync.Record, error) {
	return c.listWhere(ctx, table, "")
}

// ListPending returns records awaiting acknowledgment by the server. Records
// marked failed after repeated server rejection are excluded until they are
// locally modified again.
func (c *Client) ListPending(ctx context.Context, table string) ([]storesync.Record, error) {
	return c.listWhere(ctx, table, "WHERE sync_status = 'pending'")
}

func (c *Client) listWhere(ctx context.Context, table, where string) ([]storesync.Record, error) {
	spec, err := c.spec(table)
	if err != nil {
		return nil, err
	}

	rows, err := c.DB.QueryContext(ctx, fmt.Sprintf(
		`SELECT payload, sync_status, last_synced_at FROM %q %s`, spec.SQLName, where))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []storesync.Record
	for rows.Next() {
		var (
			payload      string
			status       string
			lastSyncedAt sql.NullString
		)
		if err := rows.Scan(&payload, &status, &lastSyncedAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		rec, err := decodeRow(payload, status, lastSyncedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record locally and queues a tombstone so the deletion
// propagates to the server on the next cycle.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	spec, err := c.spec(table)
	if err != nil {
		return err
	}

	res, err := c.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, spec.SQLName), id)
	if err != nil {
		return fmt.Errorf("delete %s.%s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s.%s", ErrNotFound, table, id)
	}

	_, err = c.DB.ExecContext(ctx, `
		INSERT INTO _sync_tombstones (table_name, pk) VALUES (?, ?)
		ON CONFLICT (table_name, pk) DO NOTHING
	`, table, id)
	if err != nil {
		return fmt.Errorf("queue tombstone %s.%s: %w", table, id, err)
	}
	return nil
}

// PendingCount returns the aggregate number of records awaiting sync across
// all configured tables, plus queued deletions. This is the counter surfaced
// to the user.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	total := 0
	for _, spec := range c.config.Tables {
		var n int
		err := c.DB.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM %q WHERE sync_status = 'pending'`, spec.SQLName)).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("pending count %s: %w", spec.Name, err)
		}
		total += n
	}

	var tombs int
	if err := c.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM _sync_tombstones`).Scan(&tombs); err != nil {
		return 0, fmt.Errorf("pending tombstone count: %w", err)
	}
	return total + tombs, nil
}

// Watermark returns the stored pull watermark for a table, if any.
func (c *Client) Watermark(ctx context.Context, table string) (time.Time, bool, error) {
	var raw string
	err := c.DB.QueryRowContext(ctx,
		`SELECT last_synced_at FROM _sync_watermarks WHERE table_name = ?`, table).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", table, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %s: %w", table, err)
	}
	return t, true, nil
}

// SetWatermark stores the pull watermark for a table.
func (c *Client) SetWatermark(ctx context.Context, table string, t time.Time) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO _sync_watermarks (table_name, last_synced_at) VALUES (?, ?)
		ON CONFLICT (table_name) DO UPDATE SET last_synced_at = excluded.last_synced_at
	`, table, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", table, err)
	}
	return nil
}

// clearWatermarks drops all stored watermarks, forcing the next cycle into a
// full pull for every table.
func (c *Client) clearWatermarks(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, `DELETE FROM _sync_watermarks`); err != nil {
		return fmt.Errorf("clear watermarks: %w", err)
	}
	return nil
}

// isEmpty reports whether every configured table is empty locally.
func (c *Client) isEmpty(ctx context.Context) (bool, error) {
	for _, spec := range c.config.Tables {
		var n int
		err := c.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, spec.SQLName)).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", spec.Name, err)
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

func decodeRow(payload, status string, lastSyncedAt sql.NullString) (storesync.Record, error) {
	rec := storesync.Record{}
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	rec[storesync.FieldSyncStatus] = status
	if lastSyncedAt.Valid {
		rec[storesync.FieldLastSyncedAt] = lastSyncedAt.String
	}
	return rec, nil
}
