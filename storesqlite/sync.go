// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gestionstore/go-storesync/storesync"
)

// Structured failure reasons of a sync cycle. The first two mirror the
// user-facing messages of the original product.
var (
	// ErrNotConfigured: no server base URL; sync is disabled, not broken.
	ErrNotConfigured = errors.New("Serveur non configuré")

	// ErrOffline: the device reports itself offline; retried on a later tick.
	ErrOffline = errors.New("Hors ligne")

	// ErrSyncBusy: another cycle is in flight; this one is refused instead of
	// overlapping it.
	ErrSyncBusy = errors.New("Synchronisation déjà en cours")
)

// SyncAll runs one full sync cycle: build change-sets for every table, POST
// them to the server, then apply the response (acknowledge pushes, upsert
// pulled rows, advance watermarks).
//
// Any transport or parse failure aborts the cycle before any local mutation,
// so a failed cycle is wholesale retryable on the next tick.
func (c *Client) SyncAll(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.syncing, 0, 1) {
		return ErrSyncBusy
	}
	defer atomic.StoreInt32(&c.syncing, 0)

	if c.BaseURL == "" {
		return ErrNotConfigured
	}
	if c.Online != nil && !c.Online() {
		return ErrOffline
	}

	changes, err := c.BuildChangeSets(ctx)
	if err != nil {
		return fmt.Errorf("build change-sets: %w", err)
	}

	response, err := c.sendSyncRequest(ctx, changes)
	if err != nil {
		return err
	}

	return c.applyResponse(ctx, changes, response)
}

// ForceFullSync drops every watermark and runs a cycle, pulling the server's
// complete dataset for the tenant.
func (c *Client) ForceFullSync(ctx context.Context) error {
	if err := c.clearWatermarks(ctx); err != nil {
		return err
	}
	return c.SyncAll(ctx)
}

// Bootstrap runs a forced full sync when the local store is empty, the
// first-launch path that hydrates a fresh device from the server.
func (c *Client) Bootstrap(ctx context.Context) error {
	empty, err := c.isEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	return c.ForceFullSync(ctx)
}

func (c *Client) sendSyncRequest(ctx context.Context, changes []storesync.ChangeSet) (*storesync.SyncResponse, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(storesync.SyncRequest{Changes: changes}).
		SetResult(&storesync.SyncResponse{})
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Post(strings.TrimRight(c.BaseURL, "/") + "/sync")
	if err != nil {
		return nil, fmt.Errorf("sync request: %w", err)
	}
	if resp.IsError() {
		var serverErr storesync.ErrorResponse
		if jsonErr := json.Unmarshal(resp.Body(), &serverErr); jsonErr == nil && serverErr.Error != "" {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), serverErr.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	response, ok := resp.Result().(*storesync.SyncResponse)
	if !ok || response == nil {
		return nil, errors.New("unexpected sync response")
	}
	return response, nil
}

// applyResponse is the client apply engine. Per table with a result:
// acknowledge the records that were pending before the round trip, track the
// ones the server reported failed, upsert every pulled row unconditionally
// (last-write-wins, no field merge), retire the sent tombstones, and advance
// the watermark to the current client time.
func (c *Client) applyResponse(ctx context.Context, changes []storesync.ChangeSet, response *storesync.SyncResponse) error {
	now := time.Now().UTC()

	for _, cs := range changes {
		result, ok := response.Results[cs.Table]
		if !ok {
			continue
		}
		spec, err := c.spec(cs.Table)
		if err != nil {
			return err
		}

		if err := c.markSynced(ctx, spec, result.Failed, now); err != nil {
			return err
		}
		if err := c.trackFailed(ctx, spec, result.Failed); err != nil {
			return err
		}

		for _, rec := range result.Pulled {
			if err := c.applyPulled(ctx, spec, rec, now); err != nil {
				return err
			}
		}

		if err := c.clearTombstones(ctx, cs.Table, cs.Deletions); err != nil {
			return err
		}
		if err := c.SetWatermark(ctx, cs.Table, now); err != nil {
			return err
		}
	}

	return nil
}

// markSynced acknowledges the records that are still pending after the round
// trip, excluding the ones the server reported failed.
func (c *Client) markSynced(ctx context.Context, spec storesync.TableSpec, failed []string, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %q SET sync_status = 'synced', last_synced_at = ?, push_attempts = 0
		WHERE sync_status = 'pending'`, spec.SQLName)
	args := []any{now.Format(time.RFC3339Nano)}
	if len(failed) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(failed)) + `)`
		for _, id := range failed {
			args = append(args, id)
		}
	}
	if _, err := c.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark synced %s: %w", spec.Name, err)
	}
	return nil
}

// trackFailed counts a rejected push attempt per record and tips records over
// into the failed status once the attempt budget is spent, so permanently
// rejected records surface instead of staying silently pending forever.
func (c *Client) trackFailed(ctx context.Context, spec storesync.TableSpec, failed []string) error {
	for _, id := range failed {
		if _, err := c.DB.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %q SET push_attempts = push_attempts + 1
			WHERE id = ? AND sync_status = 'pending'`, spec.SQLName), id); err != nil {
			return fmt.Errorf("track failed push %s.%s: %w", spec.Name, id, err)
		}
		if _, err := c.DB.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %q SET sync_status = 'failed'
			WHERE id = ? AND sync_status = 'pending' AND push_attempts >= ?`, spec.SQLName),
			id, c.config.MaxPushAttempts); err != nil {
			return fmt.Errorf("mark failed %s.%s: %w", spec.Name, id, err)
		}
		c.logger.Warn("Server rejected record", "table", spec.Name, "id", id)
	}
	return nil
}

// applyPulled upserts one server row into the local table, unconditionally
// overwriting local state.
func (c *Client) applyPulled(ctx context.Context, spec storesync.TableSpec, rec storesync.Record, now time.Time) error {
	id, ok := rec.ID()
	if !ok {
		c.logger.Warn("Pulled record without id", "table", spec.Name)
		return nil
	}

	status := storesync.StatusSynced
	if s, ok := rec[storesync.FieldSyncStatus].(string); ok && s != "" {
		status = s
	}
	lastSyncedAt := now.Format(time.RFC3339Nano)
	if s, ok := rec[storesync.FieldLastSyncedAt].(string); ok && s != "" {
		lastSyncedAt = s
	}

	payload, err := json.Marshal(rec.StripClientFields())
	if err != nil {
		return fmt.Errorf("marshal pulled %s.%s: %w", spec.Name, id, err)
	}

	_, err = c.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (id, payload, sync_status, push_attempts, last_synced_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			sync_status = excluded.sync_status,
			push_attempts = 0,
			last_synced_at = excluded.last_synced_at
	`, spec.SQLName), id, string(payload), status, lastSyncedAt)
	if err != nil {
		return fmt.Errorf("apply pulled %s.%s: %w", spec.Name, id, err)
	}
	return nil
}

// clearTombstones retires the deletions that were carried by this cycle.
func (c *Client) clearTombstones(ctx context.Context, table string, sent []string) error {
	for _, id := range sent {
		if _, err := c.DB.ExecContext(ctx,
			`DELETE FROM _sync_tombstones WHERE table_name = ? AND pk = ?`, table, id); err != nil {
			return fmt.Errorf("clear tombstone %s.%s: %w", table, id, err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
