// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"fmt"

	"github.com/gestionstore/go-storesync/storesync"
)

// BuildChangeSets assembles one ChangeSet per configured table: the pending
// records, the queued deletions, and the stored watermark. A table with
// nothing to push still gets a ChangeSet: the pull side must run even when
// the push side is empty. Records go out verbatim, sync bookkeeping fields
// included; the server strips them.
func (c *Client) BuildChangeSets(ctx context.Context) ([]storesync.ChangeSet, error) {
	changes := make([]storesync.ChangeSet, 0, len(c.config.Tables))

	for _, spec := range c.config.Tables {
		pending, err := c.ListPending(ctx, spec.Name)
		if err != nil {
			return nil, err
		}

		deletions, err := c.tombstones(ctx, spec.Name)
		if err != nil {
			return nil, err
		}

		cs := storesync.ChangeSet{
			Table:     spec.Name,
			Records:   pending,
			Deletions: deletions,
		}
		if cs.Records == nil {
			cs.Records = []storesync.Record{}
		}

		if watermark, ok, err := c.Watermark(ctx, spec.Name); err != nil {
			return nil, err
		} else if ok {
			w := watermark
			cs.LastSyncedAt = &w
		}

		changes = append(changes, cs)
	}

	return changes, nil
}

func (c *Client) tombstones(ctx context.Context, table string) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx,
		`SELECT pk FROM _sync_tombstones WHERE table_name = ? ORDER BY deleted_at`, table)
	if err != nil {
		return nil, fmt.Errorf("list tombstones %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
