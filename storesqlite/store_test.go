// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gestionstore/go-storesync/storesync"
)

func TestPut_AssignsIDAndMarksPending(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	id, err := client.Put(ctx, "products", storesync.Record{"name": "Savon", "price": 500.0})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	rec, err := client.Get(ctx, "products", id)
	require.NoError(t, err)
	require.Equal(t, "Savon", rec["name"])
	require.Equal(t, storesync.StatusPending, rec[storesync.FieldSyncStatus])
	_, ok := rec.CreatedAt()
	require.True(t, ok)
}

func TestPut_KeepsCallerID(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	want := uuid.New().String()
	got, err := client.Put(ctx, "products", storesync.Record{storesync.FieldID: want, "name": "Fixe"})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestPut_UpdateResetsSyncState(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	id, err := client.Put(ctx, "products", storesync.Record{"name": "V1"})
	require.NoError(t, err)

	// Simulate an acknowledged record, then modify it locally again.
	_, err = client.DB.ExecContext(ctx,
		`UPDATE "products" SET sync_status = 'synced', push_attempts = 3 WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = client.Put(ctx, "products", storesync.Record{storesync.FieldID: id, "name": "V2"})
	require.NoError(t, err)

	rec, err := client.Get(ctx, "products", id)
	require.NoError(t, err)
	require.Equal(t, "V2", rec["name"])
	require.Equal(t, storesync.StatusPending, rec[storesync.FieldSyncStatus])
}

func TestDelete_QueuesTombstone(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	id, err := client.Put(ctx, "customers", storesync.Record{"name": "Client"})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, "customers", id))

	_, err = client.Get(ctx, "customers", id)
	require.ErrorIs(t, err, ErrNotFound)

	var pk string
	err = client.DB.QueryRowContext(ctx,
		`SELECT pk FROM _sync_tombstones WHERE table_name = 'customers'`).Scan(&pk)
	require.NoError(t, err)
	require.Equal(t, id, pk)
}

func TestDelete_AbsentRecord(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	err := client.Delete(ctx, "customers", uuid.New().String())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPut_SupersedesTombstone(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	id, err := client.Put(ctx, "products", storesync.Record{"name": "Mort"})
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "products", id))

	// Re-creating the id cancels the queued deletion.
	_, err = client.Put(ctx, "products", storesync.Record{storesync.FieldID: id, "name": "Vivant"})
	require.NoError(t, err)

	var n int
	require.NoError(t, client.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _sync_tombstones`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestPendingCount(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	n, err := client.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = client.Put(ctx, "products", storesync.Record{"name": "A"})
	require.NoError(t, err)
	_, err = client.Put(ctx, "sales", storesync.Record{"total": 100.0})
	require.NoError(t, err)
	id, err := client.Put(ctx, "customers", storesync.Record{"name": "B"})
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "customers", id))

	// Two pending records plus one queued deletion.
	n, err = client.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestListPending_ExcludesSyncedAndFailed(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	pendingID, err := client.Put(ctx, "products", storesync.Record{"name": "Pending"})
	require.NoError(t, err)
	syncedID, err := client.Put(ctx, "products", storesync.Record{"name": "Synced"})
	require.NoError(t, err)
	failedID, err := client.Put(ctx, "products", storesync.Record{"name": "Failed"})
	require.NoError(t, err)

	_, err = client.DB.ExecContext(ctx,
		`UPDATE "products" SET sync_status = 'synced' WHERE id = ?`, syncedID)
	require.NoError(t, err)
	_, err = client.DB.ExecContext(ctx,
		`UPDATE "products" SET sync_status = 'failed' WHERE id = ?`, failedID)
	require.NoError(t, err)

	pending, err := client.ListPending(ctx, "products")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id, _ := pending[0].ID()
	require.Equal(t, pendingID, id)
}

func TestWatermark_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "")

	_, ok, err := client.Watermark(ctx, "products")
	require.NoError(t, err)
	require.False(t, ok)

	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, client.SetWatermark(ctx, "products", want))

	got, ok, err := client.Watermark(ctx, "products")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Equal(want))

	// Overwrite advances in place.
	later := want.Add(time.Hour)
	require.NoError(t, client.SetWatermark(ctx, "products", later))
	got, _, err = client.Watermark(ctx, "products")
	require.NoError(t, err)
	require.True(t, got.Equal(later))
}
