// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same scope and tenant-guard
// semantics as PGStore. It lets the reconciliation engine be exercised
// without a live database, and doubles as a lightweight backend for tests
// and simulations.
type MemStore struct {
	// Clock supplies "now" for updated_at/last_synced_at stamping.
	// Defaults to time.Now; tests override it to control pull deltas.
	Clock func() time.Time

	mu     sync.RWMutex
	tables map[string]map[string]*memRow
}

type memRow struct {
	tenantID  string
	createdAt time.Time
	updatedAt time.Time
	syncedAt  time.Time
	fields    Record // business fields, envelope keys excluded
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		Clock:  time.Now,
		tables: make(map[string]map[string]*memRow),
	}
}

// rows materializes the per-table map. Callers must hold the write lock;
// read paths use readRows instead so they stay safe under RLock.
func (m *MemStore) rows(spec TableSpec) map[string]*memRow {
	rows, ok := m.tables[spec.SQLName]
	if !ok {
		rows = make(map[string]*memRow)
		m.tables[spec.SQLName] = rows
	}
	return rows
}

// readRows returns the per-table map without creating it; a table that was
// never written is an empty (nil) map.
func (m *MemStore) readRows(spec TableSpec) map[string]*memRow {
	return m.tables[spec.SQLName]
}

// Upsert implements Store.
func (m *MemStore) Upsert(_ context.Context, spec TableSpec, scope Scope, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return fmt.Errorf("%w: record without id", ErrConstraint)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	rows := m.rows(spec)

	tenantID, _ := rec.TenantID()
	fields := rec.Clone()
	delete(fields, FieldID)
	delete(fields, FieldTenantID)
	delete(fields, FieldCreatedAt)
	delete(fields, FieldUpdatedAt)

	if existing, found := rows[id]; found {
		if !scope.Global && existing.tenantID != scope.TenantID {
			return fmt.Errorf("%w: %s.%s", ErrTenantMismatch, spec.Name, id)
		}
		// tenant_id is never reassigned on update
		existing.fields = fields
		existing.updatedAt = now
		existing.syncedAt = now
		return nil
	}

	createdAt := now
	if t, ok := rec.CreatedAt(); ok {
		createdAt = t
	}
	rows[id] = &memRow{
		tenantID:  tenantID,
		createdAt: createdAt,
		updatedAt: now,
		syncedAt:  now,
		fields:    fields,
	}
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(_ context.Context, spec TableSpec, scope Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows(spec)
	row, found := rows[id]
	if !found {
		return fmt.Errorf("%w: %s.%s", ErrRowNotFound, spec.Name, id)
	}
	if !scope.Global && row.tenantID != scope.TenantID {
		return fmt.Errorf("%w: %s.%s", ErrTenantMismatch, spec.Name, id)
	}
	delete(rows, id)
	return nil
}

// ChangedSince implements Store.
func (m *MemStore) ChangedSince(_ context.Context, spec TableSpec, scope Scope, since *time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type keyed struct {
		id        string
		watermark time.Time
		rec       Record
	}

	var out []keyed
	for id, row := range m.readRows(spec) {
		if !scope.Matches(row.tenantID) {
			continue
		}
		watermark := row.updatedAt
		if spec.WatermarkColumn == "created_at" {
			watermark = row.createdAt
		}
		if since != nil && !watermark.After(*since) {
			continue
		}
		out = append(out, keyed{id: id, watermark: watermark, rec: renderRow(id, row)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].watermark.Equal(out[j].watermark) {
			return out[i].id < out[j].id
		}
		return out[i].watermark.Before(out[j].watermark)
	})

	recs := make([]Record, len(out))
	for i, k := range out {
		recs[i] = k.rec
	}
	return recs, nil
}

// Count implements Store.
func (m *MemStore) Count(_ context.Context, spec TableSpec, scope Scope) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, row := range m.readRows(spec) {
		if scope.Matches(row.tenantID) {
			n++
		}
	}
	return n, nil
}

func renderRow(id string, row *memRow) Record {
	rec := row.fields.Clone()
	rec[FieldID] = id
	if row.tenantID != "" {
		rec[FieldTenantID] = row.tenantID
	}
	rec[FieldCreatedAt] = row.createdAt.UTC().Format(time.RFC3339Nano)
	rec[FieldUpdatedAt] = row.updatedAt.UTC().Format(time.RFC3339Nano)
	rec[FieldSyncStatus] = StatusSynced
	rec[FieldLastSyncedAt] = row.syncedAt.UTC().Format(time.RFC3339Nano)
	return rec
}
