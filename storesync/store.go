// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"context"
	"errors"
	"time"
)

// Scope is an already-validated tenant scope. The boundary (JWT middleware)
// decides privilege; the engine and stores only apply the filter. Global is
// the platform-level (super-admin) variant: no tenant filter at all.
type Scope struct {
	TenantID string
	Global   bool
}

// Matches reports whether a row owned by tenantID is visible in this scope.
func (s Scope) Matches(tenantID string) bool {
	if s.Global {
		return true
	}
	return tenantID == s.TenantID
}

// Store errors the engine recovers from per row.
var (
	// ErrRowNotFound is returned by Delete when no row matched the id within
	// the scope. Deleting an already-deleted id is a harmless no-op.
	ErrRowNotFound = errors.New("row not found")

	// ErrTenantMismatch is returned when an upsert or delete would touch a row
	// owned by a different tenant. A row's tenant is never reassigned by sync.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrConstraint wraps storage constraint violations (FK, checks) on a
	// single row. The engine logs and skips; the batch continues.
	ErrConstraint = errors.New("constraint violation")
)

// Store is the per-table storage port the reconciliation engine runs against.
// The server-side Postgres implementation is PGStore; MemStore provides the
// same semantics in memory for tests and embedding.
//
// All operations are row-independent: there is no cross-table or cross-row
// transaction, matching the skip-bad-rows-keep-going failure policy.
type Store interface {
	// Upsert writes the record by id within scope. The stored row is stamped
	// synced with last_synced_at/updated_at at apply time; tenant_id is set on
	// create and never changed on update.
	Upsert(ctx context.Context, spec TableSpec, scope Scope, rec Record) error

	// Delete removes the row by id within scope. Destructive: no tombstone is
	// retained server-side.
	Delete(ctx context.Context, spec TableSpec, scope Scope, id string) error

	// ChangedSince returns all rows in scope whose watermark column is
	// strictly after since. A nil since returns everything in scope.
	ChangedSince(ctx context.Context, spec TableSpec, scope Scope, since *time.Time) ([]Record, error)

	// Count returns the number of rows visible in scope.
	Count(ctx context.Context, spec TableSpec, scope Scope) (int64, error)
}
