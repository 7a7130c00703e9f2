// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL implementation of the Store port. Each entity
// lives in its own envelope table:
//
//	id uuid PRIMARY KEY, tenant_id uuid NULL, created_at, updated_at,
//	sync_status, last_synced_at, payload jsonb
//
// Business fields ride in payload; the envelope columns are what sync
// interprets. Schema DDL lives in the goose migrations under migrations/.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	sb     sq.StatementBuilderType
}

// NewPGStore creates a store over an existing pool. The caller owns the pool
// lifecycle and is expected to have run migrations.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{
		pool:   pool,
		logger: logger,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Pool returns the underlying connection pool for advanced callers.
func (p *PGStore) Pool() *pgxpool.Pool {
	return p.pool
}

// Upsert implements Store. The stored row is stamped synced with server-clock
// updated_at/last_synced_at so other devices' watermark pulls observe the
// write regardless of client clock skew. tenant_id is written on create only;
// the conflict branch refuses to touch a row owned by a different tenant.
func (p *PGStore) Upsert(ctx context.Context, spec TableSpec, scope Scope, rec Record) error {
	id, ok := rec.ID()
	if !ok {
		return fmt.Errorf("%w: record without id", ErrConstraint)
	}

	tenantID, _ := rec.TenantID()
	createdAt := time.Now().UTC()
	if t, ok := rec.CreatedAt(); ok {
		createdAt = t
	}

	payload := rec.Clone()
	delete(payload, FieldID)
	delete(payload, FieldTenantID)
	delete(payload, FieldCreatedAt)
	delete(payload, FieldUpdatedAt)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query, args, err := p.sb.
		Insert(spec.SQLName).
		Columns("id", "tenant_id", "created_at", "updated_at", "sync_status", "last_synced_at", "payload").
		Values(id, nullableUUID(tenantID), createdAt, sq.Expr("now()"), StatusSynced, sq.Expr("now()"), payloadJSON).
		Suffix(fmt.Sprintf(`ON CONFLICT (id) DO UPDATE
			SET updated_at = now(),
			    sync_status = EXCLUDED.sync_status,
			    last_synced_at = now(),
			    payload = EXCLUDED.payload
			WHERE %s.tenant_id IS NOT DISTINCT FROM EXCLUDED.tenant_id OR ?`, spec.SQLName), scope.Global).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return p.classify(err, spec, id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s.%s", ErrTenantMismatch, spec.Name, id)
	}
	return nil
}

// Delete implements Store. Tenant-scoped: a caller can only delete rows its
// scope can see. Missing rows report ErrRowNotFound, which the engine treats
// as a harmless no-op.
func (p *PGStore) Delete(ctx context.Context, spec TableSpec, scope Scope, id string) error {
	del := p.sb.Delete(spec.SQLName).Where(sq.Eq{"id": id})
	if !scope.Global {
		del = del.Where(sq.Eq{"tenant_id": scope.TenantID})
	}
	query, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return p.classify(err, spec, id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s.%s", ErrRowNotFound, spec.Name, id)
	}
	return nil
}

// ChangedSince implements Store.
func (p *PGStore) ChangedSince(ctx context.Context, spec TableSpec, scope Scope, since *time.Time) ([]Record, error) {
	sel := p.sb.
		Select("id", "tenant_id", "created_at", "updated_at", "last_synced_at", "payload").
		From(spec.SQLName)
	if !scope.Global {
		sel = sel.Where(sq.Eq{"tenant_id": scope.TenantID})
	}
	if since != nil {
		sel = sel.Where(sq.Gt{spec.WatermarkColumn: *since})
	}
	sel = sel.OrderBy(spec.WatermarkColumn + " ASC, id ASC")

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pull query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", spec.Name, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id           string
			tenantID     *string
			createdAt    time.Time
			updatedAt    time.Time
			lastSyncedAt *time.Time
			payloadJSON  []byte
		)
		if err := rows.Scan(&id, &tenantID, &createdAt, &updatedAt, &lastSyncedAt, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", spec.Name, err)
		}

		rec := Record{}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &rec); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", spec.Name, err)
			}
		}
		rec[FieldID] = id
		if tenantID != nil && *tenantID != "" {
			rec[FieldTenantID] = *tenantID
		}
		rec[FieldCreatedAt] = createdAt.UTC().Format(time.RFC3339Nano)
		rec[FieldUpdatedAt] = updatedAt.UTC().Format(time.RFC3339Nano)
		rec[FieldSyncStatus] = StatusSynced
		if lastSyncedAt != nil {
			rec[FieldLastSyncedAt] = lastSyncedAt.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count implements Store.
func (p *PGStore) Count(ctx context.Context, spec TableSpec, scope Scope) (int64, error) {
	sel := p.sb.Select("COUNT(*)").From(spec.SQLName)
	if !scope.Global {
		sel = sel.Where(sq.Eq{"tenant_id": scope.TenantID})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int64
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Name, err)
	}
	return n, nil
}

// classify maps Postgres errors onto the store sentinels so the engine can
// keep its per-row skip policy storage-agnostic.
func (p *PGStore) classify(err error, spec TableSpec, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s.%s", ErrRowNotFound, spec.Name, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.SQLState()) {
		return fmt.Errorf("%w: %s.%s: %s", ErrConstraint, spec.Name, id, pgErr.Message)
	}
	return err
}

func nullableUUID(v string) any {
	if v == "" {
		return nil
	}
	return v
}
