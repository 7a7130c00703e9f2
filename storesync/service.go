// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// SyncService is the server-side reconciliation engine: the authoritative
// merge step between client change-sets and the server store. It is a pure
// function of (scope, change-sets, store): privilege decisions happen at the
// HTTP boundary, persistence behind the Store port.
type SyncService struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
	config   *ServiceConfig
}

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	Registry *Registry // Table registry; DefaultRegistry() when nil
	AppName  string    // Application name attached to the engine's log records
}

// NewSyncService creates a new reconciliation engine over the given store.
func NewSyncService(store Store, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.Registry == nil {
		config.Registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.AppName != "" {
		logger = logger.With("app", config.AppName)
	}
	return &SyncService{
		store:    store,
		registry: config.Registry,
		logger:   logger,
		config:   config,
	}, nil
}

// Registry returns the table registry the engine resolves change-sets against.
func (s *SyncService) Registry() *Registry {
	return s.registry
}

// ProcessSync applies one sync request within the given scope and computes the
// per-table pull sets. Per-row failures are logged and skipped; a single bad
// record or deletion never blocks convergence of the rest of the tenant's
// data. Only a malformed top-level request returns an error.
func (s *SyncService) ProcessSync(ctx context.Context, scope Scope, req *SyncRequest) (*SyncResponse, error) {
	if req == nil {
		return nil, errors.New("nil sync request")
	}

	results := make(map[string]TableResult, len(req.Changes))
	for _, cs := range req.Changes {
		spec, ok := s.registry.Lookup(cs.Table)
		if !ok {
			// Version skew: one side knows a table the other does not yet.
			s.logger.Debug("Skipping unknown table", "table", cs.Table)
			continue
		}

		result, err := s.processTable(ctx, scope, spec, cs)
		if err != nil {
			return nil, fmt.Errorf("sync table %s: %w", cs.Table, err)
		}
		results[cs.Table] = result
	}

	return &SyncResponse{Success: true, Results: results}, nil
}

// processTable runs the three reconciliation phases for one table entry.
// Deletions are applied before pushes so a delete-then-recreate of the same id
// within one batch works.
func (s *SyncService) processTable(ctx context.Context, scope Scope, spec TableSpec, cs ChangeSet) (TableResult, error) {
	result := TableResult{Pulled: []Record{}}

	// Phase 1: deletions, each independent and best-effort. Destructive
	// server-side deletes; count reflects successful deletes only.
	for _, id := range cs.Deletions {
		if err := s.store.Delete(ctx, spec, scope, id); err != nil {
			if errors.Is(err, ErrRowNotFound) {
				s.logger.Debug("Deletion of absent row", "table", spec.Name, "id", id)
			} else {
				s.logger.Warn("Deletion failed", "table", spec.Name, "id", id, "error", err)
			}
			continue
		}
		result.Deleted++
	}

	// Phase 2: push. Strip client-only sync fields, stamp tenant ownership,
	// upsert by id. Rejected records are reported back, the rest still land.
	for _, rec := range cs.Records {
		id, err := s.pushRecord(ctx, scope, spec, rec)
		if err != nil {
			s.logger.Warn("Push failed", "table", spec.Name, "id", id, "error", err)
			if id != "" {
				result.Failed = append(result.Failed, id)
			}
			continue
		}
		result.Pushed++
	}

	// Phase 3: incremental pull. Tenant scope plus the per-table watermark
	// column; rows are returned to any device of the tenant so that multiple
	// devices converge on the same state.
	pulled, err := s.store.ChangedSince(ctx, spec, scope, cs.LastSyncedAt)
	if err != nil {
		return result, fmt.Errorf("pull: %w", err)
	}
	if pulled != nil {
		result.Pulled = pulled
	}

	return result, nil
}

// pushRecord validates and upserts one pushed record. It returns the record id
// when one could be determined, so failures can be reported back per record.
func (s *SyncService) pushRecord(ctx context.Context, scope Scope, spec TableSpec, rec Record) (string, error) {
	id, ok := rec.ID()
	if !ok {
		return "", errors.New("record has no id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return id, fmt.Errorf("invalid record id: %w", err)
	}

	clean := rec.StripClientFields()

	// Enforcement point against cross-tenant injection: a tenant-scoped caller
	// can only ever create rows owned by its own tenant.
	if _, has := clean.TenantID(); !has && !scope.Global {
		clean[FieldTenantID] = scope.TenantID
	}

	if err := s.store.Upsert(ctx, spec, scope, clean); err != nil {
		return id, err
	}
	return id, nil
}

// Status returns the scope-visible row count per registered table, for the
// coarse health display behind GET /sync/status. A table whose count fails is
// reported as zero rather than failing the request.
func (s *SyncService) Status(ctx context.Context, scope Scope) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.registry.All()))
	for _, spec := range s.registry.All() {
		n, err := s.store.Count(ctx, spec, scope)
		if err != nil {
			s.logger.Warn("Count failed", "table", spec.Name, "error", err)
			n = 0
		}
		counts[spec.Name] = n
	}
	return counts, nil
}
