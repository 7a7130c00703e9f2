// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"time"
)

// REST/JSON models for the sync HTTP API.

// Record is the generic entity envelope. Every domain entity (product, sale,
// customer, ...) flows through sync as a Record; per-table field shapes stay
// opaque to the protocol, only the envelope fields (id, tenantId, createdAt,
// updatedAt) are interpreted.
type Record map[string]any

// ID returns the record id, if present and a string.
func (r Record) ID() (string, bool) {
	v, ok := r[FieldID].(string)
	return v, ok && v != ""
}

// TenantID returns the owning tenant id, if present and a string.
func (r Record) TenantID() (string, bool) {
	v, ok := r[FieldTenantID].(string)
	return v, ok && v != ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StripClientFields removes client-only sync bookkeeping fields from a copy of
// the record. Clients send records verbatim; stripping happens server-side.
func (r Record) StripClientFields() Record {
	out := r.Clone()
	delete(out, FieldSyncStatus)
	delete(out, FieldLastSyncedAt)
	return out
}

// CreatedAt parses the createdAt envelope field, if present.
func (r Record) CreatedAt() (time.Time, bool) {
	return r.timeField(FieldCreatedAt)
}

// UpdatedAt parses the updatedAt envelope field, if present.
func (r Record) UpdatedAt() (time.Time, bool) {
	return r.timeField(FieldUpdatedAt)
}

func (r Record) timeField(name string) (time.Time, bool) {
	switch v := r[name].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ChangeSet is the per-table wire entity of one sync call.
type ChangeSet struct {
	Table        string     `json:"table"`                  // Logical table name (e.g. "products")
	Records      []Record   `json:"records"`                // Pending local writes to push
	Deletions    []string   `json:"deletions,omitempty"`    // Tombstone ids, no payload
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"` // Pull watermark; nil on first sync (full pull)
}

// SyncRequest is the body of POST /sync.
type SyncRequest struct {
	Changes []ChangeSet `json:"changes"`
}

// TableResult is the per-table outcome returned by the server.
type TableResult struct {
	Pushed  int      `json:"pushed"`           // Records successfully upserted
	Deleted int      `json:"deleted"`          // Deletions successfully applied
	Pulled  []Record `json:"pulled"`           // Incremental pull set (full rows)
	Failed  []string `json:"failed,omitempty"` // Ids of records the server could not apply
}

// SyncResponse is the body of a successful POST /sync.
type SyncResponse struct {
	Success bool                   `json:"success"`
	Results map[string]TableResult `json:"results"`
}

// ErrorResponse is returned on fatal (request-level) failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
