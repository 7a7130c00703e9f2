// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

// Sync status values carried on client-side records. The server stamps
// StatusSynced on every row it stores; StatusConflict is reserved and never
// set by the current last-write-wins policy. StatusFailed marks records the
// server repeatedly refused to apply.
const (
	StatusPending  = "pending"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
	StatusFailed   = "failed"
)

// Envelope field names shared by every synced record.
const (
	FieldID           = "id"
	FieldTenantID     = "tenantId"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
	FieldSyncStatus   = "syncStatus"
	FieldLastSyncedAt = "lastSyncedAt"
)

// User roles as issued by the login flow.
const (
	RoleSuperAdmin = "super_admin"
	RoleGerant     = "gerant"
	RoleVendeur    = "vendeur"
)
