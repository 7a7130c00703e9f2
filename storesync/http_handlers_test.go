// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// staticScopeAuth serves tests a fixed scope (or a fixed failure) without
// going through JWT validation.
type staticScopeAuth struct {
	scope Scope
	err   error
}

func (a *staticScopeAuth) Scope(*http.Request) (Scope, error) {
	return a.scope, a.err
}

func newTestHandlers(t *testing.T, scope Scope) (*HTTPSyncHandlers, *MemStore) {
	t.Helper()
	store := NewMemStore()
	svc := newTestService(t, store)
	return NewHTTPSyncHandlers(svc, &staticScopeAuth{scope: scope}, testLogger()), store
}

func TestHandleSync_RoundTrip(t *testing.T) {
	tenant := uuid.New().String()
	handlers, _ := newTestHandlers(t, Scope{TenantID: tenant})

	id := uuid.New().String()
	body, err := json.Marshal(SyncRequest{Changes: []ChangeSet{{
		Table:   "products",
		Records: []Record{productRecord(id, tenant, "Riz")},
	}}})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handlers.HandleSync(w, httptest.NewRequest("POST", "/sync", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.Results["products"].Pushed)
	require.Len(t, resp.Results["products"].Pulled, 1)
}

func TestHandleSync_RejectsNonPost(t *testing.T) {
	handlers, _ := newTestHandlers(t, Scope{TenantID: uuid.New().String()})

	w := httptest.NewRecorder()
	handlers.HandleSync(w, httptest.NewRequest("GET", "/sync", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSync_RejectsUnauthenticated(t *testing.T) {
	svc := newTestService(t, NewMemStore())
	handlers := NewHTTPSyncHandlers(svc, &staticScopeAuth{err: errors.New("no token")}, testLogger())

	w := httptest.NewRecorder()
	handlers.HandleSync(w, httptest.NewRequest("POST", "/sync", bytes.NewReader([]byte(`{"changes":[]}`))))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Token invalide", resp.Error)
}

func TestHandleSync_RejectsMalformedBody(t *testing.T) {
	handlers, _ := newTestHandlers(t, Scope{TenantID: uuid.New().String()})

	w := httptest.NewRecorder()
	handlers.HandleSync(w, httptest.NewRequest("POST", "/sync", bytes.NewReader([]byte(`{not json`))))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Requête invalide", resp.Error)
}

func TestHandleStatus_ReturnsCounts(t *testing.T) {
	tenant := uuid.New().String()
	handlers, store := newTestHandlers(t, Scope{TenantID: tenant})

	spec, _ := DefaultRegistry().Lookup("sales")
	require.NoError(t, store.Upsert(context.Background(), spec, Scope{TenantID: tenant},
		Record{FieldID: uuid.New().String(), FieldTenantID: tenant, "total": 2500.0}))

	w := httptest.NewRecorder()
	handlers.HandleStatus(w, httptest.NewRequest("GET", "/sync/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var counts map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	require.Len(t, counts, 16)
	require.Equal(t, int64(1), counts["sales"])
	require.Equal(t, int64(0), counts["products"])
}

func TestHandleStatus_RejectsNonGet(t *testing.T) {
	handlers, _ := newTestHandlers(t, Scope{TenantID: uuid.New().String()})

	w := httptest.NewRecorder()
	handlers.HandleStatus(w, httptest.NewRequest("POST", "/sync/status", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
