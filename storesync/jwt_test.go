// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gestionstore/go-storesync/internal/auth"
)

func TestJWTAuth_GenerateAndValidate(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	userID := uuid.New().String()
	tenantID := uuid.New().String()
	token, err := jwtAuth.GenerateToken(userID, RoleGerant, tenantID, time.Hour)
	require.NoError(t, err)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, RoleGerant, claims.Role)
	require.Equal(t, tenantID, claims.TenantID)
}

func TestJWTAuth_RejectsExpiredToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	token, err := jwtAuth.GenerateToken(uuid.New().String(), RoleVendeur, uuid.New().String(), -time.Minute)
	require.NoError(t, err)

	_, err = jwtAuth.ValidateToken(token)
	require.Error(t, err)
}

func TestJWTAuth_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTAuth("secret-a").GenerateToken(uuid.New().String(), RoleGerant, uuid.New().String(), time.Hour)
	require.NoError(t, err)

	_, err = NewJWTAuth("secret-b").ValidateToken(token)
	require.Error(t, err)
}

func TestJWTAuth_ScopeForTenantRole(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	tenantID := uuid.New().String()

	token, err := jwtAuth.GenerateToken(uuid.New().String(), RoleGerant, tenantID, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	scope, err := jwtAuth.Scope(r)
	require.NoError(t, err)
	require.False(t, scope.Global)
	require.Equal(t, tenantID, scope.TenantID)
}

func TestJWTAuth_ScopeForSuperAdmin(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	token, err := jwtAuth.GenerateToken(uuid.New().String(), RoleSuperAdmin, "", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	scope, err := jwtAuth.Scope(r)
	require.NoError(t, err)
	require.True(t, scope.Global)

	// Optional narrowing to one tenant via query parameter.
	narrow := uuid.New().String()
	r = httptest.NewRequest("GET", "/sync/status?tenantId="+narrow, nil)
	r.Header.Set("Authorization", "Bearer "+token)

	scope, err = jwtAuth.Scope(r)
	require.NoError(t, err)
	require.False(t, scope.Global)
	require.Equal(t, narrow, scope.TenantID)
}

func TestJWTAuth_ScopeRejectsTenantRoleWithoutTenant(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	// A tenant-bound role must carry a tenant; only super-admin goes without.
	token, err := jwtAuth.GenerateToken(uuid.New().String(), RoleVendeur, "", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err = jwtAuth.Scope(r)
	require.Error(t, err)
}

func TestJWTAuth_MiddlewareStoresIdentityInContext(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	userID := uuid.New().String()
	tenantID := uuid.New().String()

	token, err := jwtAuth.GenerateToken(userID, RoleGerant, tenantID, time.Hour)
	require.NoError(t, err)

	var gotUser, gotRole, gotTenant string
	handler := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = auth.GetUserID(r.Context())
		gotRole, _ = auth.GetRole(r.Context())
		gotTenant, _ = auth.GetTenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, userID, gotUser)
	require.Equal(t, RoleGerant, gotRole)
	require.Equal(t, tenantID, gotTenant)
}

func TestJWTAuth_MiddlewareRejectsInvalidToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	called := false
	handler := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, called)
}

func TestJWTAuth_ScopeRejectsMissingOrMalformedHeader(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	r := httptest.NewRequest("POST", "/sync", nil)
	_, err := jwtAuth.Scope(r)
	require.Error(t, err)

	r = httptest.NewRequest("POST", "/sync", nil)
	r.Header.Set("Authorization", "Basic abc123")
	_, err = jwtAuth.Scope(r)
	require.Error(t, err)
}
