// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package storesync

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ScopeAuthenticator extracts an already-validated tenant scope from an HTTP
// request. Implementations validate auth (e.g. JWT) and decide privilege; the
// handlers and engine only consume the result.
type ScopeAuthenticator interface {
	Scope(r *http.Request) (Scope, error)
}

// HTTPSyncHandlers provides the HTTP handlers for the sync API.
type HTTPSyncHandlers struct {
	service       *SyncService
	authenticator ScopeAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers.
func NewHTTPSyncHandlers(service *SyncService, authenticator ScopeAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// HandleSync processes POST /sync: one full reconciliation pass over the
// request's change-sets within the caller's scope.
func (h *HTTPSyncHandlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Méthode non autorisée")
		return
	}

	scope, err := h.authenticator.Scope(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Token invalide")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Requête invalide")
		return
	}

	response, err := h.service.ProcessSync(r.Context(), scope, &req)
	if err != nil {
		h.logger.Error("Failed to process sync", "error", err, "tenant_id", scope.TenantID, "global", scope.Global)
		h.writeError(w, http.StatusInternalServerError, "Erreur de synchronisation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode sync response", "error", err)
	}
}

// HandleStatus processes GET /sync/status: scope-visible row counts per table.
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Méthode non autorisée")
		return
	}

	scope, err := h.authenticator.Scope(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Token invalide")
		return
	}

	counts, err := h.service.Status(r.Context(), scope)
	if err != nil {
		h.logger.Error("Failed to compute sync status", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Erreur de synchronisation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(counts); err != nil {
		h.logger.Error("Failed to encode status response", "error", err)
	}
}

// writeError writes the standard error response shape.
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})

	h.logger.Debug("HTTP error response", "status_code", statusCode, "message", message)
}
