// Package handlers implements the local HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/librarysync"
	"github.com/saltyorg/jellygate/internal/repository"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db      *database.DB
	repo    *repository.Repository
	syncMgr *librarysync.Manager
}

// New creates a new Handlers instance
func New(db *database.DB, repo *repository.Repository) *Handlers {
	return &Handlers{
		db:   db,
		repo: repo,
	}
}

// SetSyncManager sets the library sync manager
func (h *Handlers) SetSyncManager(mgr *librarysync.Manager) {
	h.syncMgr = mgr
}

// jsonError writes a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// upstreamError writes a gateway error with the matching HTTP status.
func (h *Handlers) upstreamError(w http.ResponseWriter, err error) {
	h.jsonError(w, err.Error(), errorStatus(err))
}

// errorStatus translates error kinds into HTTP status codes.
func errorStatus(err error) int {
	switch jellyfin.Classify(err) {
	case jellyfin.KindValidation:
		return http.StatusBadRequest
	case jellyfin.KindAuthentication, jellyfin.KindUnauthorized:
		return http.StatusUnauthorized
	case jellyfin.KindForbidden:
		return http.StatusForbidden
	case jellyfin.KindNotFound:
		return http.StatusNotFound
	case jellyfin.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// queryInt parses an integer query parameter, falling back when absent or invalid.
func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// queryList splits a comma-separated query parameter.
func queryList(r *http.Request, key string) []string {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
