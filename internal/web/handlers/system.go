package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// APISystemInfo returns the connected server's system info
func (h *Handlers) APISystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.repo.ServerInfo(r.Context())
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, info)
}

type serverResponse struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name,omitempty"`
	Username  string    `json:"username"`
	UserID    string    `json:"user_id,omitempty"`
	LastLogin time.Time `json:"last_login"`
	Active    bool      `json:"active"`
}

// APIServers lists stored server accounts. Tokens stay out of the response.
func (h *Handlers) APIServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.db.ListServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list servers")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	active, err := h.db.GetActiveServer()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get active server")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := make([]serverResponse, 0, len(servers))
	for _, server := range servers {
		response = append(response, serverResponse{
			ID:        server.ID,
			URL:       server.URL,
			Name:      server.Name,
			Username:  server.Username,
			UserID:    server.UserID,
			LastLogin: server.LastLogin,
			Active:    active != nil && active.ID == server.ID,
		})
	}
	h.writeJSON(w, response)
}

// APIDeleteServer removes a stored server account along with its cached
// libraries. The active server cannot be removed while signed in.
func (h *Handlers) APIDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	active, err := h.db.GetActiveServer()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get active server")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if active != nil && active.ID == id {
		h.jsonError(w, "Cannot remove the active server, sign out first", http.StatusConflict)
		return
	}

	if err := h.db.DeleteServer(id); err != nil {
		log.Error().Err(err).Msg("Failed to delete server")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Info().Int64("server_id", id).Msg("Removed stored server")
	h.writeJSON(w, map[string]any{"success": true})
}

// APISyncStatus reports the library sync scheduler state
func (h *Handlers) APISyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.syncMgr == nil {
		h.jsonError(w, "Library sync not available", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, h.syncMgr.Status())
}

// APISyncTrigger starts a library cache refresh in the background
func (h *Handlers) APISyncTrigger(w http.ResponseWriter, r *http.Request) {
	if h.syncMgr == nil {
		h.jsonError(w, "Library sync not available", http.StatusServiceUnavailable)
		return
	}
	h.syncMgr.TriggerRefresh("api")
	h.writeJSON(w, map[string]any{
		"success": true,
		"message": "Library sync started",
	})
}
