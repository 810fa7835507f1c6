package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// APILogin signs in to a Jellyfin server and stores the session
func (h *Handlers) APILogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerURL string `json:"server_url"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		Remember  bool   `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.repo.Login(r.Context(), req.ServerURL, req.Username, req.Password, req.Remember)
	if err != nil {
		log.Warn().
			Err(err).
			Str("server_url", req.ServerURL).
			Str("username", req.Username).
			Msg("Login failed")
		h.upstreamError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{
		"success":    true,
		"server_url": sess.ServerURL,
		"username":   sess.Username,
		"user_id":    sess.UserID,
	})
}

// APILogout signs out and clears the stored session
func (h *Handlers) APILogout(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Logout(r.Context()); err != nil {
		log.Error().Err(err).Msg("Logout failed")
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"success": true})
}

// APISession reports the current session state without touching the server
func (h *Handlers) APISession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.repo.Status())
}

// APIHealth is the unauthenticated liveness endpoint
func (h *Handlers) APIHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":        "ok",
		"authenticated": h.repo.Session().Authenticated(),
	})
}
