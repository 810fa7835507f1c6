package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saltyorg/jellygate/internal/jellyfin"
)

// APISetFavorite toggles the favorite flag on an item
func (h *Handlers) APISetFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, err := h.repo.SetFavorite(r.Context(), chi.URLParam(r, "id"), req.Favorite)
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, data)
}

// APISetPlayed toggles the played flag on an item
func (h *Handlers) APISetPlayed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Played bool `json:"played"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, err := h.repo.SetPlayed(r.Context(), chi.URLParam(r, "id"), req.Played)
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, data)
}

// APIPlaybackStart reports a playback session starting
func (h *Handlers) APIPlaybackStart(w http.ResponseWriter, r *http.Request) {
	h.handlePlaybackReport(w, r, h.repo.ReportPlaybackStart)
}

// APIPlaybackProgress reports playback position
func (h *Handlers) APIPlaybackProgress(w http.ResponseWriter, r *http.Request) {
	h.handlePlaybackReport(w, r, h.repo.ReportPlaybackProgress)
}

// APIPlaybackStopped reports a playback session ending
func (h *Handlers) APIPlaybackStopped(w http.ResponseWriter, r *http.Request) {
	h.handlePlaybackReport(w, r, h.repo.ReportPlaybackStopped)
}

func (h *Handlers) handlePlaybackReport(w http.ResponseWriter, r *http.Request, report func(context.Context, jellyfin.PlaybackState) error) {
	var state jellyfin.PlaybackState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if state.ItemID == "" {
		h.jsonError(w, "ItemId is required", http.StatusBadRequest)
		return
	}

	if err := report(r.Context(), state); err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"success": true})
}

// APIStreamURL returns a direct stream URL carrying a fresh token
func (h *Handlers) APIStreamURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.repo.StreamURL(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("container"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"url": url})
}

// APIHLSURL returns an adaptive HLS playlist URL carrying a fresh token
func (h *Handlers) APIHLSURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.repo.HLSURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"url": url})
}

// APIImageURL returns an image URL carrying a fresh token
func (h *Handlers) APIImageURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url, err := h.repo.ImageURL(r.Context(), chi.URLParam(r, "id"), q.Get("type"), q.Get("tag"), queryInt(r, "max_height", 0))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"url": url})
}
