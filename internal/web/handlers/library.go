package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/jellyfin"
)

// APIViews lists the account's library views
func (h *Handlers) APIViews(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Views(r.Context())
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APIItems queries the library
func (h *Handlers) APIItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := jellyfin.ItemsOptions{
		ParentID:         q.Get("parent_id"),
		IncludeItemTypes: queryList(r, "types"),
		Recursive:        q.Get("recursive") == "true",
		SortBy:           q.Get("sort_by"),
		SortOrder:        q.Get("sort_order"),
		StartIndex:       queryInt(r, "start", 0),
		Limit:            queryInt(r, "limit", 0),
		Filters:          queryList(r, "filters"),
		Fields:           queryList(r, "fields"),
	}

	result, err := h.repo.Items(r.Context(), opts)
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APIItem fetches one item by ID
func (h *Handlers) APIItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.Item(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, item)
}

// APILatest lists recently added items
func (h *Handlers) APILatest(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.Latest(r.Context(), r.URL.Query().Get("parent_id"), queryInt(r, "limit", 16))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, items)
}

// APIResume lists partially watched items
func (h *Handlers) APIResume(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Resume(r.Context(), queryInt(r, "limit", 12))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APINextUp lists the next unwatched episodes
func (h *Handlers) APINextUp(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.NextUp(r.Context(), queryInt(r, "limit", 24))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APISeasons lists a series' seasons
func (h *Handlers) APISeasons(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Seasons(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APIEpisodes lists a series' episodes, optionally scoped to one season
func (h *Handlers) APIEpisodes(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Episodes(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("season_id"))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

// APISearch searches the library
func (h *Handlers) APISearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 24))
	if err != nil {
		h.upstreamError(w, err)
		return
	}
	h.writeJSON(w, result)
}

type libraryResponse struct {
	ViewID         string    `json:"view_id"`
	Name           string    `json:"name"`
	CollectionType string    `json:"collection_type,omitempty"`
	ItemCount      int       `json:"item_count"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

// APILibraries serves the cached library list without an upstream call
func (h *Handlers) APILibraries(w http.ResponseWriter, r *http.Request) {
	server, err := h.db.GetActiveServer()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get active server")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := []libraryResponse{}
	if server != nil {
		libraries, err := h.db.ListLibraries(server.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list libraries")
			h.jsonError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		for _, lib := range libraries {
			response = append(response, libraryResponse{
				ViewID:         lib.ViewID,
				Name:           lib.Name,
				CollectionType: lib.CollectionType,
				ItemCount:      lib.ItemCount,
				RefreshedAt:    lib.RefreshedAt,
			})
		}
	}
	h.writeJSON(w, response)
}
