// Package repository coordinates every authenticated call to the Jellyfin
// server. It checks session freshness before a request goes out, funnels
// concurrent re-authentication into a single login, and retries requests
// the server rejected against the refreshed token.
package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/session"
	"github.com/saltyorg/jellygate/internal/web/sse"
)

// Repository is the single entry point for Jellyfin operations.
type Repository struct {
	db      *database.DB
	loader  *config.Loader
	holder  *session.Holder
	creds   *credentials.Store
	factory *jellyfin.Factory

	reauth singleflight.Group

	mu     sync.RWMutex
	broker *sse.Broker
}

// New creates a repository over the given session holder, credential store,
// and client factory.
func New(db *database.DB, loader *config.Loader, holder *session.Holder, creds *credentials.Store, factory *jellyfin.Factory) *Repository {
	return &Repository{
		db:      db,
		loader:  loader,
		holder:  holder,
		creds:   creds,
		factory: factory,
	}
}

// SetBroker wires the SSE broker used for auth and session events.
func (r *Repository) SetBroker(broker *sse.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broker = broker
}

func (r *Repository) broadcastEvent(eventType sse.EventType, data any) {
	r.mu.RLock()
	broker := r.broker
	r.mu.RUnlock()

	if broker != nil {
		broker.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

// Session returns the current session snapshot.
func (r *Repository) Session() session.Session {
	return r.holder.Current()
}

// Status describes the current session for the local API.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	ServerURL     string    `json:"server_url,omitempty"`
	Username      string    `json:"username,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	LoginAt       time.Time `json:"login_at"`
	Expired       bool      `json:"expired"`
}

// Status reports the current session without touching the server.
func (r *Repository) Status() Status {
	sess := r.holder.Current()
	window := r.loader.DurationMinutes("session.validity_minutes", DefaultValidityMinutes)
	return Status{
		Authenticated: sess.Authenticated(),
		ServerURL:     sess.ServerURL,
		Username:      sess.Username,
		UserID:        sess.UserID,
		LoginAt:       sess.LoginAt,
		Expired:       sess.Expired(window, time.Now()),
	}
}

// Views lists the account's library views.
func (r *Repository) Views(ctx context.Context) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "views", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Views(ctx, sess.UserID)
	})
}

// Items queries the account's library.
func (r *Repository) Items(ctx context.Context, opts jellyfin.ItemsOptions) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "items", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Items(ctx, sess.UserID, opts)
	})
}

// Item fetches one item with the account's playback state attached.
func (r *Repository) Item(ctx context.Context, itemID string) (*jellyfin.Item, error) {
	return execute(ctx, r, "item", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.Item, error) {
		return client.ItemByID(ctx, sess.UserID, itemID)
	})
}

// Latest lists recently added items, optionally scoped to one view.
func (r *Repository) Latest(ctx context.Context, parentID string, limit int) ([]jellyfin.Item, error) {
	return execute(ctx, r, "latest", func(ctx context.Context, client *jellyfin.Client, sess session.Session) ([]jellyfin.Item, error) {
		return client.Latest(ctx, sess.UserID, jellyfin.ItemsOptions{ParentID: parentID, Limit: limit})
	})
}

// Resume lists items with partial playback, most recent first.
func (r *Repository) Resume(ctx context.Context, limit int) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "resume", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Resume(ctx, sess.UserID, jellyfin.ItemsOptions{Limit: limit})
	})
}

// NextUp lists the next unwatched episode per series.
func (r *Repository) NextUp(ctx context.Context, limit int) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "next_up", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.NextUp(ctx, sess.UserID, jellyfin.ItemsOptions{Limit: limit})
	})
}

// Seasons lists the seasons of a series.
func (r *Repository) Seasons(ctx context.Context, seriesID string) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "seasons", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Seasons(ctx, sess.UserID, seriesID)
	})
}

// Episodes lists the episodes of a series, optionally scoped to one season.
func (r *Repository) Episodes(ctx context.Context, seriesID, seasonID string) (*jellyfin.ItemsResult, error) {
	return execute(ctx, r, "episodes", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Episodes(ctx, sess.UserID, seriesID, seasonID)
	})
}

// Search queries the library by name across movies, series, and episodes.
func (r *Repository) Search(ctx context.Context, term string, limit int) (*jellyfin.ItemsResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, jellyfin.NewError(jellyfin.KindValidation, "search term is empty")
	}

	opts := jellyfin.ItemsOptions{
		SearchTerm:       term,
		Recursive:        true,
		IncludeItemTypes: []string{"Movie", "Series", "Episode"},
		Limit:            limit,
	}
	return execute(ctx, r, "search", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.ItemsResult, error) {
		return client.Items(ctx, sess.UserID, opts)
	})
}

// SetFavorite marks or unmarks an item as a favorite.
func (r *Repository) SetFavorite(ctx context.Context, itemID string, favorite bool) (*jellyfin.UserData, error) {
	return execute(ctx, r, "set_favorite", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.UserData, error) {
		return client.SetFavorite(ctx, sess.UserID, itemID, favorite)
	})
}

// SetPlayed marks or unmarks an item as played.
func (r *Repository) SetPlayed(ctx context.Context, itemID string, played bool) (*jellyfin.UserData, error) {
	return execute(ctx, r, "set_played", func(ctx context.Context, client *jellyfin.Client, sess session.Session) (*jellyfin.UserData, error) {
		return client.SetPlayed(ctx, sess.UserID, itemID, played)
	})
}

// ReportPlaybackStart tells the server playback began.
func (r *Repository) ReportPlaybackStart(ctx context.Context, state jellyfin.PlaybackState) error {
	return exec(ctx, r, "playback_start", func(ctx context.Context, client *jellyfin.Client, _ session.Session) error {
		return client.ReportPlaybackStart(ctx, state)
	})
}

// ReportPlaybackProgress updates the server's playback position.
func (r *Repository) ReportPlaybackProgress(ctx context.Context, state jellyfin.PlaybackState) error {
	return exec(ctx, r, "playback_progress", func(ctx context.Context, client *jellyfin.Client, _ session.Session) error {
		return client.ReportPlaybackProgress(ctx, state)
	})
}

// ReportPlaybackStopped tells the server playback ended.
func (r *Repository) ReportPlaybackStopped(ctx context.Context, state jellyfin.PlaybackState) error {
	return exec(ctx, r, "playback_stopped", func(ctx context.Context, client *jellyfin.Client, _ session.Session) error {
		return client.ReportPlaybackStopped(ctx, state)
	})
}

// ServerInfo fetches the active server's system details.
func (r *Repository) ServerInfo(ctx context.Context) (*jellyfin.SystemInfo, error) {
	return execute(ctx, r, "server_info", func(ctx context.Context, client *jellyfin.Client, _ session.Session) (*jellyfin.SystemInfo, error) {
		return client.SystemInfo(ctx)
	})
}

// StreamURL returns a direct stream URL for an item. The token baked into
// the URL is validated first, since a 401 can never come back through it.
func (r *Repository) StreamURL(ctx context.Context, itemID, container string) (string, error) {
	sess, err := r.EnsureFresh(ctx)
	if err != nil {
		return "", err
	}
	return r.factory.Client(sess.ServerURL, sess.Token).StreamURL(itemID, container), nil
}

// HLSURL returns an adaptive HLS playlist URL for an item.
func (r *Repository) HLSURL(ctx context.Context, itemID string) (string, error) {
	sess, err := r.EnsureFresh(ctx)
	if err != nil {
		return "", err
	}
	return r.factory.Client(sess.ServerURL, sess.Token).HLSURL(itemID), nil
}

// ImageURL returns an image URL for an item.
func (r *Repository) ImageURL(ctx context.Context, itemID, imageType, tag string, maxHeight int) (string, error) {
	sess, err := r.EnsureFresh(ctx)
	if err != nil {
		return "", err
	}
	return r.factory.Client(sess.ServerURL, sess.Token).ImageURL(itemID, imageType, tag, maxHeight), nil
}

// SocketURL returns the server event socket URL with a fresh token.
func (r *Repository) SocketURL(ctx context.Context) (string, error) {
	sess, err := r.EnsureFresh(ctx)
	if err != nil {
		return "", err
	}
	return r.factory.Client(sess.ServerURL, sess.Token).SocketURL()
}
