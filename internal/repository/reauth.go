package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/session"
	"github.com/saltyorg/jellygate/internal/web/sse"
)

// reauthKey collapses all concurrent re-auth requests into one flight.
const reauthKey = "reauth"

// EnsureFresh returns the current session, re-authenticating first when it
// is older than the validity window or has no token. Callers that put the
// token somewhere a 401 can never come back through, like a stream URL, go
// through here before handing it out.
func (r *Repository) EnsureFresh(ctx context.Context) (session.Session, error) {
	sess := r.holder.Current()
	if sess.ServerURL == "" || sess.Username == "" {
		return session.Session{}, jellyfin.NewError(jellyfin.KindAuthentication, "not signed in")
	}

	window := r.loader.DurationMinutes("session.validity_minutes", DefaultValidityMinutes)
	if !sess.Expired(window, time.Now()) {
		return sess, nil
	}

	log.Debug().
		Time("login_at", sess.LoginAt).
		Dur("window", window).
		Msg("Session stale, re-authenticating")

	return r.reauthenticate(ctx)
}

// reauthenticate signs in again with the stored password. Concurrent
// callers share one login attempt; a caller whose context ends while
// waiting gets its context error back while the attempt carries on for
// the others.
func (r *Repository) reauthenticate(ctx context.Context) (session.Session, error) {
	ch := r.reauth.DoChan(reauthKey, func() (any, error) {
		return r.doReauthenticate()
	})

	select {
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	}
}

// doReauthenticate is the single flight body. It runs on its own context
// so the shared outcome is not aborted by whichever waiter cancels first.
func (r *Repository) doReauthenticate() (session.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().Login)
	defer cancel()

	sess := r.holder.Current()
	if sess.ServerURL == "" || sess.Username == "" {
		return session.Session{}, jellyfin.NewError(jellyfin.KindAuthentication, "no server to sign in to")
	}

	password, err := r.creds.Get(credentials.Key(sess.ServerURL, sess.Username))
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			r.forceLogout("no stored password")
			return session.Session{}, jellyfin.NewError(jellyfin.KindAuthentication, "no stored password, sign in again")
		}
		return session.Session{}, fmt.Errorf("failed to load stored password: %w", err)
	}

	client := jellyfin.NewClient(sess.ServerURL, "", r.factory.Device())
	result, err := client.AuthenticateByName(ctx, sess.Username, password)
	if err != nil {
		r.forceLogout("login rejected")
		return session.Session{}, &jellyfin.Error{Kind: jellyfin.KindAuthentication, Message: "re-authentication failed", Err: err}
	}

	fresh := session.Session{
		ServerURL: sess.ServerURL,
		UserID:    result.User.ID,
		Username:  sess.Username,
		Token:     result.AccessToken,
		LoginAt:   time.Now(),
	}
	r.holder.Replace(fresh)
	r.factory.Invalidate()

	if server, err := r.db.GetActiveServer(); err == nil && server != nil {
		if err := r.db.UpdateServerToken(server.ID, fresh.Token, fresh.LoginAt); err != nil {
			log.Warn().Err(err).Msg("Failed to persist refreshed token")
		}
	}

	r.broadcastEvent(sse.EventAuthRefreshed, map[string]any{
		"username":   fresh.Username,
		"server_url": fresh.ServerURL,
	})
	log.Info().
		Str("username", fresh.Username).
		Str("server_url", fresh.ServerURL).
		Msg("Session refreshed")

	return fresh, nil
}

// forceLogout drops the in-memory token, cached clients, and persisted
// token after a failed re-auth. Stored passwords stay untouched so a later
// sign-in can reuse them.
func (r *Repository) forceLogout(reason string) {
	r.holder.Replace(r.holder.Current().Cleared())
	r.factory.Invalidate()

	if server, err := r.db.GetActiveServer(); err == nil && server != nil {
		if err := r.db.ClearServerToken(server.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to clear persisted token")
		}
	}

	r.broadcastEvent(sse.EventAuthLost, map[string]any{"reason": reason})
	log.Warn().Str("reason", reason).Msg("Session cleared after failed re-authentication")
}
