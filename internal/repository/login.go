package repository

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/credentials"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/session"
)

// Login signs in to a server and makes it the active session. The URL is
// normalized first so saved rows, credentials, and built URLs all agree on
// one form. With remember set, the password is stored encrypted so the
// gateway can re-authenticate unattended.
func (r *Repository) Login(ctx context.Context, serverURL, username, password string, remember bool) (session.Session, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" || username == "" {
		return session.Session{}, jellyfin.NewError(jellyfin.KindValidation, "server URL and username are required")
	}

	client := jellyfin.NewClient(serverURL, "", r.factory.Device())
	info, err := client.PublicSystemInfo(ctx)
	if err != nil {
		return session.Session{}, err
	}

	result, err := client.AuthenticateByName(ctx, username, password)
	if err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ServerURL: serverURL,
		UserID:    result.User.ID,
		Username:  username,
		Token:     result.AccessToken,
		LoginAt:   time.Now(),
	}
	r.holder.Replace(sess)
	r.factory.Invalidate()

	server := &database.Server{
		URL:         serverURL,
		Name:        info.ServerName,
		Username:    username,
		UserID:      sess.UserID,
		AccessToken: sess.Token,
		LastLogin:   sess.LoginAt,
	}
	if id, err := r.db.UpsertServer(server); err != nil {
		log.Warn().Err(err).Msg("Failed to persist server")
	} else if err := r.db.SetActiveServer(id); err != nil {
		log.Warn().Err(err).Msg("Failed to mark server active")
	}

	lookupKey := credentials.Key(serverURL, username)
	if remember {
		if err := r.creds.Put(lookupKey, password); err != nil {
			log.Warn().Err(err).Msg("Failed to store password")
		}
	} else {
		if err := r.creds.Clear(lookupKey); err != nil {
			log.Warn().Err(err).Msg("Failed to clear stored password")
		}
	}

	log.Info().
		Str("server", info.ServerName).
		Str("server_url", serverURL).
		Str("username", username).
		Bool("remember", remember).
		Msg("Signed in")

	return sess, nil
}

// Logout signs out. The server-side token is revoked best effort; the
// session, cached clients, stored password, and persisted token are all
// dropped regardless.
func (r *Repository) Logout(ctx context.Context) error {
	sess := r.holder.Current()
	if sess.Authenticated() {
		if err := r.factory.Client(sess.ServerURL, sess.Token).Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
		}
	}

	r.holder.Replace(sess.Cleared())
	r.factory.Invalidate()

	if sess.ServerURL != "" && sess.Username != "" {
		if err := r.creds.Clear(credentials.Key(sess.ServerURL, sess.Username)); err != nil {
			log.Warn().Err(err).Msg("Failed to clear stored password")
		}
	}

	if server, err := r.db.GetActiveServer(); err == nil && server != nil {
		if err := r.db.ClearServerToken(server.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to clear persisted token")
		}
	}

	log.Info().Str("username", sess.Username).Msg("Signed out")
	return nil
}

// Restore seeds the session from the persisted active server, if any. A
// row without a token restores the server identity only; the first
// operation then re-authenticates from the stored password.
func (r *Repository) Restore() error {
	server, err := r.db.GetActiveServer()
	if err != nil {
		return err
	}
	if server == nil {
		log.Debug().Msg("No active server to restore")
		return nil
	}

	sess := session.Session{
		ServerURL: server.URL,
		UserID:    server.UserID,
		Username:  server.Username,
		Token:     server.AccessToken,
		LoginAt:   server.LastLogin,
	}
	r.holder.Replace(sess)

	if sess.Authenticated() {
		log.Info().
			Str("server_url", sess.ServerURL).
			Str("username", sess.Username).
			Msg("Restored saved session")
	} else {
		log.Info().
			Str("server_url", sess.ServerURL).
			Str("username", sess.Username).
			Msg("Restored server without a token")
	}
	return nil
}
