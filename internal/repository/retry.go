package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/session"
)

// Defaults for the retry wrapper, tunable through settings.
const (
	// DefaultMaxRetries bounds how many extra attempts follow the first
	// one, each behind a fresh re-authentication.
	DefaultMaxRetries = 2

	// DefaultReauthDelayMS is the pause between a successful re-auth and
	// the retry, giving the server time to propagate the new token.
	DefaultReauthDelayMS = 500

	// DefaultValidityMinutes is how long a session is trusted before it
	// is refreshed proactively.
	DefaultValidityMinutes = 50
)

// execute runs op with a client bound to a fresh session. Only a token
// rejection triggers a retry, and only after re-authenticating; every other
// failure propagates on the spot. Cancellation wins over everything: a
// cancelled context comes back as-is, never reclassified, never retried.
func execute[T any](ctx context.Context, r *Repository, name string, op func(ctx context.Context, client *jellyfin.Client, sess session.Session) (T, error)) (T, error) {
	var zero T

	maxRetries := r.loader.Int("retry.max_retries", DefaultMaxRetries)
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := r.loader.DurationMillis("retry.reauth_delay_ms", DefaultReauthDelayMS)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		sess, err := r.EnsureFresh(ctx)
		if err != nil {
			return zero, err
		}

		result, err := op(ctx, r.factory.Client(sess.ServerURL, sess.Token), sess)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if jellyfin.Classify(err) != jellyfin.KindUnauthorized || attempt >= maxRetries {
			return zero, err
		}

		log.Debug().
			Str("operation", name).
			Int("attempt", attempt+1).
			Msg("Token rejected, re-authenticating")

		if _, err := r.reauthenticate(ctx); err != nil {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// exec wraps execute for operations that only return an error.
func exec(ctx context.Context, r *Repository, name string, op func(ctx context.Context, client *jellyfin.Client, sess session.Session) error) error {
	_, err := execute(ctx, r, name, func(ctx context.Context, client *jellyfin.Client, sess session.Session) (struct{}, error) {
		return struct{}{}, op(ctx, client, sess)
	})
	return err
}
