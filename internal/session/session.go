// Package session holds the signed-in state for the gateway's one Jellyfin
// account and decides when that state is too old to trust.
package session

import "time"

// Session is an immutable snapshot of the signed-in state. It is replaced
// whole so the token and login time always belong together.
type Session struct {
	ServerURL string
	UserID    string
	Username  string
	Token     string
	LoginAt   time.Time
}

// Authenticated reports whether the session carries a usable token.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// Expired reports whether the session is older than the validity window at
// the given instant. A session without a token or login time counts as
// expired.
func (s Session) Expired(window time.Duration, now time.Time) bool {
	if !s.Authenticated() {
		return true
	}
	if s.LoginAt.IsZero() {
		return true
	}
	return now.Sub(s.LoginAt) > window
}

// Cleared returns a copy with the token and login time dropped. Server and
// account identity stay so a later re-auth knows who to sign in as.
func (s Session) Cleared() Session {
	s.Token = ""
	s.LoginAt = time.Time{}
	return s
}
