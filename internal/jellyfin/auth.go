package jellyfin

import (
	"context"
)

// AuthenticateByName signs in with a username and password and returns the
// issued token. Rejected credentials come back as KindAuthentication rather
// than KindUnauthorized so they are never mistaken for a stale token.
func (c *Client) AuthenticateByName(ctx context.Context, username, password string) (*AuthenticateResult, error) {
	req := authenticateRequest{Username: username, Pw: password}

	var result AuthenticateResult
	if err := c.do(ctx, "POST", "/Users/AuthenticateByName", nil, req, &result); err != nil {
		if IsUnauthorized(err) || IsForbidden(err) {
			return nil, &Error{Kind: KindAuthentication, Message: "invalid username or password", Err: err}
		}
		return nil, err
	}

	if result.AccessToken == "" || result.User.ID == "" {
		return nil, NewError(KindAuthentication, "server response missing access token")
	}
	return &result, nil
}

// Logout revokes the client's token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "POST", "/Sessions/Logout", nil, nil, nil)
}
