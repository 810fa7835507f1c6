package jellyfin

import "context"

// PublicSystemInfo fetches server identity without authentication.
func (c *Client) PublicSystemInfo(ctx context.Context) (*PublicSystemInfo, error) {
	var info PublicSystemInfo
	if err := c.do(ctx, "GET", "/System/Info/Public", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SystemInfo fetches full server details. Needs a valid token.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.do(ctx, "GET", "/System/Info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
