package jellyfin

import "context"

// ReportPlaybackStart tells the server playback began.
func (c *Client) ReportPlaybackStart(ctx context.Context, state PlaybackState) error {
	return c.do(ctx, "POST", "/Sessions/Playing", nil, state, nil)
}

// ReportPlaybackProgress updates the server's playback position.
func (c *Client) ReportPlaybackProgress(ctx context.Context, state PlaybackState) error {
	return c.do(ctx, "POST", "/Sessions/Playing/Progress", nil, state, nil)
}

// ReportPlaybackStopped tells the server playback ended so it persists the
// resume position.
func (c *Client) ReportPlaybackStopped(ctx context.Context, state PlaybackState) error {
	return c.do(ctx, "POST", "/Sessions/Playing/Stopped", nil, state, nil)
}
