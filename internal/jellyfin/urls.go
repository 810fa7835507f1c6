package jellyfin

import (
	"fmt"
	"net/url"
	"strings"
)

// StreamURL builds a direct stream URL for an item, authenticated with the
// client's token. An empty container lets the server pick the format.
func (c *Client) StreamURL(itemID, container string) string {
	q := url.Values{}
	q.Set("Static", "true")
	q.Set("api_key", c.token)
	q.Set("DeviceId", c.device.DeviceID)
	if container != "" {
		q.Set("Container", container)
	}
	return fmt.Sprintf("%s/Videos/%s/stream?%s", c.baseURL, itemID, q.Encode())
}

// HLSURL builds an adaptive HLS playlist URL for an item.
func (c *Client) HLSURL(itemID string) string {
	q := url.Values{}
	q.Set("api_key", c.token)
	q.Set("DeviceId", c.device.DeviceID)
	q.Set("MediaSourceId", itemID)
	return fmt.Sprintf("%s/Videos/%s/master.m3u8?%s", c.baseURL, itemID, q.Encode())
}

// ImageURL builds an image URL for an item. The tag pins one image version
// for cache busting; a maxHeight of 0 leaves sizing to the server.
func (c *Client) ImageURL(itemID, imageType, tag string, maxHeight int) string {
	if imageType == "" {
		imageType = "Primary"
	}

	q := url.Values{}
	q.Set("api_key", c.token)
	if tag != "" {
		q.Set("tag", tag)
	}
	if maxHeight > 0 {
		q.Set("maxHeight", fmt.Sprintf("%d", maxHeight))
	}
	return fmt.Sprintf("%s/Items/%s/Images/%s?%s", c.baseURL, itemID, imageType, q.Encode())
}

// SocketURL builds the server's WebSocket endpoint URL, keeping any path
// prefix the server URL carries.
func (c *Client) SocketURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/socket"

	q := url.Values{}
	q.Set("api_key", c.token)
	q.Set("deviceId", c.device.DeviceID)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
