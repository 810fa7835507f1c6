package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/httpclient"
)

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 512

// DeviceInfo identifies the gateway to the server. Jellyfin ties issued
// tokens to the DeviceId, so it must stay stable across restarts.
type DeviceInfo struct {
	Client   string
	Device   string
	DeviceID string
	Version  string
}

// Client talks to a single Jellyfin server with a fixed token. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	device  DeviceInfo
	client  *http.Client
}

// NewClient creates a client for the given server. An empty token is valid
// for the endpoints that do not need one, such as sign-in and public info.
func NewClient(serverURL, token string, device DeviceInfo) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		token:   token,
		device:  device,
		client:  httpclient.NewTraceClient("jellyfin", config.GetTimeouts().HTTPClient),
	}
}

// BaseURL returns the normalized server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the access token the client was built with.
func (c *Client) Token() string {
	return c.token
}

// Device returns the device identity sent with every request.
func (c *Client) Device() DeviceInfo {
	return c.device
}

// authHeader builds the MediaBrowser authorization header. The Token part
// is omitted when the client has none, which the server accepts for the
// sign-in and public endpoints.
func (c *Client) authHeader() string {
	header := fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		c.device.Client, c.device.Device, c.device.DeviceID, c.device.Version)
	if c.token != "" {
		header = fmt.Sprintf(`%s, Token="%s"`, header, c.token)
	}
	return header
}

// setHeaders sets the authentication headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
}

// do runs one request against the server. A non-nil body is sent as JSON
// and a non-nil out receives the decoded response. Failures come back as
// *Error so callers can branch on Classify, except context cancellation
// which is returned untouched.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return WrapError(fmt.Errorf("failed to marshal request: %w", err), KindValidation)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return WrapError(fmt.Errorf("failed to create request: %w", err), KindValidation)
	}

	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return FromStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(fmt.Errorf("failed to decode response: %w", err), KindUnknown)
	}
	return nil
}
