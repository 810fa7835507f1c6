// Package httpclient builds the instrumented HTTP client used for all
// upstream Jellyfin traffic.
package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxTraceBody bounds how much of an upstream error body lands in the log.
const maxTraceBody = 2048

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceClient returns an HTTP client that logs every exchange at trace
// level with tokens scrubbed from the URL.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &traceTransport{name: name},
	}
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	urlStr := scrubURL(req.URL)
	start := time.Now()

	resp, err := base.RoundTrip(req)
	if err != nil {
		log.Trace().
			Str("client", t.name).
			Str("method", req.Method).
			Str("url", urlStr).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	evt := log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start))

	// Success bodies are item listings and can run to megabytes, and the
	// sign-in body carries the access token. Only error bodies are recorded.
	if resp.StatusCode >= 400 {
		body, readErr := swapBody(resp)
		if readErr != nil {
			evt.Err(readErr)
		}
		if len(body) > maxTraceBody {
			body = body[:maxTraceBody]
		}
		if len(body) > 0 {
			evt.Str("body", string(body))
		}
	}

	evt.Msg("HTTP response")
	return resp, nil
}

// swapBody drains the response body and puts an equivalent reader back so
// the caller still sees the full stream.
func swapBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, err
}

// scrubURL replaces token-bearing query values so stream and image URLs can
// be logged without leaking the session token.
func scrubURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.String()
	}

	clean := *u
	q := clean.Query()
	for key := range q {
		switch strings.ToLower(key) {
		case "api_key", "apikey", "token", "access_token":
			q.Set(key, "redacted")
		}
	}
	clean.RawQuery = q.Encode()
	return clean.String()
}
