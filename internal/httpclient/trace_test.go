package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestScrubURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "token query value is redacted",
			in:   "http://jf.local/Videos/v1/stream?Static=true&api_key=tok-1",
			want: "http://jf.local/Videos/v1/stream?Static=true&api_key=redacted",
		},
		{
			name: "plain values survive",
			in:   "http://jf.local/Users/u1/Items?Limit=5",
			want: "http://jf.local/Users/u1/Items?Limit=5",
		},
		{
			name: "no query",
			in:   "http://jf.local/System/Info/Public",
			want: "http://jf.local/System/Info/Public",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			if err != nil {
				t.Fatalf("failed to parse url: %v", err)
			}
			if got := scrubURL(u); got != tt.want {
				t.Errorf("scrubURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTripKeepsErrorBodyReadable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("ItemNotFound"))
	}))
	defer srv.Close()

	client := NewTraceClient("test", 5*time.Second)
	resp, err := client.Get(srv.URL + "/Items/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// The tracer drains error bodies for the log; the caller must still be
	// able to read the full body afterwards.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != "ItemNotFound" {
		t.Errorf("body = %q, want %q", body, "ItemNotFound")
	}
}

func TestRoundTripLeavesSuccessBodyAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Items": []}`))
	}))
	defer srv.Close()

	client := NewTraceClient("test", 5*time.Second)
	resp, err := client.Get(srv.URL + "/Users/u1/Views")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != `{"Items": []}` {
		t.Errorf("body = %q, want %q", body, `{"Items": []}`)
	}
}
