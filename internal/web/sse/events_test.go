package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBroadcastReachesClients(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	client := &Client{ID: "c1", Messages: make(chan []byte, 4)}
	b.register <- client

	b.Broadcast(Event{Type: EventLibraryChanged, Data: map[string]any{"views": 2}})

	select {
	case msg := <-client.Messages:
		s := string(msg)
		if !strings.HasPrefix(s, "event: library_changed\n") {
			t.Errorf("message = %q, want library_changed event", s)
		}
		if !strings.HasSuffix(s, "\n\n") {
			t.Errorf("message is not SSE framed: %q", s)
		}
		if !strings.Contains(s, `"views":2`) {
			t.Errorf("message lost the payload: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("client did not receive the event")
	}

	if b.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", b.ClientCount())
	}
}

func TestSlowClientDoesNotBlockBroadcast(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	// A full, never-drained client
	stuck := &Client{ID: "stuck", Messages: make(chan []byte)}
	healthy := &Client{ID: "healthy", Messages: make(chan []byte, 4)}
	b.register <- stuck
	b.register <- healthy

	for i := 0; i < 5; i++ {
		b.Broadcast(Event{Type: EventHeartbeat, Data: nil})
	}

	deadline := time.After(time.Second)
	received := 0
	for received < 5 {
		select {
		case <-healthy.Messages:
			received++
		case <-deadline:
			t.Fatalf("healthy client received %d of 5 events", received)
		}
	}
}

func TestStopClosesClients(t *testing.T) {
	b := NewBroker()

	client := &Client{ID: "c1", Messages: make(chan []byte, 4)}
	b.register <- client

	b.Stop()

	select {
	case _, ok := <-client.Messages:
		if ok {
			t.Error("expected the client channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not close client channels")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read stream: %v", err)
	}
	if line != "event: connected\n" {
		t.Errorf("first line = %q, want connected event", line)
	}
}
