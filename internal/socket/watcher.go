// Package socket keeps a WebSocket connection to the Jellyfin server's
// event stream and fans library and user data changes out to the rest of
// the gateway.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/session"
	"github.com/saltyorg/jellygate/internal/web/sse"
)

// Refresher is notified when the server reports library changes.
type Refresher interface {
	TriggerRefresh(triggeredBy string)
}

// Watcher maintains the server event connection.
type Watcher struct {
	repo      *repository.Repository
	holder    *session.Holder
	broker    *sse.Broker
	refresher Refresher
}

// New creates a watcher. The refresher may be nil.
func New(repo *repository.Repository, holder *session.Holder, broker *sse.Broker, refresher Refresher) *Watcher {
	return &Watcher{
		repo:      repo,
		holder:    holder,
		broker:    broker,
		refresher: refresher,
	}
}

// Run maintains the connection until the context ends, reconnecting with
// backoff. While the gateway is signed out it parks until the session
// changes rather than hammering the server.
func (w *Watcher) Run(ctx context.Context) error {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 5 * time.Minute
	)

	pingInterval := config.GetTimeouts().WebSocketPing
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !w.holder.Current().Authenticated() {
			if err := w.waitForSession(ctx); err != nil {
				return err
			}
			continue
		}

		err := w.watchOnce(ctx, pingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Msg("Server socket disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			// Exponential backoff with cap
			backoff = min(backoff*2, maxBackoff)
		} else {
			backoff = initialBackoff
		}
	}
}

// waitForSession blocks until the session is authenticated or ctx ends.
func (w *Watcher) waitForSession(ctx context.Context) error {
	ch, cancel := w.holder.Subscribe()
	defer cancel()

	// The session may have changed between the check and the subscription.
	if w.holder.Current().Authenticated() {
		return nil
	}

	log.Debug().Msg("Waiting for a session before connecting the server socket")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sess := <-ch:
			if sess.Authenticated() {
				return nil
			}
		}
	}
}

// watchOnce establishes a single connection and handles messages until it
// drops.
func (w *Watcher) watchOnce(ctx context.Context, pingInterval time.Duration) error {
	wsURL, err := w.repo.SocketURL(ctx)
	if err != nil {
		return err
	}

	log.Debug().Msg("Connecting to server socket")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("socket dial failed: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("Connected to server socket")
	w.broker.Broadcast(sse.Event{Type: sse.EventSocketConnected, Data: nil})
	defer w.broker.Broadcast(sse.Event{Type: sse.EventSocketDisconnected, Data: nil})

	// Start ping ticker to keep connection alive
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	readErrCh := make(chan error, 1)

	// Read messages in a goroutine. Writes stay on the main loop; the
	// connection does not allow concurrent writers.
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			log.Trace().RawJSON("message", message).Msg("Received socket message")

			var msg socketMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Debug().Err(err).Msg("Failed to parse socket message")
				continue
			}

			w.handleMessage(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case <-pingTicker.C:
			keepAlive := socketMessage{MessageType: "KeepAlive"}
			if err := conn.WriteJSON(keepAlive); err != nil {
				return fmt.Errorf("keep-alive failed: %w", err)
			}
		}
	}
}

// handleMessage reacts to one server notification.
func (w *Watcher) handleMessage(msg socketMessage) {
	switch msg.MessageType {
	case "LibraryChanged":
		log.Debug().Msg("Server reported library change")
		w.broker.Broadcast(sse.Event{Type: sse.EventLibraryChanged, Data: msg.Data})
		if w.refresher != nil {
			w.refresher.TriggerRefresh("library_changed")
		}
	case "UserDataChanged":
		log.Debug().Msg("Server reported user data change")
		w.broker.Broadcast(sse.Event{Type: sse.EventUserDataChanged, Data: msg.Data})
	case "SessionEnded":
		log.Debug().Msg("Server ended the session")
	case "ForceKeepAlive":
		// The ping ticker already keeps the connection alive.
	}
}

type socketMessage struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}
