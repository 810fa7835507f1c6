// Package web serves the local HTTP API.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/librarysync"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/session"
	"github.com/saltyorg/jellygate/internal/web/handlers"
	"github.com/saltyorg/jellygate/internal/web/middleware"
	"github.com/saltyorg/jellygate/internal/web/sse"
)

// Server represents the web server
type Server struct {
	db         *database.DB
	repo       *repository.Repository
	holder     *session.Holder
	port       int
	bind       string
	allowedNet *net.IPNet
	apiKey     string
	router     *chi.Mux
	sseBroker  *sse.Broker
	syncMgr    *librarysync.Manager
	handlers   *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, repo *repository.Repository, holder *session.Holder, port int, bind string, allowedNet *net.IPNet) (*Server, error) {
	apiKey, err := ensureAPIKey(db)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:         db,
		repo:       repo,
		holder:     holder,
		port:       port,
		bind:       bind,
		allowedNet: allowedNet,
		apiKey:     apiKey,
		router:     chi.NewRouter(),
		sseBroker:  sse.NewBroker(),
	}

	s.setupRoutes()
	return s, nil
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// SetSyncManager sets the library sync manager and updates handlers
func (s *Server) SetSyncManager(mgr *librarysync.Manager) {
	s.syncMgr = mgr
	if s.handlers != nil {
		s.handlers.SetSyncManager(mgr)
	}
}

// ensureAPIKey loads the local API key, generating and storing one on first run.
// JELLYGATE_API_KEY overrides the stored key.
func ensureAPIKey(db *database.DB) (string, error) {
	if key := os.Getenv("JELLYGATE_API_KEY"); key != "" {
		return key, nil
	}

	key, err := db.GetSetting("api.key")
	if err != nil {
		return "", fmt.Errorf("failed to load API key: %w", err)
	}
	if key != "" {
		return key, nil
	}

	key, err = generateAPIKey()
	if err != nil {
		return "", err
	}
	if err := db.SetSetting("api.key", key); err != nil {
		return "", fmt.Errorf("failed to store API key: %w", err)
	}
	log.Info().Msg("Generated local API key")
	return key, nil
}

// generateAPIKey creates a random API key
func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Timeout middleware is applied per-group, not globally, to allow SSE long-lived connections

	h := handlers.New(s.db, s.repo)
	s.handlers = h
	if s.syncMgr != nil {
		h.SetSyncManager(s.syncMgr)
	}

	// SSE endpoint - no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.apiKey))
		r.Get("/api/events", s.sseBroker.ServeHTTP)
	})

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Get("/api/health", h.APIHealth)
	})

	// API routes (API key auth)
	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.APIKeyAuth(s.apiKey))

		r.Post("/login", h.APILogin)
		r.Post("/logout", h.APILogout)
		r.Get("/session", h.APISession)

		r.Get("/views", h.APIViews)
		r.Get("/items", h.APIItems)
		r.Get("/items/{id}", h.APIItem)
		r.Get("/latest", h.APILatest)
		r.Get("/resume", h.APIResume)
		r.Get("/nextup", h.APINextUp)
		r.Get("/search", h.APISearch)
		r.Get("/shows/{id}/seasons", h.APISeasons)
		r.Get("/shows/{id}/episodes", h.APIEpisodes)

		r.Post("/items/{id}/favorite", h.APISetFavorite)
		r.Post("/items/{id}/played", h.APISetPlayed)
		r.Get("/items/{id}/stream-url", h.APIStreamURL)
		r.Get("/items/{id}/hls-url", h.APIHLSURL)
		r.Get("/items/{id}/image-url", h.APIImageURL)

		r.Post("/playing/start", h.APIPlaybackStart)
		r.Post("/playing/progress", h.APIPlaybackProgress)
		r.Post("/playing/stopped", h.APIPlaybackStopped)

		r.Get("/system/info", h.APISystemInfo)
		r.Get("/servers", h.APIServers)
		r.Delete("/servers/{id}", h.APIDeleteServer)
		r.Get("/libraries", h.APILibraries)
		r.Get("/sync", h.APISyncStatus)
		r.Post("/sync", h.APISyncTrigger)
	})
}

// forwardSessionEvents mirrors session replacements onto the event stream.
func (s *Server) forwardSessionEvents(ctx context.Context) {
	updates, cancel := s.holder.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sess := <-updates:
			s.sseBroker.Broadcast(sse.Event{
				Type: sse.EventSessionChanged,
				Data: map[string]any{
					"authenticated": sess.Authenticated(),
					"username":      sess.Username,
				},
			})
		}
	}
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	go s.forwardSessionEvents(ctx)

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
