// Package librarysync keeps a local cache of the server's library views on
// a schedule, so the gateway answers /api/libraries without a round trip.
package librarysync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/jellygate/internal/config"
	"github.com/saltyorg/jellygate/internal/database"
	"github.com/saltyorg/jellygate/internal/jellyfin"
	"github.com/saltyorg/jellygate/internal/repository"
	"github.com/saltyorg/jellygate/internal/web/sse"
)

const (
	// DefaultSchedule refreshes the cache every six hours.
	DefaultSchedule = "@every 6h"

	// syncTimeout bounds one refresh pass.
	syncTimeout = 10 * time.Minute
)

// errNoServer means nobody has signed in yet, which is not a sync failure.
var errNoServer = errors.New("no active server")

// Manager schedules library cache refreshes.
type Manager struct {
	db     *database.DB
	loader *config.Loader
	repo   *repository.Repository
	cron   *cron.Cron

	mu        sync.Mutex
	entryID   cron.EntryID
	isSyncing bool
	lastRun   time.Time
	lastError string

	brokerMu sync.RWMutex
	broker   *sse.Broker
}

// New creates a sync manager.
func New(db *database.DB, loader *config.Loader, repo *repository.Repository) *Manager {
	return &Manager{
		db:     db,
		loader: loader,
		repo:   repo,
		cron:   cron.New(),
	}
}

// SetBroker wires the SSE broker for sync events.
func (m *Manager) SetBroker(broker *sse.Broker) {
	m.brokerMu.Lock()
	defer m.brokerMu.Unlock()
	m.broker = broker
}

func (m *Manager) broadcastEvent(eventType sse.EventType, data any) {
	m.brokerMu.RLock()
	broker := m.broker
	m.brokerMu.RUnlock()

	if broker != nil {
		broker.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

// Start begins the schedule and kicks off one refresh so the cache is warm
// shortly after boot.
func (m *Manager) Start() {
	m.cron.Start()
	m.applySchedule()
	m.TriggerRefresh("startup")
}

// Stop halts the schedule. A refresh already in flight finishes on its own.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Debug().Msg("Library sync manager stopped")
}

// applySchedule reads sync.enabled and sync.schedule and reconciles the
// cron entry.
func (m *Manager) applySchedule() {
	enabled := m.loader.BoolDefaultTrue("sync.enabled")
	schedule := m.loader.String("sync.schedule", DefaultSchedule)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entryID != 0 {
		m.cron.Remove(m.entryID)
		m.entryID = 0
	}

	if !enabled {
		log.Info().Msg("Library sync disabled")
		return
	}

	id, err := m.cron.AddFunc(schedule, func() { m.TriggerRefresh("schedule") })
	if err != nil {
		log.Error().Err(err).Str("schedule", schedule).Msg("Invalid sync schedule")
		return
	}
	m.entryID = id
	log.Info().Str("schedule", schedule).Msg("Library sync scheduled")
}

// TriggerRefresh starts a refresh in the background unless one is already
// running.
func (m *Manager) TriggerRefresh(triggeredBy string) {
	m.mu.Lock()
	if m.isSyncing {
		m.mu.Unlock()
		log.Debug().Str("triggered_by", triggeredBy).Msg("Library sync already running, skipping")
		return
	}
	m.isSyncing = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.isSyncing = false
			m.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		m.refresh(ctx, triggeredBy)
	}()
}

func (m *Manager) refresh(ctx context.Context, triggeredBy string) {
	start := time.Now()
	log.Info().Str("triggered_by", triggeredBy).Msg("Library sync started")
	m.broadcastEvent(sse.EventSyncStarted, map[string]any{"triggered_by": triggeredBy})

	count, err := m.refreshOnce(ctx)
	if errors.Is(err, errNoServer) {
		log.Debug().Msg("Library sync skipped, no active server")
		return
	}

	m.mu.Lock()
	m.lastRun = time.Now()
	if err != nil {
		m.lastError = err.Error()
	} else {
		m.lastError = ""
	}
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Library sync failed")
		m.broadcastEvent(sse.EventSyncFailed, map[string]any{"error": err.Error()})
		return
	}

	log.Info().
		Int("libraries", count).
		Dur("duration", time.Since(start)).
		Msg("Library sync complete")
	m.broadcastEvent(sse.EventSyncCompleted, map[string]any{
		"libraries":   count,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// refreshOnce pulls the views and per-view item counts and swaps the cache.
func (m *Manager) refreshOnce(ctx context.Context) (int, error) {
	server, err := m.db.GetActiveServer()
	if err != nil {
		return 0, err
	}
	if server == nil {
		return 0, errNoServer
	}

	views, err := m.repo.Views(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list views: %w", err)
	}

	now := time.Now()
	libraries := make([]database.Library, 0, len(views.Items))
	for _, view := range views.Items {
		lib := database.Library{
			ServerID:       server.ID,
			ViewID:         view.ID,
			Name:           view.Name,
			CollectionType: view.CollectionType,
			RefreshedAt:    now,
		}

		// Limit 1 keeps the payload small; the total still comes back.
		result, err := m.repo.Items(ctx, jellyfin.ItemsOptions{ParentID: view.ID, Recursive: true, Limit: 1})
		if err != nil {
			log.Warn().Err(err).Str("view", view.Name).Msg("Failed to count view items")
		} else {
			lib.ItemCount = result.TotalRecordCount
		}

		libraries = append(libraries, lib)
	}

	if err := m.db.ReplaceLibraries(server.ID, libraries); err != nil {
		return 0, err
	}
	return len(libraries), nil
}

// Status describes the sync scheduler for the local API.
type Status struct {
	Enabled   bool      `json:"enabled"`
	Schedule  string    `json:"schedule"`
	IsSyncing bool      `json:"is_syncing"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Status reports the scheduler state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Enabled:   m.loader.BoolDefaultTrue("sync.enabled"),
		Schedule:  m.loader.String("sync.schedule", DefaultSchedule),
		IsSyncing: m.isSyncing,
		LastRun:   m.lastRun,
		LastError: m.lastError,
	}
	if m.entryID != 0 {
		status.NextRun = m.cron.Entry(m.entryID).Next
	}
	return status
}
