// Drift Feed Engine - Personalized Feed Ranking and Delivery
// Copyright 2026 Drift Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftapp/feedengine

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftapp/feedengine/internal/feed"
	"github.com/driftapp/feedengine/internal/feedcache"
	"github.com/driftapp/feedengine/internal/metrics"
	"github.com/driftapp/feedengine/internal/mutation"
	"github.com/driftapp/feedengine/internal/source"
	"github.com/driftapp/feedengine/internal/store"
)

// Session defaults.
const (
	// DefaultSessionTTL is how long an inactive session survives before
	// the sweeper discards it, along with its behavior profile and
	// exclusion set.
	DefaultSessionTTL = 30 * time.Minute

	// sessionSweepInterval is how often expired sessions are collected.
	sessionSweepInterval = time.Minute
)

// QuotaProvider supplies the per-session action budget, fetched once at
// session start.
type QuotaProvider interface {
	FetchQuota(ctx context.Context, sessionID string) (mutation.Quota, error)
}

// StaticQuota is a QuotaProvider returning a fixed budget.
type StaticQuota mutation.Quota

// FetchQuota implements QuotaProvider.
func (q StaticQuota) FetchQuota(_ context.Context, _ string) (mutation.Quota, error) {
	return mutation.Quota(q), nil
}

// Session binds one viewer's controller, behavior tracker and mutation
// coordinator. All state is process-scoped and discarded on expiry.
type Session struct {
	ID          string
	Controller  *Controller
	Tracker     *feed.BehaviorTracker
	Coordinator *mutation.Coordinator

	notifier store.Notifier

	mu              sync.Mutex
	lastSeen        time.Time
	lastAutoRefresh time.Time
}

// Touch marks the session as recently used.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AutoRefreshDue reports whether the adaptive cadence calls for a background
// refresh, and claims the slot when it does.
func (s *Session) AutoRefreshDue(now time.Time) bool {
	interval := s.Tracker.RecommendedRefreshInterval()

	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastAutoRefresh) < interval {
		return false
	}
	s.lastAutoRefresh = now
	return true
}

// Manager owns the live sessions for one deployment. It implements
// realtime.Sink so the invalidator can fan refresh decisions out to every
// active session, and suture.Service so expired sessions are swept under
// supervision.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	lister      store.Lister
	writer      store.Writer
	notifierFor func(sessionID string) store.Notifier
	cache       *feedcache.Cache
	fetcher     *source.Fetcher
	quota       QuotaProvider

	pageSize     int
	qualityFloor float64
	ttl          time.Duration
	clock        func() time.Time
	logger       zerolog.Logger
}

// ManagerConfig bundles the manager's construction parameters.
type ManagerConfig struct {
	Lister store.Lister
	Writer store.Writer
	// NotifierFor builds the notice sink for a new session, typically a
	// websocket.SessionNotifier. Nil means notices are discarded.
	NotifierFor   func(sessionID string) store.Notifier
	Cache         *feedcache.Cache
	SourceTimeout time.Duration
	PageSize      int
	QualityFloor  float64
	SessionTTL    time.Duration
	Quota         QuotaProvider
}

// NewManager creates a session manager.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewManager(cfg ManagerConfig, logger zerolog.Logger) *Manager {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	quota := cfg.Quota
	if quota == nil {
		quota = StaticQuota{SwipesRemaining: 100, SuperLikesRemaining: 5}
	}
	notifierFor := cfg.NotifierFor
	if notifierFor == nil {
		notifierFor = func(string) store.Notifier { return store.NopNotifier{} }
	}

	log := logger.With().Str("component", "sessions").Logger()
	return &Manager{
		sessions:     make(map[string]*Session),
		lister:       cfg.Lister,
		writer:       cfg.Writer,
		notifierFor:  notifierFor,
		cache:        cfg.Cache,
		fetcher:      source.New(cfg.Lister, cfg.Cache, cfg.SourceTimeout, log),
		quota:        quota,
		pageSize:     cfg.PageSize,
		qualityFloor: cfg.QualityFloor,
		ttl:          ttl,
		clock:        time.Now,
		logger:       log,
	}
}

// GetOrCreate returns the session for id, creating it with neutral defaults
// and a freshly fetched quota when absent.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	now := m.clock()

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.Touch(now)
		return s, nil
	}
	m.mu.Unlock()

	// Quota is fetched outside the manager lock; a lost race simply
	// discards the duplicate.
	quota, err := m.quota.FetchQuota(ctx, id)
	if err != nil {
		return nil, err
	}

	tracker := feed.NewBehaviorTracker()
	notifier := m.notifierFor(id)
	controller := NewController(m.fetcher, m.cache, feed.NewMixer(m.qualityFloor), tracker, notifier, m.pageSize, m.logger)
	coord := mutation.NewCoordinator(controller, m.writer, notifier, quota, m.logger)
	controller.AttachCoordinator(coord)

	s := &Session{
		ID:          id,
		Controller:  controller,
		Tracker:     tracker,
		Coordinator: coord,
		notifier:    notifier,
		lastSeen:    now,
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		existing.Touch(now)
		return existing, nil
	}
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(total))
	m.logger.Debug().Str("session_id", id).Int("active", total).Msg("session created")
	return s, nil
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns a snapshot of the active sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// PromptNewContent implements realtime.Sink: a non-blocking prompt the UI
// may surface as a manual-refresh affordance.
func (m *Manager) PromptNewContent() {
	for _, s := range m.Sessions() {
		s.notifier.Notify("New content available", store.NoticeNewContent)
	}
}

// SilentRefresh implements realtime.Sink: every ready session re-fetches in
// the background. Sessions in other states are left alone; their own state
// machines own the next transition.
func (m *Manager) SilentRefresh(ctx context.Context) {
	for _, s := range m.Sessions() {
		if s.Controller.State() != StateReady {
			continue
		}
		go func(s *Session) {
			if err := s.Controller.Refresh(ctx); err != nil {
				m.logger.Warn().Str("session_id", s.ID).Err(err).Msg("silent refresh failed")
			}
		}(s)
	}
}

// AutoRefreshSweep re-fetches every ready session whose adaptive cadence
// has elapsed. The refresh service calls this on each tick.
func (m *Manager) AutoRefreshSweep(ctx context.Context, now time.Time) {
	for _, s := range m.Sessions() {
		if s.Controller.State() != StateReady || !s.AutoRefreshDue(now) {
			continue
		}
		go func(s *Session) {
			if err := s.Controller.Refresh(ctx); err != nil {
				m.logger.Warn().Str("session_id", s.ID).Err(err).Msg("auto refresh failed")
			}
		}(s)
	}
}

// Serve implements suture.Service: it sweeps expired sessions until the
// context is canceled.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep()
		}
	}
}

// String returns the service name for supervisor logging.
func (m *Manager) String() string { return "session-manager" }

// sweep discards sessions idle past the TTL.
func (m *Manager) sweep() {
	now := m.clock()
	expired := make([]*Session, 0)

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.ttl {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	metrics.ActiveSessions.Set(float64(total))
	for _, s := range expired {
		// Let in-flight writes settle before the session is dropped.
		s.Coordinator.Wait()
		m.logger.Debug().Str("session_id", s.ID).Msg("session expired")
	}
}
