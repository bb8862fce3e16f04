package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSessions limits concurrent map sessions to bound memory.
const DefaultMaxSessions = 200

// SessionMaxAge is how long an idle session is kept before cleanup.
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow protects recently used sessions from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// invalidator is implemented by loaders backed by a shared cache.
type invalidator interface {
	Invalidate(ctx context.Context, eventID string)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Session     Options
	MaxSessions int
	MaxAge      time.Duration
}

// Manager owns the active map sessions.
type Manager struct {
	sessions map[string]*MapSession
	mu       sync.RWMutex
	loader   Loader
	cfg      ManagerConfig
	logger   *slog.Logger
}

// NewManager creates a session manager that loads through loader.
func NewManager(loader Loader, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = SessionMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*MapSession),
		loader:   loader,
		cfg:      cfg,
		logger:   logger.With("component", "sessions"),
	}
}

// Create opens a map session for an event and starts its first load. A
// non-positive width or height falls back to the configured default.
func (m *Manager) Create(eventID string, width, height float64) (*MapSession, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	// Make room before enforcing the cap
	m.cleanupOldSessionsIfNeeded()

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, m.cfg.MaxSessions)
	}
	s := newMapSession(uuid.New().String(), eventID, width, height, m.loader, m.cfg.Session, m.logger)
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("map session created", "session_id", s.ID(), "event_id", eventID)
	s.Refresh(false)
	return s, nil
}

// Get returns a session and marks it as used.
func (m *Manager) Get(id string) (*MapSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Info("map session closed", "session_id", id)
	}
	return ok
}

// List returns the sessions ordered by creation time.
func (m *Manager) List() []*MapSession {
	m.mu.RLock()
	out := make([]*MapSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RefreshEvent drops the cached snapshots of an event and reloads every
// session showing it in the background. It returns the number of sessions
// refreshed.
func (m *Manager) RefreshEvent(eventID string) int {
	if inv, ok := m.loader.(invalidator); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		inv.Invalidate(ctx, eventID)
		cancel()
	}

	m.mu.RLock()
	var targets []*MapSession
	for _, s := range m.sessions {
		if s.EventID() == eventID {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		s.refreshInBackground(true)
	}
	if len(targets) > 0 {
		m.logger.Info("event refresh triggered", "event_id", eventID, "sessions", len(targets))
	}
	return len(targets)
}

// cleanupOldSessionsIfNeeded evicts the longest idle sessions without live
// subscribers once the cap is reached.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return
	}

	var candidates []*MapSession
	for _, s := range m.sessions {
		if s.subscriberCount() == 0 {
			candidates = append(candidates, s)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].idleSince().Before(candidates[j].idleSince())
	})

	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)
	toFree := len(m.sessions) - m.cfg.MaxSessions + 1
	var evicted []*MapSession
	for _, s := range candidates {
		if len(evicted) >= toFree {
			break
		}
		if s.idleSince().After(keepAliveCutoff) {
			break
		}
		delete(m.sessions, s.ID())
		evicted = append(evicted, s)
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Close()
		m.logger.Info("evicted idle session to free capacity", "session_id", s.ID())
	}
}

// CleanupExpired closes sessions idle for longer than maxAge. Sessions with
// a live subscriber (an open WebSocket) are kept. It returns the number of
// sessions removed.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*MapSession
	for id, s := range m.sessions {
		if s.subscriberCount() > 0 {
			continue
		}
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		m.logger.Info("cleaned up idle session", "session_id", s.ID(),
			"idle", time.Since(s.idleSince()).Round(time.Second))
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupExpired(m.cfg.MaxAge); n > 0 {
				m.logger.Debug("session sweep finished", "removed", n, "remaining", m.Count())
			}
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*MapSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
