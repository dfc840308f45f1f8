package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"contentplanner/internal/ai"
	"contentplanner/internal/identity"
	"contentplanner/internal/mirror"
	"contentplanner/pkg/docstore"
	"contentplanner/pkg/metrics"
)

// ErrSessionClosed is returned by Open for a session that has signed out.
var ErrSessionClosed = errors.New("session signed out")

// signedOutRetention bounds how long a signed-out id is refused. Requests that
// authenticated before the sign-out finish well within it.
const signedOutRetention = 10 * time.Minute

// StateSource delivers sign-in and sign-out events.
type StateSource interface {
	OnStateChanged(fn func(identity.StateChange)) func()
}

// Manager owns every open session, keyed by session id. A session is torn
// down when its identity signs out or when it has been idle past idleTTL.
type Manager struct {
	store   docstore.Store
	ai      *ai.Adapter
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	signedOut map[string]time.Time

	stopListening func()
}

func NewManager(store docstore.Store, states StateSource, adapter *ai.Adapter, idleTTL time.Duration, logger *zap.Logger) *Manager {
	m := &Manager{
		store:     store,
		ai:        adapter,
		idleTTL:   idleTTL,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		signedOut: make(map[string]time.Time),
	}
	m.stopListening = states.OnStateChanged(m.handleStateChange)
	return m
}

func (m *Manager) handleStateChange(change identity.StateChange) {
	if change.Identity == nil {
		m.mu.Lock()
		m.signedOut[change.SessionID] = m.now()
		m.mu.Unlock()
		m.Close(change.SessionID)
	}
}

// Open returns the session for sessionID, creating it and starting its
// mirror on first use. The mirror's subscriptions outlive ctx.
func (m *Manager) Open(ctx context.Context, sessionID string, who identity.Identity) (*Session, error) {
	m.mu.Lock()
	if _, gone := m.signedOut[sessionID]; gone {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		s.touch(m.now())
		return s, nil
	}
	s := newSession(sessionID, who, m.store, m.ai, m.logger)
	s.touch(m.now())
	m.sessions[sessionID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if err := s.Mirror.Activate(context.WithoutCancel(ctx), who); err != nil {
		m.Close(sessionID)
		if errors.Is(err, mirror.ErrClosed) {
			return nil, ErrSessionClosed
		}
		return nil, err
	}

	metrics.ActiveSessions.Set(float64(count))
	m.logger.Info("Session opened",
		zap.String("session_id", sessionID),
		zap.String("user_id", who.UID),
	)
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Close tears down a session: subscriptions are cancelled, lists and
// suggestions cleared, and later writes through its gateway are rejected.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	metrics.ActiveSessions.Set(float64(count))
	m.logger.Info("Session closed", zap.String("session_id", sessionID))
}

// ReapIdle closes sessions not seen for idleTTL and returns how many it closed.
// It also forgets signed-out ids older than signedOutRetention.
func (m *Manager) ReapIdle() int {
	now := m.now()
	m.mu.Lock()
	for id, at := range m.signedOut {
		if now.Sub(at) > signedOutRetention {
			delete(m.signedOut, id)
		}
	}
	m.mu.Unlock()

	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.Close(id)
	}
	if len(idle) > 0 {
		m.logger.Info("Reaped idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session and stops listening for sign-outs.
func (m *Manager) Shutdown() {
	m.stopListening()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}
