package session

import (
	"sync"
	"time"

	"paperdesk/internal/domain"
)

// Factory creates a Session for a user, typically restoring persisted
// state before handing it back.
type Factory func(userID string) (*Session, error)

// Manager tracks the live sessions of every connected user.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // userID -> Session
	lastSeen map[string]time.Time
	factory  Factory
}

// NewManager creates an empty session manager.
func NewManager(factory Factory) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		factory:  factory,
	}
}

// GetOrCreate returns the session for a user, creating it if needed.
func (m *Manager) GetOrCreate(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		m.lastSeen[userID] = time.Now()
		return s, nil
	}

	s, err := m.factory(userID)
	if err != nil {
		return nil, err
	}

	m.sessions[userID] = s
	m.lastSeen[userID] = time.Now()
	return s, nil
}

// Get returns the session for a user, or nil if not found.
func (m *Manager) Get(userID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

// Remove drops a user's session.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	delete(m.lastSeen, userID)
}

// Broadcast fans one tick into every live session.
func (m *Manager) Broadcast(t domain.Tick) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.HandleTick(t)
	}
}

// UserCount returns the number of live sessions.
func (m *Manager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdle removes sessions idle longer than ttl.
func (m *Manager) CleanupIdle(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, t := range m.lastSeen {
		if t.Before(cutoff) {
			delete(m.sessions, userID)
			delete(m.lastSeen, userID)
		}
	}
}
