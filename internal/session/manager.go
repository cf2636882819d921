package session

import (
	"sync"

	"github.com/google/uuid"
)

// Manager tracks open capture sessions in memory. Sessions for different
// classes and dates are independent; each Session serializes its own
// mutations, the manager only guards the map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Start opens a new session for a class and date over a fixed roster.
func (m *Manager) Start(classID, date string, roster []string) *Session {
	s := New(uuid.NewString(), classID, date, roster)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get retrieves a session by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops a session from the manager. Abandoned sessions have no side
// effects; nothing durable exists until Submit succeeds.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
