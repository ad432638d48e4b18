package session

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store, suitable for tests and single-instance
// deployments. All state is lost on process exit.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*Session)}
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, canvasID string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:           newID(),
		CanvasID:     canvasID,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return cloneSession(s), nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return cloneSession(s), true, nil
}

// Touch implements Store.
func (m *Memory) Touch(_ context.Context, id string, canvasID string, msg *Message) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		now := time.Now()
		s = &Session{ID: id, CanvasID: canvasID, CreatedAt: now, LastActivity: now}
		m.sessions[id] = s
	}

	if canvasID != "" && s.CanvasID == "" {
		s.CanvasID = canvasID
	}
	if msg != nil {
		s.Messages = append(s.Messages, *msg)
	}
	s.LastActivity = time.Now()

	return cloneSession(s), nil
}

// GC implements Store.
func (m *Memory) GC(_ context.Context, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func cloneSession(s *Session) *Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	return &out
}
