// ABOUTME: In-memory registry of active sessions keyed by generated ID.
// ABOUTME: Creation, lookup, removal, and bulk close for shutdown.

package session

import (
	"log/slog"
	"sync"
)

// Store manages active sessions (in-memory).
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Create registers a new session with a fresh unguessable ID.
func (s *Store) Create() *Session {
	sess := newSession()
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.ID, "total_sessions", total)
	return sess
}

// Get returns the session for id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

// Remove unregisters and closes the session. Unknown IDs are a no-op, so
// the SSE handler and an explicit teardown can race harmlessly.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	total := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.Close()
	s.logger.Info("session removed", "session_id", id, "total_sessions", total)
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseAll tears down every session. Used on gateway shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	if len(sessions) > 0 {
		s.logger.Info("closed all sessions", "count", len(sessions))
	}
}
