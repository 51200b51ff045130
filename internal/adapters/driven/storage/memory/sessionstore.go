package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of driven.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
	}
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

// CreateSessionIfAbsent inserts session unless one with the same ID exists.
func (s *SessionStore) CreateSessionIfAbsent(_ context.Context, session domain.Session) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.ID]; ok {
		return &existing, false, nil
	}
	session.Version = 1
	s.sessions[session.ID] = session
	return &session, true, nil
}

// SaveSession writes session if its Version is current and advances it.
func (s *SessionStore) SaveSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(session); err != nil {
		return err
	}
	s.put(session)
	return nil
}

// checkVersion requires s.mu.
func (s *SessionStore) checkVersion(session *domain.Session) error {
	stored := s.sessions[session.ID]
	if stored.Version != session.Version {
		return fmt.Errorf("session %s is at version %d, not %d: %w",
			session.ID, stored.Version, session.Version, domain.ErrConflict)
	}
	return nil
}

// put requires s.mu.
func (s *SessionStore) put(session *domain.Session) {
	session.Version++
	s.sessions[session.ID] = *session
}
