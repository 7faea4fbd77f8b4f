package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/domain"
)

// SessionStore holds browser login sessions. Sessions are cache-resident:
// losing them signs users out, nothing worse.
type SessionStore interface {
	Set(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) int
	Close()
}

// MemorySessionStore is a thread-safe in-process SessionStore with periodic
// expiry sweeps.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	cleanupInterval time.Duration
	done            chan struct{}
}

// NewMemorySessionStore creates a session store sweeping expired sessions
// every cleanupInterval.
func NewMemorySessionStore(cleanupInterval time.Duration) *MemorySessionStore {
	store := &MemorySessionStore{
		sessions:        make(map[string]*domain.Session),
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

func (s *MemorySessionStore) Set(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session

	log.Ctx(ctx).Debug().
		Str("session_id", session.ID[:8]+"...").
		Time("expires_at", session.ExpiresAt).
		Msg("session stored")
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrEntryNotFound
	}

	if time.Now().After(session.ExpiresAt) {
		_ = s.Delete(ctx, id)
		return nil, ErrEntryNotFound
	}

	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

func (s *MemorySessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

func (s *MemorySessionStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// Close stops the sweep goroutine.
func (s *MemorySessionStore) Close() {
	close(s.done)
}

var _ SessionStore = (*MemorySessionStore)(nil)
