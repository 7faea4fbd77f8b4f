package services

import (
	"context"
	"errors"
	"time"

	"github.com/authhub/authhub/cache"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/metrics"
)

// sessionIDLength is the entropy of a session id, in bytes.
const sessionIDLength = 32

// SessionService manages the browser login sessions bridging the federation
// callback to the authorize endpoint.
type SessionService struct {
	store cache.SessionStore
	ttl   time.Duration
}

func NewSessionService(store cache.SessionStore, ttl time.Duration) *SessionService {
	return &SessionService{
		store: store,
		ttl:   ttl,
	}
}

// Begin opens a session for a signed-in user and returns it; the caller puts
// the id in a cookie.
func (s *SessionService) Begin(ctx context.Context, userID, userAgent, ipAddress string) (*domain.Session, error) {
	id, err := generateOpaqueValue(sessionIDLength)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:        id,
		UserID:    userID,
		AuthTime:  now,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}

	if err := s.store.Set(ctx, session); err != nil {
		return nil, err
	}

	metrics.ActiveSessionsGauge.Set(float64(s.store.Count(ctx)))
	return session, nil
}

// Get resolves a session id from a cookie. Absent and expired sessions both
// fail ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrEntryNotFound) {
			return nil, aerrors.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// End closes a session. Ending an unknown session is a no-op.
func (s *SessionService) End(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ActiveSessionsGauge.Set(float64(s.store.Count(ctx)))
	return nil
}
