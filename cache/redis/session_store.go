package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/cache"
	"github.com/authhub/authhub/domain"
)

// SessionStore implements cache.SessionStore on Redis so login sessions
// survive hub restarts and are visible to every instance.
type SessionStore struct {
	client *redis.Client
	prefix string
}

func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (r *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *SessionStore) Set(ctx context.Context, session *domain.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (r *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cache.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *SessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.sessionKey(id)).Err()
}

func (r *SessionStore) Count(ctx context.Context) int {
	pattern := fmt.Sprintf("%s:session:*", r.prefix)
	var count int
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Error().Err(err).Msg("Error scanning session keys")
			return count
		}
		count += len(keys)

		cursor = next
		if cursor == 0 {
			return count
		}
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (r *SessionStore) Close() {}

var _ cache.SessionStore = (*SessionStore)(nil)
