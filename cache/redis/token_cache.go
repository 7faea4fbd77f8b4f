package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/cache"
)

// TokenStore implements cache.TokenStore on Redis. Entries are JSON blobs
// under a hashed key with a TTL matching the token expiry, so Redis does the
// eviction and multiple hub instances share one validation cache.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// NewTokenStore creates a Redis-backed token store. prefix namespaces the
// keys; use the service name.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

func (r *TokenStore) tokenKey(tokenValue string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(tokenValue))
}

// Set stores the entry until its expiry. Entries already past expiry are
// dropped silently.
func (r *TokenStore) Set(ctx context.Context, entry *cache.TokenEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal token entry: %w", err)
	}

	if err := r.client.Set(ctx, r.tokenKey(entry.TokenValue), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token entry in redis: %w", err)
	}
	return nil
}

// Get implements cache.TokenStore.Get.
func (r *TokenStore) Get(ctx context.Context, tokenValue string) (*cache.TokenEntry, error) {
	payload, err := r.client.Get(ctx, r.tokenKey(tokenValue)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cache.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read token entry from redis: %w", err)
	}

	var entry cache.TokenEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token entry: %w", err)
	}
	return &entry, nil
}

// Delete implements cache.TokenStore.Delete.
func (r *TokenStore) Delete(ctx context.Context, tokenValue string) error {
	return r.client.Del(ctx, r.tokenKey(tokenValue)).Err()
}

// Clear removes every token entry under this store's prefix.
func (r *TokenStore) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("%s:token:*", r.prefix)
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan token keys: %w", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete token keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Count reports the number of live entries under this store's prefix.
func (r *TokenStore) Count(ctx context.Context) int {
	pattern := fmt.Sprintf("%s:token:*", r.prefix)
	var count int
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Error().Err(err).Msg("Error scanning token keys")
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
func (r *TokenStore) Close() error {
	return nil
}

var _ cache.TokenStore = (*TokenStore)(nil)
