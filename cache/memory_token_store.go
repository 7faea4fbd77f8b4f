package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenStore implements TokenStore using ttlcache. Single-process
// deployments get read-through token validation without Redis.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, *TokenEntry]
}

// NewMemoryTokenStore creates an in-memory token store with automatic
// expiry-based eviction.
//
//nolint:ireturn
func NewMemoryTokenStore(defaultTTL time.Duration) TokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *TokenEntry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *TokenEntry](),
	)

	go cache.Start()

	return &MemoryTokenStore{
		cache: cache,
	}
}

// Set implements TokenStore.Set. The entry lives exactly until its expiry.
func (s *MemoryTokenStore) Set(_ context.Context, entry *TokenEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	s.cache.Set(HashToken(entry.TokenValue), entry, ttl)
	return nil
}

// Get implements TokenStore.Get.
func (s *MemoryTokenStore) Get(_ context.Context, tokenValue string) (*TokenEntry, error) {
	item := s.cache.Get(HashToken(tokenValue))
	if item == nil {
		return nil, ErrEntryNotFound
	}
	return item.Value(), nil
}

// Delete removes a token from the cache.
func (s *MemoryTokenStore) Delete(_ context.Context, tokenValue string) error {
	s.cache.Delete(HashToken(tokenValue))
	return nil
}

// Clear removes all tokens from the cache.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Count reports the number of live entries.
func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the eviction goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}
