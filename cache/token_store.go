package cache

import (
	"context"
	"errors"
	"time"
)

// ErrEntryNotFound is returned by Get when the value is not cached. A miss is
// not a verdict; callers fall through to the token repository.
var ErrEntryNotFound = errors.New("cache entry not found")

// TokenEntry is the cached view of an issued access token: just enough to
// answer a validation without a database read.
type TokenEntry struct {
	ID         string    `redis:"id"`
	TokenValue string    `redis:"token_value"`
	ClientID   string    `redis:"client_id"`
	UserID     string    `redis:"user_id"`
	Scope      string    `redis:"scope"`
	TokenType  string    `redis:"token_type"`
	IssuedAt   time.Time `redis:"issued_at"`
	ExpiresAt  time.Time `redis:"expires_at"`
}

// TokenStore caches access tokens keyed by the hash of their value. Entries
// disappear on expiry; revocation must Delete explicitly.
type TokenStore interface {
	Set(ctx context.Context, entry *TokenEntry) error
	Get(ctx context.Context, tokenValue string) (*TokenEntry, error)
	Delete(ctx context.Context, tokenValue string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
	Close() error
}
