package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/cache"
	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/metrics"
)

// tokenValueLength is the entropy of access and refresh token values, in bytes.
const tokenValueLength = 32

// generateOpaqueValue returns a crypto-random urlsafe string carrying length
// bytes of entropy. Shared by code and token issuance.
func generateOpaqueValue(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenService issues, validates, refreshes and revokes the hub's own opaque
// tokens. Access token validation reads through the cache; everything that
// kills a token evicts it.
type TokenService struct {
	repo       domain.TokenRepository
	cache      cache.TokenStore
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(repo domain.TokenRepository, tokenCache cache.TokenStore, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		repo:       repo,
		cache:      tokenCache,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// toCacheEntry converts a token pair to the cached view of its access token.
func toCacheEntry(t *domain.Token) *cache.TokenEntry {
	return &cache.TokenEntry{
		ID:         t.ID,
		TokenValue: t.AccessToken,
		ClientID:   t.ClientID,
		UserID:     t.UserID,
		Scope:      t.Scope,
		TokenType:  t.TokenType,
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.AccessExpiresAt(),
	}
}

// fromCacheEntry rebuilds the token-pair view a validation caller needs from
// a cache hit. The refresh side is not cached and stays empty.
func fromCacheEntry(entry *cache.TokenEntry) *domain.Token {
	return &domain.Token{
		ID:          entry.ID,
		AccessToken: entry.TokenValue,
		ClientID:    entry.ClientID,
		UserID:      entry.UserID,
		Scope:       entry.Scope,
		TokenType:   entry.TokenType,
		IssuedAt:    entry.IssuedAt,
		ExpiresIn:   int64(entry.ExpiresAt.Sub(entry.IssuedAt) / time.Second),
	}
}

// IssueTokenOptions carries the identity a new pair is bound to. GrantType
// only labels metrics; the engine has already enforced grant rules.
type IssueTokenOptions struct {
	ClientID    string
	UserID      string
	Scope       string
	GrantType   string
	WithRefresh bool
	RotatedFrom string
}

// Issue mints and persists a new opaque token pair and primes the cache.
func (s *TokenService) Issue(ctx context.Context, opts IssueTokenOptions) (*domain.Token, error) {
	access, err := generateOpaqueValue(tokenValueLength)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token := &domain.Token{
		ID:          uuid.NewString(),
		AccessToken: access,
		ClientID:    opts.ClientID,
		UserID:      opts.UserID,
		Scope:       opts.Scope,
		TokenType:   domain.TokenTypeBearer,
		IssuedAt:    now,
		ExpiresIn:   int64(s.accessTTL / time.Second),
		RotatedFrom: opts.RotatedFrom,
	}

	if opts.WithRefresh {
		refresh, err := generateOpaqueValue(tokenValueLength)
		if err != nil {
			return nil, err
		}
		token.RefreshToken = refresh
		refreshExpiry := now.Add(s.refreshTTL)
		token.RefreshExpiresAt = &refreshExpiry
	}

	if err := s.repo.Create(ctx, token); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, toCacheEntry(token)); err != nil {
		log.Warn().Err(err).Msg("failed to cache access token")
	}

	metrics.TokensIssuedTotal.WithLabelValues(opts.GrantType).Inc()
	return token, nil
}

// ValidateAccess resolves an access token value, cache first. Unknown values
// fail ErrNotFound; known but dead ones fail ErrTokenExpiredOrRevoked.
func (s *TokenService) ValidateAccess(ctx context.Context, accessToken string) (*domain.Token, error) {
	if entry, err := s.cache.Get(ctx, accessToken); err == nil {
		if time.Now().Before(entry.ExpiresAt) {
			return fromCacheEntry(entry), nil
		}
		_ = s.cache.Delete(ctx, accessToken)
		return nil, aerrors.ErrTokenExpiredOrRevoked
	}

	token, err := s.repo.GetByAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if token.Revoked || token.AccessExpired(time.Now()) {
		return nil, aerrors.ErrTokenExpiredOrRevoked
	}

	if err := s.cache.Set(ctx, toCacheEntry(token)); err != nil {
		log.Warn().Err(err).Msg("failed to cache access token")
	}
	return token, nil
}

// Refresh rotates a refresh token: the presented token's pair is atomically
// consumed and a new pair is issued in its place, recording lineage. Of any
// number of concurrent refreshes of one value exactly one wins; the losers
// fail ErrInvalidRefreshToken. The consumed pair's access token dies with it.
//
// requestedScope may narrow the granted scope (RFC 6749 §6); empty keeps it,
// anything broader fails ErrScopeExceeded before the token is consumed.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string, cli *client.Client, requestedScope string) (*domain.Token, error) {
	current, err := s.repo.GetByRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return nil, aerrors.ErrInvalidRefreshToken
		}
		return nil, err
	}

	// A revoked pair means this value was already rotated or revoked:
	// replay. Every pair issued after it in the rotation chain dies with it.
	if current.Revoked {
		s.revokeDescendants(ctx, current)
		return nil, aerrors.ErrInvalidRefreshToken
	}

	// A client presenting another client's refresh token must not be able to
	// burn it.
	if current.ClientID != cli.ID {
		log.Warn().Str("client_id", cli.ID).Str("token_client_id", current.ClientID).
			Msg("Refresh token presented by a different client")
		return nil, aerrors.ErrInvalidRefreshToken
	}

	scope := current.Scope
	if requestedScope != "" {
		if !scopeWithin(requestedScope, current.Scope) {
			return nil, aerrors.ErrScopeExceeded
		}
		scope = requestedScope
	}

	consumed, err := s.repo.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			// Revoked between lookup and consume: a concurrent refresh won.
			return nil, aerrors.ErrInvalidRefreshToken
		}
		return nil, err
	}

	if err := s.cache.Delete(ctx, consumed.AccessToken); err != nil {
		log.Warn().Err(err).Msg("failed to evict rotated access token from cache")
	}

	if consumed.RefreshExpired(time.Now()) {
		return nil, aerrors.ErrTokenExpiredOrRevoked
	}

	return s.Issue(ctx, IssueTokenOptions{
		ClientID:    consumed.ClientID,
		UserID:      consumed.UserID,
		Scope:       scope,
		GrantType:   client.GrantRefreshToken,
		WithRefresh: true,
		RotatedFrom: consumed.ID,
	})
}

// revokeDescendants kills the rotation chain issued after a replayed pair
// and evicts the chain's access tokens from the cache.
func (s *TokenService) revokeDescendants(ctx context.Context, from *domain.Token) {
	descendants, err := s.repo.RevokeLineage(ctx, from.ID)
	if err != nil {
		log.Error().Err(err).Str("token_id", from.ID).
			Msg("Failed to revoke token lineage after refresh replay")
	}
	for _, d := range descendants {
		if err := s.cache.Delete(ctx, d.AccessToken); err != nil {
			log.Warn().Err(err).Msg("failed to evict lineage access token from cache")
		}
	}
	if len(descendants) > 0 {
		log.Warn().Str("token_id", from.ID).Str("client_id", from.ClientID).
			Int("descendants", len(descendants)).
			Msg("Rotated refresh token replayed, lineage revoked")
		metrics.TokensRevokedTotal.Add(float64(len(descendants)))
	}
}

// scopeWithin reports whether every space-separated scope value in requested
// also appears in granted.
func scopeWithin(requested, granted string) bool {
	grantedSet := make(map[string]struct{})
	for _, s := range strings.Fields(granted) {
		grantedSet[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := grantedSet[s]; !ok {
			return false
		}
	}
	return true
}

// Revoke kills the pair holding value as either of its token values. Unknown
// and already-revoked values are not errors (RFC 7009): revocation reports
// only that the token is now dead.
func (s *TokenService) Revoke(ctx context.Context, value string) error {
	revoked, err := s.repo.RevokeByValue(ctx, value)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			// Evict whatever the caller presented anyway.
			_ = s.cache.Delete(ctx, value)
			return nil
		}
		return err
	}

	if err := s.cache.Delete(ctx, revoked.AccessToken); err != nil {
		log.Warn().Err(err).Msg("failed to evict revoked access token from cache")
	}

	metrics.TokensRevokedTotal.Inc()
	return nil
}

// Introspect reports the state of a token value, access or refresh, in RFC
// 7662 terms. Unknown values are simply inactive.
func (s *TokenService) Introspect(ctx context.Context, value string) (*domain.TokenInfo, error) {
	now := time.Now()

	if token, err := s.repo.GetByAccess(ctx, value); err == nil {
		info := &domain.TokenInfo{
			Active:    !token.Revoked && !token.AccessExpired(now),
			Scope:     token.Scope,
			ClientID:  token.ClientID,
			UserID:    token.UserID,
			TokenType: token.TokenType,
			IssuedAt:  token.IssuedAt,
			ExpiresAt: token.AccessExpiresAt(),
		}
		return redactInactive(info), nil
	} else if !errors.Is(err, aerrors.ErrNotFound) {
		return nil, err
	}

	token, err := s.repo.GetByRefresh(ctx, value)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return &domain.TokenInfo{Active: false}, nil
		}
		return nil, err
	}

	info := &domain.TokenInfo{
		Active:    !token.Revoked && !token.RefreshExpired(now),
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		TokenType: token.TokenType,
		IssuedAt:  token.IssuedAt,
	}
	if token.RefreshExpiresAt != nil {
		info.ExpiresAt = *token.RefreshExpiresAt
	}
	return redactInactive(info), nil
}

// redactInactive strips everything but the active flag from an inactive
// token's introspection view (RFC 7662 §2.2).
func redactInactive(info *domain.TokenInfo) *domain.TokenInfo {
	if info.Active {
		return info
	}
	return &domain.TokenInfo{Active: false}
}

// DeleteExpired drops token pairs that can no longer be used or refreshed.
func (s *TokenService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now().UTC())
}
