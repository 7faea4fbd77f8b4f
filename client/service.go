package client

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	aerrors "github.com/authhub/authhub/errors"
)

const secretLength = 32

// ClientService is the registry the protocol engine consults on every
// request. Reads go through a TTL cache over the store; admin mutations
// invalidate the cached entry so a revoked or updated registration takes
// effect immediately on this instance.
type ClientService struct {
	store ClientStore
	cache *ttlcache.Cache[string, *Client]
}

// NewClientService creates a ClientService caching lookups for cacheTTL.
func NewClientService(store ClientStore, cacheTTL time.Duration) *ClientService {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Client](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Client](),
	)

	go cache.Start()

	return &ClientService{
		store: store,
		cache: cache,
	}
}

// Close stops the cache cleanup goroutine.
func (s *ClientService) Close() error {
	s.cache.Stop()
	return nil
}

// generateRandomString creates a cryptographically secure random string of
// the specified length.
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	_, _ = rand.Read(b)

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}

	return string(b)
}

// GetClient retrieves an active client by id, from cache when possible.
// Unknown and inactive clients both come back as ErrClientNotFound so the
// registry does not leak which registrations exist.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if item := s.cache.Get(clientID); item != nil {
		return item.Value(), nil
	}

	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, aerrors.ErrClientNotFound
	}

	s.cache.Set(clientID, c, ttlcache.DefaultTTL)

	return c, nil
}

// Validate authenticates a client. Confidential clients must present their
// secret; the comparison is constant time. Public clients authenticate by
// id alone and must not present a secret they do not have.
func (s *ClientService) Validate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if c.Type == Public {
		if clientSecret != "" {
			return nil, aerrors.ErrInvalidClientCredentials
		}
		return c, nil
	}

	if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(clientSecret)) != 1 {
		return nil, aerrors.ErrInvalidClientCredentials
	}

	return c, nil
}

// CreateConfidentialClient registers a confidential client. The generated
// secret is returned exactly once, on this call.
func (s *ClientService) CreateConfidentialClient(ctx context.Context,
	name string, redirectURIs, allowedScopes []string,
) (*Client, error) {
	now := time.Now().UTC()
	c := &Client{
		ID:            uuid.NewString(),
		Secret:        generateRandomString(secretLength),
		Type:          Confidential,
		Name:          name,
		RedirectURIs:  redirectURIs,
		AllowedScopes: allowedScopes,
		AllowedGrantTypes: []string{
			GrantAuthorizationCode,
			GrantClientCredentials,
			GrantRefreshToken,
		},
		AllowedResponseTypes: []string{ResponseTypeCode},
		RequirePKCE:          false,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("create confidential client: %w", err)
	}

	return c, nil
}

// CreatePublicClient registers a public client. PKCE is always required for
// these.
func (s *ClientService) CreatePublicClient(ctx context.Context,
	name string, redirectURIs, allowedScopes []string,
) (*Client, error) {
	now := time.Now().UTC()
	c := &Client{
		ID:            uuid.NewString(),
		Type:          Public,
		Name:          name,
		RedirectURIs:  redirectURIs,
		AllowedScopes: allowedScopes,
		AllowedGrantTypes: []string{
			GrantAuthorizationCode,
			GrantRefreshToken,
		},
		AllowedResponseTypes: []string{ResponseTypeCode},
		RequirePKCE:          true,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("create public client: %w", err)
	}

	return c, nil
}

// GetRegistration fetches a client for administration. It bypasses the cache
// and returns inactive registrations too, so a disabled client can still be
// inspected and re-enabled.
func (s *ClientService) GetRegistration(ctx context.Context, clientID string) (*Client, error) {
	return s.store.GetClient(ctx, clientID)
}

// UpdateClient persists an admin edit and drops the cached entry.
func (s *ClientService) UpdateClient(ctx context.Context, c *Client) error {
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateClient(ctx, c); err != nil {
		return err
	}

	s.cache.Delete(c.ID)
	log.Debug().Str("client_id", c.ID).Msg("client registration updated, cache invalidated")

	return nil
}

// DeleteClient removes a registration and drops the cached entry.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return err
	}

	s.cache.Delete(clientID)

	return nil
}

// ListClients lists registrations matching the filter.
func (s *ClientService) ListClients(ctx context.Context, filter ClientFilter) ([]*Client, error) {
	return s.store.ListClients(ctx, filter)
}
