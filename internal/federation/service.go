package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/internal/metrics"
)

// Service drives a complete social login: redirect out with a CSRF state,
// then on callback verify the state, run the provider exchange and resolve
// the claim to a hub user.
type Service struct {
	registry        *Registry
	resolver        *Resolver
	callbackBaseURL string // e.g. "https://hub.example.com/auth"; provider name is appended
}

// NewService creates a federation Service. callbackBaseURL is the prefix of
// this hub's provider callback routes; the provider name is appended as the
// final path segment.
func NewService(registry *Registry, resolver *Resolver, callbackBaseURL string) *Service {
	return &Service{
		registry:        registry,
		resolver:        resolver,
		callbackBaseURL: callbackBaseURL,
	}
}

// GenerateAuthState generates an unguessable state parameter for one login
// round trip.
func (s *Service) GenerateAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// BeginLogin returns the provider authorization URL to redirect the user to,
// plus the state the caller must stash (cookie) for callback verification.
func (s *Service) BeginLogin(ctx context.Context, providerName string) (authURL, state string, err error) {
	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return "", "", err
	}

	state, err = s.GenerateAuthState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate auth state: %w", err)
	}

	authURL, err = provider.AuthCodeURL(state, s.RedirectURLFor(providerName))
	if err != nil {
		return "", "", err
	}

	return authURL, state, nil
}

// CompleteLogin processes the provider callback: CSRF state check, code
// exchange, claim fetch, then resolution to a hub user. The provider code is
// single-use, so nothing here is retried.
func (s *Service) CompleteLogin(ctx context.Context, providerName, queryState, sessionState, code string) (*domain.User, error) {
	if queryState == "" || queryState != sessionState {
		return nil, ErrInvalidAuthState
	}

	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.Exchange(ctx, code, s.RedirectURLFor(providerName))
	if err != nil {
		metrics.FederationLoginsTotal.WithLabelValues(providerName, "exchange_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExchangeCodeFailed, err)
	}

	claim, err := provider.FetchClaim(ctx, token)
	if err != nil {
		metrics.FederationLoginsTotal.WithLabelValues(providerName, "claim_failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFetchClaimFailed, err)
	}

	user, err := s.resolver.Resolve(ctx, claim, token)
	if err != nil {
		metrics.FederationLoginsTotal.WithLabelValues(providerName, "resolve_failed").Inc()
		return nil, err
	}

	metrics.FederationLoginsTotal.WithLabelValues(providerName, "success").Inc()

	return user, nil
}

// RedirectURLFor is the callback URL registered at the provider for this
// hub, e.g. "<base>/google/callback".
func (s *Service) RedirectURLFor(providerName string) string {
	base := s.callbackBaseURL
	if base != "" && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/%s/callback", base, url.PathEscape(providerName))
}
