// Package federation maps external identity-provider accounts onto the hub's
// own users: per-provider adapters normalize the outbound OAuth2 dance into a
// Claim, and the Resolver folds claims into User and Identity records.
package federation

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/authhub/authhub/domain"
)

// Claim is the normalized identity payload fetched from a provider after a
// successful code exchange. Subject is the provider's stable user id; Raw
// keeps everything the provider returned, uninterpreted.
type Claim struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Username      string
	Picture       string
	Raw           map[string]any
}

// Provider is the contract each external identity provider implements. An
// adapter turns the provider's single-use authorization code into a Claim;
// every provider-side failure surfaces as an error here and is never retried,
// because the upstream code has already been spent.
type Provider interface {
	// Name returns the registry key for the provider (e.g. "google").
	Name() string

	// AuthCodeURL builds the provider authorization URL carrying the CSRF
	// state and our callback.
	AuthCodeURL(state, redirectURI string, opts ...oauth2.AuthCodeOption) (string, error)

	// Exchange redeems the provider authorization code for provider tokens.
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)

	// FetchClaim retrieves and normalizes the provider's user payload.
	FetchClaim(ctx context.Context, token *oauth2.Token) (*Claim, error)
}

// baseProvider carries the stored registration and the provider's fixed
// OAuth2 endpoints. Adapters embed it and add FetchClaim.
type baseProvider struct {
	cfg      *domain.IdentityProvider
	endpoint oauth2.Endpoint
}

func (b *baseProvider) Name() string {
	return b.cfg.Name
}

func (b *baseProvider) oauthConfig(redirectURI string) (*oauth2.Config, error) {
	if b.cfg.ClientID == "" || b.cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}

	return &oauth2.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       b.cfg.Scopes,
		Endpoint:     b.endpoint,
	}, nil
}

func (b *baseProvider) AuthCodeURL(state, redirectURI string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := b.oauthConfig(redirectURI)
	if err != nil {
		return "", err
	}

	return conf.AuthCodeURL(state, opts...), nil
}

func (b *baseProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	conf, err := b.oauthConfig(redirectURI)
	if err != nil {
		return nil, err
	}

	return conf.Exchange(ctx, code)
}

// httpClient returns a client that authenticates against the provider API
// with the given token.
func (b *baseProvider) httpClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

// ensureScopes appends any of the wanted scopes missing from the registered
// list, without duplicating ones the admin already configured.
func ensureScopes(scopes []string, wanted ...string) []string {
	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		seen[s] = true
	}
	for _, w := range wanted {
		if !seen[w] {
			scopes = append(scopes, w)
			seen[w] = true
		}
	}
	return scopes
}
