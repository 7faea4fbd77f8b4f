package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// newProvider is the adapter factory: one case per provider the hub can
// federate with. Registrations with any other name are admin mistakes.
func newProvider(cfg *domain.IdentityProvider) (Provider, error) {
	switch cfg.Name {
	case "google":
		return NewGoogleProvider(cfg), nil
	case "github":
		return NewGitHubProvider(cfg), nil
	case "facebook":
		return NewFacebookProvider(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Name)
	}
}

// Supported reports whether an adapter exists for the named provider. The
// admin surface uses it to reject registrations no adapter could ever serve.
func Supported(name string) bool {
	switch name {
	case "google", "github", "facebook":
		return true
	}
	return false
}

// Registry hands out initialized provider adapters keyed by name. Adapters
// are built lazily from the stored registrations and cached; admin updates
// call Invalidate so new credentials take effect without a restart.
type Registry struct {
	mu        sync.RWMutex
	repo      domain.IdentityProviderRepository
	providers map[string]Provider
}

// NewRegistry creates a Registry backed by the given registration store.
func NewRegistry(repo domain.IdentityProviderRepository) *Registry {
	return &Registry{
		repo:      repo,
		providers: make(map[string]Provider),
	}
}

// Get returns the adapter for the named provider, constructing it from the
// stored registration on first use. Unknown and disabled providers are both
// ErrProviderNotFound.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	cfg, err := r.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to load provider registration for %s: %w", name, err)
	}
	if !cfg.Enabled {
		return nil, ErrProviderNotFound
	}

	p, err = newProvider(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.providers[name]; ok {
		return cached, nil
	}
	r.providers[name] = p

	return p, nil
}

// Invalidate drops the cached adapter for a provider, forcing a rebuild from
// the store on the next Get. Admin mutations call this.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}
