package federation_test

import (
	"context"
	"sync"
	"time"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// In-memory repositories mirroring the mongodb semantics, most importantly
// the (provider, subject) unique constraint on identities.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return aerrors.ErrConflict
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, aerrors.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memUserRepo) UpdateProfile(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return aerrors.ErrNotFound
	}
	stored.Email = user.Email
	stored.Name = user.Name
	stored.Picture = user.Picture
	stored.LastLoginAt = user.LastLoginAt
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memUserRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[id]
	if !ok {
		return aerrors.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return aerrors.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type memIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity // by ID

	// beforeInsert runs at the top of Insert, letting a test slip in a
	// competing identity to simulate a lost insert race.
	beforeInsert func()
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{identities: make(map[string]*domain.Identity)}
}

func (r *memIdentityRepo) FindByProviderSubject(_ context.Context, provider, subject string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(provider, subject)
}

func (r *memIdentityRepo) findLocked(provider, subject string) (*domain.Identity, error) {
	for _, ident := range r.identities {
		if ident.Provider == provider && ident.Subject == subject {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memIdentityRepo) Insert(_ context.Context, ident *domain.Identity) error {
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.findLocked(ident.Provider, ident.Subject); err == nil {
		return aerrors.ErrConflict
	}
	cp := *ident
	r.identities[ident.ID] = &cp
	return nil
}

// add stores an identity directly, bypassing the beforeInsert hook.
func (r *memIdentityRepo) add(ident *domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ident
	r.identities[ident.ID] = &cp
}

func (r *memIdentityRepo) UpdateClaims(_ context.Context, ident *domain.Identity) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.identities {
		if stored.Provider == ident.Provider && stored.Subject == ident.Subject {
			stored.Email = ident.Email
			stored.Name = ident.Name
			stored.Username = ident.Username
			stored.Picture = ident.Picture
			stored.RawClaims = ident.RawClaims
			stored.AccessToken = ident.AccessToken
			stored.RefreshToken = ident.RefreshToken
			stored.TokenExpiresAt = ident.TokenExpiresAt
			stored.UpdatedAt = ident.UpdatedAt
			cp := *stored
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memIdentityRepo) ListByUser(_ context.Context, userID string) ([]*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Identity
	for _, ident := range r.identities {
		if ident.UserID == userID {
			cp := *ident
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memIdentityRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[id]; !ok {
		return aerrors.ErrNotFound
	}
	delete(r.identities, id)
	return nil
}

type memProviderRepo struct {
	mu        sync.Mutex
	providers map[string]*domain.IdentityProvider
}

func newMemProviderRepo() *memProviderRepo {
	return &memProviderRepo{providers: make(map[string]*domain.IdentityProvider)}
}

func (r *memProviderRepo) Upsert(_ context.Context, ip *domain.IdentityProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ip
	r.providers[ip.Name] = &cp
	return nil
}

func (r *memProviderRepo) GetByName(_ context.Context, name string) (*domain.IdentityProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ip, ok := r.providers[name]
	if !ok {
		return nil, aerrors.ErrNotFound
	}
	cp := *ip
	return &cp, nil
}

func (r *memProviderRepo) List(_ context.Context) ([]*domain.IdentityProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.IdentityProvider
	for _, ip := range r.providers {
		cp := *ip
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memProviderRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return aerrors.ErrNotFound
	}
	delete(r.providers, name)
	return nil
}
