package echo_test

import (
	"context"
	"sync"
	"time"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// In-memory repositories backing the handler tests, mirroring the mongodb
// semantics the services are written against.

type memAuthCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthCode
}

func newMemAuthCodeRepo() *memAuthCodeRepo {
	return &memAuthCodeRepo{codes: make(map[string]*domain.AuthCode)}
}

func (r *memAuthCodeRepo) Save(_ context.Context, code *domain.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *code
	r.codes[code.Code] = &cp
	return nil
}

func (r *memAuthCodeRepo) Redeem(_ context.Context, code string) (*domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.codes[code]
	if !ok || stored.Status != domain.CodeStatusIssued {
		return nil, aerrors.ErrCodeConsumedOrUnknown
	}
	now := time.Now().UTC()
	stored.Status = domain.CodeStatusRedeemed
	stored.RedeemedAt = &now
	cp := *stored
	return &cp, nil
}

func (r *memAuthCodeRepo) ExpireIssued(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, stored := range r.codes {
		if stored.Status == domain.CodeStatusIssued && stored.Expired(now) {
			stored.Status = domain.CodeStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memAuthCodeRepo) DeleteExpired(_ context.Context) error {
	return nil
}

func (r *memAuthCodeRepo) stored(code string) *domain.AuthCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.codes[code]
	if !ok {
		return nil
	}
	cp := *stored
	return &cp
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*domain.Token)}
}

func (r *memTokenRepo) Create(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.ID]; ok {
		return aerrors.ErrConflict
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *memTokenRepo) GetByAccess(_ context.Context, accessToken string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tokens {
		if stored.AccessToken == accessToken {
			cp := *stored
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memTokenRepo) GetByRefresh(_ context.Context, refreshToken string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if refreshToken == "" {
		return nil, aerrors.ErrNotFound
	}
	for _, stored := range r.tokens {
		if stored.RefreshToken == refreshToken {
			cp := *stored
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memTokenRepo) ConsumeRefresh(_ context.Context, refreshToken string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if refreshToken == "" {
		return nil, aerrors.ErrNotFound
	}
	for _, stored := range r.tokens {
		if stored.RefreshToken == refreshToken && !stored.Revoked {
			pre := *stored
			stored.Revoked = true
			return &pre, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memTokenRepo) RevokeByValue(_ context.Context, value string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == "" {
		return nil, aerrors.ErrNotFound
	}
	for _, stored := range r.tokens {
		if (stored.AccessToken == value || stored.RefreshToken == value) && !stored.Revoked {
			stored.Revoked = true
			cp := *stored
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memTokenRepo) RevokeLineage(_ context.Context, fromID string) ([]*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var descendants []*domain.Token
	id := fromID
	for {
		var next *domain.Token
		for _, stored := range r.tokens {
			if stored.RotatedFrom != "" && stored.RotatedFrom == id {
				next = stored
				break
			}
		}
		if next == nil {
			return descendants, nil
		}
		next.Revoked = true
		cp := *next
		descendants = append(descendants, &cp)
		id = next.ID
	}
}

func (r *memTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, stored := range r.tokens {
		if stored.AccessExpired(now) && (stored.Revoked || stored.RefreshExpired(now)) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

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

type memClientStore struct {
	mu      sync.Mutex
	clients map[string]*client.Client
}

func newMemClientStore() *memClientStore {
	return &memClientStore{clients: make(map[string]*client.Client)}
}

func (s *memClientStore) CreateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return aerrors.ErrConflict
	}
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *memClientStore) GetClient(_ context.Context, clientID string) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, aerrors.ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memClientStore) UpdateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return aerrors.ErrClientNotFound
	}
	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *memClientStore) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return aerrors.ErrClientNotFound
	}
	delete(s.clients, clientID)
	return nil
}

func (s *memClientStore) ListClients(_ context.Context, filter client.ClientFilter) ([]*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*client.Client
	for _, c := range s.clients {
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && c.IsActive != *filter.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type memIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{identities: make(map[string]*domain.Identity)}
}

func (r *memIdentityRepo) FindByProviderSubject(_ context.Context, provider, subject string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range r.identities {
		if ident.Provider == provider && ident.Subject == subject {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memIdentityRepo) Insert(_ context.Context, ident *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.Provider == ident.Provider && existing.Subject == ident.Subject {
			return aerrors.ErrConflict
		}
	}
	cp := *ident
	r.identities[ident.ID] = &cp
	return nil
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
