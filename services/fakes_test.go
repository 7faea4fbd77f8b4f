package services_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// In-memory repository fakes mirroring the semantics of the mongodb
// implementations, in particular the atomicity contracts: Redeem and
// ConsumeRefresh have exactly one winner per value.

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

func (r *memAuthCodeRepo) Redeem(_ context.Context, codeValue string) (*domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[codeValue]
	if !ok || code.Status != domain.CodeStatusIssued {
		return nil, aerrors.ErrCodeConsumedOrUnknown
	}
	now := time.Now().UTC()
	code.Status = domain.CodeStatusRedeemed
	code.RedeemedAt = &now
	cp := *code
	return &cp, nil
}

func (r *memAuthCodeRepo) ExpireIssued(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, code := range r.codes {
		if code.Status == domain.CodeStatusIssued && code.Expired(now) {
			code.Status = domain.CodeStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memAuthCodeRepo) DeleteExpired(_ context.Context) error {
	return nil
}

// stored returns the repository's copy of a code, for asserting on status
// transitions.
func (r *memAuthCodeRepo) stored(codeValue string) *domain.AuthCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[codeValue]
	if !ok {
		return nil
	}
	cp := *code
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
	for _, t := range r.tokens {
		if t.AccessToken == token.AccessToken {
			return aerrors.ErrConflict
		}
		if token.RefreshToken != "" && t.RefreshToken == token.RefreshToken {
			return aerrors.ErrConflict
		}
	}
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *memTokenRepo) GetByAccess(_ context.Context, accessToken string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessToken == accessToken {
			cp := *t
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
	for _, t := range r.tokens {
		if t.RefreshToken == refreshToken {
			cp := *t
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
	for _, t := range r.tokens {
		if t.RefreshToken == refreshToken && !t.Revoked {
			before := *t
			t.Revoked = true
			return &before, nil
		}
	}
	return nil, aerrors.ErrNotFound
}

func (r *memTokenRepo) RevokeByValue(_ context.Context, value string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if (t.AccessToken == value || (value != "" && t.RefreshToken == value)) && !t.Revoked {
			t.Revoked = true
			cp := *t
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
		for _, t := range r.tokens {
			if t.RotatedFrom != "" && t.RotatedFrom == id {
				next = t
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
	for id, t := range r.tokens {
		if t.AccessExpired(now) && (t.Revoked || t.RefreshExpired(now)) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// mutate edits the stored pair in place, for aging tokens in tests.
func (r *memTokenRepo) mutate(id string, fn func(*domain.Token)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		fn(t)
	}
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
	stored.UpdatedAt = time.Now().UTC()
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

func (s *memClientStore) CreateClient(_ context.Context, cli *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[cli.ID]; ok {
		return aerrors.ErrConflict
	}
	cp := *cli
	s.clients[cli.ID] = &cp
	return nil
}

func (s *memClientStore) GetClient(_ context.Context, clientID string) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cli, ok := s.clients[clientID]
	if !ok {
		return nil, aerrors.ErrClientNotFound
	}
	cp := *cli
	return &cp, nil
}

func (s *memClientStore) UpdateClient(_ context.Context, cli *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[cli.ID]; !ok {
		return aerrors.ErrClientNotFound
	}
	cp := *cli
	s.clients[cli.ID] = &cp
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
	for _, cli := range s.clients {
		if filter.Type != "" && cli.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && cli.IsActive != *filter.IsActive {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(cli.Name), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *cli
		out = append(out, &cp)
	}
	return out, nil
}
