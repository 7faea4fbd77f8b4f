package domain

import (
	"context"
	"time"
)

// IdentityProvider holds the hub's own client registration at an external
// provider: the credentials for the outbound OAuth2 dance. The name doubles
// as the registry key and the storage id, which gives exactly one active
// credential set per provider.
type IdentityProvider struct {
	Name         string   `bson:"_id" json:"name"`
	ClientID     string   `bson:"client_id" json:"client_id"`
	ClientSecret string   `bson:"client_secret" json:"-"`
	Scopes       []string `bson:"scopes,omitempty" json:"scopes,omitempty"`
	Enabled      bool     `bson:"enabled" json:"enabled"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IdentityProviderRepository persists provider registrations. Mutations are
// admin-only; the adapter registry reads them when (re)loading.
type IdentityProviderRepository interface {
	// Upsert inserts or fully replaces the registration named ip.Name.
	Upsert(ctx context.Context, ip *IdentityProvider) error
	GetByName(ctx context.Context, name string) (*IdentityProvider, error)
	List(ctx context.Context) ([]*IdentityProvider, error)
	Delete(ctx context.Context, name string) error
}
