package domain

import (
	"context"
	"time"
)

// Identity links one User to one (provider, subject) pair and carries the
// full normalized claim payload from the provider. (provider, subject) is
// globally unique: re-authenticating with the same external account updates
// this record in place, it never creates a second one.
type Identity struct {
	ID       string `bson:"_id,omitempty" json:"id,omitempty"`
	UserID   string `bson:"user_id" json:"user_id"`
	Provider string `bson:"provider" json:"provider"` // registry key, e.g. "google"
	Subject  string `bson:"subject" json:"subject"`   // stable user id at the provider

	Email    string `bson:"email,omitempty" json:"email,omitempty"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Username string `bson:"username,omitempty" json:"username,omitempty"`
	Picture  string `bson:"picture,omitempty" json:"picture,omitempty"`

	// RawClaims keeps every provider field as received. Persisted but never
	// interpreted by the hub.
	RawClaims map[string]any `bson:"raw_claims,omitempty" json:"raw_claims,omitempty"`

	// Provider-issued tokens from the outbound exchange. Never serialized.
	AccessToken    string     `bson:"access_token,omitempty" json:"-"`
	RefreshToken   string     `bson:"refresh_token,omitempty" json:"-"`
	TokenExpiresAt *time.Time `bson:"token_expires_at,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IdentityRepository persists Identities. Implementations must enforce the
// (provider, subject) uniqueness with a storage-level constraint so that
// concurrent inserts for the same external account cannot both succeed;
// Insert reports the losing side as ErrConflict.
type IdentityRepository interface {
	FindByProviderSubject(ctx context.Context, provider, subject string) (*Identity, error)
	Insert(ctx context.Context, ident *Identity) error
	// UpdateClaims overwrites the claim payload and provider tokens of the
	// identity matching (ident.Provider, ident.Subject) and returns the
	// stored record, including the owning UserID.
	UpdateClaims(ctx context.Context, ident *Identity) (*Identity, error)
	ListByUser(ctx context.Context, userID string) ([]*Identity, error)
	Delete(ctx context.Context, id string) error
}
