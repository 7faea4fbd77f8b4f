package domain

import (
	"context"
	"time"
)

// TokenTypeBearer is the only token_type the hub issues.
const TokenTypeBearer = "Bearer"

// Token is one issued access/refresh pair. client_credentials and implicit
// grants produce pairs without a refresh token; client_credentials pairs also
// carry no user.
type Token struct {
	ID           string `bson:"_id" json:"id"`
	AccessToken  string `bson:"access_token" json:"access_token"`
	RefreshToken string `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	ClientID     string `bson:"client_id" json:"client_id"`
	UserID       string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Scope        string `bson:"scope,omitempty" json:"scope,omitempty"`
	TokenType    string `bson:"token_type" json:"token_type"`

	IssuedAt  time.Time `bson:"issued_at" json:"issued_at"`
	ExpiresIn int64     `bson:"expires_in" json:"expires_in"` // access token lifetime, seconds
	// RefreshExpiresAt bounds how long the refresh token stays redeemable.
	RefreshExpiresAt *time.Time `bson:"refresh_expires_at,omitempty" json:"-"`

	Revoked bool `bson:"revoked" json:"revoked"`
	// RotatedFrom is the id of the pair this one replaced on refresh.
	RotatedFrom string `bson:"rotated_from,omitempty" json:"-"`
}

// AccessExpiresAt is the instant the access token stops being valid.
func (t *Token) AccessExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// AccessExpired reports whether issued_at + expires_in has elapsed.
func (t *Token) AccessExpired(now time.Time) bool {
	return !now.Before(t.AccessExpiresAt())
}

// RefreshExpired reports whether the refresh token may still be redeemed.
func (t *Token) RefreshExpired(now time.Time) bool {
	if t.RefreshToken == "" {
		return true
	}
	if t.RefreshExpiresAt == nil {
		return false
	}
	return !now.Before(*t.RefreshExpiresAt)
}

// TokenInfo is the introspection view of a token (RFC 7662 shape).
type TokenInfo struct {
	Active    bool      `json:"active"`
	Scope     string    `json:"scope,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	UserID    string    `json:"sub,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// TokenRepository persists token pairs.
type TokenRepository interface {
	Create(ctx context.Context, token *Token) error
	GetByAccess(ctx context.Context, accessToken string) (*Token, error)
	GetByRefresh(ctx context.Context, refreshToken string) (*Token, error)
	// ConsumeRefresh atomically revokes the unrevoked pair holding the given
	// refresh token and returns it as it was before revocation. Concurrent
	// calls for one value have exactly one winner; the rest, along with
	// unknown and already-revoked values, get ErrNotFound.
	ConsumeRefresh(ctx context.Context, refreshToken string) (*Token, error)
	// RevokeByValue revokes the pair holding the value as either its access
	// or its refresh token and returns it. ErrNotFound when nothing matched;
	// idempotency on top of that is the caller's concern.
	RevokeByValue(ctx context.Context, value string) (*Token, error)
	// RevokeLineage revokes every pair descended from the pair with the
	// given id through RotatedFrom links and returns them oldest first.
	// Already-revoked descendants are returned too.
	RevokeLineage(ctx context.Context, fromID string) ([]*Token, error)
	// DeleteExpired removes pairs that can no longer be used or refreshed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
