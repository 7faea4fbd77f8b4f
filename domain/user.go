package domain

import (
	"context"
	"time"
)

// User is the canonical account every federated identity resolves to. It
// exists independently of any provider: the profile fields below are a
// convenience copy of the most recent federation claim, not the source of
// truth for the linked identities.
type User struct {
	ID      string `bson:"_id,omitempty" json:"id"`
	Email   string `bson:"email,omitempty" json:"email,omitempty"`
	Name    string `bson:"name,omitempty" json:"name,omitempty"`
	Picture string `bson:"picture,omitempty" json:"picture,omitempty"`

	// PasswordHash is set only for accounts allowed to use the legacy
	// password grant. Stored as bcrypt, never serialized.
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	LastLoginAt *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// UserRepository persists Users. The hub itself never deletes a user once an
// identity points at it; Delete exists for administrative tooling and for the
// federation resolver to discard a provisional user that lost an insert race
// before anything referenced it.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// UpdateProfile overwrites email, name, picture, last_login_at and
	// updated_at from the given user. Other fields are left untouched.
	UpdateProfile(ctx context.Context, user *User) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
