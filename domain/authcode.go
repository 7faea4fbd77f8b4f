package domain

import (
	"context"
	"time"
)

// CodeStatus is the explicit lifecycle of an authorization code. The only
// legal transitions are issued→redeemed and issued→expired; both are
// terminal.
type CodeStatus string

const (
	CodeStatusIssued   CodeStatus = "issued"
	CodeStatusRedeemed CodeStatus = "redeemed"
	CodeStatusExpired  CodeStatus = "expired"
)

// AuthCode is a short-lived, single-use credential binding a user's
// authorization to one client, redirect URI and scope.
type AuthCode struct {
	Code         string `bson:"_id" json:"code"`
	ClientID     string `bson:"client_id" json:"client_id"`
	UserID       string `bson:"user_id" json:"user_id"`
	RedirectURI  string `bson:"redirect_uri" json:"redirect_uri"`
	ResponseType string `bson:"response_type" json:"response_type"`
	Scope        string `bson:"scope" json:"scope"`

	CodeChallenge       string `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	Nonce               string `bson:"nonce,omitempty" json:"nonce,omitempty"`

	Status     CodeStatus `bson:"status" json:"status"`
	AuthTime   time.Time  `bson:"auth_time" json:"auth_time"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expires_at"`
	RedeemedAt *time.Time `bson:"redeemed_at,omitempty" json:"redeemed_at,omitempty"`
}

// Expired reports whether the code's TTL has elapsed at the given instant.
func (c *AuthCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthCodeRepository persists authorization codes.
type AuthCodeRepository interface {
	Save(ctx context.Context, code *AuthCode) error
	// Redeem atomically flips an issued code to redeemed and returns it.
	// Exactly one of any number of concurrent calls for the same code wins;
	// the rest get ErrCodeConsumedOrUnknown, as do lookups of codes that
	// never existed. Expiry is not checked here: the caller inspects the
	// returned code, and a code consumed past its TTL stays consumed.
	Redeem(ctx context.Context, code string) (*AuthCode, error)
	// ExpireIssued marks issued codes whose TTL elapsed as expired and
	// reports how many it touched.
	ExpireIssued(ctx context.Context) (int64, error)
	// DeleteExpired removes code documents past their retention window.
	DeleteExpired(ctx context.Context) error
}
