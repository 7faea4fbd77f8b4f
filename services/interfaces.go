package services

import (
	"time"

	"github.com/authhub/authhub/internal/signer"
)

// PasswordHasher defines an interface for hashing and verifying passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashedPassword, password string) error
}

// IDTokenSigner mints signed ID tokens. Implemented by internal/signer;
// injected so the protocol engine can run without a key in tests.
type IDTokenSigner interface {
	SignIDToken(claims signer.IDTokenClaims, ttl time.Duration) (string, error)
}
