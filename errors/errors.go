package errors

import "errors"

// Sentinel errors shared across the store and service layers. Repositories
// translate driver-level failures into these; services match with errors.Is
// and map them onto OAuth2Error values at the protocol boundary.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	ErrInvalidClientCredentials = errors.New("invalid client credentials")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrClientNotFound           = errors.New("client not found")
	ErrClientDisabled           = errors.New("client is disabled")

	ErrCodeConsumedOrUnknown = errors.New("authorization code consumed or unknown")
	ErrCodeExpired           = errors.New("authorization code expired")
	ErrRedirectMismatch      = errors.New("redirect_uri does not match issuance")
	ErrPKCEVerification      = errors.New("pkce verification failed")

	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrTokenExpiredOrRevoked = errors.New("token expired or revoked")
	ErrScopeExceeded         = errors.New("requested scope exceeds granted scope")

	ErrSessionNotFound = errors.New("session not found")
)
