package federation

import "errors"

var (
	ErrProviderNotFound      = errors.New("provider not found or not enabled")
	ErrUnsupportedProvider   = errors.New("no adapter for this provider")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
	ErrInvalidAuthState      = errors.New("invalid auth state parameter")
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchClaimFailed      = errors.New("failed to fetch identity claim from provider")
)
