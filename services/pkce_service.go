package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods (RFC 7636 §4.2).
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// verifier length bounds from RFC 7636 §4.1.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ValidPKCEMethod reports whether method names a supported challenge
// transform. The empty string is not a method; callers decide whether PKCE is
// required at all.
func ValidPKCEMethod(method string) bool {
	return method == PKCEMethodPlain || method == PKCEMethodS256
}

// GenerateCodeChallenge applies the named transform to a verifier, producing
// the challenge a client sends on authorize. Used by clients and tests; the
// server side only ever verifies.
func GenerateCodeChallenge(verifier, method string) string {
	if method == PKCEMethodS256 {
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:])
	}
	return verifier
}

// VerifyPKCE checks a token-request verifier against the challenge stored at
// authorize time. plain compares identity; S256 compares
// base64url-nopad(sha256(verifier)).
func VerifyPKCE(challenge, method, verifier string) bool {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return false
	}

	computed := GenerateCodeChallenge(verifier, method)
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
}
