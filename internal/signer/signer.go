// Package signer mints the hub's RS256 ID tokens and publishes the matching
// JWKS document.
package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidPEM = errors.New("invalid PEM signing key")

// IDTokenClaims is what the protocol engine knows about the authenticated
// user when a client asked for the openid scope.
type IDTokenClaims struct {
	Subject  string
	Audience string
	Nonce    string
	Email    string
	Name     string
	AuthTime time.Time
}

// JSONWebKey is one signing key in JWKS form.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the jwks.json document body.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// Signer holds the hub's RSA signing key. One key, fixed for the process
// lifetime; rotation means restarting with a new PEM.
type Signer struct {
	key    *rsa.PrivateKey
	keyID  string
	issuer string
}

// NewSigner creates a signer with a freshly generated 2048-bit key. Meant for
// development; production should load a persistent key with NewSignerFromPEM
// so tokens survive restarts.
func NewSigner(issuer string) (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA signing key: %w", err)
	}
	return &Signer{
		key:    key,
		keyID:  uuid.NewString(),
		issuer: issuer,
	}, nil
}

// NewSignerFromPEM creates a signer from a PEM-encoded RSA private key in
// PKCS#1 or PKCS#8 form.
func NewSignerFromPEM(issuer string, pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPEM)
		}
		key = rsaKey
	}

	return &Signer{
		key:    key,
		keyID:  uuid.NewString(),
		issuer: issuer,
	}, nil
}

// Issuer returns the iss value this signer stamps into tokens.
func (s *Signer) Issuer() string {
	return s.issuer
}

// KeyID returns the kid published in JWKS and stamped into token headers.
func (s *Signer) KeyID() string {
	return s.keyID
}

// SignIDToken mints a signed ID token for the given claims, valid for ttl.
func (s *Signer) SignIDToken(claims IDTokenClaims, ttl time.Duration) (string, error) {
	now := time.Now()

	mapClaims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": claims.Subject,
		"aud": jwt.ClaimStrings{claims.Audience},
		"exp": jwt.NewNumericDate(now.Add(ttl)).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
	}
	if !claims.AuthTime.IsZero() {
		mapClaims["auth_time"] = claims.AuthTime.Unix()
	}
	if claims.Nonce != "" {
		mapClaims["nonce"] = claims.Nonce
	}
	if claims.Email != "" {
		mapClaims["email"] = claims.Email
	}
	if claims.Name != "" {
		mapClaims["name"] = claims.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// PublicKey exposes the verification key, mainly for tests.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// JWKS returns the key set document for the jwks endpoint.
func (s *Signer) JWKS() JSONWebKeySet {
	publicKey := s.key.Public().(*rsa.PublicKey)

	n := base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes())

	return JSONWebKeySet{
		Keys: []JSONWebKey{{
			Kid: s.keyID,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   n,
			E:   e,
		}},
	}
}
