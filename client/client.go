package client

import (
	"strings"
	"time"
)

// ClientType represents the type of OAuth2 client.
type ClientType string

const (
	// Confidential clients can securely store secrets.
	Confidential ClientType = "confidential"
	// Public clients cannot securely store secrets (mobile apps, SPAs).
	Public ClientType = "public"
)

// Grant types a client may be allowed to use.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// Response types a client may be allowed to request on /authorize.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// Client represents a downstream application registered to consume the hub's
// OAuth2 server. The client_id is the internal id itself: derived, stable,
// never user-supplied.
type Client struct {
	ID                   string     `bson:"_id" json:"client_id"`
	Secret               string     `bson:"client_secret,omitempty" json:"client_secret,omitempty"`
	Type                 ClientType `bson:"client_type" json:"client_type"`
	Name                 string     `bson:"client_name" json:"client_name"`
	Description          string     `bson:"description,omitempty" json:"description,omitempty"`
	RedirectURIs         []string   `bson:"redirect_uris" json:"redirect_uris"`
	AllowedScopes        []string   `bson:"allowed_scopes" json:"allowed_scopes,omitempty"`
	AllowedGrantTypes    []string   `bson:"allowed_grant_types" json:"allowed_grant_types"`
	AllowedResponseTypes []string   `bson:"allowed_response_types" json:"allowed_response_types"`
	RequirePKCE          bool       `bson:"require_pkce" json:"require_pkce"`
	IsActive             bool       `bson:"is_active" json:"is_active"`
	CreatedAt            time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `bson:"updated_at" json:"updated_at"`
}

// HasGrantType reports whether the client may use the given grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for _, gt := range c.AllowedGrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the client may request the given
// response type on the authorization endpoint.
func (c *Client) HasResponseType(responseType string) bool {
	for _, rt := range c.AllowedResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether the URI exactly matches a registered
// redirect URI. No wildcard or prefix matching: anything looser opens the
// redirect for abuse.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ScopeAllowed reports whether every token of the space-separated scope
// string is registered for the client. An empty request is always allowed.
func (c *Client) ScopeAllowed(scope string) bool {
	allowed := make(map[string]bool, len(c.AllowedScopes))
	for _, s := range c.AllowedScopes {
		allowed[s] = true
	}
	for _, s := range strings.Fields(scope) {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// PKCERequired reports whether redeeming this client's codes demands a PKCE
// verifier. Public clients always do.
func (c *Client) PKCERequired() bool {
	return c.RequirePKCE || c.Type == Public
}

// ClientFilter defines filtering options for listing clients.
type ClientFilter struct {
	Type     ClientType
	IsActive *bool
	Search   string
}
