package dto

import (
	"time"

	"github.com/authhub/authhub/client"
)

// ClientCreateRequest defines the payload for registering a new OAuth client.
type ClientCreateRequest struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"` // "confidential" or "public"
	Description       string   `json:"description,omitempty"`
	RedirectURIs      []string `json:"redirect_uris"`
	AllowedScopes     []string `json:"allowed_scopes,omitempty"`
	AllowedGrantTypes []string `json:"allowed_grant_types,omitempty"`
	RequirePKCE       bool     `json:"require_pkce"`
}

// ClientUpdateRequest defines the payload for updating an existing OAuth
// client. All fields are optional.
type ClientUpdateRequest struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	RedirectURIs      *[]string `json:"redirect_uris,omitempty"`
	AllowedScopes     *[]string `json:"allowed_scopes,omitempty"`
	AllowedGrantTypes *[]string `json:"allowed_grant_types,omitempty"`
	RequirePKCE       *bool     `json:"require_pkce,omitempty"`
	IsActive          *bool     `json:"is_active,omitempty"`
}

// ClientResponse is the API view of a client. The secret is omitted; it is
// shown exactly once, in ClientCreatedResponse.
type ClientResponse struct {
	ID                   string            `json:"client_id"`
	Type                 client.ClientType `json:"type"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	RedirectURIs         []string          `json:"redirect_uris"`
	AllowedScopes        []string          `json:"allowed_scopes,omitempty"`
	AllowedGrantTypes    []string          `json:"allowed_grant_types,omitempty"`
	AllowedResponseTypes []string          `json:"allowed_response_types,omitempty"`
	RequirePKCE          bool              `json:"require_pkce"`
	IsActive             bool              `json:"is_active"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ClientCreatedResponse carries the one-time secret alongside the client.
type ClientCreatedResponse struct {
	ClientResponse
	Secret string `json:"client_secret,omitempty"`
}

// ApplyClientUpdate copies the set fields of the request onto an existing
// client record.
func ApplyClientUpdate(c *client.Client, req ClientUpdateRequest) {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.RedirectURIs != nil {
		c.RedirectURIs = *req.RedirectURIs
	}
	if req.AllowedScopes != nil {
		c.AllowedScopes = *req.AllowedScopes
	}
	if req.AllowedGrantTypes != nil {
		c.AllowedGrantTypes = *req.AllowedGrantTypes
	}
	if req.RequirePKCE != nil {
		c.RequirePKCE = *req.RequirePKCE
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

// FromDomainClient converts a client.Client to its API view.
func FromDomainClient(c *client.Client) *ClientResponse {
	if c == nil {
		return nil
	}
	return &ClientResponse{
		ID:                   c.ID,
		Type:                 c.Type,
		Name:                 c.Name,
		Description:          c.Description,
		RedirectURIs:         c.RedirectURIs,
		AllowedScopes:        c.AllowedScopes,
		AllowedGrantTypes:    c.AllowedGrantTypes,
		AllowedResponseTypes: c.AllowedResponseTypes,
		RequirePKCE:          c.RequirePKCE,
		IsActive:             c.IsActive,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

// FromDomainClients converts a slice of clients to their API views.
func FromDomainClients(clients []*client.Client) []*ClientResponse {
	if clients == nil {
		return nil
	}
	responses := make([]*ClientResponse, len(clients))
	for i, c := range clients {
		responses[i] = FromDomainClient(c)
	}
	return responses
}
