package dto

import (
	"time"

	"github.com/authhub/authhub/domain"
)

// IdentityProviderSetRequest registers or replaces one upstream provider's
// credentials. The name selects the adapter (google, github).
type IdentityProviderSetRequest struct {
	Name         string   `json:"name"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// IdentityProviderResponse is the API view of a provider registration. The
// client secret is omitted.
type IdentityProviderResponse struct {
	Name      string    `json:"name"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToDomainIdentityProvider converts a set request to the stored record.
func ToDomainIdentityProvider(req IdentityProviderSetRequest) *domain.IdentityProvider {
	return &domain.IdentityProvider{
		Name:         req.Name,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Scopes:       req.Scopes,
		Enabled:      req.Enabled,
	}
}

// FromDomainIdentityProvider converts a stored record to its API view.
func FromDomainIdentityProvider(idp *domain.IdentityProvider) *IdentityProviderResponse {
	if idp == nil {
		return nil
	}
	return &IdentityProviderResponse{
		Name:      idp.Name,
		ClientID:  idp.ClientID,
		Scopes:    idp.Scopes,
		Enabled:   idp.Enabled,
		CreatedAt: idp.CreatedAt,
		UpdatedAt: idp.UpdatedAt,
	}
}

// FromDomainIdentityProviders converts a slice of provider records.
func FromDomainIdentityProviders(idps []*domain.IdentityProvider) []*IdentityProviderResponse {
	if idps == nil {
		return nil
	}
	responses := make([]*IdentityProviderResponse, len(idps))
	for i, idp := range idps {
		responses[i] = FromDomainIdentityProvider(idp)
	}
	return responses
}
