package dto

import (
	"github.com/authhub/authhub/domain"
)

// UserInfoResponse is the userinfo endpoint body. Field names follow the
// OpenID Connect standard claims.
type UserInfoResponse struct {
	Sub     string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// UserCreateRequest defines the payload for creating a local user with a
// password, for the resource-owner-password grant.
type UserCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` // raw; hashed by the service
	Name     string `json:"name,omitempty"`
}

// FromDomainUser converts a user to its userinfo view.
func FromDomainUser(user *domain.User) *UserInfoResponse {
	if user == nil {
		return nil
	}
	return &UserInfoResponse{
		Sub:     user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
	}
}
