package domain

import "time"

// Session is a browser login session established after a successful
// federation. It only bridges the IdP callback to the /oauth2/authorize
// endpoint; it lives in the cache tier, not in the store.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AuthTime  time.Time `json:"auth_time"` // when the user last authenticated at an IdP
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}
