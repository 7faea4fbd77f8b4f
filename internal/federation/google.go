package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"

	"github.com/authhub/authhub/domain"
)

// GoogleUserInfoEndpoint is a var so tests can point it at a local server.
var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements Provider for Google sign-in.
type GoogleProvider struct {
	*baseProvider
}

// NewGoogleProvider builds the Google adapter from a stored registration.
// The openid, profile and email scopes are always requested on top of
// whatever the registration carries.
func NewGoogleProvider(cfg *domain.IdentityProvider) *GoogleProvider {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "openid", "profile", "email")

	return &GoogleProvider{
		baseProvider: &baseProvider{cfg: cfg, endpoint: googleOAuth2.Endpoint},
	}
}

// FetchClaim retrieves the userinfo document and normalizes it. Google's
// "sub" is the stable subject.
func (g *GoogleProvider) FetchClaim(ctx context.Context, token *oauth2.Token) (*Claim, error) {
	client := g.httpClient(ctx, token)

	resp, err := client.Get(GoogleUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("google: failed to get userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google: failed to fetch userinfo: status %d, body: %s",
			resp.StatusCode, string(bodyBytes))
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: failed to read userinfo body: %w", err)
	}

	var userInfo struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(rawBody, &userInfo); err != nil {
		return nil, fmt.Errorf("google: failed to unmarshal userinfo: %w", err)
	}
	if userInfo.Sub == "" {
		return nil, fmt.Errorf("google: userinfo response carried no subject")
	}

	var raw map[string]any
	_ = json.Unmarshal(rawBody, &raw)

	return &Claim{
		Provider:      g.Name(),
		Subject:       userInfo.Sub,
		Email:         userInfo.Email,
		EmailVerified: userInfo.EmailVerified,
		Name:          userInfo.Name,
		Username:      userInfo.Email, // Google has no distinct handle
		Picture:       userInfo.Picture,
		Raw:           raw,
	}, nil
}

var _ Provider = (*GoogleProvider)(nil)
