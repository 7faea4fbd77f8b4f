package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"

	"github.com/authhub/authhub/domain"
)

// Endpoint vars so tests can point them at a local server.
var (
	GithubUserInfoEndpoint   = "https://api.github.com/user"
	GithubUserEmailsEndpoint = "https://api.github.com/user/emails"
)

// GitHubProvider implements Provider for GitHub sign-in.
type GitHubProvider struct {
	*baseProvider
}

// NewGitHubProvider builds the GitHub adapter from a stored registration.
// The read:user and user:email scopes are always requested.
func NewGitHubProvider(cfg *domain.IdentityProvider) *GitHubProvider {
	if cfg.Name == "" {
		cfg.Name = "github"
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "read:user", "user:email")

	return &GitHubProvider{
		baseProvider: &baseProvider{cfg: cfg, endpoint: githubOAuth2.Endpoint},
	}
}

// FetchClaim needs two calls: /user for the profile and /user/emails for a
// usable address, since the profile email is often private. The numeric
// GitHub id is the stable subject; login names can change.
func (g *GitHubProvider) FetchClaim(ctx context.Context, token *oauth2.Token) (*Claim, error) {
	client := g.httpClient(ctx, token)

	userResp, err := client.Get(GithubUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("github: failed to get user info: %w", err)
	}
	defer userResp.Body.Close()

	if userResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(userResp.Body)
		return nil, fmt.Errorf("github: failed to fetch user info: status %d, body: %s",
			userResp.StatusCode, string(bodyBytes))
	}

	userBody, err := io.ReadAll(userResp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: failed to read user info body: %w", err)
	}

	var userInfo struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}
	if err := json.Unmarshal(userBody, &userInfo); err != nil {
		return nil, fmt.Errorf("github: failed to unmarshal user info: %w", err)
	}
	if userInfo.ID.String() == "" {
		return nil, fmt.Errorf("github: user response carried no id")
	}

	var raw map[string]any
	_ = json.Unmarshal(userBody, &raw)

	email, verified := g.bestEmail(client, userInfo.Email)

	name := userInfo.Name
	if name == "" {
		name = userInfo.Login
	}

	return &Claim{
		Provider:      g.Name(),
		Subject:       userInfo.ID.String(),
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		Username:      userInfo.Login,
		Picture:       userInfo.AvatarURL,
		Raw:           raw,
	}, nil
}

// bestEmail prefers the primary verified address from /user/emails, then any
// verified one, then whatever the profile exposed. A failing emails endpoint
// is not fatal: the profile email (possibly empty) is used instead.
func (g *GitHubProvider) bestEmail(client *http.Client, profileEmail string) (string, bool) {
	resp, err := client.Get(GithubUserEmailsEndpoint)
	if err != nil {
		return profileEmail, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profileEmail, false
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &emails); err != nil {
		return profileEmail, false
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true
		}
	}

	return profileEmail, false
}

var _ Provider = (*GitHubProvider)(nil)
