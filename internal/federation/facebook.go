package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	facebookOAuth2 "golang.org/x/oauth2/facebook"

	"github.com/authhub/authhub/domain"
)

// FacebookUserInfoEndpoint is a var so tests can point it at a local server.
// The fields parameter names everything the claim needs; Graph returns only
// what is asked for.
var FacebookUserInfoEndpoint = "https://graph.facebook.com/me?fields=id,name,email,picture"

// FacebookProvider implements Provider for Facebook login via the Graph API.
type FacebookProvider struct {
	*baseProvider
}

// NewFacebookProvider builds the Facebook adapter from a stored registration.
// The public_profile and email scopes are always requested on top of whatever
// the registration carries.
func NewFacebookProvider(cfg *domain.IdentityProvider) *FacebookProvider {
	if cfg.Name == "" {
		cfg.Name = "facebook"
	}
	cfg.Scopes = ensureScopes(cfg.Scopes, "public_profile", "email")

	return &FacebookProvider{
		baseProvider: &baseProvider{cfg: cfg, endpoint: facebookOAuth2.Endpoint},
	}
}

// FetchClaim retrieves the /me document and normalizes it. Graph includes
// email only when the user granted the email permission, and it has no
// verified flag, so EmailVerified stays false.
func (f *FacebookProvider) FetchClaim(ctx context.Context, token *oauth2.Token) (*Claim, error) {
	client := f.httpClient(ctx, token)

	resp, err := client.Get(FacebookUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("facebook: failed to get userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("facebook: failed to fetch userinfo: status %d, body: %s",
			resp.StatusCode, string(bodyBytes))
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("facebook: failed to read userinfo body: %w", err)
	}

	var userInfo struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL          string `json:"url"`
				IsSilhouette bool   `json:"is_silhouette"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(rawBody, &userInfo); err != nil {
		return nil, fmt.Errorf("facebook: failed to unmarshal userinfo: %w", err)
	}
	if userInfo.ID == "" {
		return nil, fmt.Errorf("facebook: userinfo response carried no id")
	}

	var raw map[string]any
	_ = json.Unmarshal(rawBody, &raw)

	// Silhouette means the default placeholder avatar, not a real picture.
	picture := ""
	if !userInfo.Picture.Data.IsSilhouette {
		picture = userInfo.Picture.Data.URL
	}

	return &Claim{
		Provider: f.Name(),
		Subject:  userInfo.ID,
		Email:    userInfo.Email,
		Name:     userInfo.Name,
		Picture:  picture,
		Raw:      raw,
	}, nil
}

var _ Provider = (*FacebookProvider)(nil)
