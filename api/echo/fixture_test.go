package echo_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apiecho "github.com/authhub/authhub/api/echo"
	"github.com/authhub/authhub/cache"
	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/signer"
	"github.com/authhub/authhub/services"
)

const (
	testIssuer     = "https://auth.example.com"
	testAdminToken = "admin-token-for-tests"
)

// apiFixture is a fully wired HTTP surface over in-memory stores.
type apiFixture struct {
	e *echo.Echo

	engine      *services.OAuthService
	sessions    *services.SessionService
	clients     *client.ClientService
	registry    *federation.Registry
	signer      *signer.Signer
	hasher      *auth.BcryptPasswordHasher
	clientStore *memClientStore
	users       *memUserRepo
	codeRepo    *memAuthCodeRepo
	tokenRepo   *memTokenRepo
	identities  *memIdentityRepo
	providers   *memProviderRepo
}

func newAPIFixture(t *testing.T, cfg apiecho.Config) *apiFixture {
	t.Helper()

	f := &apiFixture{
		clientStore: newMemClientStore(),
		users:       newMemUserRepo(),
		codeRepo:    newMemAuthCodeRepo(),
		tokenRepo:   newMemTokenRepo(),
		identities:  newMemIdentityRepo(),
		providers:   newMemProviderRepo(),
	}

	f.clients = client.NewClientService(f.clientStore, time.Minute)
	t.Cleanup(func() { _ = f.clients.Close() })

	tokenStore := cache.NewMemoryTokenStore(time.Minute)
	t.Cleanup(func() { _ = tokenStore.Close() })

	sessionStore := cache.NewMemorySessionStore(time.Minute)
	t.Cleanup(sessionStore.Close)

	var err error
	f.signer, err = signer.NewSigner(testIssuer)
	require.NoError(t, err)

	f.hasher = auth.NewBcryptPasswordHasher(bcrypt.MinCost)

	codes := services.NewAuthCodeService(f.codeRepo, 10*time.Minute)
	tokens := services.NewTokenService(f.tokenRepo, tokenStore, time.Hour, 24*time.Hour)
	f.engine = services.NewOAuthService(f.clients, codes, tokens, f.users, f.hasher, f.signer, 5*time.Minute)
	f.sessions = services.NewSessionService(sessionStore, time.Hour)

	f.registry = federation.NewRegistry(f.providers)
	resolver := federation.NewResolver(f.users, f.identities)
	fed := federation.NewService(f.registry, resolver, testIssuer+"/auth")

	api := apiecho.New(cfg, apiecho.Deps{
		Engine:     f.engine,
		Sessions:   f.sessions,
		Federation: fed,
		Registry:   f.registry,
		Clients:    f.clients,
		Providers:  f.providers,
		Signer:     f.signer,
	})

	f.e = echo.New()
	api.RegisterRoutes(f.e)

	return f
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) get(target string) *httptest.ResponseRecorder {
	return f.do(getRequest(target))
}

// getRequest builds a GET request the caller can decorate with cookies or
// headers before dispatching it through do.
func getRequest(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func (f *apiFixture) postForm(target string, form url.Values, modify ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, m := range modify {
		m(req)
	}
	return f.do(req)
}

func (f *apiFixture) seedWebApp(t *testing.T) *client.Client {
	t.Helper()
	c := &client.Client{
		ID:            "web-app",
		Secret:        "s3cret",
		Type:          client.Confidential,
		Name:          "Web App",
		RedirectURIs:  []string{"https://app.example.com/callback"},
		AllowedScopes: []string{"openid", "profile", "email", "api:read"},
		AllowedGrantTypes: []string{
			client.GrantAuthorizationCode,
			client.GrantRefreshToken,
			client.GrantClientCredentials,
			client.GrantPassword,
		},
		AllowedResponseTypes: []string{client.ResponseTypeCode},
		IsActive:             true,
	}
	require.NoError(t, f.clientStore.CreateClient(context.Background(), c))
	return c
}

func (f *apiFixture) seedUser(t *testing.T, id, email, name, password string) *domain.User {
	t.Helper()
	user := &domain.User{ID: id, Email: email, Name: name}
	if password != "" {
		hash, err := f.hasher.Hash(password)
		require.NoError(t, err)
		user.PasswordHash = hash
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *apiFixture) seedGoogle(t *testing.T) {
	t.Helper()
	require.NoError(t, f.providers.Upsert(context.Background(), &domain.IdentityProvider{
		Name:         "google",
		ClientID:     "google-client-id",
		ClientSecret: "google-client-secret",
		Enabled:      true,
	}))
}

// signIn opens a login session for the user and returns the cookie to send.
func (f *apiFixture) signIn(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	sess, err := f.sessions.Begin(context.Background(), userID, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	return &http.Cookie{Name: "authhub_session", Value: sess.ID}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

// findCookie digs a named cookie out of the response. Nil when absent.
func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// location parses the redirect target of a 302 response.
func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	loc := rec.Header().Get(echo.HeaderLocation)
	require.NotEmpty(t, loc, "expected a Location header")
	u, err := url.Parse(loc)
	require.NoError(t, err)
	return u
}
