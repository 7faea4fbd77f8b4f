package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/authhub/authhub/cache"
	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/signer"
	"github.com/authhub/authhub/services"
)

const testIssuer = "https://auth.example.com"

type oauthFixture struct {
	svc       *services.OAuthService
	clientSvc *client.ClientService
	store     *memClientStore
	users     *memUserRepo
	codeRepo  *memAuthCodeRepo
	tokenRepo *memTokenRepo
	codeSvc   *services.AuthCodeService
	tokenSvc  *services.TokenService
	hasher    services.PasswordHasher
	signer    *signer.Signer
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	t.Helper()

	store := newMemClientStore()
	clientSvc := client.NewClientService(store, time.Minute)
	t.Cleanup(func() { _ = clientSvc.Close() })

	codeRepo := newMemAuthCodeRepo()
	codeSvc := services.NewAuthCodeService(codeRepo, 10*time.Minute)

	tokenRepo := newMemTokenRepo()
	tokenCache := cache.NewMemoryTokenStore(time.Minute)
	t.Cleanup(func() { _ = tokenCache.Close() })
	tokenSvc := services.NewTokenService(tokenRepo, tokenCache, time.Hour, 24*time.Hour)

	users := newMemUserRepo()
	hasher := auth.NewBcryptPasswordHasher(bcrypt.MinCost)

	sgn, err := signer.NewSigner(testIssuer)
	require.NoError(t, err)

	return &oauthFixture{
		svc:       services.NewOAuthService(clientSvc, codeSvc, tokenSvc, users, hasher, sgn, 5*time.Minute),
		clientSvc: clientSvc,
		store:     store,
		users:     users,
		codeRepo:  codeRepo,
		tokenRepo: tokenRepo,
		codeSvc:   codeSvc,
		tokenSvc:  tokenSvc,
		hasher:    hasher,
		signer:    sgn,
	}
}

// seedWebApp registers the standard confidential client the tests act as.
func (f *oauthFixture) seedWebApp(t *testing.T) *client.Client {
	t.Helper()
	cli := &client.Client{
		ID:           "web-app",
		Secret:       "s3cret",
		Type:         client.Confidential,
		Name:         "Web App",
		RedirectURIs: []string{"https://app.example.com/callback"},
		AllowedScopes: []string{
			"openid", "profile", "email", "api:read",
		},
		AllowedGrantTypes: []string{
			client.GrantAuthorizationCode,
			client.GrantRefreshToken,
			client.GrantClientCredentials,
			client.GrantPassword,
		},
		AllowedResponseTypes: []string{client.ResponseTypeCode},
		IsActive:             true,
	}
	require.NoError(t, f.store.CreateClient(context.Background(), cli))
	return cli
}

func (f *oauthFixture) seedSPA(t *testing.T) *client.Client {
	t.Helper()
	cli := &client.Client{
		ID:                   "spa",
		Type:                 client.Public,
		Name:                 "Single Page App",
		RedirectURIs:         []string{"https://spa.example.com/cb"},
		AllowedScopes:        []string{"openid", "profile"},
		AllowedGrantTypes:    []string{client.GrantAuthorizationCode, client.GrantRefreshToken, client.GrantClientCredentials},
		AllowedResponseTypes: []string{client.ResponseTypeCode},
		RequirePKCE:          true,
		IsActive:             true,
	}
	require.NoError(t, f.store.CreateClient(context.Background(), cli))
	return cli
}

func (f *oauthFixture) seedUser(t *testing.T, id, email, name, password string) *domain.User {
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

func assertOAuthError(t *testing.T, err error, wantCode string) *aerrors.OAuth2Error {
	t.Helper()
	var oerr *aerrors.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, wantCode, oerr.Code)
	return oerr
}

func TestOAuthService_ValidateAuthorizeClient(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	ctx := context.Background()

	t.Run("resolves registered client", func(t *testing.T) {
		cli, err := f.svc.ValidateAuthorizeClient(ctx, "web-app", "https://app.example.com/callback")
		require.NoError(t, err)
		assert.Equal(t, "web-app", cli.ID)
	})

	t.Run("missing client_id", func(t *testing.T) {
		_, err := f.svc.ValidateAuthorizeClient(ctx, "", "https://app.example.com/callback")
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.svc.ValidateAuthorizeClient(ctx, "ghost", "https://app.example.com/callback")
		assertOAuthError(t, err, aerrors.InvalidClient)
	})

	t.Run("missing redirect_uri", func(t *testing.T) {
		_, err := f.svc.ValidateAuthorizeClient(ctx, "web-app", "")
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("unregistered redirect_uri", func(t *testing.T) {
		_, err := f.svc.ValidateAuthorizeClient(ctx, "web-app", "https://evil.example.com/cb")
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("no prefix matching on redirect_uri", func(t *testing.T) {
		_, err := f.svc.ValidateAuthorizeClient(ctx, "web-app", "https://app.example.com/callback/extra")
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})
}

func TestOAuthService_Authorize_CodeFlow(t *testing.T) {
	f := newOAuthFixture(t)
	cli := f.seedWebApp(t)

	result, err := f.svc.Authorize(context.Background(), cli, services.AuthorizeRequest{
		ClientID:     cli.ID,
		RedirectURI:  cli.RedirectURIs[0],
		ResponseType: client.ResponseTypeCode,
		Scope:        "openid profile",
		State:        "af0ifjsldkj",
		Nonce:        "n-0S6_WzA2Mj",
		UserID:       "user-1",
		AuthTime:     time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Code)
	assert.Equal(t, "af0ifjsldkj", result.State)
	assert.Equal(t, cli.RedirectURIs[0], result.RedirectURI)
	assert.Nil(t, result.Implicit)

	stored := f.codeRepo.stored(result.Code)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "openid profile", stored.Scope)
	assert.Equal(t, "n-0S6_WzA2Mj", stored.Nonce)
}

func TestOAuthService_Authorize_Errors(t *testing.T) {
	f := newOAuthFixture(t)
	cli := f.seedWebApp(t)
	spa := f.seedSPA(t)
	ctx := context.Background()

	base := services.AuthorizeRequest{
		ClientID:     cli.ID,
		RedirectURI:  cli.RedirectURIs[0],
		ResponseType: client.ResponseTypeCode,
		State:        "xyz",
		UserID:       "user-1",
	}

	t.Run("missing response_type", func(t *testing.T) {
		req := base
		req.ResponseType = ""
		_, err := f.svc.Authorize(ctx, cli, req)
		oerr := assertOAuthError(t, err, aerrors.InvalidRequest)
		assert.Equal(t, "xyz", oerr.State)
	})

	t.Run("unsupported response_type", func(t *testing.T) {
		req := base
		req.ResponseType = "id_token"
		_, err := f.svc.Authorize(ctx, cli, req)
		assertOAuthError(t, err, aerrors.UnsupportedResponseType)
	})

	t.Run("response_type not allowed for client", func(t *testing.T) {
		req := base
		req.ResponseType = client.ResponseTypeToken
		_, err := f.svc.Authorize(ctx, cli, req)
		assertOAuthError(t, err, aerrors.UnauthorizedClient)
	})

	t.Run("scope not registered", func(t *testing.T) {
		req := base
		req.Scope = "openid admin"
		_, err := f.svc.Authorize(ctx, cli, req)
		assertOAuthError(t, err, aerrors.InvalidScope)
	})

	t.Run("bad code_challenge_method", func(t *testing.T) {
		req := base
		req.CodeChallenge = verifier43
		req.CodeChallengeMethod = "S512"
		_, err := f.svc.Authorize(ctx, cli, req)
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("public client without challenge", func(t *testing.T) {
		req := services.AuthorizeRequest{
			ClientID:     spa.ID,
			RedirectURI:  spa.RedirectURIs[0],
			ResponseType: client.ResponseTypeCode,
			State:        "xyz",
			UserID:       "user-1",
		}
		_, err := f.svc.Authorize(ctx, spa, req)
		oerr := assertOAuthError(t, err, aerrors.InvalidRequest)
		assert.Contains(t, oerr.Description, "PKCE")
	})
}

func TestOAuthService_Authorize_Implicit(t *testing.T) {
	f := newOAuthFixture(t)
	legacy := &client.Client{
		ID:                   "legacy-widget",
		Type:                 client.Public,
		Name:                 "Legacy Widget",
		RedirectURIs:         []string{"https://legacy.example.com/cb"},
		AllowedScopes:        []string{"profile"},
		AllowedGrantTypes:    []string{},
		AllowedResponseTypes: []string{client.ResponseTypeToken},
		IsActive:             true,
	}
	require.NoError(t, f.store.CreateClient(context.Background(), legacy))

	result, err := f.svc.Authorize(context.Background(), legacy, services.AuthorizeRequest{
		ClientID:     legacy.ID,
		RedirectURI:  legacy.RedirectURIs[0],
		ResponseType: client.ResponseTypeToken,
		Scope:        "profile",
		State:        "opaque-state",
		UserID:       "user-1",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Code)
	require.NotNil(t, result.Implicit)
	assert.NotEmpty(t, result.Implicit.AccessToken)
	assert.Equal(t, domain.TokenTypeBearer, result.Implicit.TokenType)
	// No refresh token ever rides in a fragment.
	assert.Empty(t, result.Implicit.RefreshToken)
	assert.Equal(t, "opaque-state", result.State)

	stored, err := f.tokenRepo.GetByAccess(context.Background(), result.Implicit.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)
	assert.Equal(t, "user-1", stored.UserID)
}

func TestOAuthService_Token_ClientAuthentication(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	f.seedSPA(t)
	ctx := context.Background()

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantClientCredentials, ClientID: "ghost", ClientSecret: "s3cret",
		})
		assertOAuthError(t, err, aerrors.InvalidClient)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantClientCredentials, ClientID: "web-app", ClientSecret: "wrong",
		})
		assertOAuthError(t, err, aerrors.InvalidClient)
	})

	t.Run("missing client_id", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{GrantType: client.GrantClientCredentials})
		assertOAuthError(t, err, aerrors.InvalidClient)
	})

	t.Run("public client presenting a secret", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantAuthorizationCode, ClientID: "spa", ClientSecret: "anything", Code: "c",
		})
		assertOAuthError(t, err, aerrors.InvalidClient)
	})

	t.Run("missing grant_type", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{ClientID: "web-app", ClientSecret: "s3cret"})
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("unknown grant_type", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: "urn:ietf:params:oauth:grant-type:device_code", ClientID: "web-app", ClientSecret: "s3cret",
		})
		assertOAuthError(t, err, aerrors.UnsupportedGrantType)
	})

	t.Run("grant not allowed for client", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantPassword, ClientID: "spa", Username: "a@b.c", Password: "pw",
		})
		assertOAuthError(t, err, aerrors.UnauthorizedClient)
	})
}

func TestOAuthService_Token_AuthorizationCode(t *testing.T) {
	f := newOAuthFixture(t)
	cli := f.seedWebApp(t)
	f.seedUser(t, "user-1", "ada@example.com", "Ada Lovelace", "")
	ctx := context.Background()

	authTime := time.Now().Add(-2 * time.Minute).Truncate(time.Second)
	challenge := services.GenerateCodeChallenge(verifier43, services.PKCEMethodS256)

	authorize := func(t *testing.T) string {
		t.Helper()
		result, err := f.svc.Authorize(ctx, cli, services.AuthorizeRequest{
			ClientID:            cli.ID,
			RedirectURI:         cli.RedirectURIs[0],
			ResponseType:        client.ResponseTypeCode,
			Scope:               "openid profile",
			State:               "st",
			CodeChallenge:       challenge,
			CodeChallengeMethod: services.PKCEMethodS256,
			Nonce:               "n-0S6_WzA2Mj",
			UserID:              "user-1",
			AuthTime:            authTime,
		})
		require.NoError(t, err)
		return result.Code
	}

	t.Run("redeems for tokens and an ID token", func(t *testing.T) {
		code := authorize(t)

		resp, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantAuthorizationCode,
			ClientID:     cli.ID,
			ClientSecret: "s3cret",
			Code:         code,
			RedirectURI:  cli.RedirectURIs[0],
			CodeVerifier: verifier43,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, domain.TokenTypeBearer, resp.TokenType)
		assert.Equal(t, 3600, resp.ExpiresIn)
		assert.Equal(t, "openid profile", resp.Scope)
		require.NotEmpty(t, resp.IDToken)

		parsed, err := jwt.Parse(resp.IDToken, func(*jwt.Token) (any, error) {
			return f.signer.PublicKey(), nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(t, err)
		claims, ok := parsed.Claims.(jwt.MapClaims)
		require.True(t, ok)

		assert.Equal(t, testIssuer, claims["iss"])
		assert.Equal(t, "user-1", claims["sub"])
		aud, err := claims.GetAudience()
		require.NoError(t, err)
		require.Len(t, aud, 1)
		assert.Equal(t, cli.ID, aud[0])
		assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
		assert.EqualValues(t, authTime.Unix(), claims["auth_time"])
		assert.Equal(t, "ada@example.com", claims["email"])
		assert.Equal(t, "Ada Lovelace", claims["name"])
		assert.Equal(t, f.signer.KeyID(), parsed.Header["kid"])
	})

	t.Run("code replay", func(t *testing.T) {
		code := authorize(t)
		req := services.TokenRequest{
			GrantType:    client.GrantAuthorizationCode,
			ClientID:     cli.ID,
			ClientSecret: "s3cret",
			Code:         code,
			RedirectURI:  cli.RedirectURIs[0],
			CodeVerifier: verifier43,
		}

		_, err := f.svc.Token(ctx, req)
		require.NoError(t, err)
		_, err = f.svc.Token(ctx, req)
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantAuthorizationCode, ClientID: cli.ID, ClientSecret: "s3cret",
		})
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		code := authorize(t)
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantAuthorizationCode,
			ClientID:     cli.ID,
			ClientSecret: "s3cret",
			Code:         code,
			RedirectURI:  "https://evil.example.com/cb",
			CodeVerifier: verifier43,
		})
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		code := authorize(t)
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantAuthorizationCode,
			ClientID:     cli.ID,
			ClientSecret: "s3cret",
			Code:         code,
			RedirectURI:  cli.RedirectURIs[0],
			CodeVerifier: verifier43[:42] + "X",
		})
		oerr := assertOAuthError(t, err, aerrors.InvalidGrant)
		assert.Contains(t, oerr.Description, "PKCE")
	})
}

func TestOAuthService_Token_AuthorizationCode_NoSigner(t *testing.T) {
	f := newOAuthFixture(t)
	cli := f.seedWebApp(t)
	f.seedUser(t, "user-1", "ada@example.com", "Ada", "")
	ctx := context.Background()

	// Engine wired without a signing key: openid requests still succeed,
	// they just carry no id_token.
	unsigned := services.NewOAuthService(f.clientSvc, f.codeSvc, f.tokenSvc, f.users, f.hasher, nil, time.Minute)

	result, err := unsigned.Authorize(ctx, cli, services.AuthorizeRequest{
		ClientID:     cli.ID,
		RedirectURI:  cli.RedirectURIs[0],
		ResponseType: client.ResponseTypeCode,
		Scope:        "openid",
		UserID:       "user-1",
	})
	require.NoError(t, err)

	resp, err := unsigned.Token(ctx, services.TokenRequest{
		GrantType:    client.GrantAuthorizationCode,
		ClientID:     cli.ID,
		ClientSecret: "s3cret",
		Code:         result.Code,
		RedirectURI:  cli.RedirectURIs[0],
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.IDToken)
}

func TestOAuthService_Token_RefreshToken(t *testing.T) {
	f := newOAuthFixture(t)
	cli := f.seedWebApp(t)
	f.seedUser(t, "user-1", "ada@example.com", "Ada", "")
	ctx := context.Background()

	result, err := f.svc.Authorize(ctx, cli, services.AuthorizeRequest{
		ClientID:     cli.ID,
		RedirectURI:  cli.RedirectURIs[0],
		ResponseType: client.ResponseTypeCode,
		Scope:        "openid profile",
		UserID:       "user-1",
	})
	require.NoError(t, err)

	first, err := f.svc.Token(ctx, services.TokenRequest{
		GrantType:    client.GrantAuthorizationCode,
		ClientID:     cli.ID,
		ClientSecret: "s3cret",
		Code:         result.Code,
		RedirectURI:  cli.RedirectURIs[0],
	})
	require.NoError(t, err)

	t.Run("rotates the pair", func(t *testing.T) {
		resp, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantRefreshToken,
			ClientID:     cli.ID,
			ClientSecret: "s3cret",
			RefreshToken: first.RefreshToken,
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.AccessToken, resp.AccessToken)
		assert.NotEqual(t, first.RefreshToken, resp.RefreshToken)
		assert.Equal(t, "openid profile", resp.Scope)

		t.Run("replay of the consumed token", func(t *testing.T) {
			_, err := f.svc.Token(ctx, services.TokenRequest{
				GrantType:    client.GrantRefreshToken,
				ClientID:     cli.ID,
				ClientSecret: "s3cret",
				RefreshToken: first.RefreshToken,
			})
			assertOAuthError(t, err, aerrors.InvalidGrant)
		})

		t.Run("scope widening", func(t *testing.T) {
			_, err := f.svc.Token(ctx, services.TokenRequest{
				GrantType:    client.GrantRefreshToken,
				ClientID:     cli.ID,
				ClientSecret: "s3cret",
				RefreshToken: resp.RefreshToken,
				Scope:        "openid profile email",
			})
			assertOAuthError(t, err, aerrors.InvalidScope)
		})
	})

	t.Run("missing refresh_token", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantRefreshToken, ClientID: cli.ID, ClientSecret: "s3cret",
		})
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	t.Run("unknown refresh_token", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantRefreshToken, ClientID: cli.ID, ClientSecret: "s3cret", RefreshToken: "never-issued",
		})
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})
}

func TestOAuthService_Token_ClientCredentials(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	f.seedSPA(t)
	ctx := context.Background()

	t.Run("issues a user-less pair without refresh", func(t *testing.T) {
		resp, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantClientCredentials,
			ClientID:     "web-app",
			ClientSecret: "s3cret",
			Scope:        "api:read",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Empty(t, resp.RefreshToken)
		assert.Equal(t, "api:read", resp.Scope)

		stored, err := f.tokenRepo.GetByAccess(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Empty(t, stored.UserID)
	})

	t.Run("public client is rejected", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantClientCredentials, ClientID: "spa",
		})
		assertOAuthError(t, err, aerrors.UnauthorizedClient)
	})

	t.Run("scope not registered", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantClientCredentials,
			ClientID:     "web-app",
			ClientSecret: "s3cret",
			Scope:        "api:write",
		})
		assertOAuthError(t, err, aerrors.InvalidScope)
	})
}

func TestOAuthService_Token_Password(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	f.seedUser(t, "user-1", "ada@example.com", "Ada", "correct horse")
	f.seedUser(t, "user-2", "federated@example.com", "Fed", "")
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		resp, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType:    client.GrantPassword,
			ClientID:     "web-app",
			ClientSecret: "s3cret",
			Username:     "ada@example.com",
			Password:     "correct horse",
			Scope:        "profile",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)

		stored, err := f.tokenRepo.GetByAccess(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", stored.UserID)
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantPassword, ClientID: "web-app", ClientSecret: "s3cret", Username: "ada@example.com",
		})
		assertOAuthError(t, err, aerrors.InvalidRequest)
	})

	// Unknown user, wrong password and passwordless account must be
	// indistinguishable from each other.
	for name, creds := range map[string][2]string{
		"unknown user":         {"ghost@example.com", "whatever"},
		"wrong password":       {"ada@example.com", "incorrect horse"},
		"passwordless account": {"federated@example.com", "anything"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Token(ctx, services.TokenRequest{
				GrantType:    client.GrantPassword,
				ClientID:     "web-app",
				ClientSecret: "s3cret",
				Username:     creds[0],
				Password:     creds[1],
			})
			oerr := assertOAuthError(t, err, aerrors.InvalidGrant)
			assert.Equal(t, "invalid resource owner credentials", oerr.Description)
		})
	}
}

func TestOAuthService_IntrospectToken(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	ctx := context.Background()

	resp, err := f.svc.Token(ctx, services.TokenRequest{
		GrantType:    client.GrantClientCredentials,
		ClientID:     "web-app",
		ClientSecret: "s3cret",
		Scope:        "api:read",
	})
	require.NoError(t, err)

	active, err := f.svc.IntrospectToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.True(t, active.Active)
	assert.Equal(t, "api:read", active.Scope)
	assert.Equal(t, "web-app", active.ClientID)
	assert.Equal(t, domain.TokenTypeBearer, active.TokenType)
	assert.Greater(t, active.Exp, time.Now().Unix())
	assert.LessOrEqual(t, active.Iat, time.Now().Unix())

	unknown, err := f.svc.IntrospectToken(ctx, "never-issued")
	require.NoError(t, err)
	assert.False(t, unknown.Active)
	assert.Zero(t, unknown.Exp)
	assert.Empty(t, unknown.ClientID)
}

func TestOAuthService_RevokeToken(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	ctx := context.Background()

	resp, err := f.svc.Token(ctx, services.TokenRequest{
		GrantType:    client.GrantClientCredentials,
		ClientID:     "web-app",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeToken(ctx, resp.AccessToken))

	info, err := f.svc.IntrospectToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.False(t, info.Active)

	// Unknown values succeed too.
	assert.NoError(t, f.svc.RevokeToken(ctx, "never-issued"))
}

func TestOAuthService_UserInfo(t *testing.T) {
	f := newOAuthFixture(t)
	f.seedWebApp(t)
	f.seedUser(t, "user-1", "ada@example.com", "Ada Lovelace", "correct horse")
	ctx := context.Background()

	resp, err := f.svc.Token(ctx, services.TokenRequest{
		GrantType:    client.GrantPassword,
		ClientID:     "web-app",
		ClientSecret: "s3cret",
		Username:     "ada@example.com",
		Password:     "correct horse",
	})
	require.NoError(t, err)

	t.Run("resolves the token's user", func(t *testing.T) {
		info, err := f.svc.UserInfo(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", info.Sub)
		assert.Equal(t, "ada@example.com", info.Email)
		assert.Equal(t, "Ada Lovelace", info.Name)
	})

	t.Run("token without an end user", func(t *testing.T) {
		cc, err := f.svc.Token(ctx, services.TokenRequest{
			GrantType: client.GrantClientCredentials, ClientID: "web-app", ClientSecret: "s3cret",
		})
		require.NoError(t, err)

		_, err = f.svc.UserInfo(ctx, cc.AccessToken)
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})

	t.Run("revoked token", func(t *testing.T) {
		require.NoError(t, f.svc.RevokeToken(ctx, resp.AccessToken))
		_, err := f.svc.UserInfo(ctx, resp.AccessToken)
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.svc.UserInfo(ctx, "never-issued")
		assertOAuthError(t, err, aerrors.InvalidGrant)
	})
}
