package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/signer"
)

// OAuthService is the protocol engine: it dispatches authorize requests and
// token grants onto the code and token managers, enforcing client rules
// before any code or token state is touched. It knows nothing about HTTP or
// sessions; the authenticated user arrives as plain request fields.
type OAuthService struct {
	clients    *client.ClientService
	codes      *AuthCodeService
	tokens     *TokenService
	users      domain.UserRepository
	hasher     PasswordHasher
	idSigner   IDTokenSigner
	idTokenTTL time.Duration
}

// NewOAuthService wires the engine. idSigner may be nil, in which case openid
// requests get no ID token.
func NewOAuthService(
	clients *client.ClientService,
	codes *AuthCodeService,
	tokens *TokenService,
	users domain.UserRepository,
	hasher PasswordHasher,
	idSigner IDTokenSigner,
	idTokenTTL time.Duration,
) *OAuthService {
	return &OAuthService{
		clients:    clients,
		codes:      codes,
		tokens:     tokens,
		users:      users,
		hasher:     hasher,
		idSigner:   idSigner,
		idTokenTTL: idTokenTTL,
	}
}

// AuthorizeRequest is one authorize call after the HTTP layer has resolved
// the user session. UserID and AuthTime come from the session, everything
// else from the query string.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string

	UserID   string
	AuthTime time.Time
}

// AuthorizeResult carries what the redirect back to the client must deliver:
// a code in the query, or an implicit token response in the fragment.
type AuthorizeResult struct {
	RedirectURI string
	State       string
	Code        string
	Implicit    *dto.TokenResponse
}

// ValidateAuthorizeClient resolves the client and checks the redirect URI for
// an authorize request. Failures here must never be delivered by redirect
// (RFC 6749 §4.1.2.1); the HTTP layer renders them directly.
func (s *OAuthService) ValidateAuthorizeClient(ctx context.Context, clientID, redirectURI string) (*client.Client, error) {
	if clientID == "" {
		return nil, aerrors.NewInvalidRequest("client_id is required")
	}

	cli, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, aerrors.ErrClientNotFound) {
			return nil, aerrors.NewInvalidClient("unknown client")
		}
		log.Error().Err(err).Str("client_id", clientID).Msg("Failed to resolve client")
		return nil, aerrors.NewServerError("failed to resolve client")
	}

	if redirectURI == "" {
		return nil, aerrors.NewInvalidRequest("redirect_uri is required")
	}
	if !cli.HasRedirectURI(redirectURI) {
		return nil, aerrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	return cli, nil
}

// Authorize handles a validated authorize request for a signed-in user. Every
// returned error is an *errors.OAuth2Error carrying the request state, ready
// to be appended to the already-validated redirect URI.
func (s *OAuthService) Authorize(ctx context.Context, cli *client.Client, req AuthorizeRequest) (*AuthorizeResult, error) {
	fail := func(oerr *aerrors.OAuth2Error) (*AuthorizeResult, error) {
		return nil, oerr.WithState(req.State)
	}

	switch req.ResponseType {
	case client.ResponseTypeCode, client.ResponseTypeToken:
	case "":
		return fail(aerrors.NewInvalidRequest("response_type is required"))
	default:
		return fail(aerrors.NewUnsupportedResponseType("unsupported response_type: " + req.ResponseType))
	}
	if !cli.HasResponseType(req.ResponseType) {
		return fail(aerrors.NewUnauthorizedClient("client is not allowed to use response_type " + req.ResponseType))
	}

	if !cli.ScopeAllowed(req.Scope) {
		return fail(aerrors.NewInvalidScope("requested scope is not registered for this client"))
	}

	if req.ResponseType == client.ResponseTypeCode {
		if req.CodeChallengeMethod != "" && !ValidPKCEMethod(req.CodeChallengeMethod) {
			return fail(aerrors.NewInvalidRequest("unsupported code_challenge_method"))
		}
		if req.CodeChallenge == "" && cli.PKCERequired() {
			return fail(aerrors.NewPKCERequired())
		}

		code, err := s.codes.Issue(ctx, IssueCodeOptions{
			Client:              cli,
			UserID:              req.UserID,
			RedirectURI:         req.RedirectURI,
			ResponseType:        req.ResponseType,
			Scope:               req.Scope,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			Nonce:               req.Nonce,
			AuthTime:            req.AuthTime,
		})
		if err != nil {
			log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to issue authorization code")
			return fail(aerrors.NewServerError("failed to issue authorization code"))
		}

		return &AuthorizeResult{
			RedirectURI: req.RedirectURI,
			State:       req.State,
			Code:        code.Code,
		}, nil
	}

	// Implicit flow: the access token rides in the redirect fragment and no
	// refresh token is issued (RFC 6749 §4.2.2).
	token, err := s.tokens.Issue(ctx, IssueTokenOptions{
		ClientID:    cli.ID,
		UserID:      req.UserID,
		Scope:       req.Scope,
		GrantType:   "implicit",
		WithRefresh: false,
	})
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to issue implicit token")
		return fail(aerrors.NewServerError("failed to issue token"))
	}

	return &AuthorizeResult{
		RedirectURI: req.RedirectURI,
		State:       req.State,
		Implicit:    tokenResponse(token, ""),
	}, nil
}

// TokenRequest is one token endpoint call. Client credentials come from
// Basic auth or the form body; the HTTP layer does not care which.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	Code         string
	RedirectURI  string
	CodeVerifier string

	RefreshToken string
	Scope        string

	Username string
	Password string
}

// AuthenticateClient authenticates a token-endpoint caller, failing
// invalid_client for unknown, disabled and wrong-secret clients alike.
func (s *OAuthService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*client.Client, error) {
	if clientID == "" {
		return nil, aerrors.NewInvalidClient("client authentication required")
	}

	cli, err := s.clients.Validate(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, aerrors.ErrClientNotFound) || errors.Is(err, aerrors.ErrInvalidClientCredentials) {
			return nil, aerrors.NewInvalidClient("client authentication failed")
		}
		log.Error().Err(err).Str("client_id", clientID).Msg("Failed to authenticate client")
		return nil, aerrors.NewServerError("failed to authenticate client")
	}
	return cli, nil
}

// Token authenticates the client and dispatches the grant. Grant handlers run
// only after the client is authenticated and allowed to use the grant type.
func (s *OAuthService) Token(ctx context.Context, req TokenRequest) (*dto.TokenResponse, error) {
	cli, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case client.GrantAuthorizationCode, client.GrantRefreshToken,
		client.GrantClientCredentials, client.GrantPassword:
	case "":
		return nil, aerrors.NewInvalidRequest("grant_type is required")
	default:
		return nil, aerrors.NewUnsupportedGrantType()
	}

	if !cli.HasGrantType(req.GrantType) {
		return nil, aerrors.NewUnauthorizedClient("client is not allowed to use grant_type " + req.GrantType)
	}

	switch req.GrantType {
	case client.GrantAuthorizationCode:
		return s.handleAuthorizationCode(ctx, cli, req)
	case client.GrantRefreshToken:
		return s.handleRefreshToken(ctx, cli, req)
	case client.GrantClientCredentials:
		return s.handleClientCredentials(ctx, cli, req)
	case client.GrantPassword:
		return s.handlePassword(ctx, cli, req)
	default:
		return nil, aerrors.NewUnsupportedGrantType()
	}
}

func (s *OAuthService) handleAuthorizationCode(ctx context.Context, cli *client.Client, req TokenRequest) (*dto.TokenResponse, error) {
	if req.Code == "" {
		return nil, aerrors.NewInvalidRequest("code is required")
	}

	code, err := s.codes.Redeem(ctx, req.Code, cli, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, aerrors.ErrCodeConsumedOrUnknown):
			return nil, aerrors.NewInvalidGrant("authorization code is invalid or has already been used")
		case errors.Is(err, aerrors.ErrCodeExpired):
			return nil, aerrors.NewInvalidGrant("authorization code has expired")
		case errors.Is(err, aerrors.ErrRedirectMismatch):
			return nil, aerrors.NewInvalidGrant("redirect_uri does not match the authorization request")
		case errors.Is(err, aerrors.ErrPKCEVerification):
			return nil, aerrors.NewInvalidPKCE("code_verifier does not match the challenge")
		}
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to redeem authorization code")
		return nil, aerrors.NewServerError("failed to redeem authorization code")
	}

	token, err := s.tokens.Issue(ctx, IssueTokenOptions{
		ClientID:    cli.ID,
		UserID:      code.UserID,
		Scope:       code.Scope,
		GrantType:   client.GrantAuthorizationCode,
		WithRefresh: true,
	})
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to issue tokens for authorization code")
		return nil, aerrors.NewServerError("failed to issue tokens")
	}

	idToken := ""
	if scopeContains(code.Scope, "openid") && s.idSigner != nil {
		idToken, err = s.mintIDToken(ctx, cli.ID, code)
		if err != nil {
			log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to sign ID token")
			return nil, aerrors.NewServerError("failed to sign id token")
		}
	}

	return tokenResponse(token, idToken), nil
}

func (s *OAuthService) mintIDToken(ctx context.Context, audience string, code *domain.AuthCode) (string, error) {
	claims := signer.IDTokenClaims{
		Subject:  code.UserID,
		Audience: audience,
		Nonce:    code.Nonce,
		AuthTime: code.AuthTime,
	}

	// Profile claims are best effort; the subject is what matters.
	if user, err := s.users.GetByID(ctx, code.UserID); err == nil {
		claims.Email = user.Email
		claims.Name = user.Name
	} else {
		log.Warn().Err(err).Str("user_id", code.UserID).Msg("Failed to load user for ID token claims")
	}

	return s.idSigner.SignIDToken(claims, s.idTokenTTL)
}

func (s *OAuthService) handleRefreshToken(ctx context.Context, cli *client.Client, req TokenRequest) (*dto.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, aerrors.NewInvalidRequest("refresh_token is required")
	}

	token, err := s.tokens.Refresh(ctx, req.RefreshToken, cli, req.Scope)
	if err != nil {
		switch {
		case errors.Is(err, aerrors.ErrInvalidRefreshToken),
			errors.Is(err, aerrors.ErrTokenExpiredOrRevoked):
			return nil, aerrors.NewInvalidGrant("refresh token is invalid, expired or revoked")
		case errors.Is(err, aerrors.ErrScopeExceeded):
			return nil, aerrors.NewInvalidScope("requested scope exceeds the originally granted scope")
		}
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to refresh token")
		return nil, aerrors.NewServerError("failed to refresh token")
	}

	return tokenResponse(token, ""), nil
}

func (s *OAuthService) handleClientCredentials(ctx context.Context, cli *client.Client, req TokenRequest) (*dto.TokenResponse, error) {
	if cli.Type == client.Public {
		return nil, aerrors.NewUnauthorizedClient("client_credentials requires a confidential client")
	}
	if !cli.ScopeAllowed(req.Scope) {
		return nil, aerrors.NewInvalidScope("requested scope is not registered for this client")
	}

	// No end user: the token acts for the client itself and cannot be
	// refreshed (RFC 6749 §4.4.3).
	token, err := s.tokens.Issue(ctx, IssueTokenOptions{
		ClientID:    cli.ID,
		Scope:       req.Scope,
		GrantType:   client.GrantClientCredentials,
		WithRefresh: false,
	})
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to issue client_credentials token")
		return nil, aerrors.NewServerError("failed to issue tokens")
	}

	return tokenResponse(token, ""), nil
}

func (s *OAuthService) handlePassword(ctx context.Context, cli *client.Client, req TokenRequest) (*dto.TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, aerrors.NewInvalidRequest("username and password are required")
	}
	if !cli.ScopeAllowed(req.Scope) {
		return nil, aerrors.NewInvalidScope("requested scope is not registered for this client")
	}

	// Wrong user, wrong password and passwordless account all produce the
	// same response.
	user, err := s.users.GetByEmail(ctx, req.Username)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return nil, aerrors.NewInvalidGrant("invalid resource owner credentials")
		}
		log.Error().Err(err).Msg("Failed to look up resource owner")
		return nil, aerrors.NewServerError("failed to verify credentials")
	}
	if user.PasswordHash == "" {
		// Federated-only account, no password set.
		return nil, aerrors.NewInvalidGrant("invalid resource owner credentials")
	}
	if err := s.hasher.Verify(user.PasswordHash, req.Password); err != nil {
		return nil, aerrors.NewInvalidGrant("invalid resource owner credentials")
	}

	token, err := s.tokens.Issue(ctx, IssueTokenOptions{
		ClientID:    cli.ID,
		UserID:      user.ID,
		Scope:       req.Scope,
		GrantType:   client.GrantPassword,
		WithRefresh: true,
	})
	if err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to issue password-grant tokens")
		return nil, aerrors.NewServerError("failed to issue tokens")
	}

	return tokenResponse(token, ""), nil
}

// IntrospectToken reports the state of a token value for an authenticated
// caller (RFC 7662). Unknown tokens are inactive, never an error.
func (s *OAuthService) IntrospectToken(ctx context.Context, value string) (*dto.IntrospectionResponse, error) {
	info, err := s.tokens.Introspect(ctx, value)
	if err != nil {
		log.Error().Err(err).Msg("Failed to introspect token")
		return nil, aerrors.NewServerError("failed to introspect token")
	}

	resp := &dto.IntrospectionResponse{
		Active:    info.Active,
		Scope:     info.Scope,
		ClientID:  info.ClientID,
		Sub:       info.UserID,
		TokenType: info.TokenType,
	}
	if info.Active {
		resp.Exp = info.ExpiresAt.Unix()
		resp.Iat = info.IssuedAt.Unix()
	}
	return resp, nil
}

// RevokeToken revokes a token value. Always succeeds for unknown values
// (RFC 7009).
func (s *OAuthService) RevokeToken(ctx context.Context, value string) error {
	if err := s.tokens.Revoke(ctx, value); err != nil {
		log.Error().Err(err).Msg("Failed to revoke token")
		return aerrors.NewServerError("failed to revoke token")
	}
	return nil
}

// UserInfo resolves a Bearer access token to its user's profile.
func (s *OAuthService) UserInfo(ctx context.Context, accessToken string) (*dto.UserInfoResponse, error) {
	token, err := s.tokens.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, aerrors.NewInvalidGrant("access token is invalid, expired or revoked")
	}
	if token.UserID == "" {
		return nil, aerrors.NewInvalidGrant("token has no end user")
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return nil, aerrors.NewInvalidGrant("token user no longer exists")
		}
		log.Error().Err(err).Str("user_id", token.UserID).Msg("Failed to load user")
		return nil, aerrors.NewServerError("failed to load user")
	}

	return dto.FromDomainUser(user), nil
}

// tokenResponse converts an issued pair to the wire shape.
func tokenResponse(token *domain.Token, idToken string) *dto.TokenResponse {
	return &dto.TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int(token.ExpiresIn),
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		IDToken:      idToken,
	}
}

// scopeContains reports whether the space-separated scope string contains
// one value.
func scopeContains(scope, value string) bool {
	for _, s := range strings.Fields(scope) {
		if s == value {
			return true
		}
	}
	return false
}
