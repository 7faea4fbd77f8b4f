// Package echo exposes the hub over HTTP: the OAuth2 protocol endpoints,
// the social login round trip, discovery, and the admin surface.
package echo

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/signer"
	"github.com/authhub/authhub/services"
)

// Config carries the deployment-level settings of the HTTP surface.
type Config struct {
	// Issuer is the public base URL of this hub, advertised in the
	// discovery document. When empty, endpoints are derived from the
	// incoming request.
	Issuer string
	// AdminToken guards the /admin endpoints. Empty leaves them
	// unregistered.
	AdminToken string
	// SecureCookies forces the Secure attribute on every cookie even when
	// the server itself terminates plain HTTP (TLS-terminating proxy).
	SecureCookies bool
}

// Deps are the collaborating services behind the HTTP surface.
type Deps struct {
	Engine     *services.OAuthService
	Sessions   *services.SessionService
	Federation *federation.Service
	Registry   *federation.Registry
	Clients    *client.ClientService
	Providers  domain.IdentityProviderRepository
	Signer     *signer.Signer
	// Metrics is the registry served on /metrics; nil leaves the endpoint
	// unregistered.
	Metrics prometheus.Gatherer
	// Health reports backing-store reachability for /healthz; nil means
	// always healthy.
	Health func(ctx context.Context) error
}

// API holds the HTTP handlers of the hub.
type API struct {
	cfg  Config
	deps Deps
}

// New initializes the HTTP API.
func New(cfg Config, deps Deps) *API {
	return &API{cfg: cfg, deps: deps}
}

// RegisterRoutes registers every route on the given Echo instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", a.AuthorizeHandler)
	e.POST("/oauth2/token", a.TokenHandler)
	e.POST("/oauth2/introspect", a.IntrospectHandler)
	e.POST("/oauth2/revoke", a.RevokeHandler)
	e.GET("/oauth2/userinfo", a.UserInfoHandler)
	e.GET("/oauth2/logout", a.LogoutHandler)

	e.GET("/login/:provider", a.LoginHandler)
	e.GET("/auth/:provider/callback", a.CallbackHandler)

	e.GET("/.well-known/openid-configuration", a.OpenIDConfigurationHandler)
	e.GET("/.well-known/jwks.json", a.JWKSHandler)

	e.GET("/healthz", a.HealthzHandler)
	if a.deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.deps.Metrics, promhttp.HandlerOpts{})))
	}

	a.registerAdminRoutes(e)
}

// AuthorizeHandler handles OAuth 2.0 authorization requests. Client and
// redirect URI are validated before anything else; failures there render as
// JSON because redirecting them would send the error to an unvetted URI
// (RFC 6749 §4.1.2.1). Everything after rides back on the redirect, carrying
// a code in the query or an implicit token response in the fragment. Without
// a login session the user is bounced to the social login first, with this
// request as the continuation.
func (a *API) AuthorizeHandler(c echo.Context) error {
	ctx := c.Request().Context()

	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")

	cli, err := a.deps.Engine.ValidateAuthorizeClient(ctx, clientID, redirectURI)
	if err != nil {
		return writeOAuthError(c, err)
	}

	sess, err := a.currentSession(c)
	if err != nil {
		return a.redirectToLogin(c)
	}

	req := services.AuthorizeRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		ResponseType:        c.QueryParam("response_type"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		Nonce:               c.QueryParam("nonce"),
		UserID:              sess.UserID,
		AuthTime:            sess.AuthTime,
	}

	result, err := a.deps.Engine.Authorize(ctx, cli, req)
	if err != nil {
		var oerr *aerrors.OAuth2Error
		if errors.As(err, &oerr) {
			return redirectError(c, redirectURI, req.ResponseType, oerr)
		}
		return writeOAuthError(c, err)
	}

	if result.Implicit != nil {
		return redirectImplicit(c, result)
	}
	return redirectCode(c, result)
}

// redirectToLogin sends a session-less authorize request to the social login,
// with the full authorize URL as the continuation. The provider comes from
// the optional idp query parameter; with exactly one enabled registration
// that one is used. Otherwise the caller has to pick.
func (a *API) redirectToLogin(c echo.Context) error {
	ctx := c.Request().Context()

	provider := c.QueryParam("idp")
	if provider == "" {
		registered, err := a.deps.Providers.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list identity providers")
			return c.JSON(http.StatusInternalServerError, aerrors.NewServerError("failed to resolve login provider"))
		}
		var enabled []string
		for _, idp := range registered {
			if idp.Enabled {
				enabled = append(enabled, idp.Name)
			}
		}
		if len(enabled) == 1 {
			provider = enabled[0]
		} else {
			logins := make([]string, len(enabled))
			for i, name := range enabled {
				logins[i] = "/login/" + url.PathEscape(name)
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error":             "login_required",
				"error_description": "no login session; sign in first, or name a provider with the idp parameter",
				"providers":         logins,
			})
		}
	}

	next := c.Request().URL.RequestURI()
	target := "/login/" + url.PathEscape(provider) + "?next=" + url.QueryEscape(next)

	return c.Redirect(http.StatusFound, target)
}

// TokenHandler handles OAuth2 token requests. Client credentials arrive via
// Basic auth or the form body; the engine authenticates the client, dispatches
// the grant and returns the token response or an OAuth2Error ready for the
// wire.
func (a *API) TokenHandler(c echo.Context) error {
	clientID, clientSecret, basicAuth := clientCredentials(c)

	req := services.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
		Scope:        c.FormValue("scope"),
		Username:     c.FormValue("username"),
		Password:     c.FormValue("password"),
	}

	resp, err := a.deps.Engine.Token(c.Request().Context(), req)
	if err != nil {
		return writeTokenError(c, err, basicAuth)
	}

	log.Info().
		Str("client_id", clientID).
		Str("grant_type", req.GrantType).
		Int("expires_in", resp.ExpiresIn).
		Msg("Token issued")

	// Token responses must not be cached (RFC 6749 §5.1).
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")

	return c.JSON(http.StatusOK, resp)
}

// IntrospectHandler implements RFC 7662 token introspection. The caller
// authenticates as a client; lookup failures still come back 200 with
// active=false rather than leaking store trouble to the caller.
func (a *API) IntrospectHandler(c echo.Context) error {
	ctx := c.Request().Context()

	clientID, clientSecret, basicAuth := clientCredentials(c)
	if _, err := a.deps.Engine.AuthenticateClient(ctx, clientID, clientSecret); err != nil {
		return writeTokenError(c, err, basicAuth)
	}

	value := c.FormValue("token")
	if value == "" {
		return c.JSON(http.StatusBadRequest, aerrors.NewInvalidRequest("token parameter is required"))
	}

	resp, err := a.deps.Engine.IntrospectToken(ctx, value)
	if err != nil {
		log.Error().Err(err).Msg("Token introspection failed")
		return c.JSON(http.StatusOK, &dto.IntrospectionResponse{Active: false})
	}

	return c.JSON(http.StatusOK, resp)
}

// RevokeHandler handles token revocation requests according to RFC 7009.
// Both access and refresh tokens are accepted; the token_type_hint is taken
// but not needed since revocation searches both. The endpoint returns 200
// whether or not the presented token existed.
func (a *API) RevokeHandler(c echo.Context) error {
	ctx := c.Request().Context()

	clientID, clientSecret, basicAuth := clientCredentials(c)
	if _, err := a.deps.Engine.AuthenticateClient(ctx, clientID, clientSecret); err != nil {
		return writeTokenError(c, err, basicAuth)
	}

	value := c.FormValue("token")
	if value == "" {
		return c.JSON(http.StatusBadRequest, aerrors.NewInvalidRequest("token parameter is required"))
	}

	if err := a.deps.Engine.RevokeToken(ctx, value); err != nil {
		// RFC 7009 §2.2: respond 200 even when revocation went sideways.
		log.Error().Err(err).Msg("Failed to revoke token")
	}

	return c.JSON(http.StatusOK, echo.Map{})
}

// UserInfoHandler resolves a Bearer access token to the user's profile
// claims.
func (a *API) UserInfoHandler(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="authhub"`)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token"})
	}

	info, err := a.deps.Engine.UserInfo(c.Request().Context(), token)
	if err != nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="authhub", error="invalid_token"`)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	}

	return c.JSON(http.StatusOK, info)
}

// OpenIDConfigurationHandler serves the discovery document. Endpoints are
// anchored on the configured issuer, falling back to the request host when
// none is configured.
func (a *API) OpenIDConfigurationHandler(c echo.Context) error {
	base := strings.TrimSuffix(a.cfg.Issuer, "/")
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}

	cfg := dto.OpenIDConfiguration{
		Issuer:                base,
		AuthorizationEndpoint: base + "/oauth2/authorize",
		TokenEndpoint:         base + "/oauth2/token",
		UserInfoEndpoint:      base + "/oauth2/userinfo",
		JwksURI:               base + "/.well-known/jwks.json",
		IntrospectionEndpoint: base + "/oauth2/introspect",
		RevocationEndpoint:    base + "/oauth2/revoke",
		EndSessionEndpoint:    base + "/oauth2/logout",
		ScopesSupported:       []string{"openid", "profile", "email", "offline_access"},
		ResponseTypesSupported: []string{
			client.ResponseTypeCode,
			client.ResponseTypeToken,
		},
		ResponseModesSupported: []string{"query", "fragment"},
		GrantTypesSupported: []string{
			client.GrantAuthorizationCode,
			"implicit",
			client.GrantPassword,
			client.GrantRefreshToken,
			client.GrantClientCredentials,
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		CodeChallengeMethodsSupported:     []string{services.PKCEMethodPlain, services.PKCEMethodS256},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "name", "email", "picture",
		},
	}

	return c.JSON(http.StatusOK, cfg)
}

// JWKSHandler publishes the ID token verification keys.
func (a *API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.deps.Signer.JWKS())
}

// HealthzHandler reports liveness plus backing-store reachability.
func (a *API) HealthzHandler(c echo.Context) error {
	if a.deps.Health != nil {
		if err := a.deps.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// currentSession resolves the login session cookie, if any.
func (a *API) currentSession(c echo.Context) (*domain.Session, error) {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, aerrors.ErrSessionNotFound
	}
	return a.deps.Sessions.Get(c.Request().Context(), cookie.Value)
}

// clientCredentials pulls client authentication from Basic auth or, failing
// that, the form body. Basic wins when both are present (RFC 6749 §2.3.1).
func clientCredentials(c echo.Context) (id, secret string, basicAuth bool) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret, true
	}
	return c.FormValue("client_id"), c.FormValue("client_secret"), false
}

// bearerToken extracts the Bearer token from the Authorization header, or
// returns "".
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// httpStatus maps a protocol error onto its transport status.
func httpStatus(oerr *aerrors.OAuth2Error) int {
	switch oerr.Code {
	case aerrors.InvalidClient:
		return http.StatusUnauthorized
	case aerrors.ServerError:
		return http.StatusInternalServerError
	case aerrors.TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// asOAuthError normalizes any error to a wire-ready OAuth2Error.
func asOAuthError(err error) *aerrors.OAuth2Error {
	var oerr *aerrors.OAuth2Error
	if errors.As(err, &oerr) {
		return oerr
	}
	return aerrors.NewServerError("internal error")
}

// writeOAuthError renders a protocol error as a JSON body.
func writeOAuthError(c echo.Context, err error) error {
	oerr := asOAuthError(err)
	return c.JSON(httpStatus(oerr), oerr)
}

// writeTokenError renders a token-endpoint error, challenging for Basic auth
// when the caller used it and failed (RFC 6749 §5.2).
func writeTokenError(c echo.Context, err error, basicAuth bool) error {
	oerr := asOAuthError(err)
	if oerr.Code == aerrors.InvalidClient && basicAuth {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="authhub"`)
	}
	return c.JSON(httpStatus(oerr), oerr)
}

// redirectCode delivers an authorization code back to the client in the
// redirect query.
func redirectCode(c echo.Context, result *services.AuthorizeResult) error {
	params := url.Values{}
	params.Set("code", result.Code)
	if result.State != "" {
		params.Set("state", result.State)
	}

	target, err := appendQuery(result.RedirectURI, params)
	if err != nil {
		return writeOAuthError(c, aerrors.NewServerError("failed to build redirect"))
	}
	return c.Redirect(http.StatusFound, target)
}

// redirectImplicit delivers an implicit-flow token response in the redirect
// fragment (RFC 6749 §4.2.2).
func redirectImplicit(c echo.Context, result *services.AuthorizeResult) error {
	params := url.Values{}
	params.Set("access_token", result.Implicit.AccessToken)
	params.Set("token_type", result.Implicit.TokenType)
	params.Set("expires_in", strconv.Itoa(result.Implicit.ExpiresIn))
	if result.Implicit.Scope != "" {
		params.Set("scope", result.Implicit.Scope)
	}
	if result.State != "" {
		params.Set("state", result.State)
	}

	target, err := appendFragment(result.RedirectURI, params)
	if err != nil {
		return writeOAuthError(c, aerrors.NewServerError("failed to build redirect"))
	}
	return c.Redirect(http.StatusFound, target)
}

// redirectError delivers an authorization failure on the validated redirect
// URI: in the query for the code flow, in the fragment for the implicit flow
// (RFC 6749 §4.2.2.1).
func redirectError(c echo.Context, redirectURI, responseType string, oerr *aerrors.OAuth2Error) error {
	params := url.Values{}
	params.Set("error", oerr.Code)
	if oerr.Description != "" {
		params.Set("error_description", oerr.Description)
	}
	if oerr.State != "" {
		params.Set("state", oerr.State)
	}

	var (
		target string
		err    error
	)
	if responseType == client.ResponseTypeToken {
		target, err = appendFragment(redirectURI, params)
	} else {
		target, err = appendQuery(redirectURI, params)
	}
	if err != nil {
		return writeOAuthError(c, oerr)
	}
	return c.Redirect(http.StatusFound, target)
}

// appendQuery merges params into the existing query of the redirect URI.
func appendQuery(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// appendFragment attaches params as the fragment of the redirect URI. The
// fragment is concatenated pre-encoded; url.URL would re-escape it.
func appendFragment(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	return u.String() + "#" + params.Encode(), nil
}
