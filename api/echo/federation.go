package echo

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/dto"
	"github.com/authhub/authhub/internal/federation"
)

const (
	sessionCookieName = "authhub_session"
	stateCookieName   = "authhub_oauth_state"
	nextCookieName    = "authhub_next"

	// stateCookieMaxAge bounds one login round trip, in seconds.
	stateCookieMaxAge = 300
)

// LoginHandler starts the social login round trip: it asks the federation
// service for the provider's authorization URL, pins the CSRF state in a
// cookie and redirects the browser out. An optional next parameter names the
// local path to continue to after the callback.
func (a *API) LoginHandler(c echo.Context) error {
	provider := c.Param("provider")

	authURL, state, err := a.deps.Federation.BeginLogin(c.Request().Context(), provider)
	if err != nil {
		if errors.Is(err, federation.ErrProviderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"error":             "provider_not_found",
				"error_description": "provider is not registered or not enabled",
			})
		}
		log.Error().Err(err).Str("provider", provider).Msg("Failed to begin federated login")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login_failed"})
	}

	a.setCookie(c, stateCookieName, state, stateCookieMaxAge)
	if next := sanitizeNext(c.QueryParam("next")); next != "" {
		a.setCookie(c, nextCookieName, next, stateCookieMaxAge)
	}

	return c.Redirect(http.StatusFound, authURL)
}

// CallbackHandler finishes the round trip: state check against the cookie,
// code exchange and claim fetch at the provider, resolution to a hub user,
// then a login session cookie. The state cookie is cleared up front; a
// replayed callback fails the state check.
func (a *API) CallbackHandler(c echo.Context) error {
	ctx := c.Request().Context()
	provider := c.Param("provider")

	stateCookie, err := c.Cookie(stateCookieName)
	if err != nil {
		log.Warn().Str("provider", provider).Msg("State cookie missing on federation callback")
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "missing_state",
			"error_description": "login attempt expired or was not started here",
		})
	}
	a.clearCookie(c, stateCookieName)

	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn().
			Str("provider", provider).
			Str("error", errParam).
			Str("description", c.QueryParam("error_description")).
			Msg("Provider returned an error on callback")
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":             "provider_error",
			"error_description": errParam,
		})
	}

	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_code"})
	}

	user, err := a.deps.Federation.CompleteLogin(ctx, provider, c.QueryParam("state"), stateCookie.Value, code)
	if err != nil {
		switch {
		case errors.Is(err, federation.ErrInvalidAuthState):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error":             "state_mismatch",
				"error_description": "login state did not match; start the login again",
			})
		case errors.Is(err, federation.ErrProviderNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "provider_not_found"})
		}
		log.Error().Err(err).Str("provider", provider).Msg("Federated login failed")
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":             "login_failed",
			"error_description": "could not complete the login with the provider",
		})
	}

	sess, err := a.deps.Sessions.Begin(ctx, user.ID, c.Request().UserAgent(), c.RealIP())
	if err != nil {
		log.Error().Err(err).Msg("Failed to open login session")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session_failed"})
	}
	a.setCookie(c, sessionCookieName, sess.ID, int(time.Until(sess.ExpiresAt).Seconds()))

	log.Info().
		Str("provider", provider).
		Str("user_id", user.ID).
		Msg("Federated login succeeded")

	if nextCookie, err := c.Cookie(nextCookieName); err == nil {
		a.clearCookie(c, nextCookieName)
		if next := sanitizeNext(nextCookie.Value); next != "" {
			return c.Redirect(http.StatusFound, next)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "signed_in",
		"user":   dto.FromDomainUser(user),
	})
}

// LogoutHandler ends the login session, clears the cookie and redirects to
// next when one is given.
func (a *API) LogoutHandler(c echo.Context) error {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := a.deps.Sessions.End(c.Request().Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("Failed to end login session")
		}
	}
	a.clearCookie(c, sessionCookieName)

	if next := sanitizeNext(c.QueryParam("next")); next != "" {
		return c.Redirect(http.StatusFound, next)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "signed_out"})
}

func (a *API) setCookie(c echo.Context, name, value string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   a.cfg.SecureCookies || c.Request().TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(c echo.Context, name string) {
	a.setCookie(c, name, "", -1)
}

// sanitizeNext keeps continuation targets on this host. Anything that is not
// a plain absolute path is dropped.
func sanitizeNext(next string) string {
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}
