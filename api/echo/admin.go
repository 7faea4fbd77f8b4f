package echo

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/federation"
)

// registerAdminRoutes mounts the client and provider administration
// endpoints. Without a configured admin token the group stays unregistered.
func (a *API) registerAdminRoutes(e *echo.Echo) {
	if a.cfg.AdminToken == "" {
		log.Warn().Msg("Admin token not configured, admin endpoints are disabled")
		return
	}

	g := e.Group("/admin", a.requireAdmin)

	g.POST("/clients", a.AdminCreateClientHandler)
	g.GET("/clients", a.AdminListClientsHandler)
	g.GET("/clients/:id", a.AdminGetClientHandler)
	g.PUT("/clients/:id", a.AdminUpdateClientHandler)
	g.DELETE("/clients/:id", a.AdminDeleteClientHandler)

	g.PUT("/providers", a.AdminSetProviderHandler)
	g.GET("/providers", a.AdminListProvidersHandler)
	g.DELETE("/providers/:name", a.AdminDeleteProviderHandler)
}

// requireAdmin demands the configured admin token as a Bearer credential.
func (a *API) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.AdminToken)) != 1 {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return next(c)
	}
}

// AdminCreateClientHandler registers a downstream OAuth client. The response
// is the only place the generated secret ever appears.
func (a *API) AdminCreateClientHandler(c echo.Context) error {
	var req dto.ClientCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}
	if req.Name == "" || len(req.RedirectURIs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_body",
			"error_description": "name and redirect_uris are required",
		})
	}

	ctx := c.Request().Context()

	var (
		cli *client.Client
		err error
	)
	switch req.Type {
	case string(client.Confidential), "":
		cli, err = a.deps.Clients.CreateConfidentialClient(ctx, req.Name, req.RedirectURIs, req.AllowedScopes)
	case string(client.Public):
		cli, err = a.deps.Clients.CreatePublicClient(ctx, req.Name, req.RedirectURIs, req.AllowedScopes)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_body",
			"error_description": "type must be confidential or public",
		})
	}
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to create client")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create_failed"})
	}

	// Optional fields beyond the creation defaults ride on an immediate
	// update.
	if req.Description != "" || len(req.AllowedGrantTypes) > 0 || req.RequirePKCE {
		if req.Description != "" {
			cli.Description = req.Description
		}
		if len(req.AllowedGrantTypes) > 0 {
			cli.AllowedGrantTypes = req.AllowedGrantTypes
		}
		if req.RequirePKCE {
			cli.RequirePKCE = true
		}
		if err := a.deps.Clients.UpdateClient(ctx, cli); err != nil {
			log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to apply client options")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create_failed"})
		}
	}

	log.Info().Str("client_id", cli.ID).Str("type", string(cli.Type)).Msg("Client registered")

	return c.JSON(http.StatusCreated, dto.ClientCreatedResponse{
		ClientResponse: *dto.FromDomainClient(cli),
		Secret:         cli.Secret,
	})
}

// AdminListClientsHandler lists registrations, optionally filtered by type,
// active flag and a free-text search.
func (a *API) AdminListClientsHandler(c echo.Context) error {
	filter := client.ClientFilter{
		Type:   client.ClientType(c.QueryParam("type")),
		Search: c.QueryParam("q"),
	}
	if active := c.QueryParam("active"); active != "" {
		isActive := active == "true"
		filter.IsActive = &isActive
	}

	clients, err := a.deps.Clients.ListClients(c.Request().Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list clients")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list_failed"})
	}

	return c.JSON(http.StatusOK, dto.FromDomainClients(clients))
}

func (a *API) AdminGetClientHandler(c echo.Context) error {
	cli, err := a.deps.Clients.GetRegistration(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, aerrors.ErrClientNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "client_not_found"})
		}
		log.Error().Err(err).Str("client_id", c.Param("id")).Msg("Failed to load client")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup_failed"})
	}
	return c.JSON(http.StatusOK, dto.FromDomainClient(cli))
}

func (a *API) AdminUpdateClientHandler(c echo.Context) error {
	var req dto.ClientUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}

	ctx := c.Request().Context()

	cli, err := a.deps.Clients.GetRegistration(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, aerrors.ErrClientNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "client_not_found"})
		}
		log.Error().Err(err).Str("client_id", c.Param("id")).Msg("Failed to load client")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup_failed"})
	}

	dto.ApplyClientUpdate(cli, req)

	if err := a.deps.Clients.UpdateClient(ctx, cli); err != nil {
		log.Error().Err(err).Str("client_id", cli.ID).Msg("Failed to update client")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update_failed"})
	}

	return c.JSON(http.StatusOK, dto.FromDomainClient(cli))
}

func (a *API) AdminDeleteClientHandler(c echo.Context) error {
	if err := a.deps.Clients.DeleteClient(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, aerrors.ErrClientNotFound) || errors.Is(err, aerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "client_not_found"})
		}
		log.Error().Err(err).Str("client_id", c.Param("id")).Msg("Failed to delete client")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete_failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// AdminSetProviderHandler registers or replaces an upstream identity
// provider. The registration takes effect on the next login: the cached
// adapter is invalidated here.
func (a *API) AdminSetProviderHandler(c echo.Context) error {
	var req dto.IdentityProviderSetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body"})
	}
	if req.Name == "" || req.ClientID == "" || req.ClientSecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_body",
			"error_description": "name, client_id and client_secret are required",
		})
	}
	if !federation.Supported(req.Name) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "unsupported_provider",
			"error_description": "no adapter exists for provider " + req.Name,
		})
	}

	idp := dto.ToDomainIdentityProvider(req)
	if err := a.deps.Providers.Upsert(c.Request().Context(), idp); err != nil {
		log.Error().Err(err).Str("provider", req.Name).Msg("Failed to store provider registration")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store_failed"})
	}
	a.deps.Registry.Invalidate(req.Name)

	log.Info().Str("provider", req.Name).Bool("enabled", req.Enabled).Msg("Provider registration stored")

	return c.JSON(http.StatusOK, dto.FromDomainIdentityProvider(idp))
}

func (a *API) AdminListProvidersHandler(c echo.Context) error {
	idps, err := a.deps.Providers.List(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list providers")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list_failed"})
	}
	return c.JSON(http.StatusOK, dto.FromDomainIdentityProviders(idps))
}

func (a *API) AdminDeleteProviderHandler(c echo.Context) error {
	name := c.Param("name")
	if err := a.deps.Providers.Delete(c.Request().Context(), name); err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "provider_not_found"})
		}
		log.Error().Err(err).Str("provider", name).Msg("Failed to delete provider registration")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete_failed"})
	}
	a.deps.Registry.Invalidate(name)

	return c.NoContent(http.StatusNoContent)
}
