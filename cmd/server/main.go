// Command server runs the authhub server: a central OAuth2 authorization
// server that signs users in at external identity providers and issues its
// own tokens to downstream clients.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	httpapi "github.com/authhub/authhub/api/echo"
	"github.com/authhub/authhub/cache"
	rediscache "github.com/authhub/authhub/cache/redis"
	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/config"
	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/signer"
	hublog "github.com/authhub/authhub/log"
	"github.com/authhub/authhub/mongodb"
	"github.com/authhub/authhub/services"
	"github.com/authhub/authhub/tracing"
)

const (
	shutdownTimeout = 30 * time.Second
	clientCacheTTL  = 30 * time.Second
	redisKeyPrefix  = "authhub"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	hublog.Setup(cfg.LogLevel, cfg.LogPretty)

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("issuer", cfg.Issuer).
		Str("mongo_db", cfg.MongoDBName).
		Str("cache_backend", cfg.CacheBackend).
		Msg("Starting authhub server")

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer provider")
	}

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	db := mongodb.GetDB()

	// Repositories. Constructors ensure their indexes; index trouble is
	// logged inside, not fatal.
	userRepo, err := mongodb.NewUserRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user repository")
	}
	identityRepo, err := mongodb.NewIdentityRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize identity repository")
	}
	idpRepo := mongodb.NewIdentityProviderRepositoryMongo(db)
	clientRepo := mongodb.NewClientRepositoryMongo(db)
	codeRepo := mongodb.NewAuthCodeRepositoryMongo(ctx, db)
	tokenRepo := mongodb.NewTokenRepositoryMongo(ctx, db)

	// Cache tier: in-process by default, Redis when configured.
	var (
		tokenCache   cache.TokenStore
		sessionStore cache.SessionStore
		redisClient  *redis.Client
	)
	switch cfg.CacheBackend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		tokenCache = rediscache.NewTokenStore(redisClient, redisKeyPrefix)
		sessionStore = rediscache.NewSessionStore(redisClient, redisKeyPrefix)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis cache backend")
	default:
		tokenCache = cache.NewMemoryTokenStore(cfg.AccessTokenTTL())
		sessionStore = cache.NewMemorySessionStore(time.Minute)
	}

	// ID token signing key: PEM from disk, or an ephemeral dev key.
	var idSigner *signer.Signer
	if cfg.SigningKeyPath != "" {
		pemBytes, readErr := os.ReadFile(cfg.SigningKeyPath)
		if readErr != nil {
			log.Fatal().Err(readErr).Str("path", cfg.SigningKeyPath).Msg("Failed to read signing key")
		}
		idSigner, err = signer.NewSignerFromPEM(cfg.Issuer, pemBytes)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SigningKeyPath).Msg("Failed to parse signing key")
		}
	} else {
		log.Warn().Msg("No signing key configured, generating an ephemeral one; ID tokens will not verify across restarts")
		idSigner, err = signer.NewSigner(cfg.Issuer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate signing key")
		}
	}

	// Services.
	hasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)
	clientSvc := client.NewClientService(clientRepo, clientCacheTTL)
	codeSvc := services.NewAuthCodeService(codeRepo, cfg.CodeTTL())
	tokenSvc := services.NewTokenService(tokenRepo, tokenCache, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	sessionSvc := services.NewSessionService(sessionStore, cfg.SessionTTL())

	registry := federation.NewRegistry(idpRepo)
	resolver := federation.NewResolver(userRepo, identityRepo)
	fedSvc := federation.NewService(registry, resolver, cfg.Issuer+"/auth")

	engine := services.NewOAuthService(clientSvc, codeSvc, tokenSvc, userRepo, hasher, idSigner, cfg.IDTokenTTL())

	seedProviders(ctx, cfg, idpRepo)

	promRegistry := prometheus.NewRegistry()
	metrics.Register(promRegistry)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	api := httpapi.New(httpapi.Config{
		Issuer:        cfg.Issuer,
		AdminToken:    cfg.AdminToken,
		SecureCookies: cfg.SecureCookies,
	}, httpapi.Deps{
		Engine:     engine,
		Sessions:   sessionSvc,
		Federation: fedSvc,
		Registry:   registry,
		Clients:    clientSvc,
		Providers:  idpRepo,
		Signer:     idSigner,
		Metrics:    promRegistry,
		Health:     mongodb.Ping,
	})
	api.RegisterRoutes(e)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := clientSvc.Close(); err != nil {
		log.Error().Err(err).Msg("Client service shutdown error")
	}
	if err := tokenCache.Close(); err != nil {
		log.Error().Err(err).Msg("Token cache shutdown error")
	}
	sessionStore.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Redis client shutdown error")
		}
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer provider shutdown error")
	}

	mongodb.CloseMongoDB(shutdownCtx)

	log.Info().Msg("Server stopped")
}

// seedProviders registers the bootstrap provider credentials from config when
// no registration exists yet. Existing registrations are never overwritten;
// the admin surface owns them after first boot.
func seedProviders(ctx context.Context, cfg *config.ServerConfig, repo domain.IdentityProviderRepository) {
	seed := func(name, clientID, clientSecret string, scopes []string) {
		if clientID == "" || clientSecret == "" {
			return
		}
		if _, err := repo.GetByName(ctx, name); err == nil {
			return
		} else if !errors.Is(err, aerrors.ErrNotFound) {
			log.Error().Err(err).Str("provider", name).Msg("Failed to check provider registration")
			return
		}

		idp := &domain.IdentityProvider{
			Name:         name,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Enabled:      true,
		}
		if err := repo.Upsert(ctx, idp); err != nil {
			log.Error().Err(err).Str("provider", name).Msg("Failed to seed provider registration")
			return
		}
		log.Info().Str("provider", name).Msg("Seeded provider registration from config")
	}

	seed("google", cfg.GoogleClientID, cfg.GoogleClientSecret, []string{"openid", "profile", "email"})
	seed("github", cfg.GitHubClientID, cfg.GitHubClientSecret, []string{"read:user", "user:email"})
	seed("facebook", cfg.FacebookClientID, cfg.FacebookClientSecret, []string{"public_profile", "email"})
}
