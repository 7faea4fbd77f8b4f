package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the hub. Tags use mapstructure for
// Viper unmarshalling; every key can be overridden with an AUTHHUB_-prefixed
// environment variable (AUTHHUB_MONGO_URI and so on).
type ServerConfig struct {
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// Issuer is the public base URL: iss in ID tokens, redirect target base
	// for provider callbacks, and the discovery document's issuer.
	Issuer string `mapstructure:"ISSUER"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// CacheBackend selects where tokens and sessions are cached:
	// "memory" or "redis".
	CacheBackend  string `mapstructure:"CACHE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	CodeTTLSec          int `mapstructure:"CODE_TTL_SEC"`
	AccessTokenTTLMin   int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	SessionTTLHour      int `mapstructure:"SESSION_TTL_HOUR"`
	IDTokenTTLMin       int `mapstructure:"ID_TOKEN_TTL_MIN"`

	// AdminToken protects the admin API; empty disables it entirely.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`
	// SecureCookies forces the Secure attribute on session cookies even when
	// TLS terminates in front of the hub.
	SecureCookies bool `mapstructure:"SECURE_COOKIES"`
	// SigningKeyPath points at a PEM RSA key for ID tokens; empty generates
	// an ephemeral dev key at startup.
	SigningKeyPath string `mapstructure:"SIGNING_KEY_PATH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Bootstrap provider credentials, seeded into the store at startup when
	// no registration exists yet for the provider.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`

	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`

	BcryptCost int `mapstructure:"BCRYPT_COST"`
}

func (c *ServerConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSec) * time.Second
}

func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHour) * time.Hour
}

func (c *ServerConfig) IDTokenTTL() time.Duration {
	return time.Duration(c.IDTokenTTLMin) * time.Minute
}

// LoadConfig reads configuration from file, environment variables, and
// defaults, in increasing priority.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/authhub/")
	v.AddConfigPath("$HOME/.authhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("authhub")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authhub_dev")
	v.SetDefault("MONGO_DB_NAME", "authhub_dev")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CODE_TTL_SEC", 600)
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("SESSION_TTL_HOUR", 24)
	v.SetDefault("ID_TOKEN_TTL_MIN", 60)
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("SIGNING_KEY_PATH", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authhub")
	// Empty defaults so env-only values are picked up by Unmarshal.
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("FACEBOOK_CLIENT_ID", "")
	v.SetDefault("FACEBOOK_CLIENT_SECRET", "")
	v.SetDefault("BCRYPT_COST", 0)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env cover it. Anything
		// else (malformed file, permissions) is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
