package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/ember/internal/provider/anthropic"
	"github.com/davidbz/ember/internal/provider/openai"
)

// Config represents the proxy configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Billing   BillingConfig
	Identity  IdentityConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int `env:"SERVER_PORT"         envDefault:"3010"`
	ReadTimeout int `env:"SERVER_READ_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,Origin"`
	ExposedHeaders   []string `env:"CORS_EXPOSED_HEADERS"   envSeparator:"," envDefault:"Content-Type"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"3600"`
}

// BillingConfig contains the ledger store and usage log settings.
type BillingConfig struct {
	// DatabaseURL points at the Postgres credit ledger. Empty falls
	// back to the in-memory store for local development.
	DatabaseURL string `env:"DATABASE_URL"`
}

// IdentityConfig contains identity resolution settings.
type IdentityConfig struct {
	// Mode is "permissive" (unauthenticated traffic degrades to the
	// anonymous placeholder) or "strict" (rejected).
	Mode      string `env:"IDENTITY_MODE" envDefault:"permissive"`
	JWTSecret string `env:"IDENTITY_JWT_SECRET"`
	RedisAddr string `env:"IDENTITY_REDIS_ADDR"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*BillingConfig
	*IdentityConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Billing,
		&cfg.Identity,
		&cfg.OpenAI,
		&cfg.Anthropic,
	}
}
