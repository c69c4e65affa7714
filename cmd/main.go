package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/davidbz/ember/internal/config"
	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/http"
	"github.com/davidbz/ember/internal/http/middleware"
	"github.com/davidbz/ember/internal/identity"
	"github.com/davidbz/ember/internal/ledger"
	"github.com/davidbz/ember/internal/observability"
	"github.com/davidbz/ember/internal/provider/anthropic"
	"github.com/davidbz/ember/internal/provider/echo"
	"github.com/davidbz/ember/internal/provider/openai"
	"github.com/davidbz/ember/internal/provider/registry"
	"github.com/davidbz/ember/internal/relay"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

//nolint:funlen // Container wiring is a single linear sequence
func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor interface{}) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide dependency: %v", err)
		}
	}

	// Configuration
	provide(config.Load)
	provide(config.ParseDependenciesConfig)

	// Observability
	provide(observability.InitLogger)
	provide(observability.NewEventBus)
	provide(func(bus *observability.EventBus) domain.EventPublisher { return bus })

	// Ledger and usage log
	provide(func(cfg *config.BillingConfig) (domain.Ledger, domain.UsageLog, error) {
		if cfg.DatabaseURL == "" {
			// Local development fallback; balances live only in memory.
			store := ledger.NewMemoryStore()
			return store, store, nil
		}

		store, err := ledger.NewPostgresStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credit ledger: %w", err)
		}
		return store, store, nil
	})

	// Identity
	provide(func(cfg *config.IdentityConfig) domain.Resolver {
		var cache *identity.Cache
		if cfg.RedisAddr != "" {
			cache = identity.NewCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		}
		return identity.NewResolver(identity.Mode(cfg.Mode), []byte(cfg.JWTSecret), cache)
	})

	// Pricing and cost estimation
	provide(domain.DefaultPricingTable)
	provide(domain.NewCostEstimator)

	// Provider Registry
	provide(func() *registry.Registry {
		return registry.NewRegistry()
	})
	provide(func(reg *registry.Registry) domain.ProviderRegistry { return reg })

	// OpenAI Provider
	provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(*cfg, domain.DefaultTools())
	})

	// Anthropic Provider
	provide(func(cfg *anthropic.Config) (*anthropic.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return anthropic.NewProvider(*cfg, domain.DefaultTools())
	})

	// Echo is always available so local development works without keys.
	if err := container.Invoke(func(reg *registry.Registry) error {
		echoProvider := echo.NewProvider()
		if err := reg.Register(context.Background(), echoProvider); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
		reg.SetFallback(echoProvider.Name())
		return nil
	}); err != nil {
		log.Fatalf("Failed to register echo provider: %v", err)
	}

	// OpenAI registration (invoked for side effects)
	if err := container.Invoke(func(reg *registry.Registry, p *openai.Provider) error {
		return reg.Register(context.Background(), p)
	}); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register OpenAI provider: %v", err)
		}
	}

	// Anthropic registration (invoked for side effects)
	if err := container.Invoke(func(reg *registry.Registry, p *anthropic.Provider) error {
		if err := reg.Register(context.Background(), p); err != nil {
			return err
		}
		// Unknown model names route to the default model's vendor.
		reg.SetFallback(p.Name())
		return nil
	}); err != nil {
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register Anthropic provider: %v", err)
		}
	}

	// Relay
	provide(relay.NewService)

	// HTTP Layer
	provide(middleware.BuildMiddlewareChain)
	provide(http.NewHandler)
	provide(http.NewServer)

	return container
}
