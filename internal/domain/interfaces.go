package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider represents any upstream LLM vendor.
type Provider interface {
	// Stream opens an upstream connection and returns a channel of
	// incremental events. The channel is closed when the stream ends;
	// cancelling ctx aborts the upstream connection.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)

	// Name returns the provider identifier.
	Name() string

	// Prefixes returns the model-name prefixes this provider serves.
	Prefixes() []string
}

// ProviderRegistry selects a provider by model-name prefix.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// ForModel returns the provider whose prefix matches the model.
	ForModel(ctx context.Context, model string) (Provider, error)

	// List returns all registered provider names.
	List(ctx context.Context) ([]string, error)
}

// Ledger owns the per-user credit balance in a durable store.
type Ledger interface {
	// GetBalance reads the current balance. Returns ErrUserNotFound
	// when no row exists.
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Decrement atomically subtracts amount from the stored balance.
	// The balance may go negative; enforcement happens at preflight,
	// not here. Returns ErrInvalidUsage for negative amounts.
	Decrement(ctx context.Context, userID string, amount decimal.Decimal) error
}

// UsageLog appends billing records, best-effort.
type UsageLog interface {
	AppendUsageRecord(ctx context.Context, rec *UsageRecord) error
}

// Resolver maps inbound credentials to a stable user identifier.
type Resolver interface {
	// Resolve returns a user ID given an explicit id from the request
	// body and the bearer credential, either of which may be empty.
	Resolve(ctx context.Context, explicitID, bearer string) (string, error)
}

// EventPublisher publishes operator-facing events.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
