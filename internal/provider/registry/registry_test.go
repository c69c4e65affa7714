package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/provider/registry"
)

type stubProvider struct {
	name     string
	prefixes []string
}

func (p *stubProvider) Name() string       { return p.name }
func (p *stubProvider) Prefixes() []string { return p.prefixes }

func (p *stubProvider) Stream(_ context.Context, _ *domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	events := make(chan domain.StreamEvent)
	close(events)
	return events, nil
}

func TestRegistry_ForModel(t *testing.T) {
	ctx := context.Background()

	newRegistry := func(t *testing.T) *registry.Registry {
		t.Helper()
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "anthropic", prefixes: []string{"claude"}}))
		require.NoError(t, reg.Register(ctx, &stubProvider{name: "openai", prefixes: []string{"gpt-", "o1", "o3"}}))
		return reg
	}

	t.Run("dispatches by model prefix", func(t *testing.T) {
		reg := newRegistry(t)

		provider, err := reg.ForModel(ctx, "claude-3-5-sonnet-20241022")
		require.NoError(t, err)
		require.Equal(t, "anthropic", provider.Name())

		provider, err = reg.ForModel(ctx, "gpt-4o")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())

		provider, err = reg.ForModel(ctx, "o1-preview")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})

	t.Run("prefix match is case-insensitive", func(t *testing.T) {
		reg := newRegistry(t)

		provider, err := reg.ForModel(ctx, "Claude-3-5-Haiku")
		require.NoError(t, err)
		require.Equal(t, "anthropic", provider.Name())
	})

	t.Run("unknown model without fallback fails", func(t *testing.T) {
		reg := newRegistry(t)

		_, err := reg.ForModel(ctx, "gemini-2.5-pro")
		require.ErrorIs(t, err, domain.ErrUpstreamFailure)
	})

	t.Run("unknown model routes to fallback", func(t *testing.T) {
		reg := newRegistry(t)
		reg.SetFallback("anthropic")

		provider, err := reg.ForModel(ctx, "gemini-2.5-pro")
		require.NoError(t, err)
		require.Equal(t, "anthropic", provider.Name())
	})

	t.Run("empty model fails", func(t *testing.T) {
		reg := newRegistry(t)
		_, err := reg.ForModel(ctx, "")
		require.Error(t, err)
	})
}

func TestRegistry_Register(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewRegistry()

	require.NoError(t, reg.Register(ctx, &stubProvider{name: "echo", prefixes: []string{"echo"}}))

	t.Run("duplicate name is rejected", func(t *testing.T) {
		err := reg.Register(ctx, &stubProvider{name: "echo"})
		require.Error(t, err)
	})

	t.Run("nil provider is rejected", func(t *testing.T) {
		require.Error(t, reg.Register(ctx, nil))
	})

	t.Run("list returns registered names", func(t *testing.T) {
		names, err := reg.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"echo"}, names)
	})
}
