package echo_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/provider/echo"
)

func TestProvider_Stream(t *testing.T) {
	provider := echo.NewProvider()
	require.Equal(t, "echo", provider.Name())
	require.Contains(t, provider.Prefixes(), "echo")

	req := &domain.ChatRequest{
		Model: "echo-1",
		Messages: []domain.Message{
			{Role: "user", Content: "one two three"},
		},
	}

	events, err := provider.Stream(context.Background(), req)
	require.NoError(t, err)

	var (
		text  strings.Builder
		usage *domain.Usage
		done  bool
	)
	for event := range events {
		switch event.Kind {
		case domain.EventText:
			text.WriteString(event.Delta)
		case domain.EventUsage:
			usage = event.Usage
		case domain.EventDone:
			done = true
		}
	}

	require.True(t, done)
	require.Contains(t, text.String(), "[user]: one two three")
	require.NotNil(t, usage)
	require.Equal(t, usage.PromptTokens, usage.CompletionTokens)
	require.Positive(t, usage.CompletionTokens)
}

func TestProvider_Stream_NilRequest(t *testing.T) {
	provider := echo.NewProvider()

	_, err := provider.Stream(context.Background(), nil)
	require.Error(t, err)
}

func TestProvider_Stream_Cancellation(t *testing.T) {
	provider := echo.NewProvider()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := provider.Stream(ctx, &domain.ChatRequest{
		Model: "echo-1",
		Messages: []domain.Message{
			{Role: "user", Content: strings.Repeat("word ", 200)},
		},
	})
	require.NoError(t, err)

	<-events
	cancel()

	// The stream must wind down instead of emitting all remaining
	// words.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
