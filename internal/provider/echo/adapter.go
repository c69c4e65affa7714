// Package echo provides a testing provider that echoes back input
// messages as a deterministic event stream. It implements the
// domain.Provider interface without making external API calls, which
// makes it useful for development and for exercising the relay's
// streaming and billing paths in tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	providerName = "echo"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name  string
	delay time.Duration
}

// NewProvider creates a new echo provider. No configuration is
// required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name:  providerName,
		delay: chunkDelay,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Prefixes returns the model-name prefixes this provider serves.
func (p *Provider) Prefixes() []string {
	return []string{"echo"}
}

// Stream echoes the request messages back one word at a time, then
// reports word-count usage and a done event.
func (p *Provider) Stream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	echoContent := buildEchoContent(req.Messages)

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		words := strings.Fields(echoContent)
		sent := 0

		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				return
			case events <- domain.StreamEvent{Kind: domain.EventText, Delta: delta}:
				sent++
				time.Sleep(p.delay)
			}
		}

		usage := &domain.Usage{
			PromptTokens:     int64(len(words)),
			CompletionTokens: int64(sent),
		}

		select {
		case events <- domain.StreamEvent{Kind: domain.EventUsage, Usage: usage}:
		case <-ctx.Done():
			return
		}

		select {
		case events <- domain.StreamEvent{Kind: domain.EventDone}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}
