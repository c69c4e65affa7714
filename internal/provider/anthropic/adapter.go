// Package anthropic provides an adapter for the Anthropic Messages API
// using the official SDK. It implements the domain.Provider interface,
// converting Messages stream events to domain events without merging
// or reordering them.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	defaultMaxTokens = 4096

	// tokensPerStep sizes the output budget when the caller bounds the
	// number of tool steps, matching the request surface's maxSteps.
	tokensPerStep = 1000
)

// Provider implements the domain.Provider interface for Anthropic.
type Provider struct {
	client anthropic.Client
	name   string
	tools  []domain.ToolDefinition
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config Config, tools []domain.ToolDefinition) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: anthropic.NewClient(opts...),
		name:   "anthropic",
		tools:  tools,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Prefixes returns the model-name prefixes this provider serves.
func (p *Provider) Prefixes() []string {
	return []string{"claude"}
}

// pendingTool accumulates a streamed tool invocation: the start event
// carries id and name, delta events append partial JSON input.
type pendingTool struct {
	id    string
	name  string
	input strings.Builder
}

// Stream opens a streaming Messages request and converts SDK events to
// domain events. Cancelling ctx aborts the upstream connection.
func (p *Provider) Stream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API")

	stream := p.client.Messages.NewStreaming(ctx, p.toSDKParams(req))

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)
		defer logger.Debug("Anthropic stream completed")

		usage := domain.Usage{}
		var tool *pendingTool

		for stream.Next() {
			event := stream.Current()

			switch eventVariant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = eventVariant.Message.Usage.InputTokens
				usage.CachedPromptTokens = eventVariant.Message.Usage.CacheReadInputTokens

			case anthropic.ContentBlockStartEvent:
				if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					tool = &pendingTool{id: block.ID, name: block.Name}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					events <- domain.StreamEvent{
						Kind:  domain.EventText,
						Delta: deltaVariant.Text,
					}
				case anthropic.ThinkingDelta:
					events <- domain.StreamEvent{
						Kind:  domain.EventReasoning,
						Delta: deltaVariant.Thinking,
					}
				case anthropic.InputJSONDelta:
					if tool != nil {
						tool.input.WriteString(deltaVariant.PartialJSON)
					}
				}

			case anthropic.ContentBlockStopEvent:
				if tool != nil {
					events <- toolEvent(tool)
					tool = nil
				}

			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = eventVariant.Usage.OutputTokens

			case anthropic.MessageStopEvent:
				events <- domain.StreamEvent{Kind: domain.EventUsage, Usage: &usage}
			}
		}

		if err := stream.Err(); err != nil {
			events <- domain.StreamEvent{
				Kind:    domain.EventError,
				Message: "Anthropic stream error",
				Err:     fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err),
			}
			return
		}

		events <- domain.StreamEvent{Kind: domain.EventDone}
	}()

	return events, nil
}

func toolEvent(tool *pendingTool) domain.StreamEvent {
	args := json.RawMessage(tool.input.String())
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}

	return domain.StreamEvent{
		Kind: domain.EventToolCall,
		Tool: &domain.ToolCall{
			ID:        tool.id,
			Name:      tool.name,
			Arguments: args,
		},
	}
}

// toSDKParams converts a domain request to SDK MessageNewParams.
func (p *Provider) toSDKParams(req *domain.ChatRequest) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if len(p.tools) > 0 && req.MaxSteps > 0 {
		maxTokens = int64(req.MaxSteps) * tokensPerStep
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	if len(system) > 0 {
		params.System = system
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(p.tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, len(p.tools))
		for i, t := range p.tools {
			tool := anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters.Properties,
					Required:   t.Parameters.Required,
				},
			}
			tools[i] = anthropic.ToolUnionParam{OfTool: &tool}
		}
		params.Tools = tools
	}

	return params
}
