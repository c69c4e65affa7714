// Package openai provides an adapter for the OpenAI API using the
// official SDK. It implements the domain.Provider interface and
// converts between domain types and SDK types, forwarding stream
// events in the exact order the SDK yields them.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
	tools  []domain.ToolDefinition
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config, tools []domain.ToolDefinition) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
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
		client: openai.NewClient(opts...),
		name:   "openai",
		tools:  tools,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Prefixes returns the model-name prefixes this provider serves.
func (p *Provider) Prefixes() []string {
	return []string{"gpt-", "o1", "o3", "chatgpt-"}
}

// toolCallState accumulates a streamed tool call. The first chunk
// carries the id and function name; later chunks append argument
// fragments until the finish reason arrives.
type toolCallState struct {
	id        string
	name      string
	arguments strings.Builder
}

// Stream opens a streaming chat completion and converts SDK chunks to
// domain events. Cancelling ctx aborts the upstream connection.
func (p *Provider) Stream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	params := p.toSDKParams(req)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)
		defer logger.Debug("OpenAI stream completed")

		pending := make(map[int64]*toolCallState)

		for stream.Next() {
			chunk := stream.Current()

			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]

				if choice.Delta.Content != "" {
					events <- domain.StreamEvent{
						Kind:  domain.EventText,
						Delta: choice.Delta.Content,
					}
				}

				for _, tc := range choice.Delta.ToolCalls {
					state, ok := pending[tc.Index]
					if !ok {
						state = &toolCallState{}
						pending[tc.Index] = state
					}
					if tc.ID != "" {
						state.id = tc.ID
					}
					if tc.Function.Name != "" {
						state.name = tc.Function.Name
					}
					state.arguments.WriteString(tc.Function.Arguments)
				}

				if choice.FinishReason != "" {
					flushToolCalls(events, pending)
					pending = make(map[int64]*toolCallState)
				}
			}

			// Usage arrives on the final chunk when stream_options
			// requests it.
			if chunk.Usage.TotalTokens > 0 {
				events <- domain.StreamEvent{
					Kind: domain.EventUsage,
					Usage: &domain.Usage{
						PromptTokens:       chunk.Usage.PromptTokens,
						CompletionTokens:   chunk.Usage.CompletionTokens,
						CachedPromptTokens: chunk.Usage.PromptTokensDetails.CachedTokens,
					},
				}
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			events <- domain.StreamEvent{
				Kind:    domain.EventError,
				Message: "OpenAI stream error",
				Err:     fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err),
			}
			return
		}

		events <- domain.StreamEvent{Kind: domain.EventDone}
	}()

	return events, nil
}

// flushToolCalls emits accumulated tool calls once arguments are
// complete, in chunk index order.
func flushToolCalls(events chan<- domain.StreamEvent, pending map[int64]*toolCallState) {
	indexes := make([]int64, 0, len(pending))
	for i := range pending {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	for _, i := range indexes {
		state := pending[i]
		if state.name == "" {
			continue
		}

		args := json.RawMessage(state.arguments.String())
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}

		events <- domain.StreamEvent{
			Kind: domain.EventToolCall,
			Tool: &domain.ToolCall{
				ID:        state.id,
				Name:      state.name,
				Arguments: args,
			},
		}
	}
}

// toSDKParams converts a domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(req *domain.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case "user":
			messages[i] = openai.UserMessage(msg.Content)
		case "assistant":
			messages[i] = openai.AssistantMessage(msg.Content)
		case "system":
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			// Fallback to user message if role is unknown
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	// Reasoning models reject custom temperature and tools.
	reasoning := strings.HasPrefix(req.Model, "o1") || strings.HasPrefix(req.Model, "o3")

	if req.Temperature > 0 && !reasoning && !strings.HasPrefix(req.Model, "gpt-5") {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(p.tools) > 0 && !reasoning {
		tools := make([]openai.ChatCompletionToolParam, len(p.tools))
		for i, t := range p.tools {
			tools[i] = openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters: openai.FunctionParameters{
						"type":       t.Parameters.Type,
						"properties": t.Parameters.Properties,
						"required":   t.Parameters.Required,
					},
				},
			}
		}
		params.Tools = tools
	}

	return params
}
