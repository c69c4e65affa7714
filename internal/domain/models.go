package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ChatRequest represents an inbound chat request.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxSteps    int       `json:"maxSteps,omitempty"`
	ID          string    `json:"id,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// EventKind tags a stream event.
type EventKind string

const (
	EventText      EventKind = "text"
	EventReasoning EventKind = "reasoning"
	EventToolCall  EventKind = "tool_call"
	EventUsage     EventKind = "usage"
	EventDone      EventKind = "done"
	EventError     EventKind = "error"
)

// StreamEvent represents a single incremental event from an upstream
// provider, forwarded to the caller in the exact order received.
type StreamEvent struct {
	Kind    EventKind `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	Tool    *ToolCall `json:"tool,omitempty"`
	Usage   *Usage    `json:"usage,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

// ToolCall represents a complete tool invocation emitted by a model.
type ToolCall struct {
	ID        string          `json:"toolCallId"`
	Name      string          `json:"toolName"`
	Arguments json.RawMessage `json:"args"`
}

// Usage tracks token consumption as reported by a provider.
type Usage struct {
	PromptTokens       int64 `json:"prompt_tokens"`
	CompletionTokens   int64 `json:"completion_tokens"`
	CachedPromptTokens int64 `json:"cached_prompt_tokens,omitempty"`
}

// UsageRecord is an append-only billing log entry. Write-once; never
// used to compute the live balance.
type UsageRecord struct {
	UserID       string
	RequestType  string
	Model        string
	TokensInput  int64
	TokensOutput int64
	CostUSD      decimal.Decimal
	CreatedAt    time.Time
}

// Request types recorded in the usage log.
const (
	RequestTypeChat        = "chat"
	RequestTypeCreditCheck = "credit-check"
)
