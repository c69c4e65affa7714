package relay

import (
	"github.com/davidbz/ember/internal/domain"
)

// State is the lifecycle phase of one chat request.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StatePreflightCheck
	StateStreaming
	StateFinalizing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StatePreflightCheck:
		return "preflight_check"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Session is the transient per-request state owned by the relay. It
// lives for the duration of one request and is discarded after the
// post-stream billing write.
type Session struct {
	UserID string
	Model  string

	// Token counts estimated at request time, reconciled against what
	// was actually streamed.
	EstimatedInput  int64
	EstimatedOutput int64

	// Reported is the provider's usage summary, when one arrived
	// before the stream ended.
	Reported *domain.Usage

	// StreamedChars counts text delta bytes actually forwarded, used
	// to bound the output estimate when the stream ends early.
	StreamedChars int64

	state State
}

func (s *Session) setState(next State) {
	s.state = next
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// finalUsage returns the token counts used for billing: provider
// reported counts when available, otherwise the preflight estimate,
// with output bounded by what was actually observed on early exit.
func (s *Session) finalUsage() (inputTokens, outputTokens int64) {
	if s.Reported != nil {
		return s.Reported.PromptTokens, s.Reported.CompletionTokens
	}

	inputTokens = s.EstimatedInput
	outputTokens = s.EstimatedOutput

	if s.StreamedChars > 0 {
		if observed := domain.EstimateTokensFromChars(s.StreamedChars); observed < outputTokens {
			outputTokens = observed
		}
	}

	return inputTokens, outputTokens
}
