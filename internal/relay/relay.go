// Package relay orchestrates metered chat requests: identity
// resolution, the preflight affordability check, upstream streaming,
// and post-stream billing.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
)

const (
	// finalizeTimeout bounds the detached billing write after the
	// client response has already completed.
	finalizeTimeout = 10 * time.Second
)

// Service is the streaming relay.
type Service struct {
	resolver  domain.Resolver
	registry  domain.ProviderRegistry
	ledger    domain.Ledger
	usageLog  domain.UsageLog
	estimator *domain.CostEstimator
	events    domain.EventPublisher

	billing sync.WaitGroup
}

// NewService creates a relay service (DI constructor).
func NewService(
	resolver domain.Resolver,
	registry domain.ProviderRegistry,
	ledger domain.Ledger,
	usageLog domain.UsageLog,
	estimator *domain.CostEstimator,
	events domain.EventPublisher,
) *Service {
	return &Service{
		resolver:  resolver,
		registry:  registry,
		ledger:    ledger,
		usageLog:  usageLog,
		estimator: estimator,
		events:    events,
	}
}

// Chat runs one metered chat request. On success it returns the event
// channel the transport forwards to the caller; billing happens after
// the channel closes, detached from the response lifecycle. Errors
// returned here occur before any upstream call and carry no side
// effects: ErrInvalidRequest, ErrUnauthenticated, ErrInsufficientCredit,
// or ErrUpstreamFailure when no provider serves the model.
func (s *Service) Chat(ctx context.Context, req *domain.ChatRequest, bearer string) (<-chan domain.StreamEvent, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidRequest)
	}
	if req.Model == "" {
		return nil, fmt.Errorf("%w: no model", domain.ErrInvalidRequest)
	}

	session := &Session{Model: req.Model}
	session.setState(StateAuthenticating)

	userID, err := s.resolver.Resolve(ctx, req.ID, bearer)
	if err != nil {
		session.setState(StateErrored)
		return nil, err
	}
	session.UserID = userID
	ctx = observability.WithUserID(ctx, userID)

	session.setState(StatePreflightCheck)
	if err := s.preflight(ctx, session); err != nil {
		session.setState(StateErrored)
		return nil, err
	}

	session.EstimatedInput, session.EstimatedOutput = domain.EstimateRequestTokens(req.Messages)

	provider, err := s.registry.ForModel(ctx, req.Model)
	if err != nil {
		session.setState(StateErrored)
		return nil, err
	}
	ctx = observability.WithProvider(ctx, provider.Name())

	upstream, err := provider.Stream(ctx, req)
	if err != nil {
		session.setState(StateErrored)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	session.setState(StateStreaming)

	out := make(chan domain.StreamEvent)
	go s.forward(ctx, session, upstream, out)

	return out, nil
}

// preflight reads the balance and rejects the request before any
// upstream provider call when the caller cannot be billed. A missing
// ledger row is insufficient funds, not a crash.
func (s *Service) preflight(ctx context.Context, session *Session) error {
	balance, err := s.ledger.GetBalance(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInsufficientCredit
		}
		return fmt.Errorf("preflight balance read failed: %w", err)
	}

	if balance.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInsufficientCredit
	}

	return nil
}

// forward re-emits upstream events to the caller in receipt order,
// observing usage along the way. When the upstream channel closes -
// completion, upstream error, or caller cancellation propagated via
// ctx - it closes the output and hands the session to finalize.
func (s *Service) forward(
	ctx context.Context,
	session *Session,
	upstream <-chan domain.StreamEvent,
	out chan<- domain.StreamEvent,
) {
	logger := observability.FromContext(ctx)

	for event := range upstream {
		switch event.Kind {
		case domain.EventText:
			session.StreamedChars += int64(len(event.Delta))
		case domain.EventUsage:
			if event.Usage != nil {
				reported := *event.Usage
				session.Reported = &reported
			}
		case domain.EventError:
			logger.Error("upstream stream error", zap.Error(event.Err))
		}

		select {
		case out <- event:
		case <-ctx.Done():
			// Caller went away; drain upstream so the provider
			// goroutine observes its own ctx cancellation and exits.
			go drain(upstream)
			s.finish(ctx, session, out)
			return
		}
	}

	s.finish(ctx, session, out)
}

func drain(events <-chan domain.StreamEvent) {
	for range events {
	}
}

func (s *Service) finish(ctx context.Context, session *Session, out chan<- domain.StreamEvent) {
	// Register the billing write before closing the channel: a caller
	// that drains the stream and immediately calls Drain must observe
	// this request's pending write.
	s.billing.Add(1)

	close(out)
	session.setState(StateFinalizing)

	// Detached from the response lifecycle: the HTTP response may be
	// fully sent and closed before this completes, and failures are
	// reported to the operator log only.
	go func() {
		defer s.billing.Done()
		s.finalize(context.WithoutCancel(ctx), session)
	}()
}

// finalize computes the final cost from whatever token usage is known,
// appends a usage record, and debits the ledger. Fire-and-forget:
// never retried, never surfaced to the caller.
func (s *Service) finalize(ctx context.Context, session *Session) {
	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	logger := observability.FromContext(ctx)

	inputTokens, outputTokens := session.finalUsage()

	var cachedTokens int64
	if session.Reported != nil {
		cachedTokens = session.Reported.CachedPromptTokens
	}

	cost, err := s.estimator.EstimateCost(session.Model, inputTokens, outputTokens, cachedTokens)
	if err != nil {
		logger.Error("final cost computation failed", zap.Error(err))
		session.setState(StateErrored)
		return
	}

	rec := &domain.UsageRecord{
		UserID:       session.UserID,
		RequestType:  domain.RequestTypeChat,
		Model:        session.Model,
		TokensInput:  inputTokens,
		TokensOutput: outputTokens,
		CostUSD:      cost,
		CreatedAt:    time.Now(),
	}

	if err := s.usageLog.AppendUsageRecord(ctx, rec); err != nil {
		logger.Error("usage record append failed",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrLedgerWrite, err)))
	}

	if err := s.ledger.Decrement(ctx, session.UserID, cost); err != nil {
		logger.Error("balance decrement failed",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrLedgerWrite, err)),
			zap.String("amount", cost.String()))
	} else if s.events != nil {
		s.events.Publish(ctx, "billing.debited", map[string]interface{}{
			"user_id":       session.UserID,
			"model":         session.Model,
			"tokens_input":  inputTokens,
			"tokens_output": outputTokens,
			"cost_usd":      cost.String(),
		})
	}

	session.setState(StateClosed)
}

// CreditStanding reports the caller's balance for the credits
// endpoint. A missing ledger row reads as zero balance rather than an
// error.
func (s *Service) CreditStanding(ctx context.Context, explicitID, bearer string) (decimal.Decimal, bool, error) {
	userID, err := s.resolver.Resolve(ctx, explicitID, bearer)
	if err != nil {
		return decimal.Zero, true, err
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return decimal.Zero, true, nil
		}
		return decimal.Zero, true, fmt.Errorf("balance read failed: %w", err)
	}

	s.billing.Add(1)
	go func() {
		defer s.billing.Done()
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()

		rec := &domain.UsageRecord{
			UserID:      userID,
			RequestType: domain.RequestTypeCreditCheck,
			CostUSD:     decimal.Zero,
			CreatedAt:   time.Now(),
		}
		if err := s.usageLog.AppendUsageRecord(checkCtx, rec); err != nil {
			observability.FromContext(checkCtx).Warn("credit check log failed", zap.Error(err))
		}
	}()

	return balance, balance.LessThanOrEqual(decimal.Zero), nil
}

// Drain blocks until all detached billing writes have completed. Used
// during shutdown and by tests.
func (s *Service) Drain() {
	s.billing.Wait()
}
