package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/observability"
	"github.com/davidbz/ember/internal/relay"
)

const (
	defaultModel       = "claude-3-5-sonnet-20241022"
	defaultTemperature = 0.2
)

// Handler handles HTTP requests.
type Handler struct {
	relay *relay.Service
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(relaySvc *relay.Service) *Handler {
	return &Handler{
		relay: relaySvc,
	}
}

type errorBody struct {
	Error   bool   `json:"error"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   true,
		Type:    kind,
		Message: message,
	})
}

// bearerToken extracts the credential from the Authorization header,
// with or without the Bearer prefix.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return auth
}

// HandleChat processes metered streaming chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	ctx = observability.WithModel(ctx, req.Model)

	logger := observability.FromContext(ctx)
	logger.Info("chat request received",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
	)

	events, err := h.relay.Chat(ctx, &req, bearerToken(r))
	if err != nil {
		h.writeChatError(ctx, w, err)
		return
	}

	h.streamEvents(ctx, w, events)
}

// writeChatError maps pre-stream relay failures to HTTP responses.
// These all occur before any upstream call, so a plain JSON body is
// still possible.
func (h *Handler) writeChatError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx)

	switch {
	case errors.Is(err, domain.ErrInsufficientCredit):
		logger.Warn("request rejected at preflight", zap.Error(err))
		writeError(w, http.StatusPaymentRequired, "credits", "You are out of credits.")
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no usable identity")
	case errors.Is(err, domain.ErrUpstreamFailure):
		logger.Error("upstream request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream", err.Error())
	default:
		logger.Error("chat request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// streamEvents forwards relay events to the caller as SSE, one event
// per frame, preserving event boundaries.
func (h *Handler) streamEvents(ctx context.Context, w http.ResponseWriter, events <-chan domain.StreamEvent) {
	logger := observability.FromContext(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to encode event", zap.Error(err))
			continue
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		if event.Kind == domain.EventError {
			logger.Error("stream terminated with error", zap.Error(event.Err))
			return
		}
	}

	logger.Info("stream completed")
}

type creditsResponse struct {
	BalanceUSD    float64 `json:"balance_usd"`
	IsOutOfCredit bool    `json:"is_out_of_credit"`
}

// HandleCredits reports the caller's credit standing.
func (h *Handler) HandleCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	balance, out, err := h.relay.CreditStanding(ctx, r.URL.Query().Get("id"), bearerToken(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no usable identity")
			return
		}
		observability.FromContext(ctx).Error("credit standing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(creditsResponse{
		BalanceUSD:    balance.InexactFloat64(),
		IsOutOfCredit: out,
	})
}

// HandleRoot serves the health check at the bare root path and 404s
// everything else that fell through the mux.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.HandleHealth(w, r)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}
