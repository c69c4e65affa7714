package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
	emberhttp "github.com/davidbz/ember/internal/http"
	"github.com/davidbz/ember/internal/identity"
	"github.com/davidbz/ember/internal/ledger"
	"github.com/davidbz/ember/internal/provider/echo"
	"github.com/davidbz/ember/internal/provider/registry"
	"github.com/davidbz/ember/internal/relay"
)

// newTestHandler wires a handler over the echo provider, an in-memory
// ledger, and a permissive resolver, the same shape main assembles
// without a database.
func newTestHandler(t *testing.T) (*emberhttp.Handler, *relay.Service, *ledger.MemoryStore) {
	t.Helper()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(context.Background(), echo.NewProvider()))

	table := domain.NewPricingTable()
	table.Add("echo", domain.ModelPrice{
		Input:  decimal.NewFromFloat(1.0),
		Output: decimal.NewFromFloat(2.0),
	})

	store := ledger.NewMemoryStore()
	resolver := identity.NewResolver(identity.ModePermissive, nil, nil)

	svc := relay.NewService(resolver, reg, store, store, domain.NewCostEstimator(table), nil)
	return emberhttp.NewHandler(svc), svc, store
}

type sseEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()

	var events []sseEvent
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event sseEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		events = append(events, event)
	}
	return events
}

func TestHandleChat_StreamsAndBills(t *testing.T) {
	handler, svc, store := newTestHandler(t)
	store.SetBalance(identity.AnonymousUserID, decimal.RequireFromString("5.000000"))

	body := `{"model":"echo-1","messages":[{"role":"user","content":"hello world"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.HandleChat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	require.Equal(t, "done", events[len(events)-1].Type)

	var echoed strings.Builder
	for _, event := range events {
		if event.Type == "text" {
			echoed.WriteString(event.Delta)
		}
	}
	require.Contains(t, echoed.String(), "[user]: hello world")

	svc.Drain()

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, domain.RequestTypeChat, records[0].RequestType)
	require.True(t, records[0].CostUSD.IsPositive())

	balance, err := store.GetBalance(context.Background(), identity.AnonymousUserID)
	require.NoError(t, err)
	require.True(t, balance.LessThan(decimal.RequireFromString("5.000000")))
}

func TestHandleChat_OutOfCredits(t *testing.T) {
	handler, _, store := newTestHandler(t)
	store.SetBalance(identity.AnonymousUserID, decimal.Zero)

	body := `{"model":"echo-1","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.HandleChat(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var errBody struct {
		Error   bool   `json:"error"`
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	require.True(t, errBody.Error)
	require.Equal(t, "credits", errBody.Type)
	require.Equal(t, "You are out of credits.", errBody.Message)
}

func TestHandleChat_Rejections(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no messages", func(t *testing.T) {
		handler, _, store := newTestHandler(t)
		store.SetBalance(identity.AnonymousUserID, decimal.NewFromInt(5))

		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"model":"echo-1"}`))
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/chat", nil)
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleCredits(t *testing.T) {
	t.Run("reports standing", func(t *testing.T) {
		handler, svc, store := newTestHandler(t)
		store.SetBalance(identity.AnonymousUserID, decimal.RequireFromString("2.500000"))

		req := httptest.NewRequest(http.MethodGet, "/credits", nil)
		rec := httptest.NewRecorder()

		handler.HandleCredits(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			BalanceUSD    float64 `json:"balance_usd"`
			IsOutOfCredit bool    `json:"is_out_of_credit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.InDelta(t, 2.5, resp.BalanceUSD, 1e-9)
		require.False(t, resp.IsOutOfCredit)

		svc.Drain()
	})

	t.Run("unknown caller reads as out of credit", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/credits", nil)
		rec := httptest.NewRecorder()

		handler.HandleCredits(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			BalanceUSD    float64 `json:"balance_usd"`
			IsOutOfCredit bool    `json:"is_out_of_credit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Zero(t, resp.BalanceUSD)
		require.True(t, resp.IsOutOfCredit)
	})

	t.Run("wrong method", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/credits", nil)
		rec := httptest.NewRecorder()

		handler.HandleCredits(rec, req)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleRoot(t *testing.T) {
	t.Run("root serves health", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.HandleRoot(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "healthy", resp["status"])
	})

	t.Run("unknown path is not found", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/nope", nil)
		rec := httptest.NewRecorder()

		handler.HandleRoot(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp["status"])
}
