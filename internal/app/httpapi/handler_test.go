package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/spredd-labs/developer-api/internal/app"
	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/app/services/auth"
	"github.com/spredd-labs/developer-api/internal/app/services/trading"
	"github.com/spredd-labs/developer-api/internal/config"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

type stubAdapter struct {
	slug    market.Platform
	chain   market.Chain
	markets []market.Market
}

func (a *stubAdapter) Info() platforms.Info {
	return platforms.Info{Slug: a.slug, Chain: a.chain, Name: string(a.slug)}
}
func (a *stubAdapter) Initialize(context.Context) error { return nil }
func (a *stubAdapter) Close() error                     { return nil }
func (a *stubAdapter) Markets(context.Context, platforms.ListOptions) ([]market.Market, error) {
	return a.markets, nil
}
func (a *stubAdapter) SearchMarkets(context.Context, string, int) ([]market.Market, error) {
	return a.markets, nil
}
func (a *stubAdapter) Market(_ context.Context, id string) (market.Market, error) {
	for _, m := range a.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return market.Market{}, &platforms.Error{Platform: a.slug, Code: "not_found", Message: "market " + id + " not found"}
}
func (a *stubAdapter) OrderBook(context.Context, string, market.Outcome) (market.OrderBook, error) {
	return market.OrderBook{Bids: []market.Level{{Price: 0.55, Size: 10}}, Asks: []market.Level{{Price: 0.6, Size: 10}}}, nil
}
func (a *stubAdapter) Quote(_ context.Context, p platforms.QuoteParams) (market.Quote, error) {
	return market.Quote{
		Platform:       a.slug,
		Chain:          a.chain,
		MarketID:       p.MarketID,
		Outcome:        p.Outcome,
		Side:           p.Side,
		InputAmount:    p.Amount,
		ExpectedOutput: p.Amount / 0.6,
		PricePerToken:  0.6,
	}, nil
}
func (a *stubAdapter) Prepare(ctx context.Context, p platforms.QuoteParams, _ string) ([]market.PreparedTx, market.Quote, error) {
	q, _ := a.Quote(ctx, p)
	return []market.PreparedTx{{To: "0xexchange", Data: "0x00", ChainID: 137}}, q, nil
}
func (a *stubAdapter) Execute(context.Context, market.Quote, string) (market.TradeResult, error) {
	return market.TradeResult{Success: true, TxHash: "0xhash", OutputAmount: 10}, nil
}

type testAPI struct {
	handler     http.Handler
	application *app.Application
	key         string
}

func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIWithConfig(t, config.Default())
}

func newTestAPIWithConfig(t *testing.T, cfg *config.Config) *testAPI {
	t.Helper()
	log := logger.NewDefault("httpapi-test")

	registry := platforms.NewRegistry(log, &stubAdapter{
		slug:  "polymarket",
		chain: market.ChainPolygon,
		markets: []market.Market{{
			Platform:  "polymarket",
			ID:        "mkt-1",
			Title:     "Test market",
			YesPrice:  0.6,
			NoPrice:   0.4,
			HasPrices: true,
			Active:    true,
		}},
	})

	application, err := app.New(cfg, app.Stores{}, registry, nil, log)
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	api := &testAPI{handler: NewHandler(application, log), application: application}

	acct := api.postJSON(t, "", "/v1/auth/signup", map[string]string{"email": "api@example.com"})
	created := api.postJSON(t, "", "/v1/auth/api-keys", map[string]string{
		"account_id": acct["account_id"].(string),
		"tier":       "pro",
	})
	api.key = created["api_key"].(string)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, key string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if key != "" {
		r.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

func (a *testAPI) postJSON(t *testing.T, key, path string, body interface{}) map[string]interface{} {
	t.Helper()
	data, _ := json.Marshal(body)
	w := a.do(t, http.MethodPost, path, key, data)
	if w.Code >= 300 {
		t.Fatalf("POST %s: status = %d, body = %s", path, w.Code, w.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("POST %s: invalid JSON response: %v", path, err)
	}
	return out
}

func (a *testAPI) getJSON(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	w := a.do(t, http.MethodGet, path, a.key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status = %d, body = %s", path, w.Code, w.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("GET %s: invalid JSON response: %v", path, err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSignupConflict(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(map[string]string{"email": "api@example.com"})
	w := api.do(t, http.MethodPost, "/v1/auth/signup", "", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/v1/markets", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated request status = %d, want 401", w.Code)
	}

	w = api.do(t, http.MethodGet, "/v1/markets", "sprdd_pk_bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus key status = %d, want 401", w.Code)
	}
}

func TestListMarkets(t *testing.T) {
	api := newTestAPI(t)

	out := api.getJSON(t, "/v1/markets?platform=polymarket")
	markets, ok := out["markets"].([]interface{})
	if !ok || len(markets) != 1 {
		t.Fatalf("unexpected markets payload: %v", out)
	}
	first := markets[0].(map[string]interface{})
	if first["market_id"] != "mkt-1" {
		t.Errorf("market_id = %v, want mkt-1", first["market_id"])
	}
	if first["yes_price"].(float64) != 0.6 {
		t.Errorf("yes_price = %v, want 0.6", first["yes_price"])
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/v1/markets/polymarket/missing", api.key, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	api := newTestAPI(t)

	out := api.postJSON(t, api.key, "/v1/trading/quote", map[string]interface{}{
		"platform":  "polymarket",
		"market_id": "mkt-1",
		"outcome":   "yes",
		"side":      "buy",
		"amount":    100,
	})
	if out["price_per_token"].(float64) != 0.6 {
		t.Errorf("price_per_token = %v, want 0.6", out["price_per_token"])
	}
	if out["fee_bps"].(float64) != 50 {
		t.Errorf("fee_bps = %v, want 50", out["fee_bps"])
	}
	if out["fee_amount"].(float64) != 0.5 {
		t.Errorf("fee_amount = %v, want 0.5", out["fee_amount"])
	}
}

func TestQuoteEndpoint_InvalidOutcome(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(map[string]interface{}{
		"platform":  "polymarket",
		"market_id": "mkt-1",
		"outcome":   "maybe",
		"side":      "buy",
		"amount":    100,
	})
	w := api.do(t, http.MethodPost, "/v1/trading/quote", api.key, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPrepareEndpoint(t *testing.T) {
	api := newTestAPI(t)

	out := api.postJSON(t, api.key, "/v1/trading/prepare", map[string]interface{}{
		"platform":       "polymarket",
		"market_id":      "mkt-1",
		"outcome":        "yes",
		"side":           "buy",
		"amount":         100,
		"wallet_address": "0xwallet",
	})
	txs, ok := out["transactions"].([]interface{})
	if !ok || len(txs) != 1 {
		t.Fatalf("unexpected transactions: %v", out)
	}
	if out["quote"] == nil {
		t.Error("prepare response missing quote")
	}
}

func TestExecuteEndpoint(t *testing.T) {
	api := newTestAPI(t)

	out := api.postJSON(t, api.key, "/v1/trading/execute", map[string]interface{}{
		"platform":       "polymarket",
		"market_id":      "mkt-1",
		"outcome":        "yes",
		"side":           "buy",
		"amount":         100,
		"wallet_address": "0xwallet",
		"private_key":    "pk",
	})
	if out["tx_hash"] != "0xhash" {
		t.Errorf("tx_hash = %v, want 0xhash", out["tx_hash"])
	}
	if out["status"] != "confirmed" {
		t.Errorf("status = %v, want confirmed", out["status"])
	}

	// The successful buy must now appear in positions.
	positions := api.getJSON(t, "/v1/positions")
	if positions["count"].(float64) != 1 {
		t.Errorf("positions count = %v, want 1", positions["count"])
	}
}

func TestUsageEndpoint(t *testing.T) {
	api := newTestAPI(t)

	api.getJSON(t, "/v1/markets")
	out := api.getJSON(t, "/v1/usage")
	if out["tier"] != "pro" {
		t.Errorf("tier = %v, want pro", out["tier"])
	}
	if out["usage"] == nil {
		t.Error("usage payload missing")
	}
}

func TestFeedMarkets(t *testing.T) {
	api := newTestAPI(t)

	out := api.getJSON(t, "/v1/feed/markets?platform=polymarket")
	if out["data_timestamp"] == nil {
		t.Error("feed envelope missing data_timestamp")
	}
	data, ok := out["data"].([]interface{})
	if !ok || len(data) != 2 {
		t.Fatalf("expected market plus canary, got %v", out["data"])
	}

	w := api.do(t, http.MethodGet, "/v1/feed/markets?platform=myriad", api.key, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("myriad on feed: status = %d, want 404", w.Code)
	}
}

func TestArbitrageEndpoint(t *testing.T) {
	api := newTestAPI(t)
	out := api.getJSON(t, "/v1/arbitrage")
	if out["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0 with a single platform", out["count"])
	}
}

func TestExecuteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"prepare only", &platforms.Error{Platform: "myriad", Code: "prepare_only", Message: "client-side signing required"}, http.StatusBadRequest},
		{"missing market", &platforms.Error{Platform: "polymarket", Code: "not_found", Message: "market gone"}, http.StatusNotFound},
		{"upstream failure", &platforms.Error{Platform: "kalshi", Message: "order endpoint returned 503"}, http.StatusInternalServerError},
		{"venue rejection", &trading.ExecutionError{Reason: "insufficient balance"}, http.StatusInternalServerError},
		{"client mistake", errors.New("wallet_address is required"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := executeErrorStatus(tc.err); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestErrorStatusInactiveAccount(t *testing.T) {
	err := fmt.Errorf("create key: %w", auth.ErrAccountInactive)
	if got := errorStatus(err); got != http.StatusForbidden {
		t.Errorf("status = %d, want 403", got)
	}
}
