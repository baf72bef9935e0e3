package platforms

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/config"
)

const gammaEvents = `[
  {
    "id": "evt-1",
    "slug": "btc-100k",
    "title": "Will BTC hit 100k in 2026?",
    "description": "Resolves yes if BTC trades at 100000.",
    "volume": 50000,
    "liquidity": 12000,
    "tags": [{"label": "Crypto"}],
    "markets": [
      {
        "conditionId": "0xcond1",
        "active": true,
        "closed": false,
        "endDate": "2026-12-31T00:00:00Z",
        "outcomePrices": "[\"0.62\", \"0.38\"]",
        "clobTokenIds": "[\"tok-yes\", \"tok-no\"]"
      }
    ]
  },
  {
    "id": "evt-2",
    "slug": "election-winner",
    "title": "Election winner",
    "markets": [
      {"conditionId": "0xa", "groupItemTitle": "Candidate A", "active": false, "closed": true},
      {"conditionId": "0xb", "groupItemTitle": "Candidate B", "active": true, "closed": false, "lastTradePrice": 0.3}
    ]
  }
]`

func newTestPolymarket(t *testing.T, clobHandler http.HandlerFunc) *Polymarket {
	t.Helper()

	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(gammaEvents))
	}))
	t.Cleanup(gamma.Close)

	if clobHandler == nil {
		clobHandler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"bids": []map[string]string{{"price": "0.58", "size": "100"}, {"price": "0.60", "size": "50"}},
				"asks": []map[string]string{{"price": "0.65", "size": "30"}, {"price": "0.63", "size": "80"}},
			})
		}
	}
	clob := httptest.NewServer(clobHandler)
	t.Cleanup(clob.Close)

	p := NewPolymarket(config.PolymarketConfig{CLOBURL: clob.URL, GammaURL: gamma.URL}, config.FeeConfig{EVMFeeBps: 50})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPolymarketMarkets(t *testing.T) {
	p := newTestPolymarket(t, nil)

	markets, err := p.Markets(context.Background(), ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("markets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}

	m := markets[0]
	if m.ID != "0xcond1" {
		t.Errorf("id = %q, want conditionId", m.ID)
	}
	if m.Title != "Will BTC hit 100k in 2026?" {
		t.Errorf("title = %q", m.Title)
	}
	if !m.HasPrices || m.YesPrice != 0.62 || m.NoPrice != 0.38 {
		t.Errorf("prices = %v/%v (has=%v)", m.YesPrice, m.NoPrice, m.HasPrices)
	}
	if m.YesToken != "tok-yes" || m.NoToken != "tok-no" {
		t.Errorf("tokens = %q/%q", m.YesToken, m.NoToken)
	}
	if m.Category != "Crypto" {
		t.Errorf("category = %q", m.Category)
	}
	if !m.Active {
		t.Error("market should be active")
	}
	if m.URL != "https://polymarket.com/event/btc-100k" {
		t.Errorf("url = %q", m.URL)
	}

	// Multi-outcome event: the first open sub-market is selected and prices
	// derive from lastTradePrice.
	multi := markets[1]
	if multi.ID != "0xb" {
		t.Errorf("multi id = %q, want open sub-market", multi.ID)
	}
	if !multi.MultiOutcome || multi.OutcomeName != "Candidate B" || multi.RelatedMarketCount != 2 {
		t.Errorf("multi flags = %+v", multi)
	}
	if !multi.HasPrices || multi.YesPrice != 0.3 || math.Abs(multi.NoPrice-0.7) > 1e-9 {
		t.Errorf("multi prices = %v/%v", multi.YesPrice, multi.NoPrice)
	}
}

func TestPolymarketMarketNotFound(t *testing.T) {
	p := newTestPolymarket(t, nil)

	_, err := p.Market(context.Background(), "0xmissing")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestPolymarketOrderBook(t *testing.T) {
	p := newTestPolymarket(t, nil)

	ob, err := p.OrderBook(context.Background(), "0xcond1", market.OutcomeYes)
	if err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	// Bids sort descending, asks ascending regardless of upstream order.
	if best, _ := ob.BestBid(); best != 0.60 {
		t.Errorf("best bid = %v, want 0.60", best)
	}
	if best, _ := ob.BestAsk(); best != 0.63 {
		t.Errorf("best ask = %v, want 0.63", best)
	}
}

func TestPolymarketQuote(t *testing.T) {
	p := newTestPolymarket(t, nil)

	q, err := p.Quote(context.Background(), QuoteParams{
		MarketID: "0xcond1",
		Outcome:  market.OutcomeYes,
		Side:     market.SideBuy,
		Amount:   63,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.PricePerToken != 0.63 {
		t.Errorf("price = %v, want best ask 0.63", q.PricePerToken)
	}
	if math.Abs(q.ExpectedOutput-100) > 1e-9 {
		t.Errorf("output = %v, want 100", q.ExpectedOutput)
	}
	if q.InputToken != usdcPolygon || q.OutputToken != "tok-yes" {
		t.Errorf("tokens = %q -> %q", q.InputToken, q.OutputToken)
	}
	if math.Abs(q.PlatformFee-0.315) > 1e-9 {
		t.Errorf("fee = %v, want 0.315", q.PlatformFee)
	}
	if q.Data["token_id"] != "tok-yes" {
		t.Errorf("data token_id = %v", q.Data["token_id"])
	}
}

func TestPolymarketPrepare(t *testing.T) {
	p := newTestPolymarket(t, nil)

	txs, q, err := p.Prepare(context.Background(), QuoteParams{
		MarketID: "0xcond1",
		Outcome:  market.OutcomeYes,
		Side:     market.SideBuy,
		Amount:   10,
	}, "0xwallet")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d txs, want approval + trade", len(txs))
	}
	if txs[0].To != usdcPolygon {
		t.Errorf("first tx to = %q, want USDC approval", txs[0].To)
	}
	if txs[0].ChainID != polygonChainID || txs[1].ChainID != polygonChainID {
		t.Error("txs not on Polygon")
	}
	if q.MarketID != "0xcond1" {
		t.Errorf("quote market = %q", q.MarketID)
	}
}

func TestERC20ApproveCalldata(t *testing.T) {
	data := erc20ApproveCalldata("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", big.NewInt(1000000))
	if len(data) != 2+8+64+64 {
		t.Fatalf("calldata length = %d", len(data))
	}
	if data[:10] != "0x095ea7b3" {
		t.Errorf("selector = %q", data[:10])
	}
	if data[len(data)-6:] != "0f4240" {
		t.Errorf("amount word tail = %q, want hex 1000000", data[len(data)-6:])
	}
}
