package platforms

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
)

func TestBookQuote(t *testing.T) {
	info := Info{Slug: market.PlatformPolymarket, Chain: market.ChainPolygon}
	m := market.Market{YesPrice: 0.60, NoPrice: 0.40, HasPrices: true}

	book := market.OrderBook{
		Bids: []market.Level{{Price: 0.58, Size: 100}},
		Asks: []market.Level{{Price: 0.62, Size: 100}},
	}

	t.Run("buy crosses best ask", func(t *testing.T) {
		p := QuoteParams{MarketID: "m1", Outcome: market.OutcomeYes, Side: market.SideBuy, Amount: 62}
		q := bookQuote(info, m, book, p, "USDC", "tok", 50, 0.01)
		if q.PricePerToken != 0.62 {
			t.Errorf("price = %v, want 0.62", q.PricePerToken)
		}
		if math.Abs(q.ExpectedOutput-100) > 1e-9 {
			t.Errorf("output = %v, want 100", q.ExpectedOutput)
		}
		if math.Abs(q.PlatformFee-0.31) > 1e-9 {
			t.Errorf("fee = %v, want 0.31", q.PlatformFee)
		}
		if math.Abs(q.PriceImpact-0.04) > 1e-9 {
			t.Errorf("impact = %v, want spread 0.04", q.PriceImpact)
		}
	})

	t.Run("sell hits best bid", func(t *testing.T) {
		p := QuoteParams{MarketID: "m1", Outcome: market.OutcomeYes, Side: market.SideSell, Amount: 100}
		q := bookQuote(info, m, book, p, "tok", "USDC", 50, 0.01)
		if q.PricePerToken != 0.58 {
			t.Errorf("price = %v, want 0.58", q.PricePerToken)
		}
		if math.Abs(q.ExpectedOutput-58) > 1e-9 {
			t.Errorf("output = %v, want 58", q.ExpectedOutput)
		}
	})

	t.Run("empty book falls back to listed price", func(t *testing.T) {
		p := QuoteParams{Outcome: market.OutcomeNo, Side: market.SideBuy, Amount: 40}
		q := bookQuote(info, m, market.OrderBook{}, p, "USDC", "tok", 50, 0)
		if q.PricePerToken != 0.40 {
			t.Errorf("price = %v, want listed no price 0.40", q.PricePerToken)
		}
	})

	t.Run("no book and no listed price defaults to even odds", func(t *testing.T) {
		p := QuoteParams{Outcome: market.OutcomeYes, Side: market.SideSell, Amount: 10}
		q := bookQuote(info, market.Market{}, market.OrderBook{}, p, "tok", "USDC", 0, 0)
		if q.PricePerToken != 0.5 {
			t.Errorf("price = %v, want 0.5", q.PricePerToken)
		}
		if q.ExpectedOutput != 5 {
			t.Errorf("output = %v, want 5", q.ExpectedOutput)
		}
	})
}

func TestPage(t *testing.T) {
	markets := []market.Market{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	got := page(markets, 2, 1)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("page(2,1) = %v", got)
	}
	if got := page(markets, 10, 0); len(got) != 4 {
		t.Errorf("oversized limit returned %d markets", len(got))
	}
	if got := page(markets, 2, 10); got != nil {
		t.Errorf("offset past end returned %v", got)
	}
	if got := page(markets, 0, 0); len(got) != 4 {
		t.Errorf("zero limit should return all, got %d", len(got))
	}
}

func TestSearchByTitle(t *testing.T) {
	markets := []market.Market{
		{ID: "1", Title: "Will BTC hit 100k?"},
		{ID: "2", Title: "Fed rate decision", Description: "Bitcoin unaffected"},
		{ID: "3", Title: "Will ETH flip BTC?"},
	}

	got := searchByTitle(markets, "btc", 0)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}

	got = searchByTitle(markets, "bitcoin", 0)
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("description search = %v", got)
	}

	got = searchByTitle(markets, "btc", 1)
	if len(got) != 1 {
		t.Errorf("limit ignored, got %d", len(got))
	}
}

func TestMarketCache(t *testing.T) {
	c := newMarketCache(50 * time.Millisecond)

	if _, ok := c.get(); ok {
		t.Error("empty cache reported a hit")
	}

	c.put([]market.Market{{ID: "m1"}})
	if cached, ok := c.get(); !ok || len(cached) != 1 {
		t.Error("cache miss after put")
	}
	if m, ok := c.find("m1"); !ok || m.ID != "m1" {
		t.Error("find missed cached market")
	}
	if _, ok := c.find("m2"); ok {
		t.Error("find matched absent market")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.get(); ok {
		t.Error("cache hit after TTL expiry")
	}
}

func TestErrorPredicates(t *testing.T) {
	nf := notFoundError(market.PlatformKalshi, "mkt-9")
	if !IsNotFound(nf) {
		t.Error("IsNotFound false for not_found error")
	}
	if IsRateLimited(nf) || IsPrepareOnly(nf) {
		t.Error("code predicates overlap")
	}
	if nf.Error() != "[kalshi] market mkt-9 not found" {
		t.Errorf("message = %q", nf.Error())
	}

	rl := newError(market.PlatformOpinion, codeRateLimited, "rate limit exceeded")
	if !IsRateLimited(rl) {
		t.Error("IsRateLimited false for rate_limited error")
	}

	po := newError(market.PlatformMyriad, codePrepareOnly, "server-side execution unavailable")
	if !IsPrepareOnly(po) {
		t.Error("IsPrepareOnly false for prepare_only error")
	}

	if IsNotFound(nil) || IsNotFound(context.Canceled) {
		t.Error("predicates matched non-platform errors")
	}
}
