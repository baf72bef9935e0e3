package feed

import (
	"context"
	"testing"
	"time"

	domain "github.com/spredd-labs/developer-api/internal/app/domain/feed"
	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

type stubAdapter struct {
	slug    market.Platform
	markets []market.Market
	book    market.OrderBook
}

func (a *stubAdapter) Info() platforms.Info             { return platforms.Info{Slug: a.slug} }
func (a *stubAdapter) Initialize(context.Context) error { return nil }
func (a *stubAdapter) Close() error                     { return nil }
func (a *stubAdapter) Markets(context.Context, platforms.ListOptions) ([]market.Market, error) {
	return a.markets, nil
}
func (a *stubAdapter) SearchMarkets(context.Context, string, int) ([]market.Market, error) {
	return nil, nil
}
func (a *stubAdapter) Market(_ context.Context, id string) (market.Market, error) {
	for _, m := range a.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return market.Market{}, &platforms.Error{Platform: a.slug, Code: "not_found", Message: "market not found"}
}
func (a *stubAdapter) OrderBook(context.Context, string, market.Outcome) (market.OrderBook, error) {
	return a.book, nil
}
func (a *stubAdapter) Quote(context.Context, platforms.QuoteParams) (market.Quote, error) {
	return market.Quote{}, nil
}
func (a *stubAdapter) Prepare(context.Context, platforms.QuoteParams, string) ([]market.PreparedTx, market.Quote, error) {
	return nil, market.Quote{}, nil
}
func (a *stubAdapter) Execute(context.Context, market.Quote, string) (market.TradeResult, error) {
	return market.TradeResult{}, nil
}

func feedMarket(platform market.Platform, id string) market.Market {
	return market.Market{
		Platform:  platform,
		ID:        id,
		Title:     "Test market " + id,
		YesPrice:  0.6,
		NoPrice:   0.4,
		HasPrices: true,
		Volume24h: 1000,
		Active:    true,
	}
}

func newTestFeed(adapters ...platforms.Adapter) *Service {
	log := logger.NewDefault("feed-test")
	registry := platforms.NewRegistry(log, adapters...)
	canary := NewCanaryGenerator(time.Hour)
	return New(registry, canary, true, nil, log)
}

func TestValidPlatform(t *testing.T) {
	for _, slug := range []string{"polymarket", "kalshi", "limitless", "opinion"} {
		if !ValidPlatform(slug) {
			t.Errorf("%s should be a feed platform", slug)
		}
	}
	// Myriad trades through the API but is excluded from the feed.
	if ValidPlatform("myriad") {
		t.Error("myriad should not be a feed platform")
	}
	if ValidPlatform("") {
		t.Error("empty slug should not be valid")
	}
}

func TestToOdds(t *testing.T) {
	m := feedMarket("polymarket", "mkt-1")
	odds := ToOdds(m)

	if odds.MarketID != "mkt-1" || odds.Platform != "polymarket" {
		t.Errorf("identity fields wrong: %+v", odds)
	}
	if odds.Outcomes["yes"] != 0.6 || odds.Outcomes["no"] != 0.4 {
		t.Errorf("outcomes = %v", odds.Outcomes)
	}
	if odds.Volume24h == nil || *odds.Volume24h != 1000 {
		t.Error("volume not carried over")
	}
	if odds.Liquidity != nil {
		t.Error("zero liquidity should serialize as null")
	}
	if odds.LastUpdated == 0 {
		t.Error("last_updated not set")
	}
}

func TestToOdds_NoPrices(t *testing.T) {
	m := feedMarket("kalshi", "mkt-2")
	m.HasPrices = false
	odds := ToOdds(m)
	if len(odds.Outcomes) != 0 {
		t.Errorf("outcomes should be empty without prices, got %v", odds.Outcomes)
	}
}

func TestToMetadata(t *testing.T) {
	m := feedMarket("polymarket", "mkt-3")
	m.Raw = map[string]interface{}{
		"resolved":          true,
		"winning_outcome":   "yes",
		"resolution_source": "UMA",
	}

	meta := ToMetadata(m)
	if meta.Status != "resolved" {
		t.Errorf("status = %s, want resolved", meta.Status)
	}
	if meta.ResolutionOutcome != "yes" {
		t.Errorf("resolution outcome = %s, want yes", meta.ResolutionOutcome)
	}
	if meta.ResolutionSource != "UMA" {
		t.Errorf("resolution source = %s, want UMA", meta.ResolutionSource)
	}

	m.Raw = nil
	meta = ToMetadata(m)
	if meta.Status != "active" {
		t.Errorf("status = %s, want active", meta.Status)
	}
	m.Active = false
	if got := ToMetadata(m).Status; got != "closed" {
		t.Errorf("status = %s, want closed", got)
	}
}

func TestToResolution(t *testing.T) {
	m := feedMarket("opinion", "mkt-4")
	m.Raw = map[string]interface{}{
		"is_resolved":          true,
		"resolution":           "no",
		"resolution_timestamp": float64(1700000000000),
	}

	res := ToResolution(m)
	if !res.Resolved {
		t.Error("expected resolved")
	}
	if res.WinningOutcome != "no" {
		t.Errorf("winning outcome = %s, want no", res.WinningOutcome)
	}
	if res.ResolutionTimestamp == nil || *res.ResolutionTimestamp != 1700000000000 {
		t.Error("resolution timestamp not extracted")
	}
}

func TestToOrderBook(t *testing.T) {
	ob := market.OrderBook{
		MarketID: "mkt-5",
		Outcome:  market.OutcomeYes,
		Bids:     []market.Level{{Price: 0.55, Size: 100}},
		Asks:     []market.Level{{Price: 0.60, Size: 50}},
	}
	converted := ToOrderBook(ob, "limitless")
	if converted.Platform != "limitless" {
		t.Errorf("platform = %s", converted.Platform)
	}
	if len(converted.Bids) != 1 || converted.Bids[0].Quantity != 100 {
		t.Errorf("bids = %+v", converted.Bids)
	}
	if len(converted.Asks) != 1 || converted.Asks[0].Price != 0.60 {
		t.Errorf("asks = %+v", converted.Asks)
	}
}

func TestList_AppendsCanary(t *testing.T) {
	svc := newTestFeed(&stubAdapter{slug: "polymarket", markets: []market.Market{feedMarket("polymarket", "mkt-1")}})

	odds, err := svc.List(context.Background(), ListParams{Platform: "polymarket", Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var hasCanary bool
	for _, o := range odds {
		if o.MarketID == domain.CanaryMarketID {
			hasCanary = true
		}
	}
	if !hasCanary {
		t.Error("listing missing canary market")
	}
}

func TestSync_NoCanary(t *testing.T) {
	svc := newTestFeed(&stubAdapter{slug: "polymarket", markets: []market.Market{feedMarket("polymarket", "mkt-1")}})

	odds, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	for _, o := range odds {
		if o.MarketID == domain.CanaryMarketID {
			t.Fatal("Sync must not embed the canary; WithCanary appends it")
		}
	}

	withCanary := svc.WithCanary(odds)
	if len(withCanary) != len(odds)+1 {
		t.Errorf("WithCanary added %d entries, want 1", len(withCanary)-len(odds))
	}
}

func TestStatus(t *testing.T) {
	svc := newTestFeed(&stubAdapter{slug: "polymarket", markets: []market.Market{feedMarket("polymarket", "mkt-1")}})

	statuses := svc.Status(context.Background())
	if len(statuses) != len(Platforms) {
		t.Fatalf("got %d statuses, want %d", len(statuses), len(Platforms))
	}
	for _, st := range statuses {
		if st.Platform == "polymarket" && !st.Healthy {
			t.Error("registered platform should report healthy")
		}
		if st.Platform == "kalshi" && st.Healthy {
			t.Error("unregistered platform should report unhealthy")
		}
	}
}

func TestEnvelope(t *testing.T) {
	env := Envelope([]string{"a"})
	if env.DataTimestamp == 0 {
		t.Error("data_timestamp not set")
	}
	if env.Data == nil {
		t.Error("data not set")
	}
}
