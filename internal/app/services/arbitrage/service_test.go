package arbitrage

import (
	"context"
	"testing"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

type listAdapter struct {
	slug    market.Platform
	markets []market.Market
}

func (a *listAdapter) Info() platforms.Info             { return platforms.Info{Slug: a.slug} }
func (a *listAdapter) Initialize(context.Context) error { return nil }
func (a *listAdapter) Close() error                     { return nil }
func (a *listAdapter) Markets(context.Context, platforms.ListOptions) ([]market.Market, error) {
	return a.markets, nil
}
func (a *listAdapter) SearchMarkets(context.Context, string, int) ([]market.Market, error) {
	return nil, nil
}
func (a *listAdapter) Market(context.Context, string) (market.Market, error) {
	return market.Market{}, nil
}
func (a *listAdapter) OrderBook(context.Context, string, market.Outcome) (market.OrderBook, error) {
	return market.OrderBook{}, nil
}
func (a *listAdapter) Quote(context.Context, platforms.QuoteParams) (market.Quote, error) {
	return market.Quote{}, nil
}
func (a *listAdapter) Prepare(context.Context, platforms.QuoteParams, string) ([]market.PreparedTx, market.Quote, error) {
	return nil, market.Quote{}, nil
}
func (a *listAdapter) Execute(context.Context, market.Quote, string) (market.TradeResult, error) {
	return market.TradeResult{}, nil
}

func activeMarket(platform market.Platform, title string, yesPrice float64) market.Market {
	return market.Market{
		Platform:  platform,
		ID:        string(platform) + "-" + title,
		Title:     title,
		YesPrice:  yesPrice,
		NoPrice:   1 - yesPrice,
		HasPrices: true,
		Active:    true,
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	log := logger.NewDefault("arbitrage-test")

	registry := platforms.NewRegistry(log,
		&listAdapter{slug: "polymarket", markets: []market.Market{
			activeMarket("polymarket", "Fed cuts rates in September", 0.40),
			activeMarket("polymarket", "BTC above 100k by year end", 0.70),
		}},
		&listAdapter{slug: "kalshi", markets: []market.Market{
			activeMarket("kalshi", "Fed cuts rates in September ", 0.48),
			activeMarket("kalshi", "BTC above 100k by year end", 0.71),
		}},
	)
	svc := New(registry, log)

	opps, err := svc.Scan(ctx, 0.02, 20)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	// The BTC pair spreads only 0.01 and must be filtered out.
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1: %+v", len(opps), opps)
	}

	opp := opps[0]
	if opp.BuyPlatform != "polymarket" || opp.SellPlatform != "kalshi" {
		t.Errorf("direction = buy %s / sell %s, want buy polymarket / sell kalshi", opp.BuyPlatform, opp.SellPlatform)
	}
	if opp.Spread != 0.08 {
		t.Errorf("spread = %v, want 0.08", opp.Spread)
	}
	if opp.Outcome != "YES" {
		t.Errorf("outcome = %s, want YES", opp.Outcome)
	}
	if opp.SpreadPct != 18.18 {
		t.Errorf("spread pct = %v, want 18.18", opp.SpreadPct)
	}
}

func TestScan_SamePlatformIgnored(t *testing.T) {
	ctx := context.Background()
	log := logger.NewDefault("arbitrage-test")

	registry := platforms.NewRegistry(log,
		&listAdapter{slug: "polymarket", markets: []market.Market{
			activeMarket("polymarket", "duplicate listing", 0.30),
			activeMarket("polymarket", "duplicate listing", 0.60),
		}},
	)
	svc := New(registry, log)

	opps, err := svc.Scan(ctx, 0.02, 20)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 0 {
		t.Errorf("same-platform pair should not be an opportunity, got %+v", opps)
	}
}

func TestScan_SortedBySpread(t *testing.T) {
	ctx := context.Background()
	log := logger.NewDefault("arbitrage-test")

	registry := platforms.NewRegistry(log,
		&listAdapter{slug: "polymarket", markets: []market.Market{
			activeMarket("polymarket", "market a", 0.40),
			activeMarket("polymarket", "market b", 0.40),
		}},
		&listAdapter{slug: "limitless", markets: []market.Market{
			activeMarket("limitless", "market a", 0.45),
			activeMarket("limitless", "market b", 0.55),
		}},
	)
	svc := New(registry, log)

	opps, err := svc.Scan(ctx, 0.02, 20)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].Spread < opps[1].Spread {
		t.Error("opportunities not sorted widest first")
	}
}
