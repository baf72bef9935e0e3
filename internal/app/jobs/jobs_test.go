package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

type listCountingAdapter struct {
	slug  market.Platform
	lists atomic.Int64
}

func (a *listCountingAdapter) Info() platforms.Info             { return platforms.Info{Slug: a.slug} }
func (a *listCountingAdapter) Initialize(context.Context) error { return nil }
func (a *listCountingAdapter) Close() error                     { return nil }

func (a *listCountingAdapter) Markets(context.Context, platforms.ListOptions) ([]market.Market, error) {
	a.lists.Add(1)
	return []market.Market{{ID: "m1", Platform: a.slug}}, nil
}
func (a *listCountingAdapter) SearchMarkets(context.Context, string, int) ([]market.Market, error) {
	return nil, nil
}
func (a *listCountingAdapter) Market(context.Context, string) (market.Market, error) {
	return market.Market{}, nil
}
func (a *listCountingAdapter) OrderBook(context.Context, string, market.Outcome) (market.OrderBook, error) {
	return market.OrderBook{}, nil
}
func (a *listCountingAdapter) Quote(context.Context, platforms.QuoteParams) (market.Quote, error) {
	return market.Quote{}, nil
}
func (a *listCountingAdapter) Prepare(context.Context, platforms.QuoteParams, string) ([]market.PreparedTx, market.Quote, error) {
	return nil, market.Quote{}, nil
}
func (a *listCountingAdapter) Execute(context.Context, market.Quote, string) (market.TradeResult, error) {
	return market.TradeResult{}, nil
}

func TestRefreshMarketCachesListsEveryPlatform(t *testing.T) {
	poly := &listCountingAdapter{slug: "polymarket"}
	kalshi := &listCountingAdapter{slug: "kalshi"}
	registry := platforms.NewRegistry(logger.NewDefault("jobs-test"), poly, kalshi)

	s := NewScheduler(registry, nil, time.Minute, time.Second, nil)
	s.refreshMarketCaches(context.Background())

	if got := poly.lists.Load(); got != 1 {
		t.Errorf("polymarket listed %d times, want 1", got)
	}
	if got := kalshi.lists.Load(); got != 1 {
		t.Errorf("kalshi listed %d times, want 1", got)
	}
}

func TestSchedulerRunsListingRefresh(t *testing.T) {
	adapter := &listCountingAdapter{slug: "polymarket"}
	registry := platforms.NewRegistry(logger.NewDefault("jobs-test"), adapter)

	s := NewScheduler(registry, nil, 10*time.Millisecond, time.Second, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for adapter.lists.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if adapter.lists.Load() == 0 {
		t.Error("market listing refresh never ran")
	}
}
