// Package markets aggregates market data across every registered platform.
package markets

import (
	"context"
	"fmt"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/app/metrics"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// ListParams narrow a cross-platform market listing.
type ListParams struct {
	Platform string
	Search   string
	Category string
	Active   bool
	Limit    int
	Offset   int
}

// Service serves aggregated market data from the platform registry.
type Service struct {
	registry *platforms.Registry
	log      *logger.Logger
}

// New constructs the markets service.
func New(registry *platforms.Registry, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("markets")
	}
	return &Service{registry: registry, log: log}
}

// Platforms lists the registered platform descriptors.
func (s *Service) Platforms() []platforms.Info {
	return s.registry.ListInfo()
}

// List fetches markets from one platform or all of them. Per-platform
// failures are logged and skipped so one flaky upstream does not empty the
// whole listing.
func (s *Service) List(ctx context.Context, params ListParams) ([]market.Market, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	var adapters []platforms.Adapter
	if params.Platform != "" {
		adapter, ok := s.registry.Get(params.Platform)
		if !ok {
			return nil, fmt.Errorf("platform %q not found", params.Platform)
		}
		adapters = []platforms.Adapter{adapter}
	} else {
		adapters = s.registry.All()
	}

	var results []market.Market
	for _, adapter := range adapters {
		var (
			found []market.Market
			err   error
		)
		if params.Search != "" {
			found, err = adapter.SearchMarkets(ctx, params.Search, params.Limit)
		} else {
			found, err = adapter.Markets(ctx, platforms.ListOptions{
				Limit:      params.Limit,
				Offset:     params.Offset,
				ActiveOnly: params.Active,
			})
		}
		metrics.RecordUpstreamRequest(string(adapter.Info().Slug), err)
		if err != nil {
			s.log.WithError(err).WithField("platform", adapter.Info().Slug).Warn("list markets failed")
			continue
		}
		results = append(results, found...)
	}

	if len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

// Get fetches a single market by platform and ID.
func (s *Service) Get(ctx context.Context, platform, marketID string) (market.Market, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return market.Market{}, fmt.Errorf("platform %q not found", platform)
	}
	m, err := adapter.Market(ctx, marketID)
	metrics.RecordUpstreamRequest(platform, err)
	return m, err
}

// OrderBook fetches one outcome's book for a market.
func (s *Service) OrderBook(ctx context.Context, platform, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return market.OrderBook{}, fmt.Errorf("platform %q not found", platform)
	}
	ob, err := adapter.OrderBook(ctx, marketID, outcome)
	metrics.RecordUpstreamRequest(platform, err)
	return ob, err
}
