// Package arbitrage scans for cross-platform price spreads on equivalent
// markets.
package arbitrage

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Opportunity is a buy-low sell-high pairing of the same market on two
// platforms, priced on the YES outcome.
type Opportunity struct {
	MarketTitle  string  `json:"market_title"`
	Outcome      string  `json:"outcome"`
	BuyPlatform  string  `json:"buy_platform"`
	BuyPrice     float64 `json:"buy_price"`
	SellPlatform string  `json:"sell_platform"`
	SellPrice    float64 `json:"sell_price"`
	Spread       float64 `json:"spread"`
	SpreadPct    float64 `json:"spread_pct"`
}

// Service scans the registry for arbitrage opportunities.
type Service struct {
	registry *platforms.Registry
	log      *logger.Logger
}

// New constructs the arbitrage service.
func New(registry *platforms.Registry, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("arbitrage")
	}
	return &Service{registry: registry, log: log}
}

// Scan matches markets across platforms by normalized title and reports YES
// price spreads of at least minSpread, widest first.
func (s *Service) Scan(ctx context.Context, minSpread float64, limit int) ([]Opportunity, error) {
	if minSpread <= 0 {
		minSpread = 0.02
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	grouped := make(map[string][]market.Market)
	for _, adapter := range s.registry.All() {
		found, err := adapter.Markets(ctx, platforms.ListOptions{Limit: 100, ActiveOnly: true})
		if err != nil {
			s.log.WithError(err).WithField("platform", adapter.Info().Slug).Warn("arbitrage scan skipping platform")
			continue
		}
		for _, m := range found {
			if m.HasPrices && m.YesPrice > 0 && m.Active {
				title := strings.ToLower(strings.TrimSpace(m.Title))
				grouped[title] = append(grouped[title], m)
			}
		}
	}

	var opportunities []Opportunity
	for _, group := range grouped {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				m1, m2 := group[i], group[j]
				if m1.Platform == m2.Platform {
					continue
				}

				buy, sell := m1, m2
				if m1.YesPrice > m2.YesPrice {
					buy, sell = m2, m1
				}
				spread := sell.YesPrice - buy.YesPrice
				if spread < minSpread {
					continue
				}

				avg := (m1.YesPrice + m2.YesPrice) / 2
				pct := 0.0
				if avg > 0 {
					pct = round2(spread / avg * 100)
				}
				opportunities = append(opportunities, Opportunity{
					MarketTitle:  m1.Title,
					Outcome:      "YES",
					BuyPlatform:  string(buy.Platform),
					BuyPrice:     buy.YesPrice,
					SellPlatform: string(sell.Platform),
					SellPrice:    sell.YesPrice,
					Spread:       round4(spread),
					SpreadPct:    pct,
				})
			}
		}
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].Spread > opportunities[j].Spread
	})
	if len(opportunities) > limit {
		opportunities = opportunities[:limit]
	}
	return opportunities, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
