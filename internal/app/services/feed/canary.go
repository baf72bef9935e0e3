package feed

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/feed"
)

// CanaryGenerator rotates a synthetic market on a fixed interval. Consumers
// that keep seeing the same canary price know their pipeline is stale.
type CanaryGenerator struct {
	interval time.Duration

	mu       sync.Mutex
	current  feed.Canary
	rotated  time.Time
	nowMs    func() int64
	randomFn func() float64
}

// NewCanaryGenerator creates a generator rotating every interval.
func NewCanaryGenerator(interval time.Duration) *CanaryGenerator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CanaryGenerator{
		interval: interval,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
		randomFn: rand.Float64,
	}
}

// Current returns the active canary, rotating it when due.
func (g *CanaryGenerator) Current() feed.Canary {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rotated.IsZero() || time.Since(g.rotated) >= g.interval {
		g.rotate()
	}
	return g.current
}

func (g *CanaryGenerator) rotate() {
	price := round4(0.01 + g.randomFn()*0.98)
	g.current = feed.Canary{
		MarketID:      feed.CanaryMarketID,
		Platform:      "canary",
		Title:         "Canary Staleness Check",
		Outcomes:      map[string]float64{"yes": price, "no": round4(1 - price)},
		ExpectedPrice: price,
		InjectedAt:    g.nowMs(),
	}
	g.rotated = time.Now()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
