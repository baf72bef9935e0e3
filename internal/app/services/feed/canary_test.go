package feed

import (
	"testing"
	"time"

	domain "github.com/spredd-labs/developer-api/internal/app/domain/feed"
)

func TestCanaryCurrent(t *testing.T) {
	gen := NewCanaryGenerator(time.Hour)

	c := gen.Current()
	if c.MarketID != domain.CanaryMarketID {
		t.Errorf("market ID = %s, want %s", c.MarketID, domain.CanaryMarketID)
	}
	if c.Platform != "canary" {
		t.Errorf("platform = %s, want canary", c.Platform)
	}
	if c.ExpectedPrice < 0.01 || c.ExpectedPrice > 0.99 {
		t.Errorf("price %v outside [0.01, 0.99]", c.ExpectedPrice)
	}
	if c.Outcomes["yes"] != c.ExpectedPrice {
		t.Errorf("yes outcome = %v, want expected price %v", c.Outcomes["yes"], c.ExpectedPrice)
	}
	sum := c.Outcomes["yes"] + c.Outcomes["no"]
	if sum < 0.9999 || sum > 1.0001 {
		t.Errorf("outcomes sum to %v, want 1", sum)
	}
}

func TestCanaryStableWithinInterval(t *testing.T) {
	gen := NewCanaryGenerator(time.Hour)

	first := gen.Current()
	second := gen.Current()
	if first.ExpectedPrice != second.ExpectedPrice {
		t.Error("canary rotated within its interval")
	}
	if first.InjectedAt != second.InjectedAt {
		t.Error("injected_at changed without rotation")
	}
}

func TestCanaryRotates(t *testing.T) {
	gen := NewCanaryGenerator(10 * time.Millisecond)
	prices := []float64{0.1234, 0.5678}
	i := 0
	gen.randomFn = func() float64 {
		v := prices[i%len(prices)]
		i++
		return v
	}

	first := gen.Current()
	time.Sleep(20 * time.Millisecond)
	second := gen.Current()

	if first.ExpectedPrice == second.ExpectedPrice {
		t.Error("canary did not rotate after its interval elapsed")
	}
}

func TestCanaryPriceRounding(t *testing.T) {
	gen := NewCanaryGenerator(time.Hour)
	gen.randomFn = func() float64 { return 0.123456789 }

	c := gen.Current()
	// 0.01 + 0.123456789*0.98 = 0.130988... rounds to 4 decimal places.
	if c.ExpectedPrice != 0.131 {
		t.Errorf("price = %v, want 0.131", c.ExpectedPrice)
	}
}
