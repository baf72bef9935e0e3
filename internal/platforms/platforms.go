// Package platforms contains the adapters that normalize each prediction
// market venue behind a single interface.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
)

// Info describes a platform adapter.
type Info struct {
	Slug               market.Platform `json:"slug"`
	Chain              market.Chain    `json:"chain"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	CollateralSymbol   string          `json:"collateral"`
	CollateralDecimals int             `json:"-"`
}

// ListOptions narrows market listings.
type ListOptions struct {
	Limit      int
	Offset     int
	ActiveOnly bool
}

// QuoteParams identify the trade to price.
type QuoteParams struct {
	MarketID string
	Outcome  market.Outcome
	Side     market.Side
	Amount   float64
}

// Adapter is implemented by every platform integration.
type Adapter interface {
	Info() Info
	Initialize(ctx context.Context) error
	Close() error

	Markets(ctx context.Context, opts ListOptions) ([]market.Market, error)
	SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error)
	Market(ctx context.Context, marketID string) (market.Market, error)
	OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error)

	Quote(ctx context.Context, p QuoteParams) (market.Quote, error)
	Prepare(ctx context.Context, p QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error)
	Execute(ctx context.Context, q market.Quote, privateKey string) (market.TradeResult, error)
}

// Error is a platform-scoped failure with an optional machine-readable code.
type Error struct {
	Platform market.Platform
	Code     string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Platform, e.Message)
}

const (
	codeRateLimited = "rate_limited"
	codeNotFound    = "not_found"
	codePrepareOnly = "prepare_only"
)

func newError(platform market.Platform, code, format string, args ...interface{}) *Error {
	return &Error{Platform: platform, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(platform market.Platform, marketID string) *Error {
	return newError(platform, codeNotFound, "market %s not found", marketID)
}

// IsNotFound reports whether err is a market-not-found platform error.
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == codeNotFound
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == codeRateLimited
}

// IsPrepareOnly reports whether the adapter cannot submit trades server-side.
func IsPrepareOnly(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == codePrepareOnly
}

// marketCache holds one platform's full market listing for a TTL window so
// repeated listing, search, and lookup calls do not hammer the upstream API.
type marketCache struct {
	mu      sync.Mutex
	markets []market.Market
	fetched time.Time
	ttl     time.Duration
}

func newMarketCache(ttl time.Duration) *marketCache {
	return &marketCache{ttl: ttl}
}

func (c *marketCache) get() ([]market.Market, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.markets) == 0 || time.Since(c.fetched) >= c.ttl {
		return nil, false
	}
	return c.markets, true
}

func (c *marketCache) put(markets []market.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = markets
	c.fetched = time.Now()
}

func (c *marketCache) find(marketID string) (market.Market, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.markets {
		if m.ID == marketID {
			return m, true
		}
	}
	return market.Market{}, false
}

func page(markets []market.Market, limit, offset int) []market.Market {
	if offset >= len(markets) {
		return nil
	}
	markets = markets[offset:]
	if limit > 0 && len(markets) > limit {
		markets = markets[:limit]
	}
	return markets
}

func searchByTitle(markets []market.Market, query string, limit int) []market.Market {
	q := strings.ToLower(query)
	var out []market.Market
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Title), q) ||
			(m.Description != "" && strings.Contains(strings.ToLower(m.Description), q)) {
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// bookQuote prices a trade off the order book with the listed market price as
// fallback: buys cross the ask, sells hit the bid.
func bookQuote(info Info, m market.Market, ob market.OrderBook, p QuoteParams, inputToken, outputToken string, feeBps int, networkFee float64) market.Quote {
	listed := m.YesPrice
	if p.Outcome == market.OutcomeNo {
		listed = m.NoPrice
	}

	var price, output float64
	if p.Side == market.SideBuy {
		if best, ok := ob.BestAsk(); ok {
			price = best
		} else if listed > 0 {
			price = listed
		} else {
			price = 0.5
		}
		if price > 0 {
			output = p.Amount / price
		}
	} else {
		if best, ok := ob.BestBid(); ok {
			price = best
		} else if listed > 0 {
			price = listed
		} else {
			price = 0.5
		}
		output = p.Amount * price
	}

	spread, _ := ob.Spread()

	return market.Quote{
		Platform:       info.Slug,
		Chain:          info.Chain,
		MarketID:       p.MarketID,
		Outcome:        p.Outcome,
		Side:           p.Side,
		InputToken:     inputToken,
		InputAmount:    p.Amount,
		OutputToken:    outputToken,
		ExpectedOutput: output,
		PricePerToken:  price,
		PriceImpact:    spread,
		PlatformFee:    p.Amount * float64(feeBps) / 10000,
		NetworkFee:     networkFee,
	}
}
