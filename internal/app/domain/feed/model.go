// Package feed defines the normalized data-feed payloads.
package feed

// Envelope wraps every feed response with the server-side timestamp.
type Envelope struct {
	DataTimestamp int64       `json:"data_timestamp"`
	Data          interface{} `json:"data"`
}

// MarketOdds is a compact odds snapshot of one market.
type MarketOdds struct {
	MarketID    string             `json:"market_id"`
	Platform    string             `json:"platform"`
	Title       string             `json:"title"`
	Outcomes    map[string]float64 `json:"outcomes"`
	Volume24h   *float64           `json:"volume_24h"`
	Liquidity   *float64           `json:"liquidity"`
	LastUpdated int64              `json:"last_updated"`
}

// OrderBookLevel is one price level in a feed order book.
type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a feed-shaped order book.
type OrderBook struct {
	MarketID    string           `json:"market_id"`
	Platform    string           `json:"platform"`
	Outcome     string           `json:"outcome"`
	Bids        []OrderBookLevel `json:"bids"`
	Asks        []OrderBookLevel `json:"asks"`
	LastUpdated int64            `json:"last_updated"`
}

// MarketMetadata describes a market beyond its prices.
type MarketMetadata struct {
	MarketID          string   `json:"market_id"`
	Platform          string   `json:"platform"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Category          string   `json:"category,omitempty"`
	ResolutionSource  string   `json:"resolution_source,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
	CreatedDate       string   `json:"created_date,omitempty"`
	Status            string   `json:"status"`
	ResolutionOutcome string   `json:"resolution_outcome,omitempty"`
	VolumeTotal       *float64 `json:"volume_total"`
}

// ResolutionStatus reports whether a market has resolved.
type ResolutionStatus struct {
	MarketID            string `json:"market_id"`
	Platform            string `json:"platform"`
	Resolved            bool   `json:"is_resolved"`
	WinningOutcome      string `json:"winning_outcome,omitempty"`
	ResolutionTimestamp *int64 `json:"resolution_timestamp"`
}

// PlatformHealth reports adapter availability.
type PlatformHealth struct {
	Platform    string `json:"platform"`
	Healthy     bool   `json:"is_healthy"`
	LastCheck   int64  `json:"last_check"`
	MarketCount int    `json:"market_count"`
}

// Canary is a synthetic market injected into feed responses so consumers can
// detect stale pipelines: its price changes on a fixed rotation.
type Canary struct {
	MarketID      string             `json:"market_id"`
	Platform      string             `json:"platform"`
	Title         string             `json:"title"`
	Outcomes      map[string]float64 `json:"outcomes"`
	ExpectedPrice float64            `json:"expected_price"`
	InjectedAt    int64              `json:"injected_at"`
}

// CanaryMarketID is the fixed identifier of the canary market.
const CanaryMarketID = "canary-staleness-check"

// Odds renders the canary as a MarketOdds entry for feed payloads.
func (c Canary) Odds() MarketOdds {
	return MarketOdds{
		MarketID:    c.MarketID,
		Platform:    c.Platform,
		Title:       c.Title,
		Outcomes:    c.Outcomes,
		LastUpdated: c.InjectedAt,
	}
}
