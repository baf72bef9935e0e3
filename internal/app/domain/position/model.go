// Package position defines tracked open positions per API key and wallet.
package position

import "time"

// Status marks whether a position still holds tokens.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Position aggregates fills for one (key, wallet, platform, market, outcome)
// tuple. TokenAmount is stored as a string, mirroring the trade records.
type Position struct {
	ID            string
	APIKeyID      string
	WalletAddress string
	Platform      string
	MarketID      string
	Outcome       string
	TokenAmount   string
	AvgEntryPrice float64
	CurrentPrice  float64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
