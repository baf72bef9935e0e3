// Package trade defines persisted trade records.
package trade

import "time"

// Status tracks a trade through its lifecycle.
type Status string

const (
	StatusQuoted    Status = "quoted"
	StatusPrepared  Status = "prepared"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Mode distinguishes prepare-mode (caller signs) from execute-mode
// (server submits) trades.
type Mode string

const (
	ModePrepare Mode = "prepare"
	ModeExecute Mode = "execute"
)

// Trade is the persisted record of a quote that progressed to prepare or
// execute. Monetary amounts are kept as strings to avoid float drift at rest.
type Trade struct {
	ID            string
	APIKeyID      string
	WalletAddress string
	Platform      string
	Chain         string
	MarketID      string
	MarketTitle   string
	Outcome       string
	Side          string
	InputAmount   string
	OutputAmount  string
	Price         float64
	FeeAmount     string
	TxHash        string
	Status        Status
	Mode          Mode
	CreatedAt     time.Time
}
