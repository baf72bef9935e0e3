// Package market defines the normalized prediction-market types shared by
// every platform adapter.
package market

import "fmt"

// Platform identifies a supported prediction-market venue.
type Platform string

const (
	PlatformKalshi     Platform = "kalshi"
	PlatformPolymarket Platform = "polymarket"
	PlatformMyriad     Platform = "myriad"
	PlatformOpinion    Platform = "opinion"
	PlatformLimitless  Platform = "limitless"
)

// Chain identifies the settlement chain a platform trades on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainPolygon  Chain = "polygon"
	ChainBSC      Chain = "bsc"
	ChainBase     Chain = "base"
	ChainAbstract Chain = "abstract"
	ChainLinea    Chain = "linea"
)

// Outcome is a binary market outcome.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// ParseOutcome maps user input to an outcome, defaulting unknown values to no
// only when they literally say so.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeYes:
		return OutcomeYes, nil
	case OutcomeNo:
		return OutcomeNo, nil
	}
	return "", fmt.Errorf("invalid outcome %q: must be yes or no", s)
}

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a trade direction.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q: must be buy or sell", s)
}

// Market is the normalized view of a market across platforms. Prices are
// probabilities on a 0-1 scale.
type Market struct {
	Platform           Platform
	Chain              Chain
	ID                 string
	EventID            string
	Title              string
	Description        string
	Category           string
	YesPrice           float64
	NoPrice            float64
	HasPrices          bool
	Volume24h          float64
	Liquidity          float64
	Active             bool
	CloseTime          string
	YesToken           string
	NoToken            string
	OutcomeName        string
	MultiOutcome       bool
	RelatedMarketCount int
	Outcomes           []string
	CollateralToken    string
	URL                string
	Raw                map[string]interface{}
}

// Level is one price level of an order book.
type Level struct {
	Price float64
	Size  float64
}

// OrderBook holds the bid/ask ladder for one outcome of a market. Bids are
// sorted descending, asks ascending.
type OrderBook struct {
	MarketID string
	Outcome  Outcome
	Bids     []Level
	Asks     []Level
}

// BestBid returns the highest bid, if any.
func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, if any.
func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// Spread returns ask minus bid when both sides exist.
func (b OrderBook) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask - bid, true
}

// Quote is a priced trade proposal for a specific market outcome.
type Quote struct {
	Platform       Platform
	Chain          Chain
	MarketID       string
	Outcome        Outcome
	Side           Side
	InputToken     string
	InputAmount    float64
	OutputToken    string
	ExpectedOutput float64
	PricePerToken  float64
	PriceImpact    float64
	PlatformFee    float64
	NetworkFee     float64
	ExpiresAt      string
	Data           map[string]interface{}
}

// PreparedTx is an unsigned transaction for the caller to sign and submit.
type PreparedTx struct {
	To          string `json:"to"`
	Data        string `json:"data"`
	Value       string `json:"value"`
	Gas         string `json:"gas,omitempty"`
	ChainID     int64  `json:"chain_id"`
	Description string `json:"description"`
}

// TradeResult reports the outcome of a server-side trade submission.
type TradeResult struct {
	Success      bool
	TxHash       string
	InputAmount  float64
	OutputAmount float64
	ErrorMessage string
	ExplorerURL  string
}

var explorerURLs = map[Chain]string{
	ChainSolana:   "https://solscan.io/tx/%s",
	ChainPolygon:  "https://polygonscan.com/tx/%s",
	ChainBSC:      "https://bscscan.com/tx/%s",
	ChainBase:     "https://basescan.org/tx/%s",
	ChainAbstract: "https://abscan.org/tx/%s",
	ChainLinea:    "https://lineascan.build/tx/%s",
}

// ExplorerURL renders the block-explorer link for a transaction hash.
func ExplorerURL(chain Chain, txHash string) string {
	tmpl, ok := explorerURLs[chain]
	if !ok {
		return txHash
	}
	return fmt.Sprintf(tmpl, txHash)
}
