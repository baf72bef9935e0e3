package platforms

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/config"
)

const (
	usdcBase    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	baseChainID = 8453
)

var limitlessCategories = map[string]string{
	"29": "Hourly", "30": "Daily", "31": "Weekly",
	"2": "Crypto", "1": "Sports", "49": "Football Matches",
	"23": "Economy", "43": "Pre-TGE", "19": "Company News",
}

// Limitless serves Limitless Exchange markets on Base.
type Limitless struct {
	cfg        config.LimitlessConfig
	feeAccount string
	feeBps     int

	http  *apiClient
	cache *marketCache
}

// NewLimitless builds the Limitless adapter.
func NewLimitless(cfg config.LimitlessConfig, fees config.FeeConfig) *Limitless {
	return &Limitless{
		cfg:        cfg,
		feeAccount: fees.EVMFeeAccount,
		feeBps:     fees.EVMFeeBps,
		cache:      newMarketCache(5 * time.Minute),
	}
}

func (l *Limitless) Info() Info {
	return Info{
		Slug:               market.PlatformLimitless,
		Chain:              market.ChainBase,
		Name:               "Limitless",
		Description:        "Prediction markets on Base",
		CollateralSymbol:   "USDC",
		CollateralDecimals: 6,
	}
}

func (l *Limitless) Initialize(_ context.Context) error {
	headers := map[string]string{"Content-Type": "application/json"}
	if l.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + l.cfg.APIKey
	}
	l.http = newAPIClient(market.PlatformLimitless, l.cfg.APIURL, headers)
	return nil
}

func (l *Limitless) Close() error {
	if l.http != nil {
		l.http.Close()
	}
	return nil
}

func (l *Limitless) parseMarket(data gjson.Result) market.Market {
	m := market.Market{
		Platform:        market.PlatformLimitless,
		Chain:           market.ChainBase,
		Title:           firstString(data, "title", "question"),
		Description:     data.Get("description").String(),
		Volume24h:       data.Get("volume").Float(),
		Liquidity:       data.Get("liquidity").Float(),
		CloseTime:       firstString(data, "end_date", "endDate", "expirationDate"),
		Outcomes:        []string{"Yes", "No"},
		CollateralToken: "USDC",
		Raw:             asMap(data),
	}

	slug := data.Get("slug").String()
	if slug == "" {
		slug = data.Get("id").String()
	}
	m.ID = slug
	m.URL = "https://limitless.exchange/markets/" + slug

	categoryID := data.Get("category_id").String()
	m.EventID = firstString(data, "event_slug")
	if m.EventID == "" {
		m.EventID = categoryID
	}
	if name, ok := limitlessCategories[categoryID]; ok {
		m.Category = name
	} else {
		m.Category = data.Get("category").String()
	}

	status := data.Get("status").String()
	m.Active = status == "" || status == "active" || status == "open"

	outcomes := data.Get("outcomes").Array()
	if len(outcomes) >= 2 {
		m.YesPrice = outcomes[0].Get("price").Float()
		m.NoPrice = outcomes[1].Get("price").Float()
		m.HasPrices = true
	} else if v := data.Get("yes_price"); v.Exists() {
		m.YesPrice = v.Float()
		m.NoPrice = 1 - m.YesPrice
		m.HasPrices = true
	}
	if len(outcomes) > 0 {
		m.YesToken = outcomes[0].Get("token_id").String()
	} else {
		m.YesToken = data.Get("yes_token_id").String()
	}
	if len(outcomes) > 1 {
		m.NoToken = outcomes[1].Get("token_id").String()
	} else {
		m.NoToken = data.Get("no_token_id").String()
	}
	return m
}

func (l *Limitless) fetchAllMarkets(ctx context.Context) ([]market.Market, error) {
	if cached, ok := l.cache.get(); ok {
		return cached, nil
	}

	q := url.Values{"limit": {"200"}, "status": {"active"}}
	data, err := l.http.getJSON(ctx, "/markets", q)
	if err != nil {
		return nil, err
	}

	var markets []market.Market
	for _, item := range firstArray(data, "markets", "data") {
		if item.IsObject() {
			markets = append(markets, l.parseMarket(item))
		}
	}

	l.cache.put(markets)
	return markets, nil
}

func (l *Limitless) Markets(ctx context.Context, opts ListOptions) ([]market.Market, error) {
	all, err := l.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Limit, opts.Offset), nil
}

func (l *Limitless) SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error) {
	all, err := l.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return searchByTitle(all, query, limit), nil
}

func (l *Limitless) Market(ctx context.Context, marketID string) (market.Market, error) {
	if m, ok := l.cache.find(marketID); ok {
		return m, nil
	}
	data, err := l.http.getJSON(ctx, "/markets/"+marketID, nil)
	if err != nil {
		return market.Market{}, notFoundError(market.PlatformLimitless, marketID)
	}
	return l.parseMarket(data), nil
}

// OrderBook tolerates upstream failures: Limitless AMM markets have no book,
// so an empty book falls through to listed-price quoting.
func (l *Limitless) OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	ob := market.OrderBook{MarketID: marketID, Outcome: outcome}
	data, err := l.http.getJSON(ctx, "/markets/"+marketID+"/orderbook", nil)
	if err != nil {
		return ob, nil
	}
	for _, b := range data.Get("bids").Array() {
		ob.Bids = append(ob.Bids, market.Level{Price: b.Get("price").Float(), Size: b.Get("size").Float()})
	}
	for _, a := range data.Get("asks").Array() {
		ob.Asks = append(ob.Asks, market.Level{Price: a.Get("price").Float(), Size: a.Get("size").Float()})
	}
	return ob, nil
}

func (l *Limitless) Quote(ctx context.Context, params QuoteParams) (market.Quote, error) {
	m, err := l.Market(ctx, params.MarketID)
	if err != nil {
		return market.Quote{}, err
	}

	ob, _ := l.OrderBook(ctx, params.MarketID, params.Outcome)

	tokenID := m.YesToken
	if params.Outcome == market.OutcomeNo {
		tokenID = m.NoToken
	}
	inputToken, outputToken := usdcBase, tokenID
	if params.Side == market.SideSell {
		inputToken, outputToken = tokenID, usdcBase
	}

	q := bookQuote(l.Info(), m, ob, params, inputToken, outputToken, l.feeBps, 0.0005)
	q.Data = map[string]interface{}{"token_id": tokenID, "market_id": params.MarketID}
	return q, nil
}

func (l *Limitless) Prepare(ctx context.Context, params QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error) {
	quote, err := l.Quote(ctx, params)
	if err != nil {
		return nil, market.Quote{}, err
	}

	// The exchange contract is resolved client-side by the Limitless SDK.
	exchangeAddr := "0x0000000000000000000000000000000000000000"
	amountRaw := new(big.Int).SetInt64(int64(params.Amount * 1e6))

	txs := []market.PreparedTx{
		{
			To:          usdcBase,
			Data:        erc20ApproveCalldata(exchangeAddr, amountRaw),
			Value:       "0",
			Gas:         "100000",
			ChainID:     baseChainID,
			Description: "Approve USDC for Limitless exchange",
		},
		{
			To:          exchangeAddr,
			Data:        fmt.Sprintf("0x_limitless_trade_%s_%s_%s", params.MarketID, params.Outcome, params.Side),
			Value:       "0",
			Gas:         "300000",
			ChainID:     baseChainID,
			Description: fmt.Sprintf("%s %s on %s", strings.ToUpper(string(params.Side)), strings.ToUpper(string(params.Outcome)), params.MarketID),
		},
	}

	if l.feeBps > 0 && l.feeAccount != "" {
		feeRaw := new(big.Int).SetInt64(int64(params.Amount * float64(l.feeBps) / 10000 * 1e6))
		txs = append(txs, market.PreparedTx{
			To:          usdcBase,
			Data:        erc20ApproveCalldata(l.feeAccount, feeRaw),
			Value:       "0",
			Gas:         "60000",
			ChainID:     baseChainID,
			Description: fmt.Sprintf("Platform fee: %g%%", float64(l.feeBps)/100),
		})
	}

	return txs, quote, nil
}

// Execute places a market order through the Limitless order API.
func (l *Limitless) Execute(ctx context.Context, q market.Quote, _ string) (market.TradeResult, error) {
	side := "BUY"
	if q.Side == market.SideSell {
		side = "SELL"
	}
	order := map[string]interface{}{
		"market_id":  q.MarketID,
		"token_id":   q.Data["token_id"],
		"side":       side,
		"order_type": "MARKET",
		"amount":     strconv.FormatFloat(q.InputAmount, 'f', -1, 64),
	}

	resp, err := l.http.postJSON(ctx, "/orders", order)
	if err != nil {
		return market.TradeResult{
			Success:      false,
			InputAmount:  q.InputAmount,
			ErrorMessage: err.Error(),
		}, nil
	}

	txHash := firstString(resp, "transaction_hash", "order_id")
	result := market.TradeResult{
		Success:      true,
		TxHash:       txHash,
		InputAmount:  q.InputAmount,
		OutputAmount: q.ExpectedOutput,
	}
	if strings.HasPrefix(txHash, "0x") {
		result.ExplorerURL = market.ExplorerURL(market.ChainBase, txHash)
	}
	return result, nil
}
