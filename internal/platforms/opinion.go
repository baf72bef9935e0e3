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
	usdtBSC                = "0x55d398326f99059fF775485246999027B3197955"
	opinionCTFExchange     = "0x5F45344126D6488025B0b84A3A8189F2487a7246"
	opinionConditionalCTF  = "0xbB5f35D40132A0478f6aa91e79962e9F752167EA"
	bscChainID             = 56
	opinionCollateralUnits = 1e18
)

// Opinion serves Opinion Labs AI-oracle markets on BSC. USDT on BSC carries
// 18 decimals, unlike the 6-decimal USDC collateral elsewhere.
type Opinion struct {
	cfg        config.OpinionConfig
	feeAccount string
	feeBps     int

	http  *apiClient
	cache *marketCache
}

// NewOpinion builds the Opinion adapter.
func NewOpinion(cfg config.OpinionConfig, fees config.FeeConfig) *Opinion {
	return &Opinion{
		cfg:        cfg,
		feeAccount: fees.EVMFeeAccount,
		feeBps:     fees.EVMFeeBps,
		cache:      newMarketCache(5 * time.Minute),
	}
}

func (o *Opinion) Info() Info {
	return Info{
		Slug:               market.PlatformOpinion,
		Chain:              market.ChainBSC,
		Name:               "Opinion",
		Description:        "AI-oracle powered prediction markets on BSC",
		CollateralSymbol:   "USDT",
		CollateralDecimals: 18,
	}
}

func (o *Opinion) Initialize(_ context.Context) error {
	headers := map[string]string{"Content-Type": "application/json"}
	if o.cfg.APIKey != "" {
		headers["x-api-key"] = o.cfg.APIKey
	}
	o.http = newAPIClient(market.PlatformOpinion, o.cfg.APIURL, headers)
	return nil
}

func (o *Opinion) Close() error {
	if o.http != nil {
		o.http.Close()
	}
	return nil
}

func (o *Opinion) parseMarket(data gjson.Result) market.Market {
	m := market.Market{
		Platform:        market.PlatformOpinion,
		Chain:           market.ChainBSC,
		ID:              firstString(data, "id", "market_id"),
		EventID:         data.Get("category").String(),
		Title:           firstString(data, "title", "question"),
		Description:     data.Get("description").String(),
		Category:        data.Get("category").String(),
		Volume24h:       data.Get("volume").Float(),
		Liquidity:       data.Get("liquidity").Float(),
		CloseTime:       firstString(data, "end_date", "endDate"),
		Outcomes:        []string{"Yes", "No"},
		CollateralToken: "USDT",
		Raw:             asMap(data),
	}
	m.URL = "https://opinion.trade/market/" + m.ID

	status := data.Get("status").String()
	m.Active = status == "" || status == "active" || status == "open"

	outcomes := data.Get("outcomes").Array()
	if len(outcomes) >= 2 {
		m.YesPrice = outcomes[0].Get("price").Float()
		m.NoPrice = outcomes[1].Get("price").Float()
		m.HasPrices = true
	} else if v := data.Get("yes_price"); v.Exists() && v.Float() > 0 {
		m.YesPrice = v.Float()
		if n := data.Get("no_price"); n.Exists() {
			m.NoPrice = n.Float()
		} else {
			m.NoPrice = 1 - m.YesPrice
		}
		m.HasPrices = true
	}
	if len(outcomes) > 0 {
		m.YesToken = outcomes[0].Get("token_id").String()
	}
	if len(outcomes) > 1 {
		m.NoToken = outcomes[1].Get("token_id").String()
	}
	return m
}

func (o *Opinion) fetchAllMarkets(ctx context.Context) ([]market.Market, error) {
	if cached, ok := o.cache.get(); ok {
		return cached, nil
	}

	q := url.Values{"limit": {"200"}, "status": {"active"}}
	data, err := o.http.getJSON(ctx, "/markets", q)
	if err != nil {
		return nil, err
	}

	var markets []market.Market
	for _, item := range firstArray(data, "markets", "data") {
		if item.IsObject() {
			markets = append(markets, o.parseMarket(item))
		}
	}

	o.cache.put(markets)
	return markets, nil
}

func (o *Opinion) Markets(ctx context.Context, opts ListOptions) ([]market.Market, error) {
	all, err := o.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Limit, opts.Offset), nil
}

func (o *Opinion) SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error) {
	all, err := o.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return searchByTitle(all, query, limit), nil
}

func (o *Opinion) Market(ctx context.Context, marketID string) (market.Market, error) {
	if m, ok := o.cache.find(marketID); ok {
		return m, nil
	}
	data, err := o.http.getJSON(ctx, "/markets/"+marketID, nil)
	if err != nil {
		return market.Market{}, notFoundError(market.PlatformOpinion, marketID)
	}
	return o.parseMarket(data), nil
}

// OrderBook prefers per-outcome book keys and falls back to the flat keys.
// Upstream failures yield an empty book so quoting falls back to the listed
// price.
func (o *Opinion) OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	ob := market.OrderBook{MarketID: marketID, Outcome: outcome}
	data, err := o.http.getJSON(ctx, "/markets/"+marketID+"/orderbook", nil)
	if err != nil {
		return ob, nil
	}

	side := "yes"
	if outcome == market.OutcomeNo {
		side = "no"
	}
	bids := data.Get(side + "_bids")
	if !bids.IsArray() {
		bids = data.Get("bids")
	}
	asks := data.Get(side + "_asks")
	if !asks.IsArray() {
		asks = data.Get("asks")
	}
	for _, b := range bids.Array() {
		ob.Bids = append(ob.Bids, market.Level{Price: b.Get("price").Float(), Size: b.Get("size").Float()})
	}
	for _, a := range asks.Array() {
		ob.Asks = append(ob.Asks, market.Level{Price: a.Get("price").Float(), Size: a.Get("size").Float()})
	}
	return ob, nil
}

func (o *Opinion) Quote(ctx context.Context, params QuoteParams) (market.Quote, error) {
	m, err := o.Market(ctx, params.MarketID)
	if err != nil {
		return market.Quote{}, err
	}

	ob, _ := o.OrderBook(ctx, params.MarketID, params.Outcome)

	tokenID := m.YesToken
	if params.Outcome == market.OutcomeNo {
		tokenID = m.NoToken
	}
	inputToken, outputToken := usdtBSC, tokenID
	if params.Side == market.SideSell {
		inputToken, outputToken = tokenID, usdtBSC
	}

	q := bookQuote(o.Info(), m, ob, params, inputToken, outputToken, o.feeBps, 0.001)
	q.Data = map[string]interface{}{"token_id": tokenID, "market_id": params.MarketID}
	return q, nil
}

func (o *Opinion) Prepare(ctx context.Context, params QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error) {
	quote, err := o.Quote(ctx, params)
	if err != nil {
		return nil, market.Quote{}, err
	}

	amountRaw, _ := new(big.Float).Mul(
		big.NewFloat(params.Amount),
		big.NewFloat(opinionCollateralUnits),
	).Int(nil)

	txs := []market.PreparedTx{
		{
			To:          usdtBSC,
			Data:        erc20ApproveCalldata(opinionCTFExchange, amountRaw),
			Value:       "0",
			Gas:         "100000",
			ChainID:     bscChainID,
			Description: "Approve USDT for Opinion exchange",
		},
		{
			To:          usdtBSC,
			Data:        erc20ApproveCalldata(opinionConditionalCTF, amountRaw),
			Value:       "0",
			Gas:         "100000",
			ChainID:     bscChainID,
			Description: "Approve USDT for Conditional Tokens",
		},
		{
			To:          opinionCTFExchange,
			Data:        fmt.Sprintf("0x_opinion_trade_%s_%s_%s", params.MarketID, params.Outcome, params.Side),
			Value:       "0",
			Gas:         "300000",
			ChainID:     bscChainID,
			Description: fmt.Sprintf("%s %s on %s", strings.ToUpper(string(params.Side)), strings.ToUpper(string(params.Outcome)), params.MarketID),
		},
	}

	if o.feeBps > 0 && o.feeAccount != "" {
		feeRaw, _ := new(big.Float).Mul(
			big.NewFloat(params.Amount*float64(o.feeBps)/10000),
			big.NewFloat(opinionCollateralUnits),
		).Int(nil)
		txs = append(txs, market.PreparedTx{
			To:          usdtBSC,
			Data:        erc20ApproveCalldata(o.feeAccount, feeRaw),
			Value:       "0",
			Gas:         "60000",
			ChainID:     bscChainID,
			Description: fmt.Sprintf("Platform fee: %g%%", float64(o.feeBps)/100),
		})
	}

	return txs, quote, nil
}

// Execute places a market order through the Opinion CLOB API.
func (o *Opinion) Execute(ctx context.Context, q market.Quote, _ string) (market.TradeResult, error) {
	side := "BUY"
	if q.Side == market.SideSell {
		side = "SELL"
	}
	order := map[string]interface{}{
		"market_id":  q.MarketID,
		"token_id":   q.Data["token_id"],
		"side":       side,
		"order_type": "market",
		"amount":     strconv.FormatFloat(q.InputAmount, 'f', -1, 64),
	}

	resp, err := o.http.postJSON(ctx, "/orders", order)
	if err != nil {
		return market.TradeResult{
			Success:      false,
			InputAmount:  q.InputAmount,
			ErrorMessage: err.Error(),
		}, nil
	}

	orderID := firstString(resp, "order_id", "id")
	result := market.TradeResult{
		Success:      true,
		TxHash:       orderID,
		InputAmount:  q.InputAmount,
		OutputAmount: q.ExpectedOutput,
	}
	if strings.HasPrefix(orderID, "0x") {
		result.ExplorerURL = market.ExplorerURL(market.ChainBSC, orderID)
	}
	return result, nil
}
