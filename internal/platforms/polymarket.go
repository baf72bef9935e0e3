package platforms

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/config"
)

const (
	polymarketExchange        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	polymarketNegRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	usdcPolygon               = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174" // USDC.e
	polygonChainID            = 137
)

// Polymarket serves the Polymarket CLOB on Polygon, with the Gamma API for
// market discovery.
type Polymarket struct {
	cfg        config.PolymarketConfig
	feeAccount string
	feeBps     int

	clob  *apiClient
	gamma *apiClient
	cache *marketCache
}

// NewPolymarket builds the Polymarket adapter.
func NewPolymarket(cfg config.PolymarketConfig, fees config.FeeConfig) *Polymarket {
	return &Polymarket{
		cfg:        cfg,
		feeAccount: fees.EVMFeeAccount,
		feeBps:     fees.EVMFeeBps,
		cache:      newMarketCache(2 * time.Minute),
	}
}

func (p *Polymarket) Info() Info {
	return Info{
		Slug:               market.PlatformPolymarket,
		Chain:              market.ChainPolygon,
		Name:               "Polymarket",
		Description:        "World's largest prediction market on Polygon",
		CollateralSymbol:   "USDC",
		CollateralDecimals: 6,
	}
}

func (p *Polymarket) Initialize(_ context.Context) error {
	headers := map[string]string{"Content-Type": "application/json"}
	p.clob = newAPIClient(market.PlatformPolymarket, p.cfg.CLOBURL, headers)
	p.gamma = newAPIClient(market.PlatformPolymarket, p.cfg.GammaURL, headers)
	return nil
}

func (p *Polymarket) Close() error {
	if p.clob != nil {
		p.clob.Close()
	}
	if p.gamma != nil {
		p.gamma.Close()
	}
	return nil
}

// parseEvent flattens a Gamma event into our market model. Events with more
// than one underlying market are multi-outcome; mkt selects which one.
func (p *Polymarket) parseEvent(event, mkt gjson.Result) market.Market {
	eventMarkets := event.Get("markets").Array()
	multi := len(eventMarkets) > 1

	outcomeName := ""
	if mkt.Exists() {
		outcomeName = mkt.Get("groupItemTitle").String()
	} else if len(eventMarkets) > 0 {
		mkt = eventMarkets[0]
	} else {
		mkt = event
	}

	m := market.Market{
		Platform:        market.PlatformPolymarket,
		Chain:           market.ChainPolygon,
		EventID:         firstString(event, "id", "slug"),
		Title:           event.Get("title").String(),
		Description:     firstString(mkt, "description"),
		Volume24h:       firstFloat(mkt, "volume", "volumeNum"),
		Liquidity:       firstFloat(mkt, "liquidity"),
		Active:          mkt.Get("active").Bool() && !mkt.Get("closed").Bool(),
		CloseTime:       firstString(mkt, "endDate"),
		OutcomeName:     outcomeName,
		MultiOutcome:    multi,
		Outcomes:        []string{"Yes", "No"},
		CollateralToken: "USDC.e",
		URL:             "https://polymarket.com/event/" + event.Get("slug").String(),
		Raw: map[string]interface{}{
			"event":  event.Value(),
			"market": mkt.Value(),
		},
	}
	if m.Title == "" {
		m.Title = mkt.Get("question").String()
	}
	if m.Description == "" {
		m.Description = event.Get("description").String()
	}
	if m.Volume24h == 0 {
		m.Volume24h = event.Get("volume").Float()
	}
	if m.Liquidity == 0 {
		m.Liquidity = event.Get("liquidity").Float()
	}
	if multi {
		m.RelatedMarketCount = len(eventMarkets)
	}
	if tags := event.Get("tags").Array(); len(tags) > 0 {
		m.Category = tags[0].Get("label").String()
	}

	m.ID = mkt.Get("conditionId").String()
	if m.ID == "" {
		m.ID = firstString(mkt, "id")
	}
	if m.ID == "" {
		m.ID = event.Get("id").String()
	}

	// outcomePrices and clobTokenIds arrive as JSON-encoded strings.
	prices := jsonArray(mkt.Get("outcomePrices"))
	if len(prices) >= 2 {
		m.YesPrice = prices[0].Float()
		m.NoPrice = prices[1].Float()
		m.HasPrices = true
	} else if v := mkt.Get("lastTradePrice"); v.Exists() {
		m.YesPrice = v.Float()
		m.NoPrice = 1 - m.YesPrice
		m.HasPrices = true
	}
	tokens := jsonArray(mkt.Get("clobTokenIds"))
	if len(tokens) > 0 {
		m.YesToken = tokens[0].String()
	}
	if len(tokens) > 1 {
		m.NoToken = tokens[1].String()
	}
	return m
}

func (p *Polymarket) fetchAllMarkets(ctx context.Context) ([]market.Market, error) {
	if cached, ok := p.cache.get(); ok {
		return cached, nil
	}

	q := url.Values{
		"limit":     {"2000"},
		"order":     {"volume24hr"},
		"ascending": {"false"},
		"active":    {"true"},
		"closed":    {"false"},
	}
	data, err := p.gamma.getJSON(ctx, "/events", q)
	if err != nil {
		return nil, err
	}

	var markets []market.Market
	for _, event := range data.Array() {
		eventMarkets := event.Get("markets").Array()
		if len(eventMarkets) <= 1 {
			markets = append(markets, p.parseEvent(event, gjson.Result{}))
			continue
		}
		for _, em := range eventMarkets {
			if em.Get("active").Bool() && !em.Get("closed").Bool() {
				markets = append(markets, p.parseEvent(event, em))
				break
			}
		}
	}

	p.cache.put(markets)
	return markets, nil
}

func (p *Polymarket) Markets(ctx context.Context, opts ListOptions) ([]market.Market, error) {
	all, err := p.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Limit, opts.Offset), nil
}

func (p *Polymarket) SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error) {
	all, err := p.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return searchByTitle(all, query, limit), nil
}

func (p *Polymarket) Market(ctx context.Context, marketID string) (market.Market, error) {
	if m, ok := p.cache.find(marketID); ok {
		return m, nil
	}
	all, err := p.fetchAllMarkets(ctx)
	if err == nil {
		for _, m := range all {
			if m.ID == marketID {
				return m, nil
			}
		}
	}
	data, err := p.gamma.getJSON(ctx, "/events", url.Values{"limit": {"10"}, "id": {marketID}})
	if err == nil {
		if events := data.Array(); len(events) > 0 {
			return p.parseEvent(events[0], gjson.Result{}), nil
		}
	}
	return market.Market{}, notFoundError(market.PlatformPolymarket, marketID)
}

func (p *Polymarket) tokenFor(m market.Market, outcome market.Outcome) (string, error) {
	token := m.YesToken
	if outcome == market.OutcomeNo {
		token = m.NoToken
	}
	if token == "" {
		return "", newError(market.PlatformPolymarket, "", "token not found for %s", outcome)
	}
	return token, nil
}

func (p *Polymarket) OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	m, err := p.Market(ctx, marketID)
	if err != nil {
		return market.OrderBook{}, err
	}
	tokenID, err := p.tokenFor(m, outcome)
	if err != nil {
		return market.OrderBook{}, err
	}

	data, err := p.clob.getJSON(ctx, "/book", url.Values{"token_id": {tokenID}})
	if err != nil {
		return market.OrderBook{}, err
	}

	parseLevels := func(key string) []market.Level {
		var levels []market.Level
		for _, lv := range data.Get(key).Array() {
			levels = append(levels, market.Level{
				Price: lv.Get("price").Float(),
				Size:  lv.Get("size").Float(),
			})
		}
		return levels
	}
	bids, asks := parseLevels("bids"), parseLevels("asks")
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return market.OrderBook{MarketID: marketID, Outcome: outcome, Bids: bids, Asks: asks}, nil
}

func (p *Polymarket) Quote(ctx context.Context, params QuoteParams) (market.Quote, error) {
	m, err := p.Market(ctx, params.MarketID)
	if err != nil {
		return market.Quote{}, err
	}
	tokenID, err := p.tokenFor(m, params.Outcome)
	if err != nil {
		return market.Quote{}, err
	}

	ob, err := p.OrderBook(ctx, params.MarketID, params.Outcome)
	if err != nil {
		return market.Quote{}, err
	}

	inputToken, outputToken := usdcPolygon, tokenID
	if params.Side == market.SideSell {
		inputToken, outputToken = tokenID, usdcPolygon
	}

	q := bookQuote(p.Info(), m, ob, params, inputToken, outputToken, p.feeBps, 0.01)
	negRisk := false
	if raw, ok := m.Raw["market"].(map[string]interface{}); ok {
		negRisk, _ = raw["negRisk"].(bool)
	}
	q.Data = map[string]interface{}{"token_id": tokenID, "neg_risk": negRisk}
	return q, nil
}

func (p *Polymarket) Prepare(ctx context.Context, params QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error) {
	quote, err := p.Quote(ctx, params)
	if err != nil {
		return nil, market.Quote{}, err
	}

	exchange := polymarketExchange
	if negRisk, _ := quote.Data["neg_risk"].(bool); negRisk {
		exchange = polymarketNegRiskExchange
	}

	amountRaw := new(big.Int).SetInt64(int64(params.Amount * 1e6))
	txs := []market.PreparedTx{
		{
			To:          usdcPolygon,
			Data:        erc20ApproveCalldata(exchange, amountRaw),
			Value:       "0",
			Gas:         "100000",
			ChainID:     polygonChainID,
			Description: "Approve USDC for Polymarket exchange",
		},
		{
			To:          exchange,
			Data:        fmt.Sprintf("0x_trade_calldata_placeholder_%v", quote.Data["token_id"]),
			Value:       "0",
			Gas:         "300000",
			ChainID:     polygonChainID,
			Description: fmt.Sprintf("%s %s on %s", strings.ToUpper(string(params.Side)), strings.ToUpper(string(params.Outcome)), params.MarketID),
		},
	}
	return txs, quote, nil
}

// Execute places the order through the CLOB API. Collateral approval is the
// wallet holder's responsibility; the prepare flow emits the approval tx.
func (p *Polymarket) Execute(ctx context.Context, q market.Quote, _ string) (market.TradeResult, error) {
	tokenID, _ := q.Data["token_id"].(string)
	side := "BUY"
	if q.Side == market.SideSell {
		side = "SELL"
	}
	order := map[string]interface{}{
		"tokenID": tokenID,
		"price":   strconv.FormatFloat(q.PricePerToken, 'f', -1, 64),
		"size":    strconv.FormatFloat(q.InputAmount, 'f', -1, 64),
		"side":    side,
	}

	resp, err := p.clob.postJSON(ctx, "/order", order)
	if err != nil {
		return market.TradeResult{
			Success:      false,
			InputAmount:  q.InputAmount,
			ErrorMessage: err.Error(),
		}, nil
	}

	txHash := firstString(resp, "transactionHash", "orderID")
	result := market.TradeResult{
		Success:      true,
		TxHash:       txHash,
		InputAmount:  q.InputAmount,
		OutputAmount: q.ExpectedOutput,
	}
	if strings.HasPrefix(txHash, "0x") {
		result.ExplorerURL = market.ExplorerURL(market.ChainPolygon, txHash)
	}
	return result, nil
}

// erc20ApproveCalldata encodes approve(address,uint256): the 4-byte selector
// followed by two 32-byte ABI words.
func erc20ApproveCalldata(spender string, amount *big.Int) string {
	spender = strings.TrimPrefix(strings.ToLower(spender), "0x")
	return "0x095ea7b3" +
		fmt.Sprintf("%064s", spender) +
		fmt.Sprintf("%064x", amount)
}

// jsonArray handles fields that arrive either as arrays or as JSON-encoded
// array strings.
func jsonArray(v gjson.Result) []gjson.Result {
	if v.IsArray() {
		return v.Array()
	}
	if v.Type == gjson.String {
		if parsed := gjson.Parse(v.String()); parsed.IsArray() {
			return parsed.Array()
		}
	}
	return nil
}

func firstFloat(data gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := data.Get(key); v.Exists() && v.Float() != 0 {
			return v.Float()
		}
	}
	return 0
}
