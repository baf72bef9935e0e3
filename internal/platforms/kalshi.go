package platforms

import (
	"context"
	"fmt"
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
	kalshiUSDCMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	kalshiPublicAPI = "https://api.elections.kalshi.com/trade-api/v2"
)

// Kalshi trades CFTC-regulated Kalshi markets on Solana through the DFlow
// quote and metadata APIs.
type Kalshi struct {
	cfg        config.DFlowConfig
	feeAccount string
	feeBps     int

	meta    *apiClient
	trading *apiClient
	events  *apiClient
	cache   *marketCache
}

// NewKalshi builds the Kalshi adapter.
func NewKalshi(cfg config.DFlowConfig, fees config.FeeConfig) *Kalshi {
	return &Kalshi{
		cfg:        cfg,
		feeAccount: fees.KalshiFeeAccount,
		feeBps:     fees.KalshiFeeBps,
		cache:      newMarketCache(5 * time.Minute),
	}
}

func (k *Kalshi) Info() Info {
	return Info{
		Slug:               market.PlatformKalshi,
		Chain:              market.ChainSolana,
		Name:               "Kalshi",
		Description:        "CFTC-regulated prediction markets on Solana",
		CollateralSymbol:   "USDC",
		CollateralDecimals: 6,
	}
}

func (k *Kalshi) Initialize(_ context.Context) error {
	headers := map[string]string{}
	if k.cfg.APIKey != "" {
		headers["x-api-key"] = k.cfg.APIKey
	}
	k.meta = newAPIClient(market.PlatformKalshi, k.cfg.MetadataURL, headers)
	k.trading = newAPIClient(market.PlatformKalshi, k.cfg.QuoteURL, headers)
	k.events = newAPIClient(market.PlatformKalshi, kalshiPublicAPI, nil)
	return nil
}

func (k *Kalshi) Close() error {
	if k.meta != nil {
		k.meta.Close()
	}
	if k.trading != nil {
		k.trading.Close()
	}
	if k.events != nil {
		k.events.Close()
	}
	return nil
}

func (k *Kalshi) parseMarket(data gjson.Result) market.Market {
	m := market.Market{
		Platform:        market.PlatformKalshi,
		Chain:           market.ChainSolana,
		ID:              firstString(data, "ticker", "market_ticker"),
		EventID:         firstString(data, "eventTicker", "event_ticker"),
		Title:           firstString(data, "title", "question"),
		Description:     data.Get("subtitle").String(),
		Category:        data.Get("category").String(),
		Volume24h:       data.Get("volume").Float(),
		Liquidity:       data.Get("openInterest").Float(),
		Active:          data.Get("status").String() == "active" || !data.Get("result").Exists(),
		CloseTime:       firstString(data, "closeTime", "close_time"),
		Outcomes:        []string{"Yes", "No"},
		CollateralToken: "USDC",
		Raw:             asMap(data),
	}

	if v := data.Get("yesAsk"); v.Exists() && v.Float() > 0 {
		m.YesPrice = v.Float()
		m.HasPrices = true
	}
	if v := data.Get("noAsk"); v.Exists() && v.Float() > 0 {
		m.NoPrice = v.Float()
	}

	accounts := data.Get("accounts." + kalshiUSDCMint)
	m.YesToken = accounts.Get("yesMint").String()
	m.NoToken = accounts.Get("noMint").String()
	return m
}

func (k *Kalshi) fetchAllMarkets(ctx context.Context) ([]market.Market, error) {
	if cached, ok := k.cache.get(); ok {
		return cached, nil
	}

	var all []market.Market
	cursor := ""
	for i := 0; i < 25; i++ {
		q := url.Values{"limit": {"200"}, "status": {"active"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		data, err := k.meta.getJSON(ctx, "/api/v1/markets", q)
		if err != nil {
			if len(all) > 0 {
				break
			}
			return nil, err
		}
		pageItems := firstArray(data, "markets", "data")
		for _, item := range pageItems {
			if !item.IsObject() {
				continue
			}
			all = append(all, k.parseMarket(item))
		}
		cursor = data.Get("cursor").String()
		if cursor == "" || len(pageItems) == 0 {
			break
		}
	}

	k.annotateEvents(ctx, all)
	k.cache.put(all)
	return all, nil
}

// annotateEvents marks markets that belong to multi-market events and fills
// in the per-market outcome names from the public Kalshi API.
func (k *Kalshi) annotateEvents(ctx context.Context, markets []market.Market) {
	groups := make(map[string][]int)
	for i, m := range markets {
		if m.EventID != "" {
			groups[m.EventID] = append(groups[m.EventID], i)
		}
	}

	for eventID, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		names := k.fetchEventNames(ctx, eventID)
		for _, i := range idxs {
			markets[i].MultiOutcome = true
			markets[i].RelatedMarketCount = len(idxs)
			markets[i].OutcomeName = names[markets[i].ID]
		}
	}
}

func (k *Kalshi) fetchEventNames(ctx context.Context, eventID string) map[string]string {
	names := make(map[string]string)
	data, err := k.events.getJSON(ctx, "/events/"+eventID, nil)
	if err != nil {
		return names
	}
	for _, mkt := range data.Get("markets").Array() {
		ticker := mkt.Get("ticker").String()
		name := firstString(mkt, "yes_sub_title", "subtitle")
		if ticker != "" && name != "" {
			names[ticker] = name
		}
	}
	return names
}

func (k *Kalshi) Markets(ctx context.Context, opts ListOptions) ([]market.Market, error) {
	all, err := k.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Limit, opts.Offset), nil
}

func (k *Kalshi) SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error) {
	all, err := k.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return searchByTitle(all, query, limit), nil
}

func (k *Kalshi) Market(ctx context.Context, marketID string) (market.Market, error) {
	all, err := k.fetchAllMarkets(ctx)
	if err == nil {
		for _, m := range all {
			if m.ID == marketID {
				return m, nil
			}
		}
	}
	data, err := k.meta.getJSON(ctx, "/api/v1/market/"+marketID, nil)
	if err != nil {
		return market.Market{}, notFoundError(market.PlatformKalshi, marketID)
	}
	if inner := data.Get("market"); inner.IsObject() {
		data = inner
	}
	return k.parseMarket(data), nil
}

// OrderBook converts the DFlow book to the requested outcome. Asks are
// synthesized from the opposite outcome's bids at price' = 1 - price.
func (k *Kalshi) OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	data, err := k.meta.getJSON(ctx, "/api/v1/orderbook/"+marketID, nil)
	if err != nil {
		return market.OrderBook{}, err
	}

	sideKey, oppositeKey := "yes_bids", "no_bids"
	if outcome == market.OutcomeNo {
		sideKey, oppositeKey = "no_bids", "yes_bids"
	}

	var bids, asks []market.Level
	data.Get(sideKey).ForEach(func(price, qty gjson.Result) bool {
		p, err := strconv.ParseFloat(price.String(), 64)
		if err == nil {
			bids = append(bids, market.Level{Price: p, Size: qty.Float()})
		}
		return true
	})
	data.Get(oppositeKey).ForEach(func(price, qty gjson.Result) bool {
		p, err := strconv.ParseFloat(price.String(), 64)
		if err == nil {
			asks = append(asks, market.Level{Price: 1 - p, Size: qty.Float()})
		}
		return true
	})

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return market.OrderBook{MarketID: marketID, Outcome: outcome, Bids: bids, Asks: asks}, nil
}

func (k *Kalshi) orderQuery(q market.Quote, extra url.Values) url.Values {
	values := url.Values{
		"inputMint":   {q.InputToken},
		"outputMint":  {q.OutputToken},
		"amount":      {strconv.FormatInt(int64(q.InputAmount*1e6), 10)},
		"slippageBps": {"100"},
	}
	for key, vals := range extra {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	if k.feeAccount != "" && len(k.feeAccount) >= 32 {
		values.Set("feeAccount", k.feeAccount)
		values.Set("platformFeeScale", strconv.Itoa(k.feeBps/2))
	}
	return values
}

func (k *Kalshi) Quote(ctx context.Context, p QuoteParams) (market.Quote, error) {
	m, err := k.Market(ctx, p.MarketID)
	if err != nil {
		return market.Quote{}, err
	}

	outputToken := m.YesToken
	if p.Outcome == market.OutcomeNo {
		outputToken = m.NoToken
	}
	if outputToken == "" {
		return market.Quote{}, newError(market.PlatformKalshi, "", "token not found for %s", p.Outcome)
	}

	inputMint, outputMint := kalshiUSDCMint, outputToken
	if p.Side == market.SideSell {
		inputMint, outputMint = outputToken, kalshiUSDCMint
	}

	q := url.Values{
		"inputMint":   {inputMint},
		"outputMint":  {outputMint},
		"amount":      {strconv.FormatInt(int64(p.Amount*1e6), 10)},
		"slippageBps": {"100"},
	}
	data, err := k.trading.getJSON(ctx, "/order", q)
	if err != nil {
		return market.Quote{}, err
	}

	inAmount := data.Get("inAmount").Float() / 1e6
	outAmount := data.Get("outAmount").Float() / 1e6
	price := 0.0
	if outAmount > 0 {
		price = inAmount / outAmount
	}

	return market.Quote{
		Platform:       market.PlatformKalshi,
		Chain:          market.ChainSolana,
		MarketID:       p.MarketID,
		Outcome:        p.Outcome,
		Side:           p.Side,
		InputToken:     inputMint,
		InputAmount:    inAmount,
		OutputToken:    outputMint,
		ExpectedOutput: outAmount,
		PricePerToken:  price,
		PriceImpact:    data.Get("priceImpactPct").Float(),
		PlatformFee:    data.Get("platformFee").Float() / 1e6,
		NetworkFee:     0.001,
		Data:           asMap(data),
	}, nil
}

func (k *Kalshi) Prepare(ctx context.Context, p QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error) {
	quote, err := k.Quote(ctx, p)
	if err != nil {
		return nil, market.Quote{}, err
	}

	q := k.orderQuery(quote, url.Values{"userPublicKey": {walletAddress}})
	data, err := k.trading.getJSON(ctx, "/order", q)
	if err != nil {
		return nil, market.Quote{}, err
	}

	txs := []market.PreparedTx{{
		To:          "solana_program",
		Data:        data.Get("transaction").String(),
		Value:       "0",
		ChainID:     0, // Solana
		Description: fmt.Sprintf("%s %s on %s", strings.ToUpper(string(p.Side)), strings.ToUpper(string(p.Outcome)), p.MarketID),
	}}
	return txs, quote, nil
}

// Execute is unsupported for Kalshi: the DFlow order flow returns a Solana
// transaction the wallet holder must sign locally.
func (k *Kalshi) Execute(_ context.Context, q market.Quote, _ string) (market.TradeResult, error) {
	return market.TradeResult{
		Success:      false,
		InputAmount:  q.InputAmount,
		ErrorMessage: "kalshi trades require client-side signing: use prepare mode",
	}, newError(market.PlatformKalshi, codePrepareOnly, "execute not supported, use prepare mode")
}

// helpers shared with other adapters ----------------------------------------

func firstString(data gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := data.Get(key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstArray(data gjson.Result, keys ...string) []gjson.Result {
	if data.IsArray() {
		return data.Array()
	}
	for _, key := range keys {
		if v := data.Get(key); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

func asMap(data gjson.Result) map[string]interface{} {
	if m, ok := data.Value().(map[string]interface{}); ok {
		return m
	}
	return nil
}
