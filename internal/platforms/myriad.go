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

// myriadNetwork holds the per-chain deployment of the Myriad protocol.
type myriadNetwork struct {
	Name             string
	Chain            market.Chain
	PredictionMarket string
	Collateral       string
	CollateralSymbol string
	Decimals         int
}

var myriadNetworks = map[int64]myriadNetwork{
	2741: {
		Name:             "Abstract",
		Chain:            market.ChainAbstract,
		PredictionMarket: "0x3e0F5F8F5Fb043aBFA475C0308417Bf72c463289",
		Collateral:       "0x84A71ccD554Cc1b02749b35d22F684CC8ec987e1",
		CollateralSymbol: "USDC.e",
		Decimals:         6,
	},
	59144: {
		Name:             "Linea",
		Chain:            market.ChainLinea,
		PredictionMarket: "0x39e66ee6b2ddaf4defded3038e0162180dbef340",
		Collateral:       "0x176211869cA2b568f2A7D4EE941E073a821EE1ff",
		CollateralSymbol: "USDC",
		Decimals:         6,
	},
	56: {
		Name:             "BNB Chain",
		Chain:            market.ChainBSC,
		PredictionMarket: "0x39E66eE6b2ddaf4DEfDEd3038E0162180dbeF340",
		Collateral:       "0x55d398326f99059fF775485246999027B3197955",
		CollateralSymbol: "USDT",
		Decimals:         18,
	},
}

// Myriad serves the Myriad protocol deployment selected by network ID.
// Trade quotes arrive with ready-made calldata, so execution is the caller's
// job: only prepare mode is supported.
type Myriad struct {
	cfg        config.MyriadConfig
	network    myriadNetwork
	networkID  int64
	feeAccount string
	feeBps     int

	http  *apiClient
	cache *marketCache
}

// NewMyriad builds the Myriad adapter.
func NewMyriad(cfg config.MyriadConfig, fees config.FeeConfig) *Myriad {
	network, ok := myriadNetworks[cfg.NetworkID]
	if !ok {
		cfg.NetworkID = 2741
		network = myriadNetworks[2741]
	}
	return &Myriad{
		cfg:        cfg,
		network:    network,
		networkID:  cfg.NetworkID,
		feeAccount: fees.EVMFeeAccount,
		feeBps:     fees.EVMFeeBps,
		cache:      newMarketCache(5 * time.Minute),
	}
}

func (my *Myriad) Info() Info {
	return Info{
		Slug:               market.PlatformMyriad,
		Chain:              my.network.Chain,
		Name:               "Myriad",
		Description:        "Multi-chain prediction market protocol",
		CollateralSymbol:   my.network.CollateralSymbol,
		CollateralDecimals: my.network.Decimals,
	}
}

func (my *Myriad) Initialize(_ context.Context) error {
	headers := map[string]string{"Content-Type": "application/json"}
	if my.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + my.cfg.APIKey
	}
	my.http = newAPIClient(market.PlatformMyriad, my.cfg.APIURL, headers)
	return nil
}

func (my *Myriad) Close() error {
	if my.http != nil {
		my.http.Close()
	}
	return nil
}

func (my *Myriad) parseMarket(data gjson.Result) market.Market {
	m := market.Market{
		Platform:        market.PlatformMyriad,
		Chain:           my.network.Chain,
		EventID:         data.Get("category_slug").String(),
		Title:           firstString(data, "title", "question"),
		Description:     data.Get("description").String(),
		Category:        data.Get("category").String(),
		Volume24h:       data.Get("volume").Float(),
		Liquidity:       data.Get("liquidity").Float(),
		Active:          data.Get("status").String() == "active",
		CloseTime:       firstString(data, "end_date", "endDate"),
		YesToken:        data.Get("yes_token_id").String(),
		NoToken:         data.Get("no_token_id").String(),
		Outcomes:        []string{"Yes", "No"},
		CollateralToken: my.network.CollateralSymbol,
		Raw:             asMap(data),
	}

	slug := data.Get("slug").String()
	if slug == "" {
		slug = data.Get("id").String()
	}
	m.ID = slug
	m.URL = "https://myriad.markets/" + slug

	if v := data.Get("prices.yes"); v.Exists() && v.Float() > 0 {
		m.YesPrice = v.Float()
		m.NoPrice = data.Get("prices.no").Float()
		m.HasPrices = true
	} else if outcomes := data.Get("outcomes").Array(); len(outcomes) >= 2 {
		m.YesPrice = outcomes[0].Get("price").Float()
		m.NoPrice = outcomes[1].Get("price").Float()
		m.HasPrices = true
	}
	return m
}

func (my *Myriad) fetchAllMarkets(ctx context.Context) ([]market.Market, error) {
	if cached, ok := my.cache.get(); ok {
		return cached, nil
	}

	q := url.Values{
		"limit":      {"200"},
		"offset":     {"0"},
		"status":     {"active"},
		"network_id": {strconv.FormatInt(my.networkID, 10)},
	}
	data, err := my.http.getJSON(ctx, "/markets", q)
	if err != nil {
		return nil, err
	}

	var markets []market.Market
	for _, item := range firstArray(data, "markets", "data") {
		if item.IsObject() {
			markets = append(markets, my.parseMarket(item))
		}
	}

	my.cache.put(markets)
	return markets, nil
}

func (my *Myriad) Markets(ctx context.Context, opts ListOptions) ([]market.Market, error) {
	all, err := my.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Limit, opts.Offset), nil
}

func (my *Myriad) SearchMarkets(ctx context.Context, query string, limit int) ([]market.Market, error) {
	all, err := my.fetchAllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return searchByTitle(all, query, limit), nil
}

func (my *Myriad) Market(ctx context.Context, marketID string) (market.Market, error) {
	if m, ok := my.cache.find(marketID); ok {
		return m, nil
	}
	data, err := my.http.getJSON(ctx, "/markets/"+marketID, nil)
	if err != nil {
		return market.Market{}, notFoundError(market.PlatformMyriad, marketID)
	}
	if !data.Get("title").Exists() {
		if inner := data.Get("market"); inner.IsObject() {
			data = inner
		}
	}
	return my.parseMarket(data), nil
}

// OrderBook tolerates upstream failures: Myriad is AMM-based and most
// markets report no book.
func (my *Myriad) OrderBook(ctx context.Context, marketID string, outcome market.Outcome) (market.OrderBook, error) {
	ob := market.OrderBook{MarketID: marketID, Outcome: outcome}
	data, err := my.http.getJSON(ctx, "/markets/"+marketID+"/orderbook", nil)
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

// Quote asks the Myriad quote endpoint, which also returns the trade
// calldata, falling back to the listed price when the endpoint fails.
func (my *Myriad) Quote(ctx context.Context, params QuoteParams) (market.Quote, error) {
	m, err := my.Market(ctx, params.MarketID)
	if err != nil {
		return market.Quote{}, err
	}

	outcomeID := 0
	if params.Outcome == market.OutcomeNo {
		outcomeID = 1
	}
	body := map[string]interface{}{
		"market_slug": params.MarketID,
		"outcome_id":  outcomeID,
		"action":      string(params.Side),
		"amount":      strconv.FormatFloat(params.Amount, 'f', -1, 64),
	}
	if my.cfg.ReferralCode != "" {
		body["referral_code"] = my.cfg.ReferralCode
	}

	var priceAvg, shares float64
	var calldata, txTarget string
	data, err := my.http.postJSON(ctx, "/markets/quote", body)
	if err == nil {
		priceAvg = data.Get("price_average").Float()
		shares = data.Get("shares").Float()
		calldata = data.Get("calldata").String()
		txTarget = data.Get("tx_target").String()
	} else {
		listed := m.YesPrice
		if params.Outcome == market.OutcomeNo {
			listed = m.NoPrice
		}
		if listed <= 0 {
			listed = 0.5
		}
		priceAvg = listed
		if params.Side == market.SideBuy {
			shares = params.Amount / listed
		} else {
			shares = params.Amount * listed
		}
	}
	if priceAvg == 0 {
		priceAvg = 0.5
	}

	collateral := my.network.Collateral
	inputToken, outputToken := collateral, ""
	if params.Side == market.SideSell {
		inputToken, outputToken = "", collateral
	}

	return market.Quote{
		Platform:       market.PlatformMyriad,
		Chain:          my.network.Chain,
		MarketID:       params.MarketID,
		Outcome:        params.Outcome,
		Side:           params.Side,
		InputToken:     inputToken,
		InputAmount:    params.Amount,
		OutputToken:    outputToken,
		ExpectedOutput: shares,
		PricePerToken:  priceAvg,
		PlatformFee:    params.Amount * float64(my.feeBps) / 10000,
		NetworkFee:     0.001,
		Data: map[string]interface{}{
			"calldata":   calldata,
			"tx_target":  txTarget,
			"network_id": my.networkID,
		},
	}, nil
}

func (my *Myriad) Prepare(ctx context.Context, params QuoteParams, walletAddress string) ([]market.PreparedTx, market.Quote, error) {
	quote, err := my.Quote(ctx, params)
	if err != nil {
		return nil, market.Quote{}, err
	}

	network := my.network
	txTarget, _ := quote.Data["tx_target"].(string)
	if txTarget == "" {
		txTarget = network.PredictionMarket
	}
	calldata, _ := quote.Data["calldata"].(string)
	if calldata == "" {
		calldata = "0x"
	}

	units := new(big.Float).SetFloat64(1)
	for i := 0; i < network.Decimals; i++ {
		units.Mul(units, big.NewFloat(10))
	}
	amountRaw, _ := new(big.Float).Mul(big.NewFloat(params.Amount), units).Int(nil)

	txs := []market.PreparedTx{
		{
			To:          network.Collateral,
			Data:        erc20ApproveCalldata(txTarget, amountRaw),
			Value:       "0",
			Gas:         "100000",
			ChainID:     my.networkID,
			Description: fmt.Sprintf("Approve %s for Myriad", network.CollateralSymbol),
		},
		{
			To:          txTarget,
			Data:        calldata,
			Value:       "0",
			Gas:         "300000",
			ChainID:     my.networkID,
			Description: fmt.Sprintf("%s %s on %s", strings.ToUpper(string(params.Side)), strings.ToUpper(string(params.Outcome)), params.MarketID),
		},
	}

	if my.feeBps > 0 && my.feeAccount != "" {
		feeRaw, _ := new(big.Float).Mul(
			big.NewFloat(params.Amount*float64(my.feeBps)/10000),
			units,
		).Int(nil)
		txs = append(txs, market.PreparedTx{
			To:          network.Collateral,
			Data:        erc20ApproveCalldata(my.feeAccount, feeRaw),
			Value:       "0",
			Gas:         "60000",
			ChainID:     my.networkID,
			Description: fmt.Sprintf("Platform fee: %g%%", float64(my.feeBps)/100),
		})
	}

	return txs, quote, nil
}

// Execute is unsupported: Myriad trades are raw on-chain transactions the
// wallet holder must sign and broadcast.
func (my *Myriad) Execute(_ context.Context, q market.Quote, _ string) (market.TradeResult, error) {
	return market.TradeResult{
		Success:      false,
		InputAmount:  q.InputAmount,
		ErrorMessage: "myriad trades require client-side signing: use prepare mode",
	}, newError(market.PlatformMyriad, codePrepareOnly, "execute not supported, use prepare mode")
}
