package httpapi

import (
	"errors"
	"net/http"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/app/services/trading"
	"github.com/spredd-labs/developer-api/internal/middleware"
	"github.com/spredd-labs/developer-api/internal/platforms"
)

type tradeRequest struct {
	Platform      string  `json:"platform"`
	MarketID      string  `json:"market_id"`
	Outcome       string  `json:"outcome"`
	Side          string  `json:"side"`
	Amount        float64 `json:"amount"`
	WalletAddress string  `json:"wallet_address"`
	PrivateKey    string  `json:"private_key"`
}

func (t tradeRequest) toService() (trading.Request, error) {
	outcome, err := market.ParseOutcome(t.Outcome)
	if err != nil {
		return trading.Request{}, err
	}
	side, err := market.ParseSide(t.Side)
	if err != nil {
		return trading.Request{}, err
	}
	return trading.Request{
		Platform:      t.Platform,
		MarketID:      t.MarketID,
		Outcome:       outcome,
		Side:          side,
		Amount:        t.Amount,
		WalletAddress: t.WalletAddress,
	}, nil
}

type quoteResponse struct {
	Platform       string                 `json:"platform"`
	MarketID       string                 `json:"market_id"`
	Outcome        string                 `json:"outcome"`
	Side           string                 `json:"side"`
	InputToken     string                 `json:"input_token,omitempty"`
	InputAmount    float64                `json:"input_amount"`
	OutputToken    string                 `json:"output_token,omitempty"`
	ExpectedOutput float64                `json:"expected_output"`
	PricePerToken  float64                `json:"price_per_token"`
	PriceImpact    float64                `json:"price_impact"`
	NetworkFee     float64                `json:"network_fee"`
	FeeAmount      float64                `json:"fee_amount"`
	FeeBps         int                    `json:"fee_bps"`
	ExpiresAt      string                 `json:"expires_at,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

func toQuoteResponse(q trading.QuoteResult) quoteResponse {
	return quoteResponse{
		Platform:       string(q.Quote.Platform),
		MarketID:       q.Quote.MarketID,
		Outcome:        string(q.Quote.Outcome),
		Side:           string(q.Quote.Side),
		InputToken:     q.Quote.InputToken,
		InputAmount:    q.Quote.InputAmount,
		OutputToken:    q.Quote.OutputToken,
		ExpectedOutput: q.Quote.ExpectedOutput,
		PricePerToken:  q.Quote.PricePerToken,
		PriceImpact:    q.Quote.PriceImpact,
		NetworkFee:     q.Quote.NetworkFee,
		FeeAmount:      q.FeeAmount,
		FeeBps:         q.FeeBps,
		ExpiresAt:      q.Quote.ExpiresAt,
		Data:           q.Quote.Data,
	}
}

func (h *handler) quote(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Trading.Quote(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(result))
}

func (h *handler) prepare(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.KeyFromContext(r.Context())

	var body tradeRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	txs, quote, err := h.app.Trading.Prepare(r.Context(), key.ID, req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"quote":        toQuoteResponse(quote),
	})
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.KeyFromContext(r.Context())

	var body tradeRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Trading.Execute(r.Context(), key.ID, req, body.PrivateKey)
	if err != nil {
		writeError(w, executeErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade_id":      result.TradeID,
		"tx_hash":       result.TxHash,
		"status":        string(result.Status),
		"input_amount":  result.InputAmount,
		"output_amount": result.OutputAmount,
		"fee_amount":    result.FeeAmount,
		"explorer_url":  result.ExplorerURL,
	})
}

// executeErrorStatus separates client mistakes from upstream submission
// failures: a trade the venue rejected is a 500, not a 400.
func executeErrorStatus(err error) int {
	var pe *platforms.Error
	if errors.As(err, &pe) {
		switch {
		case platforms.IsPrepareOnly(err):
			return http.StatusBadRequest
		case platforms.IsNotFound(err):
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}
	var ee *trading.ExecutionError
	if errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	return errorStatus(err)
}
