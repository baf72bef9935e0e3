package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/app/services/markets"
)

type marketResponse struct {
	Platform        string   `json:"platform"`
	Chain           string   `json:"chain"`
	MarketID        string   `json:"market_id"`
	EventID         string   `json:"event_id,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Category        string   `json:"category,omitempty"`
	YesPrice        *float64 `json:"yes_price"`
	NoPrice         *float64 `json:"no_price"`
	Volume24h       float64  `json:"volume_24h"`
	Liquidity       float64  `json:"liquidity"`
	Active          bool     `json:"is_active"`
	CloseTime       string   `json:"end_date,omitempty"`
	OutcomeName     string   `json:"outcome_name,omitempty"`
	MultiOutcome    bool     `json:"is_multi_outcome,omitempty"`
	Outcomes        []string `json:"outcomes,omitempty"`
	CollateralToken string   `json:"collateral_token,omitempty"`
	URL             string   `json:"url,omitempty"`
}

func toMarketResponse(m market.Market) marketResponse {
	resp := marketResponse{
		Platform:        string(m.Platform),
		Chain:           string(m.Chain),
		MarketID:        m.ID,
		EventID:         m.EventID,
		Title:           m.Title,
		Description:     m.Description,
		Category:        m.Category,
		Volume24h:       m.Volume24h,
		Liquidity:       m.Liquidity,
		Active:          m.Active,
		CloseTime:       m.CloseTime,
		OutcomeName:     m.OutcomeName,
		MultiOutcome:    m.MultiOutcome,
		Outcomes:        m.Outcomes,
		CollateralToken: m.CollateralToken,
		URL:             m.URL,
	}
	if m.HasPrices {
		yes, no := m.YesPrice, m.NoPrice
		resp.YesPrice = &yes
		resp.NoPrice = &no
	}
	return resp
}

func (h *handler) listPlatforms(w http.ResponseWriter, _ *http.Request) {
	infos := h.app.Markets.Platforms()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": infos,
		"count":     len(infos),
	})
}

func (h *handler) listMarkets(w http.ResponseWriter, r *http.Request) {
	params := markets.ListParams{
		Platform: r.URL.Query().Get("platform"),
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Active:   queryBool(r, "active", true),
		Limit:    queryInt(r, "limit", 20, 100),
		Offset:   queryInt(r, "offset", 0, 0),
	}

	list, err := h.app.Markets.List(r.Context(), params)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	out := make([]marketResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": out, "count": len(out)})
}

func (h *handler) getMarket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := h.app.Markets.Get(r.Context(), vars["platform"], vars["market_id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

type orderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

func (h *handler) getOrderBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	outcome, err := market.ParseOutcome(defaultStr(r.URL.Query().Get("outcome"), string(market.OutcomeYes)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	book, err := h.app.Markets.OrderBook(r.Context(), vars["platform"], vars["market_id"], outcome)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	bids := make([]orderBookLevel, 0, len(book.Bids))
	for _, lv := range book.Bids {
		bids = append(bids, orderBookLevel{Price: lv.Price, Size: lv.Size})
	}
	asks := make([]orderBookLevel, 0, len(book.Asks))
	for _, lv := range book.Asks {
		asks = append(asks, orderBookLevel{Price: lv.Price, Size: lv.Size})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"market_id": book.MarketID,
		"platform":  vars["platform"],
		"outcome":   string(book.Outcome),
		"bids":      bids,
		"asks":      asks,
	})
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
