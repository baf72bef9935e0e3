package httpapi

import (
	"net/http"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/position"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/internal/middleware"
)

type positionResponse struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Platform      string    `json:"platform"`
	MarketID      string    `json:"market_id"`
	Outcome       string    `json:"outcome"`
	TokenAmount   string    `json:"token_amount"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPositionResponse(p position.Position) positionResponse {
	return positionResponse{
		ID:            p.ID,
		WalletAddress: p.WalletAddress,
		Platform:      p.Platform,
		MarketID:      p.MarketID,
		Outcome:       p.Outcome,
		TokenAmount:   p.TokenAmount,
		AvgEntryPrice: p.AvgEntryPrice,
		CurrentPrice:  p.CurrentPrice,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.KeyFromContext(r.Context())

	filter := storage.PositionFilter{
		APIKeyID:      key.ID,
		WalletAddress: r.URL.Query().Get("wallet_address"),
		Platform:      r.URL.Query().Get("platform"),
		Status:        r.URL.Query().Get("status"),
		Limit:         queryInt(r, "limit", 50, 200),
		Offset:        queryInt(r, "offset", 0, 0),
	}

	positions, err := h.app.Positions.List(r.Context(), filter)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": out, "count": len(out)})
}
