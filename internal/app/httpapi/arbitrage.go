package httpapi

import (
	"net/http"
	"time"
)

func (h *handler) arbitrage(w http.ResponseWriter, r *http.Request) {
	minSpread := queryFloat(r, "min_spread", 0.02)
	limit := queryInt(r, "limit", 20, 50)

	opportunities, err := h.app.Arbitrage.Scan(r.Context(), minSpread, limit)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": opportunities,
		"count":         len(opportunities),
		"min_spread":    minSpread,
		"scanned_at":    time.Now().UTC().Format(time.RFC3339),
	})
}
