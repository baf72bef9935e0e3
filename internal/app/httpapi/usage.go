package httpapi

import (
	"net/http"

	"github.com/spredd-labs/developer-api/internal/middleware"
)

func (h *handler) usage(w http.ResponseWriter, r *http.Request) {
	key, _ := middleware.KeyFromContext(r.Context())

	period, err := h.app.Usage.CurrentUsage(r.Context(), key.AccountID)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_key_id":     key.ID,
		"key_prefix":     key.Prefix,
		"tier":           string(key.Tier),
		"rate_limit_rpm": key.RateRPM,
		"rate_limit_tpm": key.RateTPM,
		"usage":          period,
	})
}
