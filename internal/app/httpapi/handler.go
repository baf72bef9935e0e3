// Package httpapi exposes the REST and websocket API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/spredd-labs/developer-api/internal/app"
	"github.com/spredd-labs/developer-api/internal/app/metrics"
	"github.com/spredd-labs/developer-api/internal/app/services/auth"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/internal/middleware"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns the fully-wired API router.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	authMW := middleware.NewAPIKeyAuth(application.Auth, log)
	limiter := middleware.NewRateLimiter(log)
	usageMW := middleware.NewUsageRecorder(application.Usage)
	cors := middleware.NewCORSMiddleware([]string{"*"})

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Account and key management is credentialed by knowledge of the
	// account ID, not by an API key: signup has no key yet.
	authRoutes := v1.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	authRoutes.HandleFunc("/api-keys", h.createAPIKey).Methods(http.MethodPost)
	authRoutes.HandleFunc("/api-keys", h.listAPIKeys).Methods(http.MethodGet)
	authRoutes.HandleFunc("/api-keys/{id}", h.revokeAPIKey).Methods(http.MethodDelete)

	// The websocket carries its key as a query parameter and manages its
	// own lifecycle, so it sits outside the middleware chain.
	v1.HandleFunc("/feed/ws", h.feedWebsocket).Methods(http.MethodGet)

	api := v1.NewRoute().Subrouter()
	api.Use(authMW.Handler, usageMW.Handler)

	requests := api.NewRoute().Subrouter()
	requests.Use(limiter.RequestLimit)
	requests.HandleFunc("/platforms", h.listPlatforms).Methods(http.MethodGet)
	requests.HandleFunc("/markets", h.listMarkets).Methods(http.MethodGet)
	requests.HandleFunc("/markets/{platform}/{market_id}", h.getMarket).Methods(http.MethodGet)
	requests.HandleFunc("/markets/{platform}/{market_id}/orderbook", h.getOrderBook).Methods(http.MethodGet)
	requests.HandleFunc("/positions", h.listPositions).Methods(http.MethodGet)
	requests.HandleFunc("/arbitrage", h.arbitrage).Methods(http.MethodGet)
	requests.HandleFunc("/feed/markets", h.feedMarkets).Methods(http.MethodGet)
	requests.HandleFunc("/feed/markets/{platform}/{market_id}", h.feedMarket).Methods(http.MethodGet)
	requests.HandleFunc("/feed/markets/{platform}/{market_id}/orderbook", h.feedOrderBook).Methods(http.MethodGet)
	requests.HandleFunc("/feed/markets/{platform}/{market_id}/metadata", h.feedMetadata).Methods(http.MethodGet)
	requests.HandleFunc("/feed/markets/{platform}/{market_id}/resolution", h.feedResolution).Methods(http.MethodGet)
	requests.HandleFunc("/feed/platforms/status", h.feedStatus).Methods(http.MethodGet)
	requests.HandleFunc("/feed/sync", h.feedSync).Methods(http.MethodGet)

	trades := api.NewRoute().Subrouter()
	trades.Use(limiter.TradeLimit)
	trades.HandleFunc("/trading/quote", h.quote).Methods(http.MethodPost)
	trades.HandleFunc("/trading/prepare", h.prepare).Methods(http.MethodPost)
	trades.HandleFunc("/trading/execute", h.execute).Methods(http.MethodPost)

	api.HandleFunc("/usage", h.usage).Methods(http.MethodGet)

	return cors.Handler(metrics.InstrumentHandler(r))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON renders a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders the "detail" error envelope clients already parse.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound) || platforms.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden
	case platforms.IsRateLimited(err):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func queryBool(r *http.Request, name string, def bool) bool {
	raw := strings.ToLower(r.URL.Query().Get(name))
	switch raw {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

func queryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
