package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	feedsvc "github.com/spredd-labs/developer-api/internal/app/services/feed"
)

// checkFeedPlatform rejects slugs the feed does not serve, Myriad included.
func checkFeedPlatform(w http.ResponseWriter, slug string) bool {
	if slug != "" && !feedsvc.ValidPlatform(slug) {
		writeError(w, http.StatusNotFound, fmt.Errorf("platform %q is not available on the feed", slug))
		return false
	}
	return true
}

func (h *handler) feedMarkets(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if !checkFeedPlatform(w, platform) {
		return
	}

	odds, err := h.app.Feed.List(r.Context(), feedsvc.ListParams{
		Platform: platform,
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Active:   queryBool(r, "active", true),
		Limit:    queryInt(r, "limit", 100, 2000),
		Offset:   queryInt(r, "offset", 0, 0),
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(odds))
}

func (h *handler) feedMarket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !checkFeedPlatform(w, vars["platform"]) {
		return
	}

	odds, err := h.app.Feed.Market(r.Context(), vars["platform"], vars["market_id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(odds))
}

func (h *handler) feedOrderBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !checkFeedPlatform(w, vars["platform"]) {
		return
	}
	outcome, err := market.ParseOutcome(defaultStr(r.URL.Query().Get("outcome"), string(market.OutcomeYes)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	book, err := h.app.Feed.OrderBook(r.Context(), vars["platform"], vars["market_id"], outcome)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(book))
}

func (h *handler) feedMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !checkFeedPlatform(w, vars["platform"]) {
		return
	}

	meta, err := h.app.Feed.Metadata(r.Context(), vars["platform"], vars["market_id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(meta))
}

func (h *handler) feedResolution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !checkFeedPlatform(w, vars["platform"]) {
		return
	}

	res, err := h.app.Feed.Resolution(r.Context(), vars["platform"], vars["market_id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(res))
}

func (h *handler) feedStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, feedsvc.Envelope(h.app.Feed.Status(r.Context())))
}

func (h *handler) feedSync(w http.ResponseWriter, r *http.Request) {
	odds, err := h.app.Feed.Sync(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, feedsvc.Envelope(h.app.Feed.WithCanary(odds)))
}
