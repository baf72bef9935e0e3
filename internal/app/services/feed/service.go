// Package feed serves low-latency odds snapshots for downstream consumers,
// with a rotating canary market for staleness detection.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/feed"
	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Platforms are the venues included in feed payloads. Myriad is excluded:
// its listing latency is too high for feed consumers.
var Platforms = []string{"polymarket", "kalshi", "limitless", "opinion"}

// ListParams narrow a feed market listing.
type ListParams struct {
	Platform string
	Search   string
	Category string
	Active   bool
	Limit    int
	Offset   int
}

// Service converts adapter markets into feed payloads.
type Service struct {
	registry      *platforms.Registry
	canary        *CanaryGenerator
	canaryEnabled bool
	cache         *SnapshotCache
	log           *logger.Logger
}

// New constructs the feed service.
func New(registry *platforms.Registry, canary *CanaryGenerator, canaryEnabled bool, cache *SnapshotCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("feed")
	}
	return &Service{
		registry:      registry,
		canary:        canary,
		canaryEnabled: canaryEnabled,
		cache:         cache,
		log:           log,
	}
}

// ValidPlatform reports whether a slug is served by the feed.
func ValidPlatform(slug string) bool {
	for _, p := range Platforms {
		if p == slug {
			return true
		}
	}
	return false
}

func nowMs() int64 { return time.Now().UnixMilli() }

// ToOdds converts a market to its feed odds snapshot.
func ToOdds(m market.Market) feed.MarketOdds {
	outcomes := map[string]float64{}
	if m.HasPrices {
		outcomes["yes"] = m.YesPrice
		outcomes["no"] = m.NoPrice
	}
	return feed.MarketOdds{
		MarketID:    m.ID,
		Platform:    string(m.Platform),
		Title:       m.Title,
		Outcomes:    outcomes,
		Volume24h:   optFloat(m.Volume24h),
		Liquidity:   optFloat(m.Liquidity),
		LastUpdated: nowMs(),
	}
}

// ToMetadata converts a market to its feed metadata view, pulling resolution
// details out of the platform's raw payload.
func ToMetadata(m market.Market) feed.MarketMetadata {
	resolved := rawBool(m.Raw, "is_resolved") || rawBool(m.Raw, "resolved")
	status := "closed"
	if resolved {
		status = "resolved"
	} else if m.Active {
		status = "active"
	}
	return feed.MarketMetadata{
		MarketID:          m.ID,
		Platform:          string(m.Platform),
		Title:             m.Title,
		Description:       m.Description,
		Category:          m.Category,
		ResolutionSource:  rawString(m.Raw, "resolution_source"),
		EndDate:           m.CloseTime,
		CreatedDate:       firstRawString(m.Raw, "created_at", "created_date"),
		Status:            status,
		ResolutionOutcome: firstRawString(m.Raw, "resolution", "winning_outcome"),
		VolumeTotal:       optFloat(m.Volume24h),
	}
}

// ToResolution converts a market to its resolution view.
func ToResolution(m market.Market) feed.ResolutionStatus {
	rs := feed.ResolutionStatus{
		MarketID:       m.ID,
		Platform:       string(m.Platform),
		Resolved:       rawBool(m.Raw, "is_resolved") || rawBool(m.Raw, "resolved"),
		WinningOutcome: firstRawString(m.Raw, "resolution", "winning_outcome"),
	}
	for _, key := range []string{"resolution_timestamp", "resolved_at"} {
		if v, ok := m.Raw[key]; ok {
			if ts, ok := v.(float64); ok {
				n := int64(ts)
				rs.ResolutionTimestamp = &n
				break
			}
		}
	}
	return rs
}

// ToOrderBook converts an adapter order book to its feed shape.
func ToOrderBook(ob market.OrderBook, platform string) feed.OrderBook {
	out := feed.OrderBook{
		MarketID:    ob.MarketID,
		Platform:    platform,
		Outcome:     string(ob.Outcome),
		Bids:        []feed.OrderBookLevel{},
		Asks:        []feed.OrderBookLevel{},
		LastUpdated: nowMs(),
	}
	for _, lv := range ob.Bids {
		out.Bids = append(out.Bids, feed.OrderBookLevel{Price: lv.Price, Quantity: lv.Size})
	}
	for _, lv := range ob.Asks {
		out.Asks = append(out.Asks, feed.OrderBookLevel{Price: lv.Price, Quantity: lv.Size})
	}
	return out
}

// List returns odds for feed platforms with the canary appended.
func (s *Service) List(ctx context.Context, params ListParams) ([]feed.MarketOdds, error) {
	if params.Limit <= 0 || params.Limit > 2000 {
		params.Limit = 100
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	slugs := Platforms
	if params.Platform != "" {
		slugs = []string{params.Platform}
	}

	var odds []feed.MarketOdds
	for _, slug := range slugs {
		adapter, ok := s.registry.Get(slug)
		if !ok {
			continue
		}
		var (
			found []market.Market
			err   error
		)
		if params.Search != "" {
			found, err = adapter.SearchMarkets(ctx, params.Search, params.Limit)
		} else {
			found, err = adapter.Markets(ctx, platforms.ListOptions{
				Limit:      params.Limit,
				Offset:     params.Offset,
				ActiveOnly: params.Active,
			})
		}
		if err != nil {
			s.log.WithError(err).WithField("platform", slug).Warn("feed listing failed")
			continue
		}
		for _, m := range found {
			if params.Category != "" && m.Category != "" && !strings.EqualFold(m.Category, params.Category) {
				continue
			}
			odds = append(odds, ToOdds(m))
		}
	}

	odds = s.appendCanary(odds)
	if len(odds) > params.Limit {
		odds = odds[:params.Limit]
	}
	return odds, nil
}

// Sync returns the full active-market snapshot across feed platforms,
// serving the cached snapshot when one is fresh. The canary is not included;
// callers append it with WithCanary.
func (s *Service) Sync(ctx context.Context) ([]feed.MarketOdds, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	var odds []feed.MarketOdds
	for _, slug := range Platforms {
		adapter, ok := s.registry.Get(slug)
		if !ok {
			continue
		}
		found, err := adapter.Markets(ctx, platforms.ListOptions{Limit: 2000, ActiveOnly: true})
		if err != nil {
			s.log.WithError(err).WithField("platform", slug).Warn("feed sync failed")
			continue
		}
		for _, m := range found {
			odds = append(odds, ToOdds(m))
		}
	}

	if s.cache != nil {
		s.cache.Put(ctx, odds)
	}
	return odds, nil
}

// WithCanary appends the canary market when enabled.
func (s *Service) WithCanary(odds []feed.MarketOdds) []feed.MarketOdds {
	return s.appendCanary(odds)
}

// Market returns the odds view of a single market.
func (s *Service) Market(ctx context.Context, platform, marketID string) (feed.MarketOdds, error) {
	m, err := s.lookup(ctx, platform, marketID)
	if err != nil {
		return feed.MarketOdds{}, err
	}
	return ToOdds(m), nil
}

// Metadata returns the metadata view of a single market.
func (s *Service) Metadata(ctx context.Context, platform, marketID string) (feed.MarketMetadata, error) {
	m, err := s.lookup(ctx, platform, marketID)
	if err != nil {
		return feed.MarketMetadata{}, err
	}
	return ToMetadata(m), nil
}

// Resolution returns the resolution view of a single market.
func (s *Service) Resolution(ctx context.Context, platform, marketID string) (feed.ResolutionStatus, error) {
	m, err := s.lookup(ctx, platform, marketID)
	if err != nil {
		return feed.ResolutionStatus{}, err
	}
	return ToResolution(m), nil
}

// OrderBook returns the feed-shaped book for one outcome.
func (s *Service) OrderBook(ctx context.Context, platform, marketID string, outcome market.Outcome) (feed.OrderBook, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return feed.OrderBook{}, platformNotFound(platform)
	}
	ob, err := adapter.OrderBook(ctx, marketID, outcome)
	if err != nil {
		return feed.OrderBook{}, err
	}
	return ToOrderBook(ob, platform), nil
}

// Status probes each feed platform with a one-market listing.
func (s *Service) Status(ctx context.Context) []feed.PlatformHealth {
	now := nowMs()
	statuses := make([]feed.PlatformHealth, 0, len(Platforms))
	for _, slug := range Platforms {
		adapter, ok := s.registry.Get(slug)
		if !ok {
			statuses = append(statuses, feed.PlatformHealth{Platform: slug, LastCheck: now})
			continue
		}
		found, err := adapter.Markets(ctx, platforms.ListOptions{Limit: 1, ActiveOnly: true})
		statuses = append(statuses, feed.PlatformHealth{
			Platform:    slug,
			Healthy:     err == nil,
			LastCheck:   now,
			MarketCount: len(found),
		})
	}
	return statuses
}

// Canary returns the active canary market.
func (s *Service) Canary() feed.Canary {
	return s.canary.Current()
}

// Envelope wraps a payload with the response timestamp.
func Envelope(data interface{}) feed.Envelope {
	return feed.Envelope{DataTimestamp: nowMs(), Data: data}
}

func (s *Service) appendCanary(odds []feed.MarketOdds) []feed.MarketOdds {
	if !s.canaryEnabled {
		return odds
	}
	return append(odds, s.canary.Current().Odds())
}

func (s *Service) lookup(ctx context.Context, platform, marketID string) (market.Market, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return market.Market{}, platformNotFound(platform)
	}
	return adapter.Market(ctx, marketID)
}

func platformNotFound(slug string) error {
	return &platforms.Error{Platform: market.Platform(slug), Code: "not_found", Message: "platform " + slug + " not found"}
}

func optFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func rawString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func firstRawString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v := rawString(raw, key); v != "" {
			return v
		}
	}
	return ""
}

func rawBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	v, _ := raw[key].(bool)
	return v
}
