package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	domain "github.com/spredd-labs/developer-api/internal/app/domain/feed"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

const snapshotKey = "feed:snapshot"

// SnapshotCache keeps the latest full-market snapshot in Redis so sync
// requests and websocket broadcasts reuse one upstream sweep.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewSnapshotCache wraps a Redis client. A nil client disables caching.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *SnapshotCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("feed-cache")
	}
	return &SnapshotCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached snapshot when present and fresh.
func (c *SnapshotCache) Get(ctx context.Context) ([]domain.MarketOdds, bool) {
	raw, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("read feed snapshot")
		}
		return nil, false
	}
	var odds []domain.MarketOdds
	if err := json.Unmarshal(raw, &odds); err != nil {
		c.log.WithError(err).Warn("decode feed snapshot")
		return nil, false
	}
	return odds, true
}

// Put stores the snapshot with the cache TTL. Failures are logged only.
func (c *SnapshotCache) Put(ctx context.Context, odds []domain.MarketOdds) {
	raw, err := json.Marshal(odds)
	if err != nil {
		c.log.WithError(err).Warn("encode feed snapshot")
		return
	}
	if err := c.client.Set(ctx, snapshotKey, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("write feed snapshot")
	}
}
