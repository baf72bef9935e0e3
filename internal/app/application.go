// Package app wires the domain services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/spredd-labs/developer-api/internal/app/jobs"
	"github.com/spredd-labs/developer-api/internal/app/services/arbitrage"
	"github.com/spredd-labs/developer-api/internal/app/services/auth"
	feedsvc "github.com/spredd-labs/developer-api/internal/app/services/feed"
	marketsvc "github.com/spredd-labs/developer-api/internal/app/services/markets"
	"github.com/spredd-labs/developer-api/internal/app/services/positions"
	"github.com/spredd-labs/developer-api/internal/app/services/trading"
	usagesvc "github.com/spredd-labs/developer-api/internal/app/services/usage"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/internal/app/storage/memory"
	"github.com/spredd-labs/developer-api/internal/app/system"
	"github.com/spredd-labs/developer-api/internal/config"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts  storage.AccountStore
	Keys      storage.APIKeyStore
	Trades    storage.TradeStore
	Positions storage.PositionStore
	Usage     storage.UsageStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Registry  *platforms.Registry
	Auth      *auth.Service
	Markets   *marketsvc.Service
	Trading   *trading.Service
	Positions *positions.Service
	Arbitrage *arbitrage.Service
	Usage     *usagesvc.Service
	Feed      *feedsvc.Service
	FeedWS    *feedsvc.Broadcaster
}

// New builds a fully initialised application with the provided stores and
// platform registry.
func New(cfg *config.Config, stores Stores, registry *platforms.Registry, redisClient *redis.Client, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Keys == nil {
		stores.Keys = mem
	}
	if stores.Trades == nil {
		stores.Trades = mem
	}
	if stores.Positions == nil {
		stores.Positions = mem
	}
	if stores.Usage == nil {
		stores.Usage = mem
	}

	manager := system.NewManager()

	authService := auth.New(stores.Accounts, stores.Keys, log)
	positionService := positions.New(stores.Positions, log)
	marketService := marketsvc.New(registry, log)
	tradingService := trading.New(registry, stores.Trades, positionService, log)
	arbitrageService := arbitrage.New(registry, log)
	usageService := usagesvc.New(stores.Usage, stores.Trades, stores.Keys, log)

	canary := feedsvc.NewCanaryGenerator(time.Duration(cfg.Feed.CanaryIntervalSecs) * time.Second)
	cache := feedsvc.NewSnapshotCache(redisClient, time.Duration(cfg.Feed.SnapshotTTLSecs)*time.Second, log)
	feedService := feedsvc.New(registry, canary, cfg.Feed.CanaryEnabled, cache, log)
	broadcaster := feedsvc.NewBroadcaster(feedService, time.Duration(cfg.Feed.BroadcastIntervalMS)*time.Millisecond, log)

	scheduler := jobs.NewScheduler(registry, feedService,
		2*time.Minute,
		time.Duration(cfg.Feed.SnapshotTTLSecs)*time.Second, log)

	for _, svc := range []system.Service{broadcaster, scheduler} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Registry:  registry,
		Auth:      authService,
		Markets:   marketService,
		Trading:   tradingService,
		Positions: positionService,
		Arbitrage: arbitrageService,
		Usage:     usageService,
		Feed:      feedService,
		FeedWS:    broadcaster,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
