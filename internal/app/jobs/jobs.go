// Package jobs runs the scheduled background work: market cache refresh
// and feed snapshot warming.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	feedsvc "github.com/spredd-labs/developer-api/internal/app/services/feed"
	"github.com/spredd-labs/developer-api/internal/app/system"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// Scheduler owns the cron runner. Each job gets a bounded context so a
// stuck upstream cannot pile up overlapping runs.
type Scheduler struct {
	registry *platforms.Registry
	feed     *feedsvc.Service
	log      *logger.Logger

	cacheRefreshEvery time.Duration
	snapshotEvery     time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates the background job runner.
func NewScheduler(registry *platforms.Registry, feed *feedsvc.Service, cacheRefreshEvery, snapshotEvery time.Duration, log *logger.Logger) *Scheduler {
	if cacheRefreshEvery <= 0 {
		cacheRefreshEvery = 2 * time.Minute
	}
	if snapshotEvery <= 0 {
		snapshotEvery = 25 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Scheduler{
		registry:          registry,
		feed:              feed,
		log:               log,
		cacheRefreshEvery: cacheRefreshEvery,
		snapshotEvery:     snapshotEvery,
	}
}

func (s *Scheduler) Name() string { return "job-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	runner := cron.New()

	if _, err := runner.AddFunc("@every "+s.cacheRefreshEvery.String(), func() {
		s.refreshMarketCaches(runCtx)
	}); err != nil {
		cancel()
		return err
	}
	if s.feed != nil {
		if _, err := runner.AddFunc("@every "+s.snapshotEvery.String(), func() {
			s.warmSnapshot(runCtx)
		}); err != nil {
			cancel()
			return err
		}
	}

	runner.Start()
	s.cron = runner
	s.cancel = cancel
	s.running = true
	s.log.Info("job scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	runner := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	cancel()
	done := runner.Stop().Done()
	select {
	case <-done:
		s.log.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refreshMarketCaches re-lists every platform. A listing that finds an
// expired cache refetches and repopulates it, so API requests rarely pay for
// a cold upstream fetch themselves.
func (s *Scheduler) refreshMarketCaches(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cacheRefreshEvery)
	defer cancel()

	start := time.Now()
	for _, adapter := range s.registry.All() {
		if _, err := adapter.Markets(runCtx, platforms.ListOptions{ActiveOnly: true}); err != nil {
			s.log.WithError(err).WithField("platform", adapter.Info().Slug).Warn("market listing refresh failed")
		}
	}
	s.log.WithField("elapsed", time.Since(start).String()).Debug("market listings refreshed")
}

// warmSnapshot repopulates the shared feed snapshot before its TTL lapses
// so sync and websocket consumers rarely hit a cold cache.
func (s *Scheduler) warmSnapshot(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.snapshotEvery)
	defer cancel()

	if _, err := s.feed.Sync(runCtx); err != nil {
		s.log.WithError(err).Warn("feed snapshot warm failed")
	}
}
