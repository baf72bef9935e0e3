// Package usage logs API requests and aggregates billing-period totals.
package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/usage"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Service records per-request usage and summarizes billing periods.
type Service struct {
	records storage.UsageStore
	trades  storage.TradeStore
	keys    storage.APIKeyStore
	log     *logger.Logger
}

// New constructs the usage service.
func New(records storage.UsageStore, trades storage.TradeStore, keys storage.APIKeyStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("usage")
	}
	return &Service{records: records, trades: trades, keys: keys, log: log}
}

// Record logs one API request. Failures are logged, not surfaced: usage
// accounting must never fail a request that already succeeded.
func (s *Service) Record(ctx context.Context, rec usage.Record) {
	if err := s.records.RecordRequest(ctx, rec); err != nil {
		s.log.WithError(err).WithField("endpoint", rec.Endpoint).Warn("record usage")
	}
}

// CurrentPeriod returns the calendar-month billing window containing now.
func CurrentPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// CurrentUsage summarizes the current billing period across every key an
// account has issued.
func (s *Service) CurrentUsage(ctx context.Context, accountID string) (usage.PeriodUsage, error) {
	start, end := CurrentPeriod(time.Now())
	summary := usage.PeriodUsage{
		PeriodStart: start,
		PeriodEnd:   end,
		TotalVolume: "0",
		TotalFees:   "0",
	}

	keys, err := s.keys.ListKeys(ctx, accountID)
	if err != nil {
		return usage.PeriodUsage{}, err
	}
	if len(keys) == 0 {
		return summary, nil
	}
	keyIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		keyIDs = append(keyIDs, k.ID)
	}

	requests, err := s.records.CountRequestsSince(ctx, keyIDs, start)
	if err != nil {
		return usage.PeriodUsage{}, err
	}
	stats, err := s.trades.TradeStatsSince(ctx, keyIDs, start)
	if err != nil {
		return usage.PeriodUsage{}, err
	}

	summary.TotalRequests = requests
	summary.TotalTrades = stats.Count
	summary.TotalVolume = strconv.FormatFloat(stats.Volume, 'f', -1, 64)
	summary.TotalFees = strconv.FormatFloat(stats.Fees, 'f', -1, 64)
	return summary, nil
}
