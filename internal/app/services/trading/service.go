// Package trading prices, prepares, and executes trades across platforms.
package trading

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/internal/app/domain/trade"
	"github.com/spredd-labs/developer-api/internal/app/metrics"
	"github.com/spredd-labs/developer-api/internal/app/services/positions"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// ExecutionError reports a submission the venue accepted and then rejected.
// It is not a client mistake, so handlers surface it as a server error.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	if e.Reason == "" {
		return "trade execution failed"
	}
	return e.Reason
}

// Request identifies the trade being priced or placed.
type Request struct {
	Platform      string
	MarketID      string
	Outcome       market.Outcome
	Side          market.Side
	Amount        float64
	WalletAddress string
}

// QuoteResult wraps an adapter quote with the embedded fee.
type QuoteResult struct {
	Quote     market.Quote
	FeeAmount float64
	FeeBps    int
}

// ExecuteResult is the outcome of a server-side submission.
type ExecuteResult struct {
	TradeID      string
	TxHash       string
	Status       trade.Status
	InputAmount  float64
	OutputAmount float64
	FeeAmount    float64
	ExplorerURL  string
}

// Service coordinates adapters, trade records, and position tracking.
type Service struct {
	registry  *platforms.Registry
	trades    storage.TradeStore
	positions *positions.Service
	log       *logger.Logger
}

// New constructs the trading service.
func New(registry *platforms.Registry, trades storage.TradeStore, pos *positions.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trading")
	}
	return &Service{registry: registry, trades: trades, positions: pos, log: log}
}

func (s *Service) adapter(platform string) (platforms.Adapter, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("platform %q not found", platform)
	}
	return adapter, nil
}

func (s *Service) validate(req Request) error {
	if req.MarketID == "" {
		return fmt.Errorf("market_id is required")
	}
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// Quote prices a trade without recording anything.
func (s *Service) Quote(ctx context.Context, req Request) (QuoteResult, error) {
	if err := s.validate(req); err != nil {
		return QuoteResult{}, err
	}
	adapter, err := s.adapter(req.Platform)
	if err != nil {
		return QuoteResult{}, err
	}

	start := time.Now()
	quote, err := adapter.Quote(ctx, platforms.QuoteParams{
		MarketID: req.MarketID,
		Outcome:  req.Outcome,
		Side:     req.Side,
		Amount:   req.Amount,
	})
	metrics.RecordTrade(req.Platform, "quote", statusLabel(err), time.Since(start))
	if err != nil {
		return QuoteResult{}, err
	}

	return QuoteResult{
		Quote:     quote,
		FeeAmount: CalculateFee(req.Amount),
		FeeBps:    FeeBps,
	}, nil
}

// Prepare builds the unsigned transactions for a trade and records it.
func (s *Service) Prepare(ctx context.Context, apiKeyID string, req Request) ([]market.PreparedTx, QuoteResult, error) {
	if err := s.validate(req); err != nil {
		return nil, QuoteResult{}, err
	}
	if req.WalletAddress == "" {
		return nil, QuoteResult{}, fmt.Errorf("wallet_address is required")
	}
	adapter, err := s.adapter(req.Platform)
	if err != nil {
		return nil, QuoteResult{}, err
	}

	start := time.Now()
	txs, quote, err := adapter.Prepare(ctx, platforms.QuoteParams{
		MarketID: req.MarketID,
		Outcome:  req.Outcome,
		Side:     req.Side,
		Amount:   req.Amount,
	}, req.WalletAddress)
	metrics.RecordTrade(req.Platform, "prepare", statusLabel(err), time.Since(start))
	if err != nil {
		return nil, QuoteResult{}, err
	}

	fee := CalculateFee(req.Amount)
	if _, err := s.trades.CreateTrade(ctx, trade.Trade{
		APIKeyID:      apiKeyID,
		WalletAddress: req.WalletAddress,
		Platform:      req.Platform,
		Chain:         string(adapter.Info().Chain),
		MarketID:      req.MarketID,
		Outcome:       string(req.Outcome),
		Side:          string(req.Side),
		InputAmount:   formatAmount(req.Amount),
		Price:         quote.PricePerToken,
		FeeAmount:     formatAmount(fee),
		Status:        trade.StatusPrepared,
		Mode:          trade.ModePrepare,
	}); err != nil {
		s.log.WithError(err).Warn("record prepared trade")
	}

	return txs, QuoteResult{Quote: quote, FeeAmount: fee, FeeBps: FeeBps}, nil
}

// Execute submits a trade server-side. The private key is used in memory
// only and never stored. Successful buys update the caller's position.
func (s *Service) Execute(ctx context.Context, apiKeyID string, req Request, privateKey string) (ExecuteResult, error) {
	if err := s.validate(req); err != nil {
		return ExecuteResult{}, err
	}
	if req.WalletAddress == "" {
		return ExecuteResult{}, fmt.Errorf("wallet_address is required")
	}
	if privateKey == "" {
		return ExecuteResult{}, fmt.Errorf("private_key is required")
	}
	adapter, err := s.adapter(req.Platform)
	if err != nil {
		return ExecuteResult{}, err
	}

	fee := CalculateFee(req.Amount)
	rec, err := s.trades.CreateTrade(ctx, trade.Trade{
		APIKeyID:      apiKeyID,
		WalletAddress: req.WalletAddress,
		Platform:      req.Platform,
		Chain:         string(adapter.Info().Chain),
		MarketID:      req.MarketID,
		Outcome:       string(req.Outcome),
		Side:          string(req.Side),
		InputAmount:   formatAmount(req.Amount),
		FeeAmount:     formatAmount(fee),
		Status:        trade.StatusSubmitted,
		Mode:          trade.ModeExecute,
	})
	if err != nil {
		return ExecuteResult{}, err
	}

	start := time.Now()
	quote, err := adapter.Quote(ctx, platforms.QuoteParams{
		MarketID: req.MarketID,
		Outcome:  req.Outcome,
		Side:     req.Side,
		Amount:   req.Amount,
	})
	if err != nil {
		s.failTrade(ctx, rec)
		metrics.RecordTrade(req.Platform, "execute", "failed", time.Since(start))
		return ExecuteResult{}, err
	}

	result, err := adapter.Execute(ctx, quote, privateKey)
	metrics.RecordTrade(req.Platform, "execute", executeLabel(result, err), time.Since(start))
	if err != nil {
		s.failTrade(ctx, rec)
		return ExecuteResult{}, err
	}

	rec.TxHash = result.TxHash
	rec.Price = quote.PricePerToken
	if result.OutputAmount > 0 {
		rec.OutputAmount = formatAmount(result.OutputAmount)
	}
	if result.Success {
		rec.Status = trade.StatusConfirmed
	} else {
		rec.Status = trade.StatusFailed
	}
	if _, err := s.trades.UpdateTrade(ctx, rec); err != nil {
		s.log.WithError(err).WithField("trade_id", rec.ID).Warn("update trade record")
	}

	if result.Success && req.Side == market.SideBuy && s.positions != nil {
		if _, err := s.positions.Apply(ctx, positions.Fill{
			APIKeyID:      apiKeyID,
			WalletAddress: req.WalletAddress,
			Platform:      req.Platform,
			MarketID:      req.MarketID,
			Outcome:       string(req.Outcome),
			TokenAmount:   quote.ExpectedOutput,
			EntryPrice:    quote.PricePerToken,
			CurrentPrice:  quote.PricePerToken,
		}); err != nil {
			s.log.WithError(err).Warn("track position")
		}
	}

	if !result.Success {
		return ExecuteResult{TradeID: rec.ID, Status: trade.StatusFailed}, &ExecutionError{Reason: result.ErrorMessage}
	}

	return ExecuteResult{
		TradeID:      rec.ID,
		TxHash:       result.TxHash,
		Status:       trade.StatusConfirmed,
		InputAmount:  quote.InputAmount,
		OutputAmount: result.OutputAmount,
		FeeAmount:    fee,
		ExplorerURL:  result.ExplorerURL,
	}, nil
}

func (s *Service) failTrade(ctx context.Context, rec trade.Trade) {
	rec.Status = trade.StatusFailed
	if _, err := s.trades.UpdateTrade(ctx, rec); err != nil {
		s.log.WithError(err).WithField("trade_id", rec.ID).Warn("mark trade failed")
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func executeLabel(result market.TradeResult, err error) string {
	if err != nil || !result.Success {
		return "failed"
	}
	return "confirmed"
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
