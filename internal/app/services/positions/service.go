// Package positions tracks aggregated holdings per API key and wallet.
package positions

import (
	"context"
	"errors"
	"strconv"

	"github.com/spredd-labs/developer-api/internal/app/domain/position"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Service maintains positions as trades fill.
type Service struct {
	store storage.PositionStore
	log   *logger.Logger
}

// New constructs the positions service.
func New(store storage.PositionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("positions")
	}
	return &Service{store: store, log: log}
}

// Fill describes one executed trade's effect on a position. TokenAmount is
// negative for sells.
type Fill struct {
	APIKeyID      string
	WalletAddress string
	Platform      string
	MarketID      string
	Outcome       string
	TokenAmount   float64
	EntryPrice    float64
	CurrentPrice  float64
}

// Apply upserts the position for a fill. An existing position gets a
// weighted-average entry price; a non-positive total closes it.
func (s *Service) Apply(ctx context.Context, fill Fill) (position.Position, error) {
	existing, err := s.store.GetPosition(ctx, fill.APIKeyID, fill.WalletAddress, fill.Platform, fill.MarketID, fill.Outcome)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return position.Position{}, err
		}
		created, err := s.store.CreatePosition(ctx, position.Position{
			APIKeyID:      fill.APIKeyID,
			WalletAddress: fill.WalletAddress,
			Platform:      fill.Platform,
			MarketID:      fill.MarketID,
			Outcome:       fill.Outcome,
			TokenAmount:   formatAmount(fill.TokenAmount),
			AvgEntryPrice: fill.EntryPrice,
			CurrentPrice:  fill.CurrentPrice,
			Status:        position.StatusOpen,
		})
		if err != nil {
			return position.Position{}, err
		}
		s.log.WithFields(map[string]interface{}{
			"platform":  fill.Platform,
			"market_id": fill.MarketID,
			"outcome":   fill.Outcome,
		}).Info("position opened")
		return created, nil
	}

	oldAmount, _ := strconv.ParseFloat(existing.TokenAmount, 64)
	newTotal := oldAmount + fill.TokenAmount
	if newTotal > 0 {
		existing.AvgEntryPrice = (existing.AvgEntryPrice*oldAmount + fill.EntryPrice*fill.TokenAmount) / newTotal
		existing.TokenAmount = formatAmount(newTotal)
	} else {
		existing.TokenAmount = "0"
		existing.Status = position.StatusClosed
	}
	if fill.CurrentPrice > 0 {
		existing.CurrentPrice = fill.CurrentPrice
	}
	return s.store.UpdatePosition(ctx, existing)
}

// List returns positions matching the filter, most recently updated first.
func (s *Service) List(ctx context.Context, filter storage.PositionFilter) ([]position.Position, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListPositions(ctx, filter)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
