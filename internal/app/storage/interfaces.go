// Package storage declares the persistence interfaces the services depend on.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/internal/app/domain/position"
	"github.com/spredd-labs/developer-api/internal/app/domain/trade"
	"github.com/spredd-labs/developer-api/internal/app/domain/usage"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint would be violated.
var ErrConflict = errors.New("already exists")

// AccountStore persists developer accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct apikey.Account) (apikey.Account, error)
	GetAccount(ctx context.Context, id string) (apikey.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (apikey.Account, error)
}

// APIKeyStore persists issued API keys.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key apikey.Key) (apikey.Key, error)
	GetKey(ctx context.Context, id string) (apikey.Key, error)
	GetKeyByHash(ctx context.Context, hash string) (apikey.Key, error)
	ListKeys(ctx context.Context, accountID string) ([]apikey.Key, error)
	DeactivateKey(ctx context.Context, id string) error
	TouchKey(ctx context.Context, id string, at time.Time) error
}

// TradeStats aggregates trade totals for billing.
type TradeStats struct {
	Count  int64
	Volume float64
	Fees   float64
}

// TradeStore persists trade records.
type TradeStore interface {
	CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error)
	UpdateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error)
	GetTrade(ctx context.Context, id string) (trade.Trade, error)
	TradeStatsSince(ctx context.Context, keyIDs []string, since time.Time) (TradeStats, error)
}

// PositionFilter narrows position listings.
type PositionFilter struct {
	APIKeyID      string
	WalletAddress string
	Platform      string
	Status        string
	Limit         int
	Offset        int
}

// PositionStore persists aggregated positions.
type PositionStore interface {
	GetPosition(ctx context.Context, apiKeyID, wallet, platform, marketID, outcome string) (position.Position, error)
	CreatePosition(ctx context.Context, pos position.Position) (position.Position, error)
	UpdatePosition(ctx context.Context, pos position.Position) (position.Position, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]position.Position, error)
}

// UsageStore persists request-level usage records.
type UsageStore interface {
	RecordRequest(ctx context.Context, rec usage.Record) error
	CountRequestsSince(ctx context.Context, keyIDs []string, since time.Time) (int64, error)
}
