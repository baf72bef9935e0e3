// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/internal/app/domain/position"
	"github.com/spredd-labs/developer-api/internal/app/domain/trade"
	"github.com/spredd-labs/developer-api/internal/app/domain/usage"
	"github.com/spredd-labs/developer-api/internal/app/storage"

	"github.com/google/uuid"
)

// Store holds all records in process memory.
type Store struct {
	mu              sync.RWMutex
	accounts        map[string]apikey.Account
	accountsByEmail map[string]string
	keys            map[string]apikey.Key
	keysByHash      map[string]string
	trades          map[string]trade.Trade
	positions       map[string]position.Position
	requests        []usage.Record
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.APIKeyStore = (*Store)(nil)
var _ storage.TradeStore = (*Store)(nil)
var _ storage.PositionStore = (*Store)(nil)
var _ storage.UsageStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:        make(map[string]apikey.Account),
		accountsByEmail: make(map[string]string),
		keys:            make(map[string]apikey.Key),
		keysByHash:      make(map[string]string),
		trades:          make(map[string]trade.Trade),
		positions:       make(map[string]position.Position),
	}
}

// AccountStore implementation ------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct apikey.Account) (apikey.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(acct.Email)
	if _, exists := s.accountsByEmail[email]; exists {
		return apikey.Account{}, storage.ErrConflict
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	acct.CreatedAt = time.Now().UTC()
	acct.Active = true

	s.accounts[acct.ID] = acct
	s.accountsByEmail[email] = acct.ID
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (apikey.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return apikey.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (apikey.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByEmail[strings.ToLower(email)]
	if !ok {
		return apikey.Account{}, storage.ErrNotFound
	}
	return s.accounts[id], nil
}

// APIKeyStore implementation -------------------------------------------------

func (s *Store) CreateKey(_ context.Context, key apikey.Key) (apikey.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keysByHash[key.Hash]; exists {
		return apikey.Key{}, storage.ErrConflict
	}
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = time.Now().UTC()
	key.Active = true

	s.keys[key.ID] = key
	s.keysByHash[key.Hash] = key.ID
	return key, nil
}

func (s *Store) GetKey(_ context.Context, id string) (apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return apikey.Key{}, storage.ErrNotFound
	}
	return key, nil
}

func (s *Store) GetKeyByHash(_ context.Context, hash string) (apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keysByHash[hash]
	if !ok {
		return apikey.Key{}, storage.ErrNotFound
	}
	return s.keys[id], nil
}

func (s *Store) ListKeys(_ context.Context, accountID string) ([]apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []apikey.Key
	for _, k := range s.keys {
		if k.AccountID == accountID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeactivateKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrNotFound
	}
	key.Active = false
	s.keys[id] = key
	return nil
}

func (s *Store) TouchKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrNotFound
	}
	key.LastUsedAt = at
	s.keys[id] = key
	return nil
}

// TradeStore implementation --------------------------------------------------

func (s *Store) CreateTrade(_ context.Context, t trade.Trade) (trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	s.trades[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTrade(_ context.Context, t trade.Trade) (trade.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.trades[t.ID]
	if !ok {
		return trade.Trade{}, storage.ErrNotFound
	}
	t.CreatedAt = existing.CreatedAt
	s.trades[t.ID] = t
	return t, nil
}

func (s *Store) GetTrade(_ context.Context, id string) (trade.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[id]
	if !ok {
		return trade.Trade{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) TradeStatsSince(_ context.Context, keyIDs []string, since time.Time) (storage.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[string]bool, len(keyIDs))
	for _, id := range keyIDs {
		members[id] = true
	}

	var stats storage.TradeStats
	for _, t := range s.trades {
		if !members[t.APIKeyID] || t.CreatedAt.Before(since) {
			continue
		}
		stats.Count++
		stats.Volume += parseAmount(t.InputAmount)
		stats.Fees += parseAmount(t.FeeAmount)
	}
	return stats, nil
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// PositionStore implementation -----------------------------------------------

func positionKey(apiKeyID, wallet, platform, marketID, outcome string) string {
	return strings.Join([]string{apiKeyID, wallet, platform, marketID, outcome}, "|")
}

func (s *Store) GetPosition(_ context.Context, apiKeyID, wallet, platform, marketID, outcome string) (position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[positionKey(apiKeyID, wallet, platform, marketID, outcome)]
	if !ok {
		return position.Position{}, storage.ErrNotFound
	}
	return pos, nil
}

func (s *Store) CreatePosition(_ context.Context, pos position.Position) (position.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(pos.APIKeyID, pos.WalletAddress, pos.Platform, pos.MarketID, pos.Outcome)
	if _, exists := s.positions[key]; exists {
		return position.Position{}, storage.ErrConflict
	}
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now
	s.positions[key] = pos
	return pos, nil
}

func (s *Store) UpdatePosition(_ context.Context, pos position.Position) (position.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(pos.APIKeyID, pos.WalletAddress, pos.Platform, pos.MarketID, pos.Outcome)
	existing, ok := s.positions[key]
	if !ok {
		return position.Position{}, storage.ErrNotFound
	}
	pos.ID = existing.ID
	pos.CreatedAt = existing.CreatedAt
	pos.UpdatedAt = time.Now().UTC()
	s.positions[key] = pos
	return pos, nil
}

func (s *Store) ListPositions(_ context.Context, filter storage.PositionFilter) ([]position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []position.Position
	for _, p := range s.positions {
		if filter.APIKeyID != "" && p.APIKeyID != filter.APIKeyID {
			continue
		}
		if filter.WalletAddress != "" && p.WalletAddress != filter.WalletAddress {
			continue
		}
		if filter.Platform != "" && p.Platform != filter.Platform {
			continue
		}
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UsageStore implementation --------------------------------------------------

func (s *Store) RecordRequest(_ context.Context, rec usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.requests = append(s.requests, rec)
	return nil
}

func (s *Store) CountRequestsSince(_ context.Context, keyIDs []string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[string]bool, len(keyIDs))
	for _, id := range keyIDs {
		members[id] = true
	}

	var count int64
	for _, rec := range s.requests {
		if members[rec.APIKeyID] && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
