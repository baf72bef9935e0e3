package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/internal/app/storage"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// ErrInvalidKey is returned when a presented credential fails authentication.
var ErrInvalidKey = errors.New("invalid or inactive API key")

// ErrAccountInactive is returned for operations on deactivated accounts.
var ErrAccountInactive = errors.New("account is deactivated")

// Service manages developer accounts, API key issuance, and authentication.
type Service struct {
	accounts storage.AccountStore
	keys     storage.APIKeyStore
	log      *logger.Logger
}

// New constructs the auth service.
func New(accounts storage.AccountStore, keys storage.APIKeyStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{accounts: accounts, keys: keys, log: log}
}

// Signup registers a developer account. Emails are unique.
func (s *Service) Signup(ctx context.Context, email, companyName string) (apikey.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return apikey.Account{}, fmt.Errorf("valid email is required")
	}

	if _, err := s.accounts.GetAccountByEmail(ctx, email); err == nil {
		return apikey.Account{}, fmt.Errorf("email already registered: %w", storage.ErrConflict)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return apikey.Account{}, err
	}

	acct, err := s.accounts.CreateAccount(ctx, apikey.Account{
		Email:       email,
		CompanyName: strings.TrimSpace(companyName),
		Active:      true,
	})
	if err != nil {
		return apikey.Account{}, err
	}

	s.log.WithField("account_id", acct.ID).Info("account created")
	return acct, nil
}

// CreatedKey pairs a stored key record with the full secret, which is only
// available at creation time.
type CreatedKey struct {
	Key     apikey.Key
	FullKey string
}

// CreateKey issues a new API key for an account at the given tier.
func (s *Service) CreateKey(ctx context.Context, accountID, label, tier string) (CreatedKey, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return CreatedKey{}, fmt.Errorf("account_id is required")
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return CreatedKey{}, err
	}
	if !acct.Active {
		return CreatedKey{}, ErrAccountInactive
	}

	if tier == "" {
		tier = string(apikey.TierFree)
	}
	parsed, ok := apikey.ParseTier(tier)
	if !ok {
		return CreatedKey{}, fmt.Errorf("invalid tier %q: must be free, builder, or pro", tier)
	}
	limits := apikey.TierLimits[parsed]

	full, prefix, hash, err := GenerateKey()
	if err != nil {
		return CreatedKey{}, err
	}

	key, err := s.keys.CreateKey(ctx, apikey.Key{
		AccountID: acct.ID,
		Prefix:    prefix,
		Hash:      hash,
		Label:     strings.TrimSpace(label),
		Tier:      parsed,
		RateRPM:   limits.RequestsPerMinute,
		RateTPM:   limits.TradesPerMinute,
		Active:    true,
	})
	if err != nil {
		return CreatedKey{}, err
	}

	s.log.WithFields(map[string]interface{}{
		"account_id": acct.ID,
		"key_prefix": prefix,
		"tier":       parsed,
	}).Info("api key issued")

	return CreatedKey{Key: key, FullKey: full}, nil
}

// ListKeys returns an account's keys, newest first.
func (s *Service) ListKeys(ctx context.Context, accountID string) ([]apikey.Key, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	return s.keys.ListKeys(ctx, accountID)
}

// RevokeKey deactivates a key. Revocation is permanent.
func (s *Service) RevokeKey(ctx context.Context, keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return fmt.Errorf("key_id is required")
	}
	if err := s.keys.DeactivateKey(ctx, keyID); err != nil {
		return err
	}
	s.log.WithField("key_id", keyID).Info("api key revoked")
	return nil
}

// Authenticate resolves a presented key to its record, updating the
// last-used timestamp. Invalid and inactive keys fail identically so callers
// cannot probe which keys exist.
func (s *Service) Authenticate(ctx context.Context, presented string) (apikey.Key, error) {
	if !ValidFormat(presented) {
		return apikey.Key{}, ErrInvalidKey
	}

	key, err := s.keys.GetKeyByHash(ctx, HashKey(presented))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apikey.Key{}, ErrInvalidKey
		}
		return apikey.Key{}, err
	}
	if !key.Active {
		return apikey.Key{}, ErrInvalidKey
	}

	if err := s.keys.TouchKey(ctx, key.ID, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("key_id", key.ID).Warn("update last_used_at")
	}
	return key, nil
}

// AccountKeyIDs lists the IDs of every key an account has issued, for usage
// aggregation.
func (s *Service) AccountKeyIDs(ctx context.Context, accountID string) ([]string, error) {
	keys, err := s.keys.ListKeys(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.ID)
	}
	return ids, nil
}
