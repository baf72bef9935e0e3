// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/internal/app/domain/position"
	"github.com/spredd-labs/developer-api/internal/app/domain/trade"
	"github.com/spredd-labs/developer-api/internal/app/domain/usage"
	"github.com/spredd-labs/developer-api/internal/app/storage"
)

// Store implements the storage interfaces on a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.APIKeyStore = (*Store)(nil)
var _ storage.TradeStore = (*Store)(nil)
var _ storage.PositionStore = (*Store)(nil)
var _ storage.UsageStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(url string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case isUniqueViolation(err):
		return storage.ErrConflict
	default:
		return err
	}
}

// --- AccountStore -----------------------------------------------------------

type accountRow struct {
	ID          string         `db:"id"`
	Email       string         `db:"email"`
	CompanyName sql.NullString `db:"company_name"`
	Active      bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r accountRow) toDomain() apikey.Account {
	return apikey.Account{
		ID:          r.ID,
		Email:       r.Email,
		CompanyName: r.CompanyName.String,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *Store) CreateAccount(ctx context.Context, acct apikey.Account) (apikey.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	acct.CreatedAt = time.Now().UTC()
	acct.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, company_name, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, acct.ID, acct.Email, acct.CompanyName, acct.Active, acct.CreatedAt)
	if err != nil {
		return apikey.Account{}, translateErr(err)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (apikey.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, company_name, is_active, created_at
		FROM accounts WHERE id = $1
	`, id)
	if err != nil {
		return apikey.Account{}, translateErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (apikey.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, company_name, is_active, created_at
		FROM accounts WHERE lower(email) = lower($1)
	`, email)
	if err != nil {
		return apikey.Account{}, translateErr(err)
	}
	return row.toDomain(), nil
}

// --- APIKeyStore ------------------------------------------------------------

type keyRow struct {
	ID         string         `db:"id"`
	AccountID  string         `db:"account_id"`
	Prefix     string         `db:"key_prefix"`
	Hash       string         `db:"key_hash"`
	Label      sql.NullString `db:"label"`
	Tier       string         `db:"tier"`
	RateRPM    int            `db:"rate_limit_rpm"`
	RateTPM    int            `db:"rate_limit_tpm"`
	Active     bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
	LastUsedAt sql.NullTime   `db:"last_used_at"`
}

func (r keyRow) toDomain() apikey.Key {
	return apikey.Key{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Prefix:     r.Prefix,
		Hash:       r.Hash,
		Label:      r.Label.String,
		Tier:       apikey.Tier(r.Tier),
		RateRPM:    r.RateRPM,
		RateTPM:    r.RateTPM,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt.Time,
	}
}

const keyColumns = `id, account_id, key_prefix, key_hash, label, tier,
	rate_limit_rpm, rate_limit_tpm, is_active, created_at, last_used_at`

func (s *Store) CreateKey(ctx context.Context, key apikey.Key) (apikey.Key, error) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = time.Now().UTC()
	key.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, account_id, key_prefix, key_hash, label, tier,
			rate_limit_rpm, rate_limit_tpm, is_active, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)
	`, key.ID, key.AccountID, key.Prefix, key.Hash, key.Label, string(key.Tier),
		key.RateRPM, key.RateTPM, key.Active, key.CreatedAt)
	if err != nil {
		return apikey.Key{}, translateErr(err)
	}
	return key, nil
}

func (s *Store) GetKey(ctx context.Context, id string) (apikey.Key, error) {
	var row keyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return apikey.Key{}, translateErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (apikey.Key, error) {
	var row keyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	if err != nil {
		return apikey.Key{}, translateErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListKeys(ctx context.Context, accountID string) ([]apikey.Key, error) {
	var rows []keyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, translateErr(err)
	}
	keys := make([]apikey.Key, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.toDomain())
	}
	return keys, nil
}

func (s *Store) DeactivateKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return translateErr(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TouchKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return translateErr(err)
}

// --- TradeStore -------------------------------------------------------------

type tradeRow struct {
	ID            string          `db:"id"`
	APIKeyID      string          `db:"api_key_id"`
	WalletAddress string          `db:"wallet_address"`
	Platform      string          `db:"platform"`
	Chain         string          `db:"chain"`
	MarketID      string          `db:"market_id"`
	MarketTitle   sql.NullString  `db:"market_title"`
	Outcome       string          `db:"outcome"`
	Side          string          `db:"side"`
	InputAmount   string          `db:"input_amount"`
	OutputAmount  sql.NullString  `db:"output_amount"`
	Price         sql.NullFloat64 `db:"price"`
	FeeAmount     sql.NullString  `db:"fee_amount"`
	TxHash        sql.NullString  `db:"tx_hash"`
	Status        string          `db:"status"`
	Mode          string          `db:"mode"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r tradeRow) toDomain() trade.Trade {
	return trade.Trade{
		ID:            r.ID,
		APIKeyID:      r.APIKeyID,
		WalletAddress: r.WalletAddress,
		Platform:      r.Platform,
		Chain:         r.Chain,
		MarketID:      r.MarketID,
		MarketTitle:   r.MarketTitle.String,
		Outcome:       r.Outcome,
		Side:          r.Side,
		InputAmount:   r.InputAmount,
		OutputAmount:  r.OutputAmount.String,
		Price:         r.Price.Float64,
		FeeAmount:     r.FeeAmount.String,
		TxHash:        r.TxHash.String,
		Status:        trade.Status(r.Status),
		Mode:          trade.Mode(r.Mode),
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Store) CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, api_key_id, wallet_address, platform, chain,
			market_id, market_title, outcome, side, input_amount, output_amount,
			price, fee_amount, tx_hash, status, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10,
			NULLIF($11, ''), $12, NULLIF($13, ''), NULLIF($14, ''), $15, $16, $17)
	`, t.ID, t.APIKeyID, t.WalletAddress, t.Platform, t.Chain, t.MarketID,
		t.MarketTitle, t.Outcome, t.Side, t.InputAmount, t.OutputAmount,
		t.Price, t.FeeAmount, t.TxHash, string(t.Status), string(t.Mode), t.CreatedAt)
	if err != nil {
		return trade.Trade{}, translateErr(err)
	}
	return t, nil
}

func (s *Store) UpdateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET output_amount = NULLIF($2, ''), price = $3, tx_hash = NULLIF($4, ''), status = $5
		WHERE id = $1
	`, t.ID, t.OutputAmount, t.Price, t.TxHash, string(t.Status))
	if err != nil {
		return trade.Trade{}, translateErr(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return trade.Trade{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTrade(ctx context.Context, id string) (trade.Trade, error) {
	var row tradeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, api_key_id, wallet_address, platform, chain, market_id,
			market_title, outcome, side, input_amount, output_amount, price,
			fee_amount, tx_hash, status, mode, created_at
		FROM trades WHERE id = $1
	`, id)
	if err != nil {
		return trade.Trade{}, translateErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) TradeStatsSince(ctx context.Context, keyIDs []string, since time.Time) (storage.TradeStats, error) {
	if len(keyIDs) == 0 {
		return storage.TradeStats{}, nil
	}

	var row struct {
		Count  int64   `db:"count"`
		Volume float64 `db:"volume"`
		Fees   float64 `db:"fees"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS count,
			COALESCE(SUM(input_amount::numeric), 0) AS volume,
			COALESCE(SUM(fee_amount::numeric), 0) AS fees
		FROM trades
		WHERE api_key_id = ANY($1) AND created_at >= $2
	`, pq.Array(keyIDs), since)
	if err != nil {
		return storage.TradeStats{}, translateErr(err)
	}
	return storage.TradeStats{Count: row.Count, Volume: row.Volume, Fees: row.Fees}, nil
}

// --- PositionStore ----------------------------------------------------------

type positionRow struct {
	ID            string          `db:"id"`
	APIKeyID      string          `db:"api_key_id"`
	WalletAddress string          `db:"wallet_address"`
	Platform      string          `db:"platform"`
	MarketID      string          `db:"market_id"`
	Outcome       string          `db:"outcome"`
	TokenAmount   string          `db:"token_amount"`
	AvgEntryPrice float64         `db:"avg_entry_price"`
	CurrentPrice  sql.NullFloat64 `db:"current_price"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r positionRow) toDomain() position.Position {
	return position.Position{
		ID:            r.ID,
		APIKeyID:      r.APIKeyID,
		WalletAddress: r.WalletAddress,
		Platform:      r.Platform,
		MarketID:      r.MarketID,
		Outcome:       r.Outcome,
		TokenAmount:   r.TokenAmount,
		AvgEntryPrice: r.AvgEntryPrice,
		CurrentPrice:  r.CurrentPrice.Float64,
		Status:        position.Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const positionColumns = `id, api_key_id, wallet_address, platform, market_id,
	outcome, token_amount, avg_entry_price, current_price, status, created_at, updated_at`

func (s *Store) GetPosition(ctx context.Context, apiKeyID, wallet, platform, marketID, outcome string) (position.Position, error) {
	var row positionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+positionColumns+` FROM positions
		WHERE api_key_id = $1 AND wallet_address = $2 AND platform = $3
			AND market_id = $4 AND outcome = $5
	`, apiKeyID, wallet, platform, marketID, outcome)
	if err != nil {
		return position.Position{}, translateErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreatePosition(ctx context.Context, pos position.Position) (position.Position, error) {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pos.CreatedAt = now
	pos.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, api_key_id, wallet_address, platform, market_id,
			outcome, token_amount, avg_entry_price, current_price, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, pos.ID, pos.APIKeyID, pos.WalletAddress, pos.Platform, pos.MarketID,
		pos.Outcome, pos.TokenAmount, pos.AvgEntryPrice, nullFloat(pos.CurrentPrice),
		string(pos.Status), pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return position.Position{}, translateErr(err)
	}
	return pos, nil
}

func (s *Store) UpdatePosition(ctx context.Context, pos position.Position) (position.Position, error) {
	pos.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET token_amount = $6, avg_entry_price = $7, current_price = $8,
			status = $9, updated_at = $10
		WHERE api_key_id = $1 AND wallet_address = $2 AND platform = $3
			AND market_id = $4 AND outcome = $5
	`, pos.APIKeyID, pos.WalletAddress, pos.Platform, pos.MarketID, pos.Outcome,
		pos.TokenAmount, pos.AvgEntryPrice, nullFloat(pos.CurrentPrice),
		string(pos.Status), pos.UpdatedAt)
	if err != nil {
		return position.Position{}, translateErr(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return position.Position{}, storage.ErrNotFound
	}
	return pos, nil
}

func (s *Store) ListPositions(ctx context.Context, filter storage.PositionFilter) ([]position.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE api_key_id = $1`
	args := []interface{}{filter.APIKeyID}

	if filter.WalletAddress != "" {
		args = append(args, filter.WalletAddress)
		query += ` AND wallet_address = $` + itoa(len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		query += ` AND platform = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + itoa(len(args))
	}

	query += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	var rows []positionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translateErr(err)
	}
	positions := make([]position.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, r.toDomain())
	}
	return positions, nil
}

// --- UsageStore -------------------------------------------------------------

func (s *Store) RecordRequest(ctx context.Context, rec usage.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_usage (id, api_key_id, endpoint, method, status_code,
			response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.APIKeyID, rec.Endpoint, rec.Method, rec.StatusCode,
		rec.ResponseTimeMS, rec.CreatedAt)
	return translateErr(err)
}

func (s *Store) CountRequestsSince(ctx context.Context, keyIDs []string, since time.Time) (int64, error) {
	if len(keyIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM api_usage
		WHERE api_key_id = ANY($1) AND created_at >= $2
	`, pq.Array(keyIDs), since)
	if err != nil {
		return 0, translateErr(err)
	}
	return count, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
