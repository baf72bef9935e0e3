// Package apikey defines accounts and the API keys that authenticate them.
package apikey

import "time"

// Tier is a billing tier controlling rate limits.
type Tier string

const (
	TierFree    Tier = "free"
	TierBuilder Tier = "builder"
	TierPro     Tier = "pro"
)

// Limits are the per-minute allowances for a tier.
type Limits struct {
	RequestsPerMinute int
	TradesPerMinute   int
}

// TierLimits maps each tier to its allowances.
var TierLimits = map[Tier]Limits{
	TierFree:    {RequestsPerMinute: 60, TradesPerMinute: 5},
	TierBuilder: {RequestsPerMinute: 300, TradesPerMinute: 30},
	TierPro:     {RequestsPerMinute: 1000, TradesPerMinute: 100},
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	_, ok := TierLimits[t]
	return t, ok
}

// Account is a registered developer account.
type Account struct {
	ID          string
	Email       string
	CompanyName string
	Active      bool
	CreatedAt   time.Time
}

// Key is an issued API key. Only the SHA-256 hash of the full key is stored.
type Key struct {
	ID         string
	AccountID  string
	Prefix     string
	Hash       string
	Label      string
	Tier       Tier
	RateRPM    int
	RateTPM    int
	Active     bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}
