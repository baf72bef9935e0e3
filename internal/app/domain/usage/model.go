// Package usage defines API usage records and billing aggregates.
package usage

import "time"

// Record is one logged API request.
type Record struct {
	ID             string
	APIKeyID       string
	Endpoint       string
	Method         string
	StatusCode     int
	ResponseTimeMS float64
	CreatedAt      time.Time
}

// PeriodUsage summarizes an account's current billing period.
type PeriodUsage struct {
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	TotalRequests int64     `json:"total_requests"`
	TotalTrades   int64     `json:"total_trades"`
	TotalVolume   string    `json:"total_volume"`
	TotalFees     string    `json:"total_fees"`
}
