// Package domain holds the core data types shared across ratewatch services.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RateSnapshot is the full document returned by the rate provider. The
// conversion_rates mapping goes from 3-letter currency code to the multiplier
// converting one unit of the base currency into that currency.
type RateSnapshot struct {
	Result          string             `json:"result,omitempty"`
	BaseCode        string             `json:"base_code"`
	TimeLastUpdate  int64              `json:"time_last_update_unix,omitempty"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// RateStats is the aggregate report over a snapshot's conversion rates.
// Median is the value at sorted index floor(n/2), which for even n is the
// upper-middle value rather than the two-middle average.
type RateStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
	Count   int     `json:"count"`
}

// SnapshotRecord is a persisted copy of a fetched snapshot, kept for history.
type SnapshotRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BaseCode  string    `json:"base_code" db:"base_code"`
	Payload   []byte    `json:"payload" db:"payload"`
	Source    string    `json:"source" db:"source"`
	FetchedAt time.Time `json:"fetched_at" db:"fetched_at"`
}
