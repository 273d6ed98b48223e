// Package fetcher polls remote rate sources for observations.
package fetcher

import (
	"context"

	"fx-rate-alerts/internal/rates"
)

// RateFetcher returns whatever observations a source currently has.
// Callers are responsible for dropping ones they have already seen.
type RateFetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]rates.Observation, error)
}
