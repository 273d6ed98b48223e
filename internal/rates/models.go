package rates

import (
	"time"
)

// Alert kinds emitted by the built-in alerters.
const (
	KindSpotChange = "spotChange"
	KindRising     = "rising"
	KindFalling    = "falling"
)

// Observation is a single conversion rate reading for a currency pair.
type Observation struct {
	Timestamp    time.Time
	CurrencyPair string
	Rate         float64
}

// Alert is produced when an alerter condition holds for a pair.
type Alert struct {
	Timestamp    time.Time
	CurrencyPair string
	Kind         string
	// Seconds carries the trend duration for rising/falling alerts.
	Seconds *int64
}

// NewAlert builds an alert without detail.
func NewAlert(ts time.Time, pair, kind string) Alert {
	return Alert{Timestamp: ts, CurrencyPair: pair, Kind: kind}
}

// NewTrendAlert builds an alert carrying a duration in whole seconds.
func NewTrendAlert(ts time.Time, pair, kind string, seconds int64) Alert {
	return Alert{Timestamp: ts, CurrencyPair: pair, Kind: kind, Seconds: &seconds}
}
