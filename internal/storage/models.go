package storage

import (
	"time"

	"fx-rate-alerts/internal/rates"
)

// AlertRecord is a persisted alert, kept for auditing.
type AlertRecord struct {
	ID           int64
	AlertTS      time.Time
	CurrencyPair string
	Kind         string
	Seconds      *int64
	Source       string
	CreatedAt    time.Time
}

// NewAlertRecord captures alert as produced by source.
func NewAlertRecord(alert rates.Alert, source string) AlertRecord {
	return AlertRecord{
		AlertTS:      alert.Timestamp,
		CurrencyPair: alert.CurrencyPair,
		Kind:         alert.Kind,
		Seconds:      alert.Seconds,
		Source:       source,
	}
}

// Alert converts the record back into the engine's value.
func (r AlertRecord) Alert() rates.Alert {
	return rates.Alert{
		Timestamp:    r.AlertTS,
		CurrencyPair: r.CurrencyPair,
		Kind:         r.Kind,
		Seconds:      r.Seconds,
	}
}
