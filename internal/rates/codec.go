package rates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingPair is returned when a record has no currency pair.
	ErrMissingPair = errors.New("rates: currencyPair is required")
	// ErrMissingTimestamp is returned when a record has no timestamp.
	ErrMissingTimestamp = errors.New("rates: timestamp is required")
)

var nanosPerSecond = decimal.NewFromInt(int64(time.Second))

type observationRecord struct {
	Timestamp    json.RawMessage `json:"timestamp"`
	CurrencyPair string          `json:"currencyPair"`
	Rate         *float64        `json:"rate"`
}

type alertRecord struct {
	Timestamp    json.Number `json:"timestamp"`
	CurrencyPair string      `json:"currencyPair"`
	Alert        string      `json:"alert"`
	Seconds      *int64      `json:"seconds,omitempty"`
}

// UnmarshalJSON accepts epoch seconds (with an optional fraction) or an
// RFC3339 string for the timestamp.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var rec observationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if strings.TrimSpace(rec.CurrencyPair) == "" {
		return ErrMissingPair
	}
	if rec.Rate == nil {
		return fmt.Errorf("rates: rate is required for %s", rec.CurrencyPair)
	}
	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return err
	}

	*o = Observation{Timestamp: ts, CurrencyPair: rec.CurrencyPair, Rate: *rec.Rate}
	return nil
}

// MarshalJSON writes the timestamp as fractional epoch seconds.
func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp    json.Number `json:"timestamp"`
		CurrencyPair string      `json:"currencyPair"`
		Rate         float64     `json:"rate"`
	}{
		Timestamp:    EpochSeconds(o.Timestamp),
		CurrencyPair: o.CurrencyPair,
		Rate:         o.Rate,
	})
}

// MarshalJSON writes the compact alert record; seconds is omitted when unset.
func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertRecord{
		Timestamp:    EpochSeconds(a.Timestamp),
		CurrencyPair: a.CurrencyPair,
		Alert:        a.Kind,
		Seconds:      a.Seconds,
	})
}

// UnmarshalJSON reads the record produced by MarshalJSON.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var rec alertRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	ts, err := parseTimestamp(json.RawMessage(rec.Timestamp))
	if err != nil {
		return err
	}
	*a = Alert{Timestamp: ts, CurrencyPair: rec.CurrencyPair, Kind: rec.Alert, Seconds: rec.Seconds}
	return nil
}

// EpochSeconds renders t as seconds since the epoch, trimming trailing zeros
// from the fraction.
func EpochSeconds(t time.Time) json.Number {
	return json.Number(decimal.New(t.UnixNano(), -9).String())
}

// ParseEpochSeconds converts a decimal epoch-seconds string into a UTC time
// without going through float64.
func ParseEpochSeconds(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("rates: parse timestamp %q: %w", s, err)
	}
	secs := d.Floor()
	nanos := d.Sub(secs).Mul(nanosPerSecond).Round(0)
	return time.Unix(secs.IntPart(), nanos.IntPart()).UTC(), nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, ErrMissingTimestamp
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("rates: parse timestamp: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), nil
		}
		return ParseEpochSeconds(s)
	}
	return ParseEpochSeconds(string(raw))
}
