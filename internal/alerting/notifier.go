// Package alerting delivers alerts produced by the engine.
package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/rates"
)

// Notifier delivers a single alert.
type Notifier interface {
	Notify(ctx context.Context, alert rates.Alert) error
}

// Fanout sends every alert to each of its notifiers in order. A failing
// notifier does not stop the others; all failures are joined.
type Fanout struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewFanout skips nil notifiers.
func NewFanout(logger zerolog.Logger, notifiers ...Notifier) *Fanout {
	f := &Fanout{logger: logger.With().Str("component", "alert_fanout").Logger()}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len reports how many notifiers are attached.
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Notify implements Notifier.
func (f *Fanout) Notify(ctx context.Context, alert rates.Alert) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			f.logger.Error().Err(err).Str("pair", alert.CurrencyPair).Str("alert", alert.Kind).Msg("failed to dispatch alert")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Fanout)(nil)
