// Package engine feeds observations to alerters over sliding windows.
//
// Each currency pair has a single history buffer sized for the largest
// window any definition needs. Every (definition, pair) combination gets its
// own cursor into that buffer and its own alerter instance, so state never
// leaks between pairs and two definitions of the same type stay independent.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/alerter"
	"fx-rate-alerts/internal/rates"
)

// ErrConfiguration is returned when the engine is built without usable
// alerter definitions.
var ErrConfiguration = errors.New("engine: invalid configuration")

// AlertFunc receives alerts synchronously, in definition order.
type AlertFunc func(rates.Alert)

type cursorKey struct {
	definition int
	pair       string
}

type cursor struct {
	alerter alerter.Alerter
	offset  int
}

// Stats summarises what an engine has processed so far.
type Stats struct {
	Observations int64
	Alerts       int64
	Pairs        int
	Cursors      int
}

// Engine holds all per-pair buffers and cursors for one run. It is not safe
// for concurrent use.
type Engine struct {
	definitions []alerter.Definition
	maxWindow   int

	histories map[string]*history
	cursors   map[cursorKey]*cursor
	byPair    map[string][]*cursor

	observations int64
	alerts       int64

	logger zerolog.Logger
}

// New validates defs and returns an engine ready to observe.
func New(defs []alerter.Definition, logger zerolog.Logger) (*Engine, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no alerters have been specified", ErrConfiguration)
	}
	for i, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("%w: alerter %d is nil", ErrConfiguration, i)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: alerter %d: %w", ErrConfiguration, i, err)
		}
	}

	e := &Engine{
		definitions: append([]alerter.Definition(nil), defs...),
		maxWindow:   alerter.MaxRequiredPeriods(defs),
		histories:   make(map[string]*history),
		cursors:     make(map[cursorKey]*cursor),
		byPair:      make(map[string][]*cursor),
		logger:      logger.With().Str("component", "engine").Logger(),
	}
	e.logger.Debug().Int("alerters", len(defs)).Int("max_window", e.maxWindow).Msg("engine configured")
	return e, nil
}

// Process runs every observation through a fresh engine built from defs.
func Process(observations []rates.Observation, defs []alerter.Definition, onAlert AlertFunc) error {
	e, err := New(defs, zerolog.Nop())
	if err != nil {
		return err
	}
	return e.ObserveAll(observations, onAlert)
}

// ObserveAll feeds observations in order, stopping at the first error.
func (e *Engine) ObserveAll(observations []rates.Observation, onAlert AlertFunc) error {
	for i := range observations {
		if err := e.Observe(observations[i], onAlert); err != nil {
			return err
		}
	}
	return nil
}

// Observe appends o to its pair's history, evaluates every definition whose
// window is satisfied and then evicts history no definition needs.
func (e *Engine) Observe(o rates.Observation, onAlert AlertFunc) error {
	h, ok := e.histories[o.CurrencyPair]
	if !ok {
		h = newHistory(e.maxWindow)
		e.histories[o.CurrencyPair] = h
		e.logger.Debug().Str("pair", o.CurrencyPair).Msg("tracking new currency pair")
	}
	h.push(o)
	e.observations++

	for idx, def := range e.definitions {
		required := def.RequiredPeriods()
		if h.Len() < required {
			continue
		}

		c := e.cursor(idx, o.CurrencyPair)
		alert, err := c.alerter.Evaluate(o.CurrencyPair, h.window(c.offset, required))
		if err != nil {
			return fmt.Errorf("evaluate %s for %s at %s: %w", def.Name(), o.CurrencyPair, o.Timestamp.Format(time.RFC3339Nano), err)
		}
		if alert != nil {
			e.alerts++
			if onAlert != nil {
				onAlert(*alert)
			}
		}
		c.offset++
	}

	if h.Len() > e.maxWindow {
		h.evictOldest()
		for _, c := range e.byPair[o.CurrencyPair] {
			c.offset--
		}
	}
	return nil
}

func (e *Engine) cursor(idx int, pair string) *cursor {
	key := cursorKey{definition: idx, pair: pair}
	if c, ok := e.cursors[key]; ok {
		return c
	}
	c := &cursor{alerter: e.definitions[idx].NewAlerter()}
	e.cursors[key] = c
	e.byPair[pair] = append(e.byPair[pair], c)
	return c
}

// MaxWindow is the history length kept per pair.
func (e *Engine) MaxWindow() int {
	return e.maxWindow
}

// Stats reports counters for the run so far.
func (e *Engine) Stats() Stats {
	return Stats{
		Observations: e.observations,
		Alerts:       e.alerts,
		Pairs:        len(e.histories),
		Cursors:      len(e.cursors),
	}
}
