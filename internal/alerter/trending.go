package alerter

import (
	"fmt"
	"time"

	"fx-rate-alerts/internal/rates"
)

// Trending alerts when a pair has been moving in one direction for at least
// MinimumTrend. Alerts for the same instance are at least Throttle apart.
type Trending struct {
	MinimumTrend time.Duration
	Throttle     time.Duration
}

// Name implements Definition.
func (t Trending) Name() string {
	return fmt.Sprintf("trending(%s,%s)", t.MinimumTrend, t.Throttle)
}

// RequiredPeriods is always one; the alerter keeps its own history.
func (t Trending) RequiredPeriods() int {
	return 1
}

// Validate implements Definition.
func (t Trending) Validate() error {
	if t.MinimumTrend < time.Second {
		return fmt.Errorf("%w: minimum trend must be at least 1s, got %s", ErrInvalidDefinition, t.MinimumTrend)
	}
	if t.Throttle < 0 {
		return fmt.Errorf("%w: throttle cannot be negative, got %s", ErrInvalidDefinition, t.Throttle)
	}
	return nil
}

// NewAlerter implements Definition.
func (t Trending) NewAlerter() Alerter {
	return &trendingAlerter{def: t}
}

type direction int

const (
	up direction = iota + 1
	down
)

type trend struct {
	dir   direction
	start time.Time
}

type trendingAlerter struct {
	def       Trending
	last      *rates.Observation
	current   *trend
	lastAlert *time.Time
}

func (a *trendingAlerter) Evaluate(pair string, window []rates.Observation) (*rates.Alert, error) {
	if len(window) != 1 {
		return nil, fmt.Errorf("%w: trending wants 1, got %d", ErrInvalidWindow, len(window))
	}
	obs := window[0]

	if a.last == nil || obs.Rate == a.last.Rate {
		a.last = &obs
		return nil, nil
	}

	dir := down
	if obs.Rate > a.last.Rate {
		dir = up
	}
	if a.current == nil || a.current.dir != dir {
		// the trend begins at the last point before the first move
		a.current = &trend{dir: dir, start: a.last.Timestamp}
	}

	length := wholeSeconds(obs.Timestamp.Sub(a.current.start))
	a.last = &obs

	if length < a.def.MinimumTrend {
		return nil, nil
	}
	if a.lastAlert != nil && wholeSeconds(obs.Timestamp.Sub(*a.lastAlert)) < a.def.Throttle {
		return nil, nil
	}

	ts := obs.Timestamp
	a.lastAlert = &ts

	kind := rates.KindFalling
	if dir == up {
		kind = rates.KindRising
	}
	alert := rates.NewTrendAlert(obs.Timestamp, pair, kind, int64(length/time.Second))
	return &alert, nil
}

func wholeSeconds(d time.Duration) time.Duration {
	return d.Truncate(time.Second)
}
