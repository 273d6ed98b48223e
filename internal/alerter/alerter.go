// Package alerter defines the alerting rules evaluated by the engine.
package alerter

import (
	"errors"

	"fx-rate-alerts/internal/rates"
)

var (
	// ErrInvalidWindow means an alerter was handed a window that does not
	// match its required periods.
	ErrInvalidWindow = errors.New("alerter: invalid window length")
	// ErrInvalidDefinition is returned by Definition.Validate.
	ErrInvalidDefinition = errors.New("alerter: invalid definition")
)

// Definition is an immutable alerter configuration. The engine asks it for a
// fresh Alerter for every currency pair it sees.
type Definition interface {
	// Name identifies the rule in logs and metrics.
	Name() string
	// RequiredPeriods is the window length handed to Evaluate.
	RequiredPeriods() int
	Validate() error
	NewAlerter() Alerter
}

// Alerter evaluates one window for one currency pair. Implementations may
// keep state between calls; a nil alert means the condition did not hold.
type Alerter interface {
	Evaluate(pair string, window []rates.Observation) (*rates.Alert, error)
}

// MaxRequiredPeriods returns the largest window across defs.
func MaxRequiredPeriods(defs []Definition) int {
	largest := 0
	for _, d := range defs {
		largest = max(largest, d.RequiredPeriods())
	}
	return largest
}
