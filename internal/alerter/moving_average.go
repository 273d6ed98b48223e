package alerter

import (
	"fmt"
	"math"

	"fx-rate-alerts/internal/rates"
)

// MovingAverage alerts when the latest rate deviates from the mean of the
// preceding Window rates by at least ThresholdPct percent.
type MovingAverage struct {
	Window       int
	ThresholdPct float64
}

// Name implements Definition.
func (m MovingAverage) Name() string {
	return fmt.Sprintf("moving_average(%d,%g%%)", m.Window, m.ThresholdPct)
}

// RequiredPeriods is the averaged window plus the tested rate.
func (m MovingAverage) RequiredPeriods() int {
	return m.Window + 1
}

// Validate implements Definition.
func (m MovingAverage) Validate() error {
	if m.Window < 1 {
		return fmt.Errorf("%w: moving average window must be at least 1, got %d", ErrInvalidDefinition, m.Window)
	}
	if !(m.ThresholdPct > 0) {
		return fmt.Errorf("%w: moving average threshold must be positive, got %g", ErrInvalidDefinition, m.ThresholdPct)
	}
	return nil
}

// NewAlerter implements Definition.
func (m MovingAverage) NewAlerter() Alerter {
	return &movingAverageAlerter{def: m}
}

type movingAverageAlerter struct {
	def MovingAverage
}

func (a *movingAverageAlerter) Evaluate(pair string, window []rates.Observation) (*rates.Alert, error) {
	if len(window) != a.def.RequiredPeriods() {
		return nil, fmt.Errorf("%w: moving average wants %d, got %d", ErrInvalidWindow, a.def.RequiredPeriods(), len(window))
	}

	averaged := window[:len(window)-1]
	sum := 0.0
	for _, o := range averaged {
		sum += o.Rate
	}
	average := sum / float64(len(averaged))
	latest := window[len(window)-1]

	if SymmetricDifference(average, latest.Rate) >= a.def.ThresholdPct/100 {
		alert := rates.NewAlert(latest.Timestamp, pair, rates.KindSpotChange)
		return &alert, nil
	}
	return nil, nil
}

// SymmetricDifference is |a-b| relative to the midpoint of a and b.
func SymmetricDifference(a, b float64) float64 {
	return math.Abs((a - b) / ((a + b) / 2))
}
