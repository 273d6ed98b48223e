package alerter

import (
	"errors"
	"testing"
	"time"

	"fx-rate-alerts/internal/rates"
)

var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func series(pair string, values ...float64) []rates.Observation {
	out := make([]rates.Observation, len(values))
	for i, v := range values {
		out[i] = rates.Observation{
			Timestamp:    epoch.Add(time.Duration(i+1) * time.Second),
			CurrencyPair: pair,
			Rate:         v,
		}
	}
	return out
}

// feed drives a trending alerter the way the engine does, one observation per call.
func feed(t *testing.T, a Alerter, obs []rates.Observation) []rates.Alert {
	t.Helper()
	var alerts []rates.Alert
	for i := range obs {
		alert, err := a.Evaluate(obs[i].CurrencyPair, obs[i:i+1])
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestMovingAverageRequiredPeriods(t *testing.T) {
	if got := (MovingAverage{Window: 300, ThresholdPct: 10}).RequiredPeriods(); got != 301 {
		t.Fatalf("required periods = %d, want 301", got)
	}
}

func TestMovingAverageValidate(t *testing.T) {
	if err := (MovingAverage{Window: 0, ThresholdPct: 5}).Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("window 0 should be invalid, got %v", err)
	}
	if err := (MovingAverage{Window: 4, ThresholdPct: 0}).Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("zero threshold should be invalid, got %v", err)
	}
	if err := (MovingAverage{Window: 1, ThresholdPct: 0.1}).Validate(); err != nil {
		t.Fatalf("minimal definition should be valid: %v", err)
	}
}

func TestMovingAverageAlertsOnLargeDeviation(t *testing.T) {
	a := MovingAverage{Window: 4, ThresholdPct: 5}.NewAlerter()
	window := series("AUDNZD", 1, 2, 3, 4, 5)

	alert, err := a.Evaluate("AUDNZD", window)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if alert == nil {
		t.Fatal("average 2.5 vs 5 should alert")
	}
	if alert.Kind != rates.KindSpotChange || alert.Seconds != nil {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !alert.Timestamp.Equal(window[4].Timestamp) {
		t.Fatalf("alert should be stamped with the latest observation")
	}
}

func TestMovingAverageIgnoresSmallDeviation(t *testing.T) {
	a := MovingAverage{Window: 4, ThresholdPct: 5}.NewAlerter()
	alert, err := a.Evaluate("AUDNZD", series("AUDNZD", 100, 101, 102, 103, 104))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if alert != nil {
		t.Fatalf("2%% deviation should not alert: %+v", alert)
	}
}

func TestMovingAverageThresholdIsInclusive(t *testing.T) {
	// average 1, latest 3: |1-3| / 2 = 100%
	a := MovingAverage{Window: 1, ThresholdPct: 100}.NewAlerter()
	alert, err := a.Evaluate("AUDNZD", series("AUDNZD", 1, 3))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if alert == nil {
		t.Fatal("difference equal to threshold should alert")
	}
}

func TestMovingAverageIsSymmetric(t *testing.T) {
	def := MovingAverage{Window: 1, ThresholdPct: 40}
	rising, err := def.NewAlerter().Evaluate("X", series("X", 10, 15))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	falling, err := def.NewAlerter().Evaluate("X", series("X", 15, 10))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rising == nil || falling == nil {
		t.Fatalf("both directions should alert at 40%%: rising=%v falling=%v", rising, falling)
	}
	if SymmetricDifference(10, 15) != SymmetricDifference(15, 10) {
		t.Fatal("difference should not depend on argument order")
	}
}

func TestMovingAverageRejectsWrongWindow(t *testing.T) {
	a := MovingAverage{Window: 4, ThresholdPct: 5}.NewAlerter()
	if _, err := a.Evaluate("X", series("X", 1, 2, 3)); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestTrendingValidate(t *testing.T) {
	if err := (Trending{MinimumTrend: 0, Throttle: time.Second}).Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("zero minimum trend should be invalid, got %v", err)
	}
	if err := (Trending{MinimumTrend: time.Second, Throttle: -time.Second}).Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("negative throttle should be invalid, got %v", err)
	}
	if err := (Trending{MinimumTrend: time.Second}).Validate(); err != nil {
		t.Fatalf("zero throttle should be valid: %v", err)
	}
}

func TestTrendingRejectsWrongWindow(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second}.NewAlerter()
	if _, err := a.Evaluate("X", series("X", 1, 2)); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestTrendingFlatRateNeverAlerts(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second, Throttle: 6 * time.Second}.NewAlerter()
	if alerts := feed(t, a, series("AUDNZD", linear(100, 0, 0)...)); len(alerts) != 0 {
		t.Fatalf("flat series produced %d alerts", len(alerts))
	}
}

func TestTrendingRisingAlertsOnceMinimumReached(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second, Throttle: 6 * time.Second}.NewAlerter()
	alerts := feed(t, a, series("AUDNZD", linear(6, 0, 1)...))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.Kind != rates.KindRising {
		t.Fatalf("kind = %s", alert.Kind)
	}
	if !alert.Timestamp.Equal(epoch.Add(6 * time.Second)) {
		t.Fatalf("timestamp = %s", alert.Timestamp)
	}
	if alert.Seconds == nil || *alert.Seconds != 5 {
		t.Fatalf("seconds = %v, want 5", alert.Seconds)
	}
}

func TestTrendingThrottleSpacesAlerts(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second, Throttle: 10 * time.Second}.NewAlerter()
	alerts := feed(t, a, series("AUDNZD", linear(50, 0, 1)...))
	if len(alerts) != 5 {
		t.Fatalf("expected 5 alerts, got %d", len(alerts))
	}
	for i, alert := range alerts {
		wantSeconds := int64(5 + i*10)
		if alert.Seconds == nil || *alert.Seconds != wantSeconds {
			t.Fatalf("alert %d seconds = %v, want %d", i, alert.Seconds, wantSeconds)
		}
		wantTS := epoch.Add(time.Duration(6+i*10) * time.Second)
		if !alert.Timestamp.Equal(wantTS) {
			t.Fatalf("alert %d at %s, want %s", i, alert.Timestamp, wantTS)
		}
		if i > 0 && alert.Timestamp.Sub(alerts[i-1].Timestamp) < 10*time.Second {
			t.Fatalf("alerts %d and %d closer than throttle", i-1, i)
		}
	}
}

func TestTrendingLongThrottleSuppressesRepeats(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second, Throttle: 50 * time.Second}.NewAlerter()
	if alerts := feed(t, a, series("AUDNZD", linear(50, 0, 1)...)); len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
}

func TestTrendingFallingDirection(t *testing.T) {
	a := Trending{MinimumTrend: 5 * time.Second, Throttle: 6 * time.Second}.NewAlerter()
	alerts := feed(t, a, series("AUDNZD", linear(6, 0, -1)...))
	if len(alerts) != 1 || alerts[0].Kind != rates.KindFalling {
		t.Fatalf("expected one falling alert, got %+v", alerts)
	}
}

func TestTrendingDirectionChangeRestartsTrend(t *testing.T) {
	a := Trending{MinimumTrend: 3 * time.Second, Throttle: time.Hour}.NewAlerter()
	// up for 2s, then down from t=3 onwards
	alerts := feed(t, a, series("X", 1, 2, 3, 2, 1, 0, -1))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", alerts)
	}
	alert := alerts[0]
	if alert.Kind != rates.KindFalling {
		t.Fatalf("kind = %s", alert.Kind)
	}
	// falling trend anchored at t=3, alert at t=6
	if *alert.Seconds != 3 || !alert.Timestamp.Equal(epoch.Add(6*time.Second)) {
		t.Fatalf("unexpected alert %+v seconds=%d", alert, *alert.Seconds)
	}
}

func TestTrendingFlatRunDoesNotRestartTrend(t *testing.T) {
	a := Trending{MinimumTrend: 4 * time.Second}.NewAlerter()
	// rises at t=2, flat t=3..4, rises at t=5: trend still anchored at t=1
	alerts := feed(t, a, series("X", 1, 2, 2, 2, 3))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", alerts)
	}
	if *alerts[0].Seconds != 4 {
		t.Fatalf("seconds = %d, want 4", *alerts[0].Seconds)
	}
}

func TestTrendingInstancesAreIndependent(t *testing.T) {
	def := Trending{MinimumTrend: 5 * time.Second, Throttle: time.Hour}
	first := feed(t, def.NewAlerter(), series("A", linear(6, 0, 1)...))
	second := feed(t, def.NewAlerter(), series("B", linear(6, 0, 1)...))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("each instance should have its own throttle: %d/%d", len(first), len(second))
	}
}

func TestMaxRequiredPeriods(t *testing.T) {
	defs := []Definition{
		Trending{MinimumTrend: time.Minute},
		MovingAverage{Window: 300, ThresholdPct: 10},
		MovingAverage{Window: 4, ThresholdPct: 5},
	}
	if got := MaxRequiredPeriods(defs); got != 301 {
		t.Fatalf("max required periods = %d, want 301", got)
	}
	if got := MaxRequiredPeriods(nil); got != 0 {
		t.Fatalf("empty list = %d, want 0", got)
	}
}
