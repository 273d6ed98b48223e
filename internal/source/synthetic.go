package source

import (
	"fmt"
	"time"

	"fx-rate-alerts/internal/rates"
)

// Shapes understood by Generate.
const (
	ShapeLinear     = "linear"
	ShapeSpikes     = "spikes"
	ShapePercentage = "percentage"
)

// SeriesOptions describes a synthetic observation series. Observation i
// (starting at 1) is stamped Start + i*Step.
type SeriesOptions struct {
	Shape        string
	CurrencyPair string
	Periods      int
	Start        time.Time
	Step         time.Duration

	// StartRate is the first rate for linear series and the base rate for
	// spiky series.
	StartRate float64
	// Increment is added per period (linear) or applied as a fraction of the
	// current rate per period (percentage).
	Increment float64
	// SpikeEvery marks every n-th period as a spike; zero disables spikes.
	SpikeEvery int
	// Spike is the absolute spike rate (spikes) or a percentage of the
	// current rate added on top of the increment (percentage).
	Spike float64
}

// Generate builds the series described by opts.
func Generate(opts SeriesOptions) ([]rates.Observation, error) {
	if opts.Periods <= 0 {
		return nil, fmt.Errorf("periods must be greater than zero")
	}
	if opts.CurrencyPair == "" {
		return nil, fmt.Errorf("currency pair is required")
	}
	if opts.Step <= 0 {
		opts.Step = time.Second
	}

	var rate func(i int, prev float64) float64
	switch opts.Shape {
	case ShapeLinear, "":
		rate = func(i int, _ float64) float64 {
			return opts.StartRate + opts.Increment*float64(i-1)
		}
	case ShapeSpikes:
		rate = func(i int, _ float64) float64 {
			if isSpike(i, opts.SpikeEvery) {
				return opts.Spike
			}
			return opts.StartRate
		}
	case ShapePercentage:
		rate = func(i int, prev float64) float64 {
			next := prev + opts.Increment*prev
			if isSpike(i, opts.SpikeEvery) {
				next += opts.Spike / 100 * prev
			}
			return next
		}
	default:
		return nil, fmt.Errorf("unknown shape %q", opts.Shape)
	}

	out := make([]rates.Observation, opts.Periods)
	prev := opts.StartRate
	for i := 1; i <= opts.Periods; i++ {
		prev = rate(i, prev)
		out[i-1] = rates.Observation{
			Timestamp:    opts.Start.Add(time.Duration(i) * opts.Step),
			CurrencyPair: opts.CurrencyPair,
			Rate:         prev,
		}
	}
	return out, nil
}

func isSpike(i, every int) bool {
	return every > 0 && i%every == 0
}

// Merge interleaves several series into one stream ordered by timestamp.
// Ties keep the order of the input series.
func Merge(series ...[]rates.Observation) []rates.Observation {
	total := 0
	for _, s := range series {
		total += len(s)
	}
	out := make([]rates.Observation, 0, total)
	idx := make([]int, len(series))
	for len(out) < total {
		best := -1
		for i, s := range series {
			if idx[i] >= len(s) {
				continue
			}
			if best < 0 || s[idx[i]].Timestamp.Before(series[best][idx[best]].Timestamp) {
				best = i
			}
		}
		out = append(out, series[best][idx[best]])
		idx[best]++
	}
	return out
}
