package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
	"fx-rate-alerts/internal/source"
)

var (
	simulateShape      string
	simulatePairs      []string
	simulatePeriods    int
	simulateStart      string
	simulateStep       time.Duration
	simulateStartRate  float64
	simulateIncrement  float64
	simulateSpikeEvery int
	simulateSpike      float64
	simulateOutput     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate synthetic observation series as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePeriods <= 0 {
			return errors.New("--periods must be greater than zero")
		}

		start := time.Unix(946684800, 0).UTC()
		if simulateStart != "" {
			parsed, err := time.Parse(time.RFC3339, simulateStart)
			if err != nil {
				return fmt.Errorf("invalid --start value: %w", err)
			}
			start = parsed
		}

		return getApp().Simulate(app.SimulateOptions{
			Series: source.SeriesOptions{
				Shape:      simulateShape,
				Periods:    simulatePeriods,
				Start:      start,
				Step:       simulateStep,
				StartRate:  simulateStartRate,
				Increment:  simulateIncrement,
				SpikeEvery: simulateSpikeEvery,
				Spike:      simulateSpike,
			},
			Pairs:  simulatePairs,
			Output: simulateOutput,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateShape, "shape", source.ShapeLinear, "Series shape: linear, spikes or percentage")
	simulateCmd.Flags().StringSliceVar(&simulatePairs, "pair", []string{"AUDNZD"}, "Currency pairs to generate")
	simulateCmd.Flags().IntVar(&simulatePeriods, "periods", 3600, "Observations per pair")
	simulateCmd.Flags().StringVar(&simulateStart, "start", "", "Time before the first observation (RFC3339, defaults to 2000-01-01)")
	simulateCmd.Flags().DurationVar(&simulateStep, "step", time.Second, "Spacing between observations")
	simulateCmd.Flags().Float64Var(&simulateStartRate, "start-rate", 1, "Initial or base rate")
	simulateCmd.Flags().Float64Var(&simulateIncrement, "increment", 0, "Per-period step (linear) or growth fraction (percentage)")
	simulateCmd.Flags().IntVar(&simulateSpikeEvery, "spike-every", 0, "Spike every n-th period (0 disables)")
	simulateCmd.Flags().Float64Var(&simulateSpike, "spike", 0, "Spike rate (spikes) or extra percentage (percentage)")
	simulateCmd.Flags().StringVar(&simulateOutput, "out", "-", "Destination file (- for stdout)")
}
