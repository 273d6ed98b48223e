package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"

	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/source"
)

// SimulateOptions describe a synthetic data set. The same series shape is
// generated for every pair and the results are merged by timestamp.
type SimulateOptions struct {
	Series source.SeriesOptions
	Pairs  []string
	Output string
}

// Simulate writes synthetic observations as JSON lines, suitable as replay
// input.
func (a *App) Simulate(opts SimulateOptions) error {
	pairs := opts.Pairs
	if len(pairs) == 0 {
		if opts.Series.CurrencyPair == "" {
			return errors.New("at least one currency pair is required")
		}
		pairs = []string{opts.Series.CurrencyPair}
	}

	all := make([][]rates.Observation, 0, len(pairs))
	for _, pair := range pairs {
		series := opts.Series
		series.CurrencyPair = pair
		generated, err := source.Generate(series)
		if err != nil {
			return fmt.Errorf("generate %s: %w", pair, err)
		}
		all = append(all, generated)
	}
	merged := source.Merge(all...)

	out, closeOut, err := a.openOutput(opts.Output)
	if err != nil {
		return err
	}
	buffered := bufio.NewWriter(out)
	enc := json.NewEncoder(buffered)
	for _, o := range merged {
		if err := enc.Encode(o); err != nil {
			return errors.Join(fmt.Errorf("write observation: %w", err), closeOut())
		}
	}
	if err := buffered.Flush(); err != nil {
		return errors.Join(fmt.Errorf("flush observations: %w", err), closeOut())
	}

	a.Logger.Info().Int("pairs", len(pairs)).Int("observations", len(merged)).Msg("synthetic series written")
	return closeOut()
}
