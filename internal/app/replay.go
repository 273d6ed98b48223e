package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/source"
	"fx-rate-alerts/internal/storage"
)

const replaySource = "replay"

// Replay streams a JSON-lines file through the engine and writes every alert
// as a JSON line. The first malformed line or write failure aborts the run;
// failures of optional channels are only logged.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	eng, err := a.newEngine()
	if err != nil {
		return err
	}

	in, err := source.Open(opts.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = a.Config.Output.Path
	}
	out, closeOut, err := a.openOutput(outputPath)
	if err != nil {
		return err
	}
	buffered := bufio.NewWriter(out)
	writer := alerting.NewJSONWriter(buffered)

	var store storage.AlertStore
	if opts.Persist {
		s, closeStore, err := a.openStore(ctx)
		if err != nil {
			return errors.Join(err, closeOut())
		}
		if s == nil {
			a.Logger.Warn().Msg("database.dsn not configured; alerts will not be persisted")
		} else {
			store = s
			defer closeStore()
		}
	}

	var extra alerting.Notifier
	if opts.Notify {
		notifiers, closeNotifiers, err := a.newNotifiers(ctx)
		if err != nil {
			return errors.Join(err, closeOut())
		}
		defer closeNotifiers()
		fanout := alerting.NewFanout(a.Logger, notifiers...)
		if fanout.Len() == 0 {
			a.Logger.Warn().Msg("no alert channels enabled; --notify has no effect")
		} else {
			extra = fanout
		}
	}

	var writeErr error
	onAlert := func(alert rates.Alert) {
		if writeErr != nil {
			return
		}
		if err := writer.Notify(ctx, alert); err != nil {
			writeErr = err
			return
		}
		if store != nil {
			if _, err := store.InsertAlert(ctx, storage.NewAlertRecord(alert, replaySource)); err != nil {
				a.Logger.Error().Err(err).Str("pair", alert.CurrencyPair).Msg("failed to persist alert record")
			}
		}
		if extra != nil {
			// fanout logs each failing channel itself
			_ = extra.Notify(ctx, alert)
		}
	}

	runErr := source.NewDecoder(in).Each(func(o rates.Observation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := eng.Observe(o, onAlert); err != nil {
			return err
		}
		return writeErr
	})

	if err := buffered.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush alerts: %w", err)
	}
	if err := closeOut(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}

	stats := eng.Stats()
	a.Logger.Info().
		Int64("observations", stats.Observations).
		Int64("alerts", stats.Alerts).
		Int("pairs", stats.Pairs).
		Int("cursors", stats.Cursors).
		Msg("replay finished")

	return runErr
}
