package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recently persisted alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	defer closeStore()

	records, err := store.ListRecentAlerts(ctx, opts.Limit, opts.Pair)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tAlert\tSeconds\tSource")

	for _, rec := range records {
		seconds := "-"
		if rec.Seconds != nil {
			seconds = fmt.Sprintf("%d", *rec.Seconds)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			rec.AlertTS.UTC().Format(time.RFC3339Nano),
			rec.CurrencyPair,
			rec.Kind,
			seconds,
			sanitizeInline(rec.Source),
		)
	}

	return writer.Flush()
}

// Prune deletes persisted alerts stamped before the cutoff.
func (a *App) Prune(ctx context.Context, before time.Time) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to prune")
	}
	defer closeStore()

	removed, err := store.DeleteAlertsBefore(ctx, before.UTC())
	if err != nil {
		return err
	}
	remaining, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Time("before", before).Int64("removed", removed).Int64("remaining", remaining).Msg("alerts pruned")
	fmt.Fprintf(a.Stdout, "removed %d alerts, %d remaining\n", removed, remaining)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
