package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/scheduler"
	"fx-rate-alerts/internal/service"
	"fx-rate-alerts/internal/source"
	"fx-rate-alerts/internal/storage"
)

func (a *App) newFetchers() []fetcher.RateFetcher {
	var fetchers []fetcher.RateFetcher
	for _, path := range a.Config.Watch.Files {
		fetchers = append(fetchers, source.NewTailer(path, a.Logger))
	}
	for _, feed := range a.Config.Watch.HTTP {
		fetchers = append(fetchers, fetcher.NewHTTPFeed(fetcher.HTTPFeedOptions{
			Name:    feed.Name,
			URL:     feed.URL,
			Timeout: feed.Timeout,
		}, a.Logger))
	}

	cl := a.Config.Watch.Chainlink
	if cl.RPCURL != "" && len(cl.Feeds) > 0 {
		feeds := make([]fetcher.ChainlinkFeed, 0, len(cl.Feeds))
		for _, f := range cl.Feeds {
			feeds = append(feeds, fetcher.ChainlinkFeed{Pair: f.Pair, Address: f.Address})
		}
		fetchers = append(fetchers, fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:  cl.RPCURL,
			Timeout: cl.RequestTimeout,
			Feeds:   feeds,
		}, a.Logger))
	}
	return fetchers
}

// flushingWriter flushes after every alert so a tailing reader sees it
// immediately.
type flushingWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
	j  *alerting.JSONWriter
}

func newFlushingWriter(out io.Writer) *flushingWriter {
	buffered := bufio.NewWriter(out)
	return &flushingWriter{w: buffered, j: alerting.NewJSONWriter(buffered)}
}

func (f *flushingWriter) Notify(ctx context.Context, alert rates.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.j.Notify(ctx, alert); err != nil {
		return err
	}
	return f.w.Flush()
}

// Run executes the long-running watch service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.newEngine()
	if err != nil {
		return err
	}

	fetchers := a.newFetchers()
	if len(fetchers) == 0 {
		return errors.New("watch: no sources configured (watch.files, watch.http or watch.chainlink)")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	out, closeOut, err := a.openOutput(a.Config.Output.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeOut(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close alert output")
		}
	}()

	external, closeNotifiers, err := a.newNotifiers(ctx)
	if err != nil {
		return err
	}
	defer closeNotifiers()
	notifier := alerting.NewFanout(a.Logger, append([]alerting.Notifier{newFlushingWriter(out)}, external...)...)

	var m *metrics.Metrics
	if a.Config.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, a.Config.Metrics.Listen, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Watch.Interval,
		AlignToInterval: a.Config.Watch.AlignToInterval,
		StartupDelay:    a.Config.Watch.StartupDelay,
		Immediate:       true,
	}, a.Logger)

	opts := service.Options{
		Scheduler: sched,
		Engine:    eng,
		Fetchers:  fetchers,
		Notifier:  notifier,
		LockKey:   a.Config.Watch.AdvisoryLockKey,
		Metrics:   m,
	}
	if store != nil {
		opts.AlertStore = store
		opts.Locker = storage.AdvisoryLocker(store)
	}

	svc, err := service.New(opts, a.Logger)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("sources", len(fetchers)).Dur("interval", a.Config.Watch.Interval).Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	stats := eng.Stats()
	a.Logger.Info().
		Int64("observations", stats.Observations).
		Int64("alerts", stats.Alerts).
		Int("pairs", stats.Pairs).
		Msg("watch service stopped")
	return nil
}
