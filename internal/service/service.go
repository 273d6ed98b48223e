package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/engine"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/scheduler"
	"fx-rate-alerts/internal/storage"
)

// Options carries the collaborators of a watch Service. Only Engine and
// Fetchers are required.
type Options struct {
	Scheduler  *scheduler.Scheduler
	Engine     *engine.Engine
	Fetchers   []fetcher.RateFetcher
	Notifier   alerting.Notifier
	AlertStore storage.AlertStore
	Locker     storage.AdvisoryLocker
	LockKey    int64
	Metrics    *metrics.Metrics
}

// Service polls rate sources and feeds new observations to the engine.
type Service struct {
	scheduler  *scheduler.Scheduler
	engine     *engine.Engine
	fetchers   []fetcher.RateFetcher
	notifier   alerting.Notifier
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	lockKey    int64
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New constructs the watch service.
func New(opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine not configured")
	}
	if len(opts.Fetchers) == 0 {
		return nil, fmt.Errorf("no rate sources configured")
	}

	locker := opts.Locker
	if locker == nil {
		if l, ok := opts.AlertStore.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}

	return &Service{
		scheduler:  opts.Scheduler,
		engine:     opts.Engine,
		fetchers:   opts.Fetchers,
		notifier:   opts.Notifier,
		alertStore: opts.AlertStore,
		locker:     locker,
		lockKey:    opts.LockKey,
		metrics:    opts.Metrics,
		logger:     logger.With().Str("component", "service").Logger(),
		lastSeen:   make(map[string]time.Time),
	}, nil
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Poll)
}

// Poll fetches every source once and processes whatever is new. A fetch
// error is logged and counted, but any observations returned alongside it
// are still processed. An engine failure aborts the poll.
func (s *Service) Poll(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip poll because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.fetchers {
		observations, err := f.Fetch(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("source", f.Name()).Int("partial", len(observations)).Msg("failed to fetch rates")
			if s.metrics != nil {
				s.metrics.FetchErrors.WithLabelValues(f.Name()).Inc()
			}
		}
		if len(observations) == 0 {
			continue
		}
		if err := s.process(ctx, f.Name(), observations); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.metrics.Pairs.Set(float64(s.engine.Stats().Pairs))
	}
	return nil
}

// process feeds observations in timestamp order. An observation is dropped
// unless it is strictly newer than the last one fed for its pair, so a
// repeated timestamp is dropped even when its rate differs.
func (s *Service) process(ctx context.Context, source string, observations []rates.Observation) error {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].Timestamp.Before(observations[j].Timestamp)
	})

	fed, dropped := 0, 0
	for _, o := range observations {
		if last, ok := s.lastSeen[o.CurrencyPair]; ok && !o.Timestamp.After(last) {
			dropped++
			continue
		}
		s.lastSeen[o.CurrencyPair] = o.Timestamp

		var pending []rates.Alert
		if err := s.engine.Observe(o, func(a rates.Alert) { pending = append(pending, a) }); err != nil {
			return fmt.Errorf("process %s: %w", source, err)
		}
		fed++
		for _, a := range pending {
			s.dispatch(ctx, source, a)
		}
	}

	if s.metrics != nil {
		s.metrics.Observations.WithLabelValues(source).Add(float64(fed))
		s.metrics.Dropped.WithLabelValues(source).Add(float64(dropped))
	}
	if fed > 0 || dropped > 0 {
		s.logger.Debug().Str("source", source).Int("fed", fed).Int("dropped", dropped).Msg("observations processed")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, source string, alert rates.Alert) {
	s.logger.Info().
		Str("pair", alert.CurrencyPair).
		Str("alert", alert.Kind).
		Time("timestamp", alert.Timestamp).
		Msg("alert raised")

	if s.metrics != nil {
		s.metrics.Alerts.WithLabelValues(alert.Kind, alert.CurrencyPair).Inc()
	}
	if s.alertStore != nil {
		if _, err := s.alertStore.InsertAlert(ctx, storage.NewAlertRecord(alert, source)); err != nil {
			s.logger.Error().Err(err).Str("pair", alert.CurrencyPair).Msg("failed to persist alert record")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("pair", alert.CurrencyPair).Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
