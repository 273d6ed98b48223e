package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/alerter"
	"fx-rate-alerts/internal/engine"
	"fx-rate-alerts/internal/fetcher"
	"fx-rate-alerts/internal/metrics"
	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/scheduler"
	"fx-rate-alerts/internal/storage"
)

type stubFetcher struct {
	name    string
	batches [][]rates.Observation
	err     error
	calls   int
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(context.Context) ([]rates.Observation, error) {
	s.calls++
	if len(s.batches) == 0 {
		return nil, s.err
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, s.err
}

type recordingNotifier struct {
	got []rates.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, a rates.Alert) error {
	r.got = append(r.got, a)
	return nil
}

type memoryStore struct {
	records []storage.AlertRecord
}

func (m *memoryStore) InsertAlert(_ context.Context, rec storage.AlertRecord) (storage.AlertRecord, error) {
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memoryStore) ListRecentAlerts(context.Context, int, string) ([]storage.AlertRecord, error) {
	return m.records, nil
}

func (m *memoryStore) CountAlerts(context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func (m *memoryStore) DeleteAlertsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type stubLocker struct {
	acquired bool
	released int
}

func (l *stubLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func obs(sec int64, pair string, rate float64) rates.Observation {
	return rates.Observation{Timestamp: time.Unix(sec, 0).UTC(), CurrencyPair: pair, Rate: rate}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New([]alerter.Definition{alerter.MovingAverage{Window: 1, ThresholdPct: 10}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestPollDropsReplayedObservations(t *testing.T) {
	src := &stubFetcher{name: "file:rates.jsonl", batches: [][]rates.Observation{
		{obs(1, "AUDNZD", 1), obs(0, "AUDNZD", 1)},
		{obs(1, "AUDNZD", 1), obs(2, "AUDNZD", 2)},
	}}
	notifier := &recordingNotifier{}
	store := &memoryStore{}
	m := metrics.New()

	svc, err := New(Options{
		Engine:     newEngine(t),
		Fetchers:   []fetcher.RateFetcher{src},
		Notifier:   notifier,
		AlertStore: store,
		Metrics:    m,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Poll(context.Background(), time.Now()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	if len(notifier.got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.got))
	}
	alert := notifier.got[0]
	if alert.Kind != rates.KindSpotChange || alert.Timestamp.Unix() != 2 {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if len(store.records) != 1 || store.records[0].Source != "file:rates.jsonl" {
		t.Fatalf("unexpected stored records %+v", store.records)
	}
	if got := testutil.ToFloat64(m.Observations.WithLabelValues("file:rates.jsonl")); got != 3 {
		t.Fatalf("observations = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Dropped.WithLabelValues("file:rates.jsonl")); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Pairs); got != 1 {
		t.Fatalf("pairs = %v, want 1", got)
	}
}

func TestPollContinuesPastFailingSource(t *testing.T) {
	broken := &stubFetcher{name: "http:broken", err: errors.New("connection refused")}
	healthy := &stubFetcher{name: "http:ok", batches: [][]rates.Observation{
		{obs(0, "CNYAUD", 1), obs(1, "CNYAUD", 5)},
	}}
	notifier := &recordingNotifier{}
	m := metrics.New()

	svc, err := New(Options{
		Engine:   newEngine(t),
		Fetchers: []fetcher.RateFetcher{broken, healthy},
		Notifier: notifier,
		Metrics:  m,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := svc.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(notifier.got) != 1 || notifier.got[0].CurrencyPair != "CNYAUD" {
		t.Fatalf("unexpected alerts %+v", notifier.got)
	}
	if got := testutil.ToFloat64(m.FetchErrors.WithLabelValues("http:broken")); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
}

func TestPollProcessesPartialResults(t *testing.T) {
	partial := &stubFetcher{
		name:    "chainlink",
		err:     errors.New("feed GBPUSD: call failed"),
		batches: [][]rates.Observation{{obs(0, "EURUSD", 1), obs(1, "EURUSD", 5)}},
	}
	eng := newEngine(t)
	notifier := &recordingNotifier{}
	m := metrics.New()

	svc, err := New(Options{
		Engine:   eng,
		Fetchers: []fetcher.RateFetcher{partial},
		Notifier: notifier,
		Metrics:  m,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := svc.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if got := eng.Stats().Observations; got != 2 {
		t.Fatalf("engine observations = %d, want 2", got)
	}
	if len(notifier.got) != 1 || notifier.got[0].CurrencyPair != "EURUSD" {
		t.Fatalf("unexpected alerts %+v", notifier.got)
	}
	if got := testutil.ToFloat64(m.FetchErrors.WithLabelValues("chainlink")); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
}

func TestPollDropsRepeatedTimestamp(t *testing.T) {
	src := &stubFetcher{name: "http:feed", batches: [][]rates.Observation{
		{obs(0, "AUDNZD", 1)},
		{obs(0, "AUDNZD", 5), obs(1, "AUDNZD", 1)},
	}}
	eng := newEngine(t)
	notifier := &recordingNotifier{}

	svc, err := New(Options{Engine: eng, Fetchers: []fetcher.RateFetcher{src}, Notifier: notifier}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Poll(context.Background(), time.Now()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	if got := eng.Stats().Observations; got != 2 {
		t.Fatalf("engine observations = %d, want 2", got)
	}
	if len(notifier.got) != 0 {
		t.Fatalf("repeated timestamp should not reach the engine, got alerts %+v", notifier.got)
	}
}

func TestPollSkipsWhenLockHeldElsewhere(t *testing.T) {
	src := &stubFetcher{name: "file:x"}
	locker := &stubLocker{}
	svc, err := New(Options{
		Engine:   newEngine(t),
		Fetchers: []fetcher.RateFetcher{src},
		Locker:   locker,
		LockKey:  42,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := svc.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if src.calls != 0 {
		t.Fatal("source should not be polled without the lock")
	}

	locker.acquired = true
	if err := svc.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if src.calls != 1 || locker.released != 1 {
		t.Fatalf("calls = %d released = %d", src.calls, locker.released)
	}
}

func TestRunUsesScheduler(t *testing.T) {
	src := &stubFetcher{name: "file:x"}
	sched := scheduler.New(scheduler.Options{Interval: time.Millisecond, Immediate: true, MaxTicks: 2}, zerolog.Nop())
	svc, err := New(Options{Scheduler: sched, Engine: newEngine(t), Fetchers: []fetcher.RateFetcher{src}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2", src.calls)
	}
}

func TestNewRequiresEngineAndSources(t *testing.T) {
	if _, err := New(Options{Fetchers: []fetcher.RateFetcher{&stubFetcher{}}}, zerolog.Nop()); err == nil {
		t.Fatal("missing engine should fail")
	}
	if _, err := New(Options{Engine: newEngine(t)}, zerolog.Nop()); err == nil {
		t.Fatal("missing sources should fail")
	}
}
