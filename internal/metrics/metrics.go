// Package metrics exposes Prometheus counters for the watch loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics groups the collectors on a private registry.
type Metrics struct {
	Observations *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec
	Alerts       *prometheus.CounterVec
	Pairs        prometheus.Gauge

	registry *prometheus.Registry
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxalerts_observations_total",
			Help: "Observations fed to the engine, by source.",
		}, []string{"source"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxalerts_observations_dropped_total",
			Help: "Observations discarded before the engine, by source.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxalerts_fetch_errors_total",
			Help: "Failed polls, by source.",
		}, []string{"source"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxalerts_alerts_total",
			Help: "Alerts emitted, by kind and currency pair.",
		}, []string{"kind", "pair"}),
		Pairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxalerts_pairs",
			Help: "Currency pairs tracked by the engine.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.Observations, m.Dropped, m.FetchErrors, m.Alerts, m.Pairs)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
