package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fx-rate-alerts/internal/alerter"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	defs, err := cfg.Definitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 default alerters, got %d", len(defs))
	}
	ma, ok := defs[0].(alerter.MovingAverage)
	if !ok || ma.Window != 300 || ma.ThresholdPct != 10 {
		t.Fatalf("unexpected moving average default %#v", defs[0])
	}
	tr, ok := defs[1].(alerter.Trending)
	if !ok || tr.MinimumTrend != 15*time.Minute || tr.Throttle != time.Minute {
		t.Fatalf("unexpected trending default %#v", defs[1])
	}
	if cfg.Logging.Output != "stderr" {
		t.Fatalf("logs should default to stderr, got %q", cfg.Logging.Output)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
alerters:
  - type: trending
    minimum_trend: 5s
    throttle: 10s
  - type: moving_average
    window: 4
    threshold_pct: 5
  - type: trending
    minimum_trend: 1m
watch:
  interval: 2s
  files: [a.jsonl, b.jsonl]
  http:
    - name: fx
      url: http://localhost:8080/rates
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %s", cfg.Logging.Level)
	}
	defs, err := cfg.Definitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 alerters, got %d", len(defs))
	}
	if defs[1].RequiredPeriods() != 5 {
		t.Fatalf("moving average window 4 needs 5 periods, got %d", defs[1].RequiredPeriods())
	}
	if tr := defs[2].(alerter.Trending); tr.Throttle != 0 || tr.MinimumTrend != time.Minute {
		t.Fatalf("unexpected third alerter %#v", tr)
	}
	if cfg.Watch.Interval != 2*time.Second || len(cfg.Watch.Files) != 2 || len(cfg.Watch.HTTP) != 1 {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
}

func TestLoadRejectsUnknownAlerter(t *testing.T) {
	path := writeConfig(t, `
alerters:
  - type: bollinger
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestLoadRejectsInvalidAlerter(t *testing.T) {
	path := writeConfig(t, `
alerters:
  - type: moving_average
    window: 0
    threshold_pct: 5
`)
	if _, err := Load(path); err == nil {
		t.Fatal("window 0 should be rejected")
	}
}

func TestValidateTelegramCredentials(t *testing.T) {
	path := writeConfig(t, `
alerting:
  telegram:
    enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("telegram without token should be rejected")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	if cfg.ResolveMaxPoints(0) != 10 || cfg.ResolveMaxPoints(3) != 3 {
		t.Fatal("override should win when positive")
	}
}
