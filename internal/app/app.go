package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/alerting"
	"fx-rate-alerts/internal/config"
	"fx-rate-alerts/internal/engine"
	"fx-rate-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Stdout receives command output; alerts go here unless redirected.
	Stdout io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Stdout: os.Stdout,
	}
}

func (a *App) newEngine() (*engine.Engine, error) {
	defs, err := a.Config.Definitions()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrConfiguration, err)
	}
	return engine.New(defs, a.Logger)
}

// newNotifiers builds the external alert channels. Redis publishers are
// returned separately so the caller can close them.
func (a *App) newNotifiers(ctx context.Context) ([]alerting.Notifier, func(), error) {
	var (
		notifiers []alerting.Notifier
		closers   []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, timeout, a.Logger))
	}

	if a.Config.Alerting.Redis.Enabled {
		cfg := a.Config.Alerting.Redis
		pub, err := alerting.NewRedisPublisher(ctx, alerting.RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Channel:  cfg.Channel,
		}, a.Logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		notifiers = append(notifiers, pub)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close redis publisher")
			}
		})
	}

	return notifiers, closeAll, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// openOutput resolves the alert destination; empty or "-" is Stdout.
func (a *App) openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return a.Stdout, func() error { return nil }, nil
	}
	if err := ensureDir(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

// ReplayOptions configure a file replay.
type ReplayOptions struct {
	Input  string
	Output string
	// Persist stores alerts when a database is configured.
	Persist bool
	// Notify forwards alerts to the configured external channels.
	Notify bool
}

// ExportOptions hold parameters for charting a replayed file.
type ExportOptions struct {
	Input     string
	Pair      string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Pair  string
}
