package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fx-rate-alerts/internal/alerter"
	"fx-rate-alerts/internal/logging"
)

// Alerter types accepted in the alerters list.
const (
	AlerterMovingAverage = "moving_average"
	AlerterTrending      = "trending"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig       `mapstructure:"app"`
	Logging  logging.Config  `mapstructure:"logging"`
	Alerters []AlerterConfig `mapstructure:"alerters"`
	Output   OutputConfig    `mapstructure:"output"`
	Database DatabaseConfig  `mapstructure:"database"`
	Watch    WatchConfig     `mapstructure:"watch"`
	Alerting AlertingConfig  `mapstructure:"alerting"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Export   ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// AlerterConfig declares one alerting rule. Fields irrelevant to Type are
// ignored.
type AlerterConfig struct {
	Type         string        `mapstructure:"type"`
	Window       int           `mapstructure:"window"`
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	MinimumTrend time.Duration `mapstructure:"minimum_trend"`
	Throttle     time.Duration `mapstructure:"throttle"`
}

// OutputConfig controls where alert JSON lines go.
type OutputConfig struct {
	// Path of the alert file; empty or "-" means stdout.
	Path string `mapstructure:"path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// WatchConfig governs the polling loop and its sources.
type WatchConfig struct {
	Interval        time.Duration    `mapstructure:"interval"`
	AlignToInterval bool             `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration    `mapstructure:"startup_delay"`
	AdvisoryLockKey int64            `mapstructure:"advisory_lock_key"`
	Files           []string         `mapstructure:"files"`
	HTTP            []HTTPFeedConfig `mapstructure:"http"`
	Chainlink       ChainlinkConfig  `mapstructure:"chainlink"`
}

// HTTPFeedConfig describes a JSON observation endpoint.
type HTTPFeedConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChainlinkConfig covers on-chain FX feeds.
type ChainlinkConfig struct {
	RPCURL         string                `mapstructure:"rpc_url"`
	RequestTimeout time.Duration         `mapstructure:"request_timeout"`
	Feeds          []ChainlinkFeedConfig `mapstructure:"feeds"`
}

// ChainlinkFeedConfig maps a pair to an aggregator address.
type ChainlinkFeedConfig struct {
	Pair    string `mapstructure:"pair"`
	Address string `mapstructure:"address"`
}

// AlertingConfig defines alert routing beyond the JSON output.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig describes pub/sub delivery.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// MetricsConfig controls the Prometheus endpoint served by watch.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FXALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fxalerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// 5 minute average with a 10% threshold; 15 minute trends, 1 minute throttle
	v.SetDefault("alerters", []map[string]any{
		{"type": AlerterMovingAverage, "window": 300, "threshold_pct": 10.0},
		{"type": AlerterTrending, "minimum_trend": "15m", "throttle": "1m"},
	})

	v.SetDefault("output.path", "-")

	v.SetDefault("watch.interval", "1s")
	v.SetDefault("watch.align_to_interval", false)
	v.SetDefault("watch.startup_delay", "0s")
	v.SetDefault("watch.advisory_lock_key", int64(0x66786131))
	v.SetDefault("watch.chainlink.request_timeout", "10s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.redis.enabled", false)
	v.SetDefault("alerting.redis.addr", "localhost:6379")
	v.SetDefault("alerting.redis.channel", "fxalerts")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9108")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Alerters) == 0 {
		return fmt.Errorf("at least one alerter must be configured")
	}
	if _, err := c.Definitions(); err != nil {
		return err
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be greater than zero")
	}
	for i, feed := range c.Watch.HTTP {
		if feed.URL == "" {
			return fmt.Errorf("watch.http[%d].url is required", i)
		}
	}
	for i, feed := range c.Watch.Chainlink.Feeds {
		if feed.Pair == "" || feed.Address == "" {
			return fmt.Errorf("watch.chainlink.feeds[%d] needs pair and address", i)
		}
	}
	if len(c.Watch.Chainlink.Feeds) > 0 && c.Watch.Chainlink.RPCURL == "" {
		return fmt.Errorf("watch.chainlink.rpc_url is required when feeds are configured")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Redis.Enabled && c.Alerting.Redis.Channel == "" {
		return fmt.Errorf("alerting.redis.channel is required")
	}
	return nil
}

// Definitions converts the alerters section into engine definitions, in
// the order they were declared.
func (c *Config) Definitions() ([]alerter.Definition, error) {
	defs := make([]alerter.Definition, 0, len(c.Alerters))
	for i, a := range c.Alerters {
		var def alerter.Definition
		switch strings.ToLower(strings.TrimSpace(a.Type)) {
		case AlerterMovingAverage:
			def = alerter.MovingAverage{Window: a.Window, ThresholdPct: a.ThresholdPct}
		case AlerterTrending:
			def = alerter.Trending{MinimumTrend: a.MinimumTrend, Throttle: a.Throttle}
		default:
			return nil, fmt.Errorf("alerters[%d]: unknown type %q", i, a.Type)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("alerters[%d]: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
