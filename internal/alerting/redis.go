package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/rates"
)

// RedisPublisher publishes alert JSON on a pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  zerolog.Logger
}

// RedisOptions configure NewRedisPublisher.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPublisherWithClient(client, opts.Channel, logger), nil
}

// NewRedisPublisherWithClient uses an existing client.
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "alert_redis").Str("channel", channel).Logger(),
	}
}

// Notify implements Notifier.
func (r *RedisPublisher) Notify(ctx context.Context, alert rates.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	receivers, err := r.client.Publish(ctx, r.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	r.logger.Debug().Int64("receivers", receivers).Str("pair", alert.CurrencyPair).Msg("alert published")
	return nil
}

// Close releases the client.
func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

var _ Notifier = (*RedisPublisher)(nil)
