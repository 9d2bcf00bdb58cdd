package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"signalRelay/internal/adapters/codec"
	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

// redisPublisher is the part of *redis.Client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisConfig holds the Redis sink settings.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	Logger        ports.Logger
}

// RedisSink PUBLISHes every event to <prefix>:<symbol>:<interval>.
type RedisSink struct {
	client redisPublisher
	prefix string
	logger ports.Logger
}

// NewRedisSink creates the client and checks the server answers.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Redis sink", ports.ErrConfiguration)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: Redis address is required", ports.ErrConfiguration)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w: %w", ports.ErrConnectionFailed, err)
	}
	cfg.Logger.Info(ctx, "Connected to Redis", map[string]interface{}{"addr": cfg.Addr, "db": cfg.DB})
	return newRedisSink(client, cfg.ChannelPrefix, cfg.Logger), nil
}

func newRedisSink(client redisPublisher, prefix string, logger ports.Logger) *RedisSink {
	if prefix == "" {
		prefix = "signals"
	}
	return &RedisSink{client: client, prefix: prefix, logger: logger}
}

// Name identifies the sink.
func (s *RedisSink) Name() string { return "redis" }

// Channel returns the pub/sub channel events of ev's stream go to.
func (s *RedisSink) Channel(ev domain.DerivedEvent) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, ev.Symbol, ev.Interval)
}

// Deliver publishes ev. Having no listeners on the channel is not an error.
func (s *RedisSink) Deliver(ctx context.Context, ev domain.DerivedEvent) error {
	data, err := codec.EncodeEvent(ev)
	if err != nil {
		return err
	}
	channel := s.Channel(ev)
	receivers, err := s.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish to %s failed: %w: %w", channel, ports.ErrTransport, err)
	}
	s.logger.Debug(ctx, "Event published to Redis", map[string]interface{}{"channel": channel, "receivers": receivers})
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
