// Package cache provides the Redis dispatch outcome tap: every finished
// dispatch is published for live viewers and the latest one per kind is
// kept for the status API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/reporter"
)

// ErrNoOutcome is returned by LastOutcome when nothing was recorded for a kind.
var ErrNoOutcome = errors.New("cache: no outcome recorded")

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

// DefaultRedisConfig returns lean defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     constants.RedisDefaultAddr,
		PoolSize: constants.RedisPoolSize,
		Channel:  constants.RedisOutcomeChannel,
	}
}

// Redis wraps go-redis with the outcome helpers.
type Redis struct {
	Client  *redis.Client
	channel string
	logger  *zap.Logger
}

var _ reporter.Tap = (*Redis)(nil)

// NewRedis creates and pings a Redis connection.
func NewRedis(cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = constants.RedisOutcomeChannel
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr), zap.String("channel", channel))
	return &Redis{Client: client, channel: channel, logger: logger}, nil
}

// Record publishes o and stores it as the latest outcome of its kind.
// It is bounded by a short deadline and never fails the dispatch.
func (r *Redis) Record(ctx context.Context, o reporter.Outcome) {
	data, err := encodeOutcome(o)
	if err != nil {
		r.logger.Warn("Outcome encoding failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RedisPublishDeadline)
	defer cancel()

	_, err = r.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, constants.RedisLastOutcomeKey+o.Kind, data, constants.RedisLastOutcomeTTL)
		p.Publish(ctx, r.channel, data)
		return nil
	})
	if err != nil {
		r.logger.Debug("Outcome publish failed", zap.String("kind", o.Kind), zap.Error(err))
	}
}

// LastOutcome returns the most recent outcome recorded for kind.
func (r *Redis) LastOutcome(ctx context.Context, kind string) (reporter.Outcome, error) {
	var o reporter.Outcome
	data, err := r.Client.Get(ctx, constants.RedisLastOutcomeKey+kind).Bytes()
	if errors.Is(err, redis.Nil) {
		return o, ErrNoOutcome
	}
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("decode outcome: %w", err)
	}
	return o, nil
}

// Subscribe returns a pub/sub subscription to the outcome channel
// (for WebSocket live updates).
func (r *Redis) Subscribe(ctx context.Context) *redis.PubSub {
	return r.Client.Subscribe(ctx, r.channel)
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.Client.Close()
}

// encodeOutcome renders o as RFC 8785 canonical JSON so subscribers can
// compare stored and streamed outcomes byte for byte.
func encodeOutcome(o reporter.Outcome) ([]byte, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
