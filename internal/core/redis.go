// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deez125/novix-gateway/internal/config"
)

const defaultRedisPingTimeout = 2 * time.Second

// Redis holds the client shared by webhook dedupe and the rate limiters.
type Redis struct {
	Client      *redis.Client
	pingTimeout time.Duration
}

// NewRedis connects and pings once. When cfg.Required is false an
// unreachable server is logged and the client is returned anyway; go-redis
// dials lazily, so callers recover as soon as the server is back.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	r := &Redis{
		Client:      redis.NewClient(opts),
		pingTimeout: cfg.PingTimeout,
	}
	if r.pingTimeout <= 0 {
		r.pingTimeout = defaultRedisPingTimeout
	}

	if err := r.Ping(ctx); err != nil {
		if cfg.Required {
			_ = r.Client.Close()
			return nil, err
		}
		slog.Warn("redis unreachable at startup; dedupe and rate limits fail open",
			"addr", opts.Addr,
			"error", err,
		)
	}

	return r, nil
}

func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()

	if err := r.Client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", r.Client.Options().Addr, err)
	}
	return nil
}

func (r *Redis) PoolStats() *redis.PoolStats {
	return r.Client.PoolStats()
}
