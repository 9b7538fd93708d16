// Package redis provides a Redis-backed sliding-window limiter sharing
// one window per key across gateway replicas. Timestamps live in a ZSET
// per key; Redis TTLs replace the memory limiter's background sweep.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/entragate/outlook-mcp/ratelimit"
)

// Config contains configuration options for the Redis limiter.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix namespaces all limiter keys. Defaults to "rl:".
	KeyPrefix string

	// Limit is the maximum number of requests per key per Window.
	Limit int

	// Window is the trailing window length.
	Window time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Limiter is the Redis ratelimit.Limiter.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// New builds a Limiter on an existing client.
func New(cfg Config) (*Limiter, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("limit and window are required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rl:"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{client: cfg.Client, prefix: prefix, limit: cfg.Limit, window: cfg.Window, now: now}, nil
}

// NewFromAddr dials addr and verifies connectivity before returning.
func NewFromAddr(ctx context.Context, addr string, cfg Config) (*Limiter, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	cfg.Client = cl
	return New(cfg)
}

func (l *Limiter) key(k string) string { return l.prefix + k }

// Check implements ratelimit.Limiter. It prunes scores that left the
// window, counts the remainder, and reads the oldest retained score to
// compute the reset horizon.
func (l *Limiter) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	now := l.now()
	windowStart := now.Add(-l.window).UnixMilli()
	rk := l.key(key)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rk, "-inf", strconv.FormatInt(windowStart, 10))
	card := pipe.ZCard(ctx, rk)
	oldest := pipe.ZRangeWithScores(ctx, rk, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	count := int(card.Val())
	d := ratelimit.Decision{
		Limit:   l.limit,
		Limited: count >= l.limit,
		Reset:   l.window,
	}
	if rem := l.limit - count; rem > 0 {
		d.Remaining = rem
	}
	if zs := oldest.Val(); len(zs) > 0 {
		oldestAt := time.UnixMilli(int64(zs[0].Score))
		d.Reset = oldestAt.Add(l.window).Sub(now)
	}
	return d, nil
}

// Record implements ratelimit.Limiter. The key's TTL is refreshed to
// twice the window so idle keys expire on their own.
func (l *Limiter) Record(ctx context.Context, key string) error {
	now := l.now()
	rk := l.key(key)

	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, rk, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.PExpire(ctx, rk, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}

// Close implements ratelimit.Limiter.
func (l *Limiter) Close() error { return l.client.Close() }
