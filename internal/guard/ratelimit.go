package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Limiter caps how often a key may act within a window.
type Limiter interface {
	Check(ctx context.Context, key string) domain.GuardResult
}

// RateLimiter implements an in-process sliding window rate limiter.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter with the given limit per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Check returns a GuardResult indicating whether the key is within rate limits.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// Remove expired entries
	entries := rl.windows[key]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.windows[key] = valid
		return rateLimited(rl.limit, rl.window)
	}

	rl.windows[key] = append(valid, now)
	return domain.GuardResult{Allowed: true}
}

// RedisRateLimiter is a fixed-window limiter shared by every API instance.
// Each window is one INCR'd key that expires with the window.
type RedisRateLimiter struct {
	client   *redis.Client
	prefix   string
	limit    int
	window   time.Duration
	fallback *RateLimiter
	logger   *slog.Logger
}

// NewRedisRateLimiter creates a Redis-backed limiter. Redis errors fall back
// to an in-process window so a Redis outage degrades to per-instance limits.
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		fallback: NewRateLimiter(limit, window),
		logger:   logger,
	}
}

// Check increments the counter for key in the current window.
func (rl *RedisRateLimiter) Check(ctx context.Context, key string) domain.GuardResult {
	bucket := time.Now().UnixNano() / int64(rl.window)
	redisKey := fmt.Sprintf("%s:%s:%d", rl.prefix, key, bucket)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("redis rate limiter unavailable, using local window", "error", err)
		return rl.fallback.Check(ctx, key)
	}

	if incr.Val() > int64(rl.limit) {
		return rateLimited(rl.limit, rl.window)
	}
	return domain.GuardResult{Allowed: true}
}

// NewLimiter returns a Redis limiter when client is non-nil and an
// in-process one otherwise.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) Limiter {
	if client == nil {
		return NewRateLimiter(limit, window)
	}
	return NewRedisRateLimiter(client, prefix, limit, window, logger)
}

func rateLimited(limit int, window time.Duration) domain.GuardResult {
	return domain.GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", limit, window),
		Guard:   "rate_limiter",
	}
}
