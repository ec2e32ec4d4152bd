package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// Redis sorted set and updated by an atomic Lua script. Because the window
// lives in Redis, every replica shares one budget per key: venue request
// pacing and API client limits hold across the whole deployment.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script

	// waitLimit requests per waitWindow is the budget Wait enforces.
	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates a RateLimiter. Wait allows one request per
// interval; a non-positive interval means one per second.
func NewRateLimiter(c *Client, interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		waitLimit:     1,
		waitWindow:    interval,
	}
}

func rateLimitKey(key string) string {
	return keyPrefix + "ratelimit:" + key
}

// Allow reports whether one more request for key fits in limit per window,
// counting it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		slidingWindowArgs(time.Now(), window, limit)...,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	allowed, err := parseAllowResult(result)
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	return allowed, nil
}

// slidingWindowArgs builds ARGV for scripts/sliding_window.lua: now and
// window in microseconds, then the limit.
func slidingWindowArgs(now time.Time, window time.Duration, limit int) []any {
	return []any{now.UnixMicro(), window.Microseconds(), limit}
}

// parseAllowResult reads the script's {allowed, count} reply.
func parseAllowResult(result []int64) (bool, error) {
	if len(result) < 2 {
		return false, fmt.Errorf("unexpected result length %d", len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until a request for key is allowed under the limiter's
// interval, polling at a fixed rate.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := rl.Allow(ctx, key, rl.waitLimit, rl.waitWindow)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
