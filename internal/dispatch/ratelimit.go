package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds outbound deliveries per subscription. Recent
// delivery timestamps live in a Redis sorted set that is trimmed,
// counted and appended in one Lua script, so concurrent dispatchers
// sharing the same Redis cannot overshoot the limit together.
type RateLimiter struct {
	redisClient *redis.Client
	window      time.Duration
	logger      *slog.Logger
}

// KEYS[1] window set
// ARGV[1] now (µs)  ARGV[2] window (µs)  ARGV[3] limit
// ARGV[4] key TTL (ms)  ARGV[5] member
var windowCountScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1] - ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// NewRateLimiter creates a limiter counting deliveries over the given
// window. Subscription limits are per second, so callers pass a window
// of one second; tests shrink it.
func NewRateLimiter(redisClient *redis.Client, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		window:      window,
		logger:      logger,
	}
}

// Allow reports whether a delivery to this subscription fits within its
// limit. A limit of zero means unlimited. Redis trouble fails open — a
// dropped delivery is worse than a briefly exceeded limit.
func (rl *RateLimiter) Allow(ctx context.Context, subscriptionID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	now := time.Now().UnixMicro()
	ttl := rl.window.Milliseconds() + 1000

	allowed, err := windowCountScript.Run(ctx, rl.redisClient,
		[]string{"rl:" + subscriptionID},
		now, rl.window.Microseconds(), limit, ttl, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "subscription_id", subscriptionID)
		return true
	}

	if allowed == 0 {
		rl.logger.Debug("delivery rate limited",
			"subscription_id", subscriptionID,
			"limit", limit,
		)
		return false
	}

	return true
}
