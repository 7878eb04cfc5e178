package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements fixed-window rate limiting in Redis
// so limits are shared across instances
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

var _ Limiter = (*DistributedRateLimiter)(nil)

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "gatehouse:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Take counts one request against key's current window. Redis errors return
// an allowing decision together with the error.
func (rl *DistributedRateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.redisKey(key)

	failOpen := Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return failOpen, fmt.Errorf("redis error: %w", err)
	}

	// a negative TTL means the window was just opened; later requests must
	// not push the expiry out
	if ttl.Val() < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return failOpen, fmt.Errorf("redis error: %w", err)
		}
	}

	count := int(incr.Val())
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{
		Allowed:   count <= rl.config.RequestsPerWindow,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: remaining,
	}
	if !decision.Allowed {
		decision.RetryAfter = rl.config.WindowDuration
		if d := ttl.Val(); d > 0 {
			decision.RetryAfter = d
		}
	}
	return decision, nil
}
