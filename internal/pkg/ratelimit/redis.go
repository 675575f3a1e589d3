package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLimiter counts requests in a fixed Redis window so the throttle holds
// across multiple API instances. INCR creates the key at 1; PEXPIRE is set
// only on the first hit so the window does not slide forward.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		period: period,
		prefix: "ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	count, err := l.client.Incr(ctx, l.prefix+key).Result()
	if err != nil {
		// fail open: a broken Redis must not take down tap authorization
		log.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, allowing request")
		return true
	}

	if count == 1 {
		if err := l.client.PExpire(ctx, l.prefix+key, l.period).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to set rate limit window expiry")
		}
	}

	return count <= int64(l.limit)
}
