package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// incrWithExpiry sets the window TTL on the first hit so a key never outlives
// its window.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter shares counters between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter wraps an existing client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	n, err := incrWithExpiry.Run(ctx, l.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	return n <= int64(limit), nil
}
