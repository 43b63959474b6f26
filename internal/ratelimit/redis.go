package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the counter and arms its expiry on the first hit of
// a window, returning {count, pttl}.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter shares counters across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, scope string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, scope: scope, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", l.scope, key, int64(l.window/time.Second))
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := hitScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit %s: %w", l.scope, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit %s: unexpected reply %v", l.scope, res)
	}
	resetAt := l.now().Add(time.Duration(res[1]) * time.Millisecond)
	return decide(l.scope, l.limit, int(res[0]), resetAt), nil
}
