package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR then set the expiry on the first hit of a window.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisWindow counts requests per key in fixed windows stored in Redis, so
// every replica enforces the same budget.
type RedisWindow struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisWindow allows limit requests per key per window.
func NewRedisWindow(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) (*RedisWindow, error) {
	if rdb == nil {
		return nil, errors.New("redis window: nil client")
	}
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("redis window: limit and window must be positive")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "dogblood:ratelimit"
	}
	return &RedisWindow{rdb: rdb, prefix: prefix, limit: int64(limit), window: window, now: time.Now}, nil
}

// Allow increments key's counter for the current window.
func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	winMs := w.window.Milliseconds()
	nowMs := w.now().UTC().UnixMilli()
	slot := nowMs / winMs
	redisKey := fmt.Sprintf("%s:%s:%d", w.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := windowScript.Run(ctx, w.rdb, []string{redisKey}, winMs).Int64()
	if err != nil {
		return false, time.Second, fmt.Errorf("redis window: %w", err)
	}
	if n <= w.limit {
		return true, 0, nil
	}
	retry := time.Duration((slot+1)*winMs-nowMs) * time.Millisecond
	return false, retry, nil
}
