// Package ratelimit throttles login attempts with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Unlimited allows every request. It is used when no Redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Remaining: -1}, nil
}

// slidingWindow keeps one sorted set of request timestamps per key and
// admits a request while fewer than limit remain inside the window.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		local seq = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. seq)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', counter_key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_ms - now
	end
	return {0, 0, retry_after}
`)

// RedisLimiter is a sliding-window limiter shared by all server instances.
type RedisLimiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client redis.Scripter, limit int64, window time.Duration, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	redisKey := l.prefix + key

	raw, err := slidingWindow.Run(ctx, l.client, []string{redisKey, redisKey + ":seq"},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	return parseResult(raw)
}

func parseResult(raw []any) (Result, error) {
	if len(raw) < 3 {
		return Result{}, fmt.Errorf("unexpected result length: %d", len(raw))
	}
	vals := make([]int64, 3)
	for i := range vals {
		v, ok := raw[i].(int64)
		if !ok {
			return Result{}, fmt.Errorf("unexpected type at %d: %T", i, raw[i])
		}
		vals[i] = v
	}

	res := Result{Allowed: vals[0] == 1, Remaining: int(vals[1])}
	if !res.Allowed && vals[2] > 0 {
		res.RetryAfter = time.Duration(vals[2]) * time.Millisecond
	}
	return res, nil
}
