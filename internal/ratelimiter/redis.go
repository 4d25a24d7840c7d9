package ratelimiter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/metrics"
)

// keyPrefix namespaces the sorted sets this limiter owns in the shared
// Redis instance the work queue also uses.
const keyPrefix = "ratelimit"

// rateLimitScript trims expired entries, checks the window's count against
// the limit, and conditionally records the new attempt — all atomically in
// one EVAL call so concurrent delivery workers never race on the check.
// Ported from the original delivery worker's rate_limiter.py.
const rateLimitScript = `
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)
if count >= limit then
    return 0
end
redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, ttl)
return 1
`

// RedisLimiter implements Limiter on a Redis sorted set per channel, one
// member per attempt scored by the attempt's timestamp.
type RedisLimiter struct {
	client *redis.Client
	cfg    config.RateLimitConfig
	script *redis.Script
	log    logging.Logger
}

// NewRedisLimiter wraps an existing Redis client with the configured
// per-channel limits and window.
func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig, log logging.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

// Acquire evaluates the sliding window for channel. A misconfigured channel
// (no configured limit) is a programming error and is returned as such;
// Redis unavailability is fail-closed — logged and reported as "not
// acquired" so the caller requeues rather than treats it as fatal.
func (l *RedisLimiter) Acquire(ctx context.Context, channel config.Channel) (bool, error) {
	limit, err := l.cfg.LimitForChannel(channel)
	if err != nil {
		return false, err
	}

	now := float64(time.Now().UnixNano()) / 1e9
	windowStart := now - float64(l.cfg.WindowSeconds)
	ttl := l.cfg.WindowSeconds + 1
	key := keyPrefix + ":" + string(channel)

	result, err := l.script.Run(ctx, l.client, []string{key}, windowStart, limit, now, uuid.New().String(), ttl).Int()
	if err != nil {
		l.log.Warn("rate limiter store unavailable, failing closed", "channel", channel, "error", err)
		metrics.RateLimitDenied.WithLabelValues(string(channel)).Inc()
		return false, nil
	}
	acquired := result == 1
	if !acquired {
		metrics.RateLimitDenied.WithLabelValues(string(channel)).Inc()
	}
	return acquired, nil
}
