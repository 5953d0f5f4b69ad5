// redis.go - Per-user request limit backed by a Redis token bucket

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings. It returns nil when addr is empty or the
// server is unreachable; callers then run without the limit.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// UserLimiter allows perMinute requests per authenticated user, refilling one
// token every minute/perMinute. A nil client or a Redis error lets the request through.
type UserLimiter struct {
	rdb       *redis.Client
	capacity  int
	interval  time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewUserLimiter(rdb *redis.Client, perMinute int, keyPrefix string) *UserLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &UserLimiter{
		rdb:       rdb,
		capacity:  perMinute,
		interval:  time.Minute / time.Duration(perMinute),
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Allow takes a token for key. It returns whether the request may proceed,
// the tokens left and how long to wait when denied.
func (l *UserLimiter) Allow(ctx context.Context, key string) (bool, int64, time.Duration, error) {
	args := []interface{}{
		l.now().UnixMilli(),
		l.capacity,
		l.interval.Milliseconds(),
		int64(2 * time.Minute / time.Second),
	}
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.keyPrefix + ":" + key}, args...).Int64Slice()
	if err != nil {
		return true, 0, 0, err
	}
	if len(vals) != 3 {
		return true, 0, 0, fmt.Errorf("unexpected limiter result %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

// Middleware enforces the limit for the caller set by auth.Middleware
func (l *UserLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.rdb == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		userID := auth.UserID(ctx)
		if userID == "" {
			userID = "ip:" + c.ClientIP()
		}

		allowed, remaining, retry, err := l.Allow(ctx, userID)
		if err != nil {
			logging.L(ctx).Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int(math.Ceil(retry.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			metrics.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}
