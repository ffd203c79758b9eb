package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Token bucket kept in a Redis hash so every relay instance shares the budget.
// Returns {allowed, remaining, retry_after_seconds}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, math.ceil(capacity / rate) * 2)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`)

type RedisRateLimiter struct {
	client   redis.Scripter
	capacity int
	rate     float64 // tokens per second
	prefix   string
	now      func() time.Time
}

// NewRedisRateLimiter allows perMinute requests per client per minute, with
// bursts up to perMinute.
func NewRedisRateLimiter(client redis.Scripter, perMinute int) *RedisRateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RedisRateLimiter{
		client:   client,
		capacity: perMinute,
		rate:     float64(perMinute) / 60,
		prefix:   "relay_rate_limit:",
		now:      time.Now,
	}
}

func (rl *RedisRateLimiter) key(r *http.Request) string {
	return rl.prefix + clientKey(r)
}

func (rl *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := float64(rl.now().UnixNano()) / 1e9

		res, err := tokenBucketScript.Run(r.Context(), rl.client,
			[]string{rl.key(r)},
			rl.capacity, rl.rate, now, 1,
		).Int64Slice()
		if err != nil || len(res) < 3 {
			// Fail open: the limiter must never take the relay down with it.
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.capacity))
		if res[0] == 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(res[2], 10))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
		next.ServeHTTP(w, r)
	})
}
