/**
 * @description
 * Rate limiting middleware to protect the ledger's mutating endpoints from abuse.
 * Two limiters are provided: an in-memory token bucket for single instances and
 * a Redis fixed window shared across instances.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Distributed counters.
 * - go.uber.org/zap: Logging limiter failures.
 */
package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether a request identified by key may proceed.
// retryAfter is in whole seconds and only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter int, err error)
}

// TokenBucketLimiter implements a per-key token bucket held in process memory.
type TokenBucketLimiter struct {
	requests    map[string]*tokenBucket
	mutex       sync.Mutex
	capacity    int
	refillEvery time.Duration
	idleTTL     time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucketLimiter creates a limiter that admits requestsPerMinute per key
// with a burst of the same size.
func NewTokenBucketLimiter(requestsPerMinute int) *TokenBucketLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	rl := &TokenBucketLimiter{
		requests:    make(map[string]*tokenBucket),
		capacity:    requestsPerMinute,
		refillEvery: time.Minute / time.Duration(requestsPerMinute),
		idleTTL:     10 * time.Minute,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupExpiredBuckets()

	return rl
}

// Allow consumes a token for key if one is available.
func (rl *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	bucket, exists := rl.requests[key]
	if !exists {
		bucket = &tokenBucket{tokens: rl.capacity, lastRefill: now}
		rl.requests[key] = bucket
	}

	// Refill tokens based on time elapsed
	if elapsed := now.Sub(bucket.lastRefill); elapsed >= rl.refillEvery {
		added := int(elapsed / rl.refillEvery)
		bucket.tokens = min(rl.capacity, bucket.tokens+added)
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(added) * rl.refillEvery)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, 0, nil
	}

	wait := rl.refillEvery - now.Sub(bucket.lastRefill)
	return false, max(1, int(math.Ceil(wait.Seconds()))), nil
}

// Stop ends the background cleanup goroutine.
func (rl *TokenBucketLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// cleanupExpiredBuckets removes idle buckets to prevent memory leaks
func (rl *TokenBucketLimiter) cleanupExpiredBuckets() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mutex.Lock()
			now := rl.now()
			for key, bucket := range rl.requests {
				if now.Sub(bucket.lastRefill) > rl.idleTTL {
					delete(rl.requests, key)
				}
			}
			rl.mutex.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter implements a fixed-window limiter shared by every instance
// connected to the same Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter admitting limit requests per window per key.
func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "financial:rate_limit"
	}
	return &RedisLimiter{client: client, prefix: trimmedPrefix, limit: limit, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	if r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	rawResult, err := fixedWindowScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	if int(count) <= r.limit {
		return true, 0, nil
	}
	return false, max(1, int(math.Ceil(float64(ttlMs)/1000.0))), nil
}

// RateLimit creates a middleware that limits requests per client IP. Limiter
// errors are logged and the request is let through.
func RateLimit(limiter Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.Warn("rate limiter unavailable; allowing request",
					zap.String("client_ip", clientIP),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","message":"Rate limit exceeded. Please try again later."}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP keys requests on the connection address. chi's RealIP middleware
// has already replaced RemoteAddr with the proxy-reported address when one is
// present, so forwarding headers are not consulted here.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
