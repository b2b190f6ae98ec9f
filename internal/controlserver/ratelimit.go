package controlserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures the control surface's request throttle: a
// local token bucket applies when RPS > 0; an optional Redis-backed per-client
// store adds shared-state limiting across multiple control-server
// instances, mirroring the teacher's token-store abstraction.
type RateLimitConfig struct {
	RPS          float64
	Burst        int
	RedisAddr    string
	RedisTimeout time.Duration
}

type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	global *tokenBucket
	store  tokenStore
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.RPS, burst)
	}
	if cfg.RedisAddr != "" {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, timeout)
	}
	return rl
}

// Allow reports whether a request identified by key is permitted. The
// global in-process bucket (when RPS was configured) is checked first; the
// Redis-backed store (when configured) adds a per-key window on top. With
// neither configured every request is allowed.
func (r *rateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil {
		return true, 0, nil
	}
	if r.global != nil && !r.global.Allow() {
		return false, time.Second, nil
	}
	if r.store != nil {
		return r.store.Allow(ctx, fmt.Sprintf("spiritstream:ctl:%s", key), 60, time.Minute)
	}
	return true, 0, nil
}

// redisStore rate-limits via INCR+EXPIRE+TTL against a real go-redis
// client, replacing the teacher's hand-rolled RESP client with the
// driver already in use elsewhere in this module.
type redisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func newRedisStore(addr string, timeout time.Duration) *redisStore {
	return &redisStore{
		client:  redis.NewClient(&redis.Options{Addr: addr, DialTimeout: timeout}),
		timeout: timeout,
	}
}

func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("controlserver: rate-limit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("controlserver: rate-limit expire: %w", err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("controlserver: rate-limit ttl: %w", err)
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
