package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request from key fits the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a fixed-window counter per key for single-replica setups
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	rate    int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemoryLimiter(rate int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		rate:    rate,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		// drop expired windows so the map does not grow without bound
		for k, old := range l.windows {
			if now.Sub(old.start) >= l.period {
				delete(l.windows, k)
			}
		}
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= l.rate {
		return false, nil
	}
	w.count++
	return true, nil
}

// RedisLimiter shares the window across replicas with INCR and EXPIRE
type RedisLimiter struct {
	client *redis.Client
	rate   int64
	period time.Duration
}

func NewRedisLimiter(client *redis.Client, rate int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, rate: int64(rate), period: period}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "clm:ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.period).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.rate, nil
}

// RateLimit rejects clients over their quota with 429. Limiter errors are
// logged and the request is let through.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded for %s. Please try again later.", key),
			})
			return
		}
		c.Next()
	}
}
