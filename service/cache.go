package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingCacheKey = "clm:pending-work"

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1]
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisPendingCache keeps the pending-work aggregate in redis so every
// replica sees the same invalidation.
type RedisPendingCache struct {
	rdb *redis.Client
	key string
}

func NewRedisPendingCache(rdb *redis.Client) *RedisPendingCache {
	return &RedisPendingCache{rdb: rdb, key: pendingCacheKey}
}

func (c *RedisPendingCache) genKey() string {
	return c.key + ":gen"
}

func (c *RedisPendingCache) Get(ctx context.Context) (PendingCounts, bool, error) {
	val, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingCounts{}, false, nil
	}
	if err != nil {
		return PendingCounts{}, false, fmt.Errorf("failed to read pending cache: %w", err)
	}
	var counts PendingCounts
	if err := json.Unmarshal(val, &counts); err != nil {
		return PendingCounts{}, false, fmt.Errorf("failed to decode pending cache: %w", err)
	}
	return counts, true, nil
}

func (c *RedisPendingCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pending cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisPendingCache) SetIfGeneration(ctx context.Context, counts PendingCounts, gen int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(counts)
	if err != nil {
		return false, err
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	stored, err := setIfGeneration.Run(ctx, c.rdb, []string{c.genKey(), c.key},
		strconv.FormatInt(gen, 10), data, ms).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write pending cache: %w", err)
	}
	return stored == 1, nil
}

func (c *RedisPendingCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey())
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear pending cache: %w", err)
	}
	return nil
}

// MemoryPendingCache is the single-process cache used when redis is not
// configured.
type MemoryPendingCache struct {
	mu      sync.Mutex
	counts  PendingCounts
	expires time.Time
	valid   bool
	gen     int64
	now     func() time.Time
}

func NewMemoryPendingCache() *MemoryPendingCache {
	return &MemoryPendingCache{now: time.Now}
}

func (c *MemoryPendingCache) Get(context.Context) (PendingCounts, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || !c.now().Before(c.expires) {
		return PendingCounts{}, false, nil
	}
	return c.counts, true, nil
}

func (c *MemoryPendingCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *MemoryPendingCache) SetIfGeneration(_ context.Context, counts PendingCounts, gen int64, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, nil
	}
	c.counts = counts
	c.expires = c.now().Add(ttl)
	c.valid = true
	return true, nil
}

func (c *MemoryPendingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.valid = false
	return nil
}
