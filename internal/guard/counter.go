package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter increments a named bucket and returns its new value. The
// bucket may be discarded once ttl has elapsed.
type Counter interface {
	Incr(ctx context.Context, bucket string, ttl time.Duration) (int64, error)
}

// MemoryCounter keeps buckets in process memory. Expired buckets are
// evicted lazily on each increment.
type MemoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*memBucket
}

type memBucket struct {
	count   int64
	expires time.Time
}

// NewMemoryCounter returns an empty counter. now may be nil.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{now: now, buckets: make(map[string]*memBucket)}
}

func (c *MemoryCounter) Incr(_ context.Context, bucket string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, b := range c.buckets {
		if !now.Before(b.expires) {
			delete(c.buckets, k)
		}
	}
	b, ok := c.buckets[bucket]
	if !ok {
		b = &memBucket{expires: now.Add(ttl)}
		c.buckets[bucket] = b
	}
	b.count++
	return b.count, nil
}

// Len reports how many buckets are held.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// RedisCounter shares buckets between server replicas through Redis.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter returns a counter storing keys as prefix+"requests:"+bucket.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(bucket string) string {
	return c.prefix + "requests:" + bucket
}

func (c *RedisCounter) Incr(ctx context.Context, bucket string, ttl time.Duration) (int64, error) {
	key := c.key(bucket)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("guard: incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
