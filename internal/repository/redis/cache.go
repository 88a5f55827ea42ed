package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache. Concurrent misses on one key share a
// single load, and TTLs get up to 10% jitter so entries written together
// do not expire together.
type Cache struct {
	rdb redis.Cmdable
	sf  singleflight.Group
}

func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) InvalidateEvent(ctx context.Context, eventID string) error {
	return c.Del(ctx, KeyEvent(eventID))
}

// lookup reports a miss for absent and undecodable entries alike; a
// corrupt entry is dropped so the next load replaces it.
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}

	if err := json.Unmarshal([]byte(s), &out); err != nil {
		_ = c.Del(ctx, key)
		var zero T
		return zero, false, nil
	}

	return out, true, nil
}

func store(ctx context.Context, c *Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, jitter(ttl)).Err()
}

func jitter(ttl time.Duration) time.Duration {
	if ttl < 10*time.Millisecond {
		return ttl
	}
	return ttl + rand.N(ttl/10)
}

// GetOrSetJSON returns the cached value for key, loading and caching it on a
// miss. Loader errors are returned and nothing is cached. The load runs
// detached from ctx cancellation because other callers may be waiting on it.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	if v, ok, err := lookup[T](ctx, c, key); err != nil || ok {
		return v, err
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)

		if v, ok, err := lookup[T](loadCtx, c, key); err != nil || ok {
			return v, err
		}

		v, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}

		// a failed write only costs a later reload
		_ = store(loadCtx, c, key, v, ttl)

		return v, nil
	})
	if err != nil {
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cache %s: unexpected %T", key, res)
	}

	return v, nil
}
