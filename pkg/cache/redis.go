package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/breakwater-ai/breakwater/pkg/keys"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Redis is a Store backed by a Redis server. Expiry is native: entries are
// stored with their TTL and Redis drops them on time, so Clear with
// expiredOnly is a no-op.
type Redis struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// NewRedis connects a Store to the Redis server at addr. The connection is
// verified lazily; a server that is down at construction time only shows up
// as soft failures on use.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		r.errs.Add(1)
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	r.hits.Add(1)
	return val, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.errs.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	if expiredOnly {
		return 0, nil
	}

	var removed int64
	var cursor uint64
	pattern := keys.Prefix + ":*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(batch) > 0 {
			n, err := r.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *Redis) Stats(ctx context.Context) (models.CacheStats, error) {
	stats := models.CacheStats{
		Backend: "redis",
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Errors:  r.errs.Load(),
	}

	var cursor uint64
	pattern := keys.Prefix + ":*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return stats, fmt.Errorf("redis scan: %w", err)
		}
		stats.Entries += int64(len(batch))
		cursor = next
		if cursor == 0 {
			return stats, nil
		}
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
