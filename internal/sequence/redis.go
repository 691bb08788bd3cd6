package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"

	"github.com/redis/go-redis/v9"
)

const DefaultCounterTTL = 48 * time.Hour

// RedisAllocator increments a counter per scope and day. The counter is seeded
// once with SET NX from the store so numbers continue after a Redis flush.
type RedisAllocator struct {
	client redis.Cmdable
	seeder Seeder
	ttl    time.Duration
}

func NewRedisAllocator(client redis.Cmdable, seeder Seeder, ttl time.Duration) *RedisAllocator {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}
	return &RedisAllocator{client: client, seeder: seeder, ttl: ttl}
}

func (a *RedisAllocator) Next(ctx context.Context, scopeID string, day store.Day) (int, error) {
	key := Key(scopeID, day)

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis exists %s: %w", store.ErrStorageUnavailable, key, err)
	}
	if exists == 0 {
		current, err := a.seeder.MaxQueueNumber(ctx, scopeID, day)
		if err != nil {
			return 0, err
		}
		if err := a.client.SetNX(ctx, key, current, a.ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: redis setnx %s: %w", store.ErrStorageUnavailable, key, err)
		}
	}

	next, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis incr %s: %w", store.ErrStorageUnavailable, key, err)
	}
	return int(next), nil
}
