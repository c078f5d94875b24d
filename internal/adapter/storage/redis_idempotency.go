package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idem:"

// claimScript takes ownership of a key if free; otherwise it reports the
// current value so the caller can distinguish a bound order from an
// in-flight claim.
var claimScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])

local existing = redis.call('GET', key)
if existing then
	return {0, existing}
end

redis.call('SET', key, '', 'EX', ttl)
return {1, ''}
`)

// RedisIdempotencyStore maps caller-supplied idempotency keys to order IDs.
// A claimed-but-unbound key marks a creation still in flight.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (r *RedisIdempotencyStore) Claim(ctx context.Context, key string) (bool, string, error) {
	result, err := claimScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key},
		int(r.ttl.Seconds())).Slice()
	if err != nil {
		return false, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	if len(result) != 2 {
		return false, "", fmt.Errorf("claim idempotency key: unexpected reply %v", result)
	}

	claimed, _ := result[0].(int64)
	orderID, _ := result[1].(string)
	return claimed == 1, orderID, nil
}

func (r *RedisIdempotencyStore) Bind(ctx context.Context, key, orderID string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, r.ttl).Err()
}

func (r *RedisIdempotencyStore) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
