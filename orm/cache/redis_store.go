package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Manager backed by go-redis, shared across process
// instances. Namespace membership is tracked with a Redis SET per
// namespace so InvalidateNamespace can drop every key it has ever
// cached without a production-unsafe KEYS/SCAN sweep.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr (host:port) with go-redis's default pool
// settings.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreWithClient wraps an already-constructed client,
// primarily so tests can point this store at a miniredis instance.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) dataKey(namespace, key string) string {
	return fmt.Sprintf("lucid:cache:%s:%s", namespace, key)
}

func (r *RedisStore) setKey(namespace string) string {
	return fmt.Sprintf("lucid:cache:%s:__keys__", namespace)
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.dataKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, namespace, key string, payload []byte, ttl time.Duration) error {
	dk := r.dataKey(namespace, key)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, dk, payload, ttl)
	pipe.SAdd(ctx, r.setKey(namespace), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	sk := r.setKey(namespace)
	keys, err := r.client.SMembers(ctx, sk).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = r.dataKey(namespace, k)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, dataKeys...)
	pipe.Del(ctx, sk)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Close() error { return r.client.Close() }
