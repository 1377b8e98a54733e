package cache

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// storeSeparator joins the store name and the entry key into a single
// redis key. Tab cannot appear in either part.
const storeSeparator = "\t"

// RedisCache is a CacheProvider backed by a shared redis instance.
// It allows multiple worker instances to share one cache storage.
type RedisCache struct {
	client  redis.Cmdable
	timeout time.Duration
}

// NewRedisCache creates a provider on top of the given client.
// A zero timeout defaults to one second per operation.
func NewRedisCache(client redis.Cmdable, timeout time.Duration) RedisCache {
	if timeout == 0 {
		timeout = time.Second
	}
	return RedisCache{
		client:  client,
		timeout: timeout,
	}
}

func (r RedisCache) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r RedisCache) Get(store, key string) ([]byte, bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	b, err := r.client.Get(ctx, store+storeSeparator+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r RedisCache) Put(store, key string, bytes []byte) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.Set(ctx, store+storeSeparator+key, bytes, 0).Err()
}

func (r RedisCache) Has(store, key string) bool {
	ctx, cancel := r.ctx()
	defer cancel()
	n, err := r.client.Exists(ctx, store+storeSeparator+key).Result()
	return err == nil && n > 0
}

func (r RedisCache) Purge(store, key string) {
	ctx, cancel := r.ctx()
	defer cancel()
	r.client.Del(ctx, store+storeSeparator+key)
}

func (r RedisCache) Stores() ([]string, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	seen := make(map[string]bool)
	stores := make([]string, 0)
	iter := r.client.Scan(ctx, 0, "*"+storeSeparator+"*", 0).Iterator()
	for iter.Next(ctx) {
		store, _, found := strings.Cut(iter.Val(), storeSeparator)
		if !found || seen[store] {
			continue
		}
		seen[store] = true
		stores = append(stores, store)
	}
	return stores, iter.Err()
}

func (r RedisCache) Drop(store string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	iter := r.client.Scan(ctx, 0, store+storeSeparator+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
