package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "shopdash:store"
	defaultQueryTimeout = 5 * time.Second
)

// RedisBackend stores entries as plain redis strings under a key prefix. The
// caller owns the client lifecycle.
type RedisBackend struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ Backend = (*RedisBackend)(nil)

type RedisOption func(*RedisBackend)

// WithPrefix namespaces keys as prefix:key. An empty prefix disables namespacing.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) { r.prefix = prefix }
}

// WithQueryTimeout bounds each redis round trip. Defaults to 5 seconds.
func WithQueryTimeout(d time.Duration) RedisOption {
	return func(r *RedisBackend) { r.queryTimeout = d }
}

// NewRedisBackend returns a Backend over client.
func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{
		client:       client,
		prefix:       defaultRedisPrefix,
		queryTimeout: defaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisBackend) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Set(qctx, r.key(key), data, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	return r.client.Del(qctx, r.key(key)).Err()
}
