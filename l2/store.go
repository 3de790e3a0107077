// Package l2 implements the remote region engine: per-key ("generic") and
// per-hash ("hash") layouts over a pooled remote key/value store, honouring
// TTL only on the generic layout.
package l2

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Store methods on a cache miss. It is not a
// transport failure: L2 engines translate it into (nil, false, nil).
var ErrNotFound = errors.New("l2: not found")

// Store is the remote store capability consumed by the L2 engine. It is
// the opaque, already-pooled client the core treats as a collaborator — pool
// construction itself is out of scope here. go-redis's
// UniversalClient already borrows and releases a connection per call
// internally, so this interface does not add a second manual borrow/release
// layer on top of it; see DESIGN.md for why.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	HGet(ctx context.Context, hashKey, field string) ([]byte, error)
	HSet(ctx context.Context, hashKey, field string, value []byte) error
	HDel(ctx context.Context, hashKey string, fields ...string) (int64, error)
	HKeys(ctx context.Context, hashKey string) ([]string, error)
	HIncrBy(ctx context.Context, hashKey, field string, delta int64) (int64, error)
	HExists(ctx context.Context, hashKey, field string) (bool, error)
}

// RedisStore adapts a go-redis UniversalClient (cluster, sentinel-aware, or
// single-node — whichever the caller constructed) to Store.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already-constructed, already-pooled client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

// ScanKeys performs a non-blocking cursor scan over pattern, accumulating
// every matched key before returning. SCAN (rather than KEYS) means no
// single call blocks the remote store.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (s *RedisStore) HGet(ctx context.Context, hashKey, field string) ([]byte, error) {
	b, err := s.client.HGet(ctx, hashKey, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) HSet(ctx context.Context, hashKey, field string, value []byte) error {
	return s.client.HSet(ctx, hashKey, field, value).Err()
}

func (s *RedisStore) HDel(ctx context.Context, hashKey string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return s.client.HDel(ctx, hashKey, fields...).Result()
}

func (s *RedisStore) HKeys(ctx context.Context, hashKey string) ([]string, error) {
	return s.client.HKeys(ctx, hashKey).Result()
}

func (s *RedisStore) HIncrBy(ctx context.Context, hashKey, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, hashKey, field, delta).Result()
}

func (s *RedisStore) HExists(ctx context.Context, hashKey, field string) (bool, error) {
	return s.client.HExists(ctx, hashKey, field).Result()
}
