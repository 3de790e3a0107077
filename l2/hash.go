package l2

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// hashRegion implements the one-hash-per-region layout: a single remote hash
// named "<ns>:<region>", fields keyed by entry key. Remote hash fields have
// no native TTL, so Put silently ignores ttl.
type hashRegion struct {
	store      Store
	namespace  string
	regionName string
}

func newHashRegion(store Store, namespace, regionName string) *hashRegion {
	return &hashRegion{store: store, namespace: namespace, regionName: regionName}
}

func (h *hashRegion) hashKey() string {
	return namespacedKey(h.namespace, h.regionName)
}

func (h *hashRegion) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := h.store.HGet(ctx, h.hashKey(), key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (h *hashRegion) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return h.store.HSet(ctx, h.hashKey(), key, value)
}

// PutIfAbsent is a check-then-set: HExists followed by HSet. This is NOT
// atomic — two concurrent writers on different nodes can both observe
// absence and both write, and the second write silently wins. The hash
// layout has no server-side conditional-hash-set primitive, and this
// limitation is kept rather than papered over; callers that need an atomic
// putIfAbsent should use the generic layout for that region.
func (h *hashRegion) PutIfAbsent(ctx context.Context, key string, value []byte, _ time.Duration) ([]byte, bool, error) {
	exists, err := h.store.HExists(ctx, h.hashKey(), key)
	if err != nil {
		return nil, false, err
	}
	if exists {
		existing, err := h.store.HGet(ctx, h.hashKey(), key)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	log.Debug().Str("region", h.regionName).Str("key", key).
		Msg("l2: hash layout putIfAbsent check-then-set is non-atomic")
	if err := h.store.HSet(ctx, h.hashKey(), key, value); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (h *hashRegion) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return h.store.HIncrBy(ctx, h.hashKey(), key, delta)
}

func (h *hashRegion) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := h.store.HDel(ctx, h.hashKey(), keys...)
	return err
}

// Clear deletes the entire backing hash key in one call rather than HDel'ing
// every field individually.
func (h *hashRegion) Clear(ctx context.Context) error {
	_, err := h.store.Del(ctx, h.hashKey())
	return err
}

// Keys returns the hash's field set as plain UTF-8 strings. The open
// question about the hash layout decoding keys as serialized objects is
// resolved here in favour of the simpler, consistent behaviour: keys are
// always plain strings, never round-tripped through the value codec.
func (h *hashRegion) Keys(ctx context.Context) ([]string, error) {
	return h.store.HKeys(ctx, h.hashKey())
}
