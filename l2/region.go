package l2

import (
	"context"
	"time"
)

// Layout selects how a region's entries are laid out in the remote store.
type Layout string

const (
	// LayoutGeneric stores one remote key per entry: "<ns>:<region>:<key>".
	// Supports per-entry TTL natively.
	LayoutGeneric Layout = "generic"
	// LayoutHash stores one remote hash per region, fields keyed by entry
	// key. Remote hash fields have no native expiry, so TTL is ignored.
	LayoutHash Layout = "hash"
)

// Region is the per-region L2 surface; generic.go and hash.go each provide
// one implementation.
type Region interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key. ttl is honoured on the generic layout and
	// silently ignored on the hash layout.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent stores value only if key is currently absent, returning the
	// existing value (nil if none) when it does not. Atomic on the generic
	// layout; a documented check-then-set race on the hash layout — see
	// hash.go.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Evict(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

func namespacedKey(namespace, region string) string {
	if namespace == "" {
		return region
	}
	return namespace + ":" + region
}
