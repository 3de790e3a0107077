package cachebroker

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Cache is the public, convenience-typed façade most callers reach for
// instead of the Manager directly. It accepts any scalar or []byte key —
// numbers, bools, strings, byte slices — and coerces each to the string key
// the Manager actually stores under, the way a thin wrapper normalizes
// caller input before handing off to the real engine.
type Cache struct {
	m      *Manager
	region string
}

// Region returns a façade bound to one region of m. Every call coerces its
// key argument with ToKey before delegating.
func (m *Manager) Region(name string) *Cache {
	return &Cache{m: m, region: name}
}

// ToKey coerces an arbitrary scalar key into the string form the cache
// stores under: strings pass through, integers and floats render in base
// 10, bools render as "true"/"false", and []byte renders as padded
// standard base64, so a binary key never maps to the same string as a
// string key holding the same bytes.
func ToKey(key interface{}) (string, error) {
	switch v := key.(type) {
	case string:
		return v, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("cachebroker: unsupported key type %T", key)
	}
}

// Get coerces key and delegates to the Manager.
func (c *Cache) Get(ctx context.Context, key interface{}) (interface{}, bool, error) {
	k, err := ToKey(key)
	if err != nil {
		return nil, false, err
	}
	return c.m.Get(ctx, c.region, k)
}

// GetWithLoader coerces key and delegates to the Manager.
func (c *Cache) GetWithLoader(ctx context.Context, key interface{}, loader Loader) (interface{}, error) {
	k, err := ToKey(key)
	if err != nil {
		return nil, err
	}
	return c.m.GetWithLoader(ctx, c.region, k, loader)
}

// Put coerces key and delegates to the Manager.
func (c *Cache) Put(ctx context.Context, key interface{}, value interface{}) error {
	k, err := ToKey(key)
	if err != nil {
		return err
	}
	return c.m.Put(ctx, c.region, k, value)
}

// PutTTL coerces key and delegates to the Manager.
func (c *Cache) PutTTL(ctx context.Context, key interface{}, value interface{}, ttl time.Duration) error {
	k, err := ToKey(key)
	if err != nil {
		return err
	}
	return c.m.PutTTL(ctx, c.region, k, value, ttl)
}

// Evict coerces each key and delegates to the Manager.
func (c *Cache) Evict(ctx context.Context, keys ...interface{}) error {
	strKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		k, err := ToKey(key)
		if err != nil {
			return err
		}
		strKeys = append(strKeys, k)
	}
	return c.m.Evict(ctx, c.region, strKeys...)
}

// Clear delegates to the Manager.
func (c *Cache) Clear(ctx context.Context) error {
	return c.m.Clear(ctx, c.region)
}

// Keys delegates to the Manager.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.m.Keys(ctx, c.region)
}
