package l2

import (
	"context"
	"sync"
	"time"
)

// RegionConfig is the per-region L2 policy: which layout it uses and, for
// the generic layout, its default TTL (the "l2.<region>.ttl" configuration
// surface). TTL is meaningless for LayoutHash and is ignored.
type RegionConfig struct {
	Layout Layout
	TTL    time.Duration
}

// Engine is the L2 region registry. One Engine is shared by the whole
// process; regions are created lazily on first use, honouring namespace
// isolation by prefixing every remote key/hash name with namespace.
type Engine struct {
	store         Store
	namespace     string
	defaultLayout Layout

	mu      sync.RWMutex
	regions map[string]Region
	configs map[string]RegionConfig
}

// New creates an Engine over store. namespace isolates data: two Engines
// sharing a store with distinct namespaces never see each other's keys.
// defaultLayout is used for any region absent from configs.
func New(store Store, namespace string, configs map[string]RegionConfig, defaultLayout Layout) *Engine {
	if configs == nil {
		configs = map[string]RegionConfig{}
	}
	if defaultLayout == "" {
		defaultLayout = LayoutGeneric
	}
	return &Engine{
		store:         store,
		namespace:     namespace,
		defaultLayout: defaultLayout,
		regions:       make(map[string]Region),
		configs:       configs,
	}
}

func (e *Engine) region(name string) Region {
	e.mu.RLock()
	r, ok := e.regions[name]
	e.mu.RUnlock()
	if ok {
		return r
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.regions[name]; ok {
		return r
	}

	cfg, ok := e.configs[name]
	if !ok {
		cfg = RegionConfig{Layout: e.defaultLayout}
	}
	var r2 Region
	if cfg.Layout == LayoutHash {
		r2 = newHashRegion(e.store, e.namespace, name)
	} else {
		r2 = newGenericRegion(e.store, e.namespace, name, cfg.TTL)
	}
	e.regions[name] = r2
	return r2
}

func (e *Engine) Get(ctx context.Context, region, key string) ([]byte, bool, error) {
	return e.region(region).Get(ctx, key)
}

func (e *Engine) Put(ctx context.Context, region, key string, value []byte, ttl time.Duration) error {
	return e.region(region).Put(ctx, key, value, ttl)
}

func (e *Engine) PutIfAbsent(ctx context.Context, region, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	return e.region(region).PutIfAbsent(ctx, key, value, ttl)
}

func (e *Engine) IncrBy(ctx context.Context, region, key string, delta int64) (int64, error) {
	return e.region(region).IncrBy(ctx, key, delta)
}

func (e *Engine) Evict(ctx context.Context, region string, keys ...string) error {
	return e.region(region).Evict(ctx, keys...)
}

func (e *Engine) Clear(ctx context.Context, region string) error {
	return e.region(region).Clear(ctx)
}

func (e *Engine) Keys(ctx context.Context, region string) ([]string, error) {
	return e.region(region).Keys(ctx)
}
