// Package cachebroker is the two-level cache broker: a fast in-process near
// cache (L1) backed by a shared remote cache (L2), kept coherent across
// application nodes by broadcasting invalidation events over a channel.
//
// Manager is the coordinator; Cache (facade.go) is the thin,
// scalar-key convenience wrapper most callers actually use.
package cachebroker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rs/zerolog/log"

	"github.com/twotier/cachebroker/channel"
	"github.com/twotier/cachebroker/codec"
	"github.com/twotier/cachebroker/l1"
	"github.com/twotier/cachebroker/l2"
	"github.com/twotier/cachebroker/protocol"
)

var tracer = otel.Tracer("github.com/twotier/cachebroker")

// Loader retrieves the value for key from whatever sits behind the cache
// (a database, an upstream service) on a read-through miss. A returned
// error surfaces to the caller of GetWithLoader wrapped in a *LoaderError;
// nothing is cached.
type Loader func(key string) (interface{}, error)

// Manager is the region registry and read-through/write-through
// coordinator. Construct one with New and release it with Shutdown;
// there is no lazy, implicit initialization, so startup and shutdown order
// stay deterministic per the design notes.
type Manager struct {
	cfg       Config
	selfID    string
	l1        *l1.Engine
	l2        *l2.Engine
	transport channel.Transport
	dispatch  *protocol.Dispatcher
	group     singleflight.Group
	metrics   *metricSet

	mu           sync.Mutex
	shuttingDown bool
	opWG         sync.WaitGroup

	regionsMu sync.Mutex
	regions   map[string]struct{}

	stopEvents chan struct{}
}

// New constructs and starts a Manager: it subscribes to the channel,
// publishes a JOIN, and begins draining L1 eviction events. store and
// transport are opaque, already-constructed capabilities; building
// their connection pools is out of scope here.
func New(cfg Config, store l2.Store, transport channel.Transport) (*Manager, error) {
	selfID := uuid.NewV4().String()

	l1Engine := l1.New(cfg.L1Regions, cfg.L1SweepInterval)
	l2Engine := l2.New(store, cfg.Namespace, cfg.L2Regions, cfg.DefaultL2Layout)
	dispatch := protocol.NewDispatcher(l1Engine, selfID)

	appName := cfg.AppName
	if appName == "" {
		appName = "cachebroker"
	}
	metrics := newMetricSet(appName)
	if cfg.EnableMetrics {
		metrics.register()
	}

	m := &Manager{
		cfg:        cfg,
		selfID:     selfID,
		l1:         l1Engine,
		l2:         l2Engine,
		transport:  transport,
		dispatch:   dispatch,
		metrics:    metrics,
		regions:    make(map[string]struct{}),
		stopEvents: make(chan struct{}),
	}

	if err := transport.Subscribe(m.handleChannelMessage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	go m.drainL1Events()
	m.publish(context.Background(), protocol.Join("", m.selfID))

	return m, nil
}

func (m *Manager) handleChannelMessage(payload []byte) {
	ev, err := protocol.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("cachebroker: failed to decode channel event, ignored")
		return
	}
	m.dispatch.Dispatch(ev)
}

func (m *Manager) drainL1Events() {
	for {
		select {
		case <-m.stopEvents:
			return
		case ev, ok := <-m.l1.Events():
			if !ok {
				return
			}
			m.metrics.Eviction.WithLabelValues(string(ev.Reason)).Inc()
		}
	}
}

// recordLatency mirrors the teacher's Client.recordLatency: it captures the
// start time and returns a closure that observes the elapsed milliseconds
// under label when called, so call sites read as
// `defer m.recordLatency(label, time.Now())()`.
func (m *Manager) recordLatency(label string, startedAt time.Time) func() {
	return func() {
		m.metrics.Latency.WithLabelValues(label).Observe(float64(time.Since(startedAt).Milliseconds()))
	}
}

// Get consults L1, then L2 on miss, populating L1 from an L2 hit but never
// invoking a loader and never publishing.
func (m *Manager) Get(ctx context.Context, region, key string) (interface{}, bool, error) {
	if err := m.checkRegion(region); err != nil {
		return nil, false, err
	}
	if err := m.enterOp(); err != nil {
		return nil, false, err
	}
	defer m.leaveOp()
	m.markRegion(region)

	startedAt := time.Now()

	if v, found := m.l1.Get(region, key); found {
		m.metrics.Hit.WithLabelValues(hitLabelL1).Inc()
		m.recordLatency(hitLabelL1, startedAt)()
		return v, true, nil
	}

	ctx, span := tracer.Start(ctx, "cachebroker.l2.get")
	raw, found, err := m.l2.Get(ctx, region, key)
	span.End()
	if err != nil {
		log.Err(err).Str("region", region).Str("key", key).
			Msg("cachebroker: l2 read failed, degrading to miss")
		m.metrics.Error.WithLabelValues(errLabelL2Read).Inc()
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	m.metrics.Hit.WithLabelValues(hitLabelL2).Inc()
	defer m.recordLatency(hitLabelL2, startedAt)()

	var value interface{}
	if err := codec.Decode(raw, &value); err != nil {
		log.Err(err).Str("region", region).Str("key", key).
			Msg("cachebroker: failed to decode l2 value, evicting poisoned entry")
		if delErr := m.l2.Evict(ctx, region, key); delErr != nil {
			log.Err(delErr).Msg("cachebroker: failed to evict poisoned l2 entry")
		}
		m.metrics.Error.WithLabelValues(errLabelDecode).Inc()
		return nil, false, nil
	}

	m.l1.Put(region, key, value)
	return value, true, nil
}

// GetWithLoader is Get, followed on miss by a singleflight-collapsed call to
// loader, storing the result write-through and publishing an EVICT so peers
// discard any stale L1 copy.
func (m *Manager) GetWithLoader(ctx context.Context, region, key string, loader Loader) (interface{}, error) {
	v, found, err := m.Get(ctx, region, key)
	if err != nil {
		return nil, err
	}
	if found {
		return v, nil
	}

	sfKey := region + "\x00" + key
	result, err, _ := m.group.Do(sfKey, func() (interface{}, error) {
		if v, found := m.l1.Get(region, key); found {
			return v, nil
		}
		startedAt := time.Now()
		value, loadErr := loader(key)
		if loadErr != nil {
			return nil, &LoaderError{Cause: loadErr}
		}
		m.metrics.Hit.WithLabelValues(hitLabelLoader).Inc()
		m.recordLatency(hitLabelLoader, startedAt)()
		if putErr := m.put(ctx, region, key, value, 0); putErr != nil {
			return nil, putErr
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Put stores value write-through (L2 then L1) and publishes an EVICT so
// peers drop their stale L1 copy.
func (m *Manager) Put(ctx context.Context, region, key string, value interface{}) error {
	return m.put(ctx, region, key, value, 0)
}

// PutTTL is Put with a per-call TTL that overrides the region's default on
// the L2 generic layout; silently ignored on the hash layout.
func (m *Manager) PutTTL(ctx context.Context, region, key string, value interface{}, ttl time.Duration) error {
	return m.put(ctx, region, key, value, ttl)
}

func (m *Manager) put(ctx context.Context, region, key string, value interface{}, ttl time.Duration) error {
	if err := m.checkRegion(region); err != nil {
		return err
	}
	if err := m.enterOp(); err != nil {
		return err
	}
	defer m.leaveOp()
	m.markRegion(region)

	if value == nil {
		// The codec declines to store nil; callers treat that as
		// an eviction request.
		return m.evict(ctx, region, key)
	}

	raw, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	ctx, span := tracer.Start(ctx, "cachebroker.l2.put")
	err = m.l2.Put(ctx, region, key, raw, ttl)
	span.End()
	if err != nil {
		m.metrics.Error.WithLabelValues(errLabelL2Write).Inc()
		return fmt.Errorf("%w: %v", ErrL2Unavailable, err)
	}

	m.l1.Put(region, key, value)
	m.publish(ctx, protocol.Evict(region, m.selfID, key))
	return nil
}

// Evict removes keys from L2 then L1 and publishes an EVICT.
func (m *Manager) Evict(ctx context.Context, region string, keys ...string) error {
	if err := m.checkRegion(region); err != nil {
		return err
	}
	if err := m.enterOp(); err != nil {
		return err
	}
	defer m.leaveOp()
	m.markRegion(region)
	return m.evict(ctx, region, keys...)
}

func (m *Manager) evict(ctx context.Context, region string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := m.l2.Evict(ctx, region, keys...); err != nil {
		m.metrics.Error.WithLabelValues(errLabelL2Write).Inc()
		return fmt.Errorf("%w: %v", ErrL2Unavailable, err)
	}
	m.l1.Evict(region, keys...)
	m.publish(ctx, protocol.Evict(region, m.selfID, keys...))
	return nil
}

// Clear empties a region in L2 then L1 and publishes a CLEAR.
func (m *Manager) Clear(ctx context.Context, region string) error {
	if err := m.checkRegion(region); err != nil {
		return err
	}
	if err := m.enterOp(); err != nil {
		return err
	}
	defer m.leaveOp()
	m.markRegion(region)

	if err := m.l2.Clear(ctx, region); err != nil {
		m.metrics.Error.WithLabelValues(errLabelL2Write).Inc()
		return fmt.Errorf("%w: %v", ErrL2Unavailable, err)
	}
	m.l1.Clear(region)
	m.publish(ctx, protocol.Clear(region, m.selfID))
	return nil
}

// Regions returns a snapshot of every region name this node has touched.
func (m *Manager) Regions() []string {
	m.regionsMu.Lock()
	defer m.regionsMu.Unlock()
	out := make([]string, 0, len(m.regions))
	for r := range m.regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Keys returns a snapshot of region's keys as known to L2, the
// cluster-wide source of truth, rather than this node's local L1 view.
func (m *Manager) Keys(ctx context.Context, region string) ([]string, error) {
	if err := m.checkRegion(region); err != nil {
		return nil, err
	}
	keys, err := m.l2.Keys(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrL2Unavailable, err)
	}
	return keys, nil
}

// Shutdown drains in-flight operations, publishes a single QUIT, then closes
// the channel transport and the L1 engine. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = true
	m.mu.Unlock()

	m.opWG.Wait()

	m.publish(ctx, protocol.Quit("", m.selfID))

	if err := m.transport.Close(); err != nil {
		log.Err(err).Msg("cachebroker: failed to close channel transport")
	}
	close(m.stopEvents)
	m.l1.Close()
	m.metrics.unregister()
	return nil
}

func (m *Manager) publish(ctx context.Context, ev protocol.Event) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		log.Err(err).Msg("cachebroker: failed to encode invalidation event")
		return
	}
	_, span := tracer.Start(ctx, "cachebroker.channel.publish")
	err = m.transport.Publish(ctx, payload)
	span.End()
	if err != nil {
		log.Err(err).Msg("cachebroker: channel publish failed, operation still succeeds locally")
		m.metrics.Error.WithLabelValues(errLabelPublish).Inc()
	}
}

func (m *Manager) checkRegion(region string) error {
	if region == "" || strings.HasPrefix(region, "__") {
		return ErrBadRegion
	}
	return nil
}

func (m *Manager) markRegion(region string) {
	m.regionsMu.Lock()
	m.regions[region] = struct{}{}
	m.regionsMu.Unlock()
}

func (m *Manager) enterOp() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return ErrShuttingDown
	}
	m.opWG.Add(1)
	return nil
}

func (m *Manager) leaveOp() {
	m.opWG.Done()
}

// ensure the trace import is exercised even if every span call path above
// changes shape under future edits.
var _ trace.Tracer = tracer
