// Package l1 implements the in-process near cache: size- and time-bounded
// regions with LRU eviction, lazy and active TTL expiry, and an
// eviction-event feed the cache manager consumes to drive metrics and the
// channel coherence protocol.
package l1

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// eventBufferSize bounds the eviction-event channel. The design notes call
// for breaking the manager/listener cycle via message-passing rather than a
// direct callback so the region lock is never held during listener dispatch;
// a full buffer means the consumer is falling behind, so the incoming record
// is dropped with a log line (records already queued are kept) rather than
// blocking a mutating cache call.
const eventBufferSize = 4096

// Engine is the L1 region registry. One Engine is shared by the whole
// process; regions are created lazily on first use and persist until Close.
type Engine struct {
	mu      sync.RWMutex
	regions map[string]*region
	configs map[string]Config

	events chan Eviction

	sweepInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup

	now func() time.Time
}

// New creates an Engine. configs supplies the per-region capacity/TTL policy
// (the l1.region.<name>.size / .ttl configuration surface); a region absent
// from configs gets an unbounded, TTL-less default. sweepInterval <= 0
// disables the active-expiry janitor (lazy expiry on access still applies).
func New(configs map[string]Config, sweepInterval time.Duration) *Engine {
	return newEngine(configs, sweepInterval, time.Now)
}

func newEngine(configs map[string]Config, sweepInterval time.Duration, now func() time.Time) *Engine {
	if configs == nil {
		configs = map[string]Config{}
	}
	e := &Engine{
		regions:       make(map[string]*region),
		configs:       configs,
		events:        make(chan Eviction, eventBufferSize),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		now:           now,
	}
	if sweepInterval > 0 {
		e.wg.Add(1)
		go e.janitor()
	}
	return e
}

// Events exposes the eviction-record feed. The manager is the sole consumer;
// it must drain this channel promptly to avoid drops.
func (e *Engine) Events() <-chan Eviction {
	return e.events
}

// Close stops the janitor and closes the event channel. Idempotent.
func (e *Engine) Close() {
	select {
	case <-e.stopCh:
		return
	default:
		close(e.stopCh)
	}
	e.wg.Wait()
	close(e.events)
}

func (e *Engine) emit(ev *Eviction) {
	if ev == nil {
		return
	}
	e.emitAll([]Eviction{*ev})
}

func (e *Engine) emitAll(evs []Eviction) {
	for _, ev := range evs {
		select {
		case e.events <- ev:
		default:
			log.Warn().Str("region", ev.Region).Str("key", ev.Key).
				Msg("l1: eviction event dropped, consumer falling behind")
		}
	}
}

func (e *Engine) region(name string) *region {
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
	cfg := e.configs[name]
	r = newRegion(name, cfg, e.now)
	e.regions[name] = r
	return r
}

// Get returns the live value for (region, key), or (nil, false) on miss.
func (e *Engine) Get(regionName, key string) (interface{}, bool) {
	r := e.region(regionName)
	v, found, evicted := r.get(key)
	e.emit(evicted)
	return v, found
}

// Put stores value under (region, key), reporting a capacity eviction if
// inserting it pushed the region over its configured MaxEntries.
func (e *Engine) Put(regionName, key string, value interface{}) {
	r := e.region(regionName)
	victim := r.put(key, value)
	e.emit(victim)
}

// Evict removes keys from region for an explicit caller-driven reason.
func (e *Engine) Evict(regionName string, keys ...string) {
	r := e.region(regionName)
	e.emitAll(r.evict(ReasonExplicit, keys...))
}

// EvictFromChannel removes keys from region because a peer's invalidation
// event said to. Reported with ReasonChannel so listeners can distinguish a
// local explicit evict from coherence traffic.
func (e *Engine) EvictFromChannel(regionName string, keys ...string) {
	r := e.region(regionName)
	e.emitAll(r.evict(ReasonChannel, keys...))
}

// Clear removes every entry in region for an explicit caller-driven reason.
func (e *Engine) Clear(regionName string) {
	r := e.region(regionName)
	e.emitAll(r.clear(ReasonExplicit))
}

// ClearFromChannel removes every entry in region because a peer's CLEAR
// event said to.
func (e *Engine) ClearFromChannel(regionName string) {
	r := e.region(regionName)
	e.emitAll(r.clear(ReasonChannel))
}

// Keys returns a snapshot of region's live keys.
func (e *Engine) Keys(regionName string) []string {
	r := e.region(regionName)
	keys, expired := r.snapshotKeys()
	e.emitAll(expired)
	return keys
}

// Size reports the current live entry count for region, mostly useful for
// tests asserting the capacity bound.
func (e *Engine) Size(regionName string) int {
	return e.region(regionName).size()
}

func (e *Engine) janitor() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepAll()
		}
	}
}

func (e *Engine) sweepAll() {
	e.mu.RLock()
	regions := make([]*region, 0, len(e.regions))
	for _, r := range e.regions {
		regions = append(regions, r)
	}
	e.mu.RUnlock()

	for _, r := range regions {
		e.emitAll(r.sweepExpired())
	}
}
