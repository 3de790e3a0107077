package cachebroker

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twotier/cachebroker/channel"
	"github.com/twotier/cachebroker/l1"
	"github.com/twotier/cachebroker/l2"
)

// fakeStore is a minimal in-memory l2.Store, the same role the l2 package's
// own fakeStore plays in its tests, kept separate since that one is
// unexported to its package.
type fakeStore struct {
	mu     sync.Mutex
	kv     map[string][]byte
	hashes map[string]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: make(map[string][]byte), hashes: make(map[string]map[string][]byte)}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, l2.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *fakeStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kv[key]; ok {
		return false, nil
	}
	s.kv[key] = value
	return true, nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := s.kv[k]; ok {
			delete(s.kv, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.kv[key]
	return ok, nil
}

func (s *fakeStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if v, ok := s.kv[key]; ok {
		cur, _ = btoiFake(v)
	}
	cur += delta
	s.kv[key] = itobFake(cur)
	return cur, nil
}

func (s *fakeStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := pattern[:len(pattern)-1]
	var out []string
	for k := range s.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeStore) HGet(ctx context.Context, hashKey, field string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[hashKey]
	if !ok {
		return nil, l2.ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, l2.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) HSet(ctx context.Context, hashKey, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[hashKey]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[hashKey] = h
	}
	h[field] = value
	return nil
}

func (s *fakeStore) HDel(ctx context.Context, hashKey string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[hashKey]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) HKeys(ctx context.Context, hashKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashes[hashKey]
	out := make([]string, 0, len(h))
	for f := range h {
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeStore) HIncrBy(ctx context.Context, hashKey, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[hashKey]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[hashKey] = h
	}
	var cur int64
	if v, ok := h[field]; ok {
		cur, _ = btoiFake(v)
	}
	cur += delta
	h[field] = itobFake(cur)
	return cur, nil
}

func (s *fakeStore) HExists(ctx context.Context, hashKey, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[hashKey]
	if !ok {
		return false, nil
	}
	_, ok = h[field]
	return ok, nil
}

func itobFake(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func btoiFake(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

func newTestManager(t *testing.T, store l2.Store, transport channel.Transport, l1cfg map[string]l1.Config) *Manager {
	t.Helper()
	cfg := Config{
		AppName:         "test",
		Namespace:       "ns",
		DefaultL2Layout: l2.LayoutGeneric,
		L1Regions:       l1cfg,
		L1SweepInterval: 0,
	}
	m, err := New(cfg, store, transport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestSingleNodePutGet(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	m := newTestManager(t, store, broker.NewTransport(), nil)

	require.NoError(t, m.Put(context.Background(), "users", "u1", map[string]string{"name": "a"}))
	v, found, err := m.Get(context.Background(), "users", "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, map[string]interface{}{"name": "a"}, v)
}

func TestCrossNodeEviction(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	a := newTestManager(t, store, broker.NewTransport(), nil)
	b := newTestManager(t, store, broker.NewTransport(), nil)

	require.NoError(t, a.Put(context.Background(), "users", "u1", "a"))

	// Node B never had "u1" in L1, so the EVICT it just received is a no-op
	// locally; the point is that its subsequent full Get goes to L2.
	v, found, err := b.Get(context.Background(), "users", "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", v)

	// Populate B's L1, then have A mutate the same key and confirm B's L1
	// copy is invalidated rather than left stale.
	_, _, _ = b.Get(context.Background(), "users", "u1")
	require.NoError(t, a.Put(context.Background(), "users", "u1", "a2"))
	require.Eventually(t, func() bool {
		cachedVal, cachedFound := b.l1.Get("users", "u1")
		return !cachedFound || cachedVal != "a"
	}, time.Second, time.Millisecond)
}

func TestLoaderReadThroughCoalescesAndStaysLocalToL1(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	a := newTestManager(t, store, broker.NewTransport(), nil)
	b := newTestManager(t, store, broker.NewTransport(), nil)

	var calls int
	loader := func(key string) (interface{}, error) {
		calls++
		return "loaded", nil
	}

	v, err := a.GetWithLoader(context.Background(), "users", "u2", loader)
	require.NoError(t, err)
	require.Equal(t, "loaded", v)

	v, err = a.GetWithLoader(context.Background(), "users", "u2", loader)
	require.NoError(t, err)
	require.Equal(t, "loaded", v)
	require.Equal(t, 1, calls, "second call on the same node must hit L1, not re-invoke the loader")

	_, found := b.l1.Get("users", "u2")
	require.False(t, found, "node B's L1 must stay empty until it reads for itself")
}

func TestCapacityEvictionKeepsMostRecentKeys(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	m := newTestManager(t, store, broker.NewTransport(), map[string]l1.Config{
		"users": {MaxEntries: 2},
	})

	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "users", "k1", "v1"))
	require.NoError(t, m.Put(ctx, "users", "k2", "v2"))
	require.NoError(t, m.Put(ctx, "users", "k3", "v3"))

	require.Eventually(t, func() bool {
		keys := m.l1.Keys("users")
		if len(keys) != 2 {
			return false
		}
		has := map[string]bool{}
		for _, k := range keys {
			has[k] = true
		}
		return has["k2"] && has["k3"]
	}, time.Second, time.Millisecond)
}

func TestTTLExpiryReturnsMiss(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	m := newTestManager(t, store, broker.NewTransport(), map[string]l1.Config{
		"sessions": {TTL: 20 * time.Millisecond},
	})

	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "sessions", "s1", "v"))

	_, found := m.l1.Get("sessions", "s1")
	require.True(t, found)

	time.Sleep(40 * time.Millisecond)
	_, found = m.l1.Get("sessions", "s1")
	require.False(t, found)
}

func TestChannelOutageDegradesToLocalOnlyThenRecovers(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	ta := broker.NewTransport()
	tb := broker.NewTransport()
	a := newTestManager(t, store, ta, nil)
	b := newTestManager(t, store, tb, nil)

	ctx := context.Background()
	require.NoError(t, a.Put(ctx, "users", "u3", "b"))
	_, _, _ = b.Get(ctx, "users", "u3")

	ta.SetUnavailable(true)
	err := a.Put(ctx, "users", "u3", "c")
	require.NoError(t, err, "a channel publish failure must not fail the put")

	cachedVal, cachedFound := b.l1.Get("users", "u3")
	require.True(t, cachedFound)
	require.Equal(t, "b", cachedVal, "B's stale L1 copy is not retroactively corrected while the channel is down")

	ta.SetUnavailable(false)
	require.NoError(t, a.Put(ctx, "users", "u3", "d"))
	require.Eventually(t, func() bool {
		_, found := b.l1.Get("users", "u3")
		return !found
	}, time.Second, time.Millisecond)
}

func TestBadRegionNameRejected(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	m := newTestManager(t, store, broker.NewTransport(), nil)

	_, _, err := m.Get(context.Background(), "", "k")
	require.ErrorIs(t, err, ErrBadRegion)
}

func TestShutdownIsIdempotentAndRejectsNewOps(t *testing.T) {
	store := newFakeStore()
	broker := channel.NewLocalBroker()
	m := newTestManager(t, store, broker.NewTransport(), nil)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Put(context.Background(), "users", "u1", "v")
	require.ErrorIs(t, err, ErrShuttingDown)
}
