package l2

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used to test generic/hash region logic
// without a live Redis. It does not model TTL expiry (no test here depends
// on it; TTL semantics themselves are redis's job, not ours).
type fakeStore struct {
	mu     sync.Mutex
	kv     map[string][]byte
	hashes map[string]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: map[string][]byte{}, hashes: map[string]map[string][]byte{}}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.kv[key]; ok {
		return false, nil
	}
	f.kv[key] = value
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.kv[k]; ok {
			delete(f.kv, k)
			n++
		}
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.kv[key]
	return ok, nil
}

func (f *fakeStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cur int64
	if v, ok := f.kv[key]; ok {
		cur = btoi(v)
	}
	cur += delta
	f.kv[key] = itob(cur)
	return cur, nil
}

func (f *fakeStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeStore) HGet(_ context.Context, hashKey, field string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) HSet(_ context.Context, hashKey, field string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		h = map[string][]byte{}
		f.hashes[hashKey] = h
	}
	h[field] = value
	return nil
}

func (f *fakeStore) HDel(_ context.Context, hashKey string, fields ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, field := range fields {
		if _, ok := h[field]; ok {
			delete(h, field)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) HKeys(_ context.Context, hashKey string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashes[hashKey]
	out := make([]string, 0, len(h))
	for field := range h {
		out = append(out, field)
	}
	return out, nil
}

func (f *fakeStore) HIncrBy(_ context.Context, hashKey, field string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		h = map[string][]byte{}
		f.hashes[hashKey] = h
	}
	cur := btoi(h[field])
	cur += delta
	h[field] = itob(cur)
	return cur, nil
}

func (f *fakeStore) HExists(_ context.Context, hashKey, field string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[hashKey]
	if !ok {
		return false, nil
	}
	_, ok = h[field]
	return ok, nil
}

func itob(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func btoi(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
