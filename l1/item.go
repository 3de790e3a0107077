package l1

import "time"

// entry is a single L1 cache slot. It lives as the Value of a list.Element so
// the region's LRU list can reorder and evict in O(1).
type entry struct {
	key        string
	value      interface{}
	insertedAt time.Time
	expiresAt  time.Time // zero means no per-entry expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
