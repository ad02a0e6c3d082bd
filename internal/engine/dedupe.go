package engine

import (
	"strconv"
	"sync"
	"time"

	"hivetrust/internal/model"
)

const dedupeCompactAt = 10000

// DedupeCache remembers signals already published so a re-evaluation over
// the same history does not report them twice.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

// Seen marks key and reports whether it was already marked within ttl.
func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.containsLocked(key, now, ttl) {
		return true
	}
	d.items[key] = now
	if len(d.items) > dedupeCompactAt {
		d.compact(now, ttl)
	}
	return false
}

// Contains reports whether key was marked within ttl without marking it.
func (d *DedupeCache) Contains(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.containsLocked(key, now, ttl)
}

func (d *DedupeCache) containsLocked(key string, now time.Time, ttl time.Duration) bool {
	ts, ok := d.items[key]
	return ok && now.Sub(ts) <= ttl
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}

// signalKey identifies a signal by rule and millisecond timestamp, the same
// pair the signal table is unique on. A day whose value moves after it was
// reported keeps its key.
func signalKey(sig model.AlertSignal) string {
	return sig.RuleID + "|" + strconv.FormatInt(sig.At.UnixMilli(), 10)
}
