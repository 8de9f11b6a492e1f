package bus

import (
	"sync"
	"time"
)

// Deduplicator tracks recently seen message IDs so webhook retries and
// double-taps don't produce duplicate dispatches. Entries expire after the
// TTL; expired entries are swept lazily on each call rather than by a
// background timer. Safe for concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	max  int

	now func() time.Time // injectable for tests
}

// NewDeduplicator creates a Deduplicator with the given TTL and a hard cap
// on tracked entries (oldest evicted when full).
func NewDeduplicator(ttl time.Duration, max int) *Deduplicator {
	if max <= 0 {
		max = 5000
	}
	return &Deduplicator{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		max:  max,
		now:  time.Now,
	}
}

// IsDuplicate reports whether id was already seen within the TTL window.
// The first call for an id records it and returns false; once the TTL has
// elapsed the id may be seen again.
func (d *Deduplicator) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	// Lazy sweep: drop everything past TTL.
	for k, t := range d.seen {
		if now.Sub(t) >= d.ttl {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[id]; ok {
		return true
	}

	// Hard cap: evict oldest when full.
	if len(d.seen) >= d.max {
		var oldestKey string
		var oldest time.Time
		for k, t := range d.seen {
			if oldestKey == "" || t.Before(oldest) {
				oldestKey, oldest = k, t
			}
		}
		delete(d.seen, oldestKey)
	}

	d.seen[id] = now
	return false
}

// Len returns the number of tracked entries. Intended for tests and the
// health endpoint.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
