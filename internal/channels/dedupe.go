package channels

import (
	"sync"
	"time"
)

// maxTrackedUpdates caps the de-dup table so redelivered update floods
// cannot grow it without bound.
const maxTrackedUpdates = 4096

// Deduper drops repeated channel updates within a TTL window. Telegram
// redelivers webhook updates until they are acknowledged, and a restart of
// long polling can replay the tail of the queue; the first copy wins.
// Safe for concurrent use.
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduper creates a de-duplicator with the given window.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records the key and reports whether it was already seen inside the
// window.
func (d *Deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	// Prune stale entries when approaching the cap, then evict arbitrarily
	// if the table is still full.
	if len(d.seen) >= maxTrackedUpdates {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
		for len(d.seen) >= maxTrackedUpdates {
			for k := range d.seen {
				delete(d.seen, k)
				break
			}
		}
	}

	d.seen[key] = now
	return false
}
