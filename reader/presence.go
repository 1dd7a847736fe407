package reader

import (
	"sync"
	"time"
)

// presence turns a stream of single-tag reads into pad snapshots: a tag is
// on the pad while it has been seen within ttl.
type presence struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	seen  map[string]time.Time
	order []string
}

func newPresence(ttl time.Duration) *presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &presence{ttl: ttl, now: time.Now, seen: map[string]time.Time{}}
}

func (p *presence) add(barcode string) {
	if barcode == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[barcode]; !ok {
		p.order = append(p.order, barcode)
	}
	p.seen[barcode] = p.now()
}

// snapshot drops expired tags and returns the rest in first-seen order.
func (p *presence) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.ttl)
	kept := p.order[:0]
	items := make([]Tag, 0, len(p.order))
	for _, b := range p.order {
		if p.seen[b].Before(cutoff) {
			delete(p.seen, b)
			continue
		}
		kept = append(kept, b)
		items = append(items, Tag{Barcode: b})
	}
	p.order = kept
	return Snapshot{Items: items}
}
