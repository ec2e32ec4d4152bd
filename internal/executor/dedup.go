package executor

import (
	"sync"
	"time"
)

// Dedup guards opportunity ids against concurrent execution. An id is held
// from Claim until Release, and stays claimed for ttl after release so a
// client retrying a finished request does not place the bets twice.
type Dedup struct {
	inFlight map[string]struct{}
	released map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewDedup creates a Dedup. A zero ttl releases ids immediately.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		inFlight: make(map[string]struct{}),
		released: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Claim records id as in flight. It returns false when id is already in
// flight or was released less than ttl ago.
func (d *Dedup) Claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inFlight[id]; ok {
		return false
	}
	if at, ok := d.released[id]; ok {
		if d.now().Sub(at) < d.ttl {
			return false
		}
		delete(d.released, id)
	}
	d.inFlight[id] = struct{}{}
	return true
}

// Release ends the in-flight period of id.
func (d *Dedup) Release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inFlight, id)
	if d.ttl > 0 {
		d.released[id] = d.now()
	}
}

// Cleanup drops released ids whose ttl has passed.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, at := range d.released {
		if now.Sub(at) >= d.ttl {
			delete(d.released, id)
		}
	}
}
