package smarkets

import (
	"context"
	"sync"
	"time"
)

// IntervalPacer spaces calls at least interval apart within one process.
// The key is ignored.
type IntervalPacer struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewIntervalPacer returns a pacer allowing one call per interval.
func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	return &IntervalPacer{interval: interval}
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (p *IntervalPacer) Wait(ctx context.Context, _ string) error {
	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
