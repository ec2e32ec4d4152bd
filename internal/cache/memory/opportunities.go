// Package memory provides in-process implementations of the cache and
// signal bus interfaces, used when Redis is disabled and in tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type entry struct {
	opp       domain.HedgeOpportunity
	expiresAt time.Time
}

// OpportunityCache is a TTL map of opportunities. Expired entries are
// dropped lazily on access and on every Put.
type OpportunityCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewOpportunityCache returns an empty cache.
func NewOpportunityCache() *OpportunityCache {
	return &OpportunityCache{entries: make(map[string]entry), now: time.Now}
}

// PutOpportunities stores opps for ttl.
func (c *OpportunityCache) PutOpportunities(_ context.Context, opps []domain.HedgeOpportunity, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
	for _, o := range opps {
		c.entries[o.ID] = entry{opp: o, expiresAt: now.Add(ttl)}
	}
	return nil
}

// GetOpportunity returns domain.ErrNotFound for unknown or expired ids.
func (c *OpportunityCache) GetOpportunity(_ context.Context, id string) (domain.HedgeOpportunity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return domain.HedgeOpportunity{}, domain.ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, id)
		return domain.HedgeOpportunity{}, domain.ErrNotFound
	}
	return e.opp, nil
}

// ListOpportunities returns up to limit live opportunities, newest first.
func (c *OpportunityCache) ListOpportunities(_ context.Context, limit int) ([]domain.HedgeOpportunity, error) {
	c.mu.Lock()
	now := c.now()
	out := make([]domain.HedgeOpportunity, 0, len(c.entries))
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			out = append(out, e.opp)
		}
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.HedgeOpportunity) int {
		if n := b.FoundAt.Compare(a.FoundAt); n != 0 {
			return n
		}
		return cmp.Compare(b.ProfitPercentage, a.ProfitPercentage)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.OpportunityCache = (*OpportunityCache)(nil)
