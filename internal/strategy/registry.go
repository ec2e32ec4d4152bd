package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Venue is the capability the manager consumes from each trading venue.
type Venue interface {
	Name() string
	Kind() domain.VenueKind
	Commission() float64
	ListLiveMarkets(ctx context.Context, competitions []string) ([]domain.Market, error)
	GetMarketOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error)
	Ping(ctx context.Context) error
}

// VenueInfo holds connectivity info for a registered venue (for status APIs).
type VenueInfo struct {
	Name       string           `json:"name"`
	Kind       domain.VenueKind `json:"kind"`
	Commission float64          `json:"commission"`
	Connected  bool             `json:"connected"`
	Error      string           `json:"error,omitempty"`
	Latency    time.Duration    `json:"latency_ns"`
}

// Registry manages the named collection of venues a manager scans. It is
// safe for concurrent use.
type Registry struct {
	venues map[string]Venue
	mu     sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		venues: make(map[string]Venue),
	}
}

// Register adds a venue under its own name. A venue with the same name is
// replaced.
func (r *Registry) Register(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[v.Name()] = v
}

// Get retrieves a venue by name.
func (r *Registry) Get(name string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[name]
	if !ok {
		return nil, fmt.Errorf("venue %q: %w", name, domain.ErrVenueUnavailable)
	}
	return v, nil
}

// List returns the registered venues sorted by name, so every cycle issues
// its fetches in the same order.
func (r *Registry) List() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.venues))
	for n := range r.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Venue, 0, len(names))
	for _, n := range names {
		out = append(out, r.venues[n])
	}
	return out
}

// Len returns the number of registered venues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.venues)
}

// ListInfo pings every venue and reports its connectivity.
func (r *Registry) ListInfo(ctx context.Context, timeout time.Duration) []VenueInfo {
	venues := r.List()
	infos := make([]VenueInfo, len(venues))
	var wg sync.WaitGroup
	for i, v := range venues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := v.Ping(pctx)
			info := VenueInfo{
				Name:       v.Name(),
				Kind:       v.Kind(),
				Commission: v.Commission(),
				Connected:  err == nil,
				Latency:    time.Since(start),
			}
			if err != nil {
				info.Error = err.Error()
			}
			infos[i] = info
		}()
	}
	wg.Wait()
	return infos
}
