// Package strategy drives a hedge scan across venues: fetch markets, match
// them, fetch odds, match selections, analyse and rank.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/hedge"
	"github.com/alanyoungcy/hedgebot/internal/matcher"
)

// Options tunes a Manager.
type Options struct {
	FetchTimeout     time.Duration
	FetchConcurrency int
	OpportunityTTL   time.Duration

	DefaultStake        float64
	DefaultMinProfitPct float64
	DefaultMaxResults   int
	DefaultCompetitions []string
	DefaultInclude      hedge.Include

	ThreeWay hedge.ThreeWayOptions
}

// DefaultOptions returns the stock manager settings.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:        10 * time.Second,
		FetchConcurrency:    8,
		OpportunityTTL:      10 * time.Minute,
		DefaultStake:        100,
		DefaultMinProfitPct: 0.5,
		DefaultMaxResults:   20,
		DefaultInclude:      hedge.DefaultInclude(),
		ThreeWay:            hedge.DefaultThreeWayOptions(),
	}
}

// FindRequest parameterises one scan.
type FindRequest struct {
	Stake               float64  `json:"stake"`
	MinProfitPercentage float64  `json:"min_profit_percentage"`
	Competitions        []string `json:"competitions,omitempty"`
	MaxResults          int      `json:"max_results"`
	hedge.Include
}

// Manager runs the scan pipeline. Each Manager owns its own odds cache, so
// several managers (say, with different stakes) never share state.
type Manager struct {
	venues   *Registry
	matcher  *matcher.Matcher
	analyzer *hedge.Analyzer
	threeWay *hedge.ThreeWayCalculator
	cache    domain.OpportunityCache
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	books    map[domain.OddsKey]hedge.Book // last cycle, replaced wholesale
	lastScan time.Time
}

// NewManager wires a Manager. cache may be nil, in which case found
// opportunities cannot be validated later by id.
func NewManager(venues *Registry, m *matcher.Matcher, cache domain.OpportunityCache, opts Options, logger *slog.Logger) *Manager {
	def := DefaultOptions()
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = def.FetchConcurrency
	}
	if opts.OpportunityTTL <= 0 {
		opts.OpportunityTTL = def.OpportunityTTL
	}
	if opts.DefaultStake <= 0 {
		opts.DefaultStake = def.DefaultStake
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = def.DefaultMaxResults
	}
	return &Manager{
		venues:   venues,
		matcher:  m,
		analyzer: hedge.NewAnalyzer(logger),
		threeWay: hedge.NewThreeWayCalculator(opts.ThreeWay),
		cache:    cache,
		opts:     opts,
		logger:   logger.With(slog.String("component", "hedge_manager")),
		now:      time.Now,
		books:    make(map[domain.OddsKey]hedge.Book),
	}
}

// Venues exposes the venue registry.
func (m *Manager) Venues() *Registry { return m.venues }

// NewFindRequest returns a request populated with the configured defaults.
func (m *Manager) NewFindRequest() FindRequest {
	return FindRequest{
		Stake:               m.opts.DefaultStake,
		MinProfitPercentage: m.opts.DefaultMinProfitPct,
		Competitions:        m.opts.DefaultCompetitions,
		MaxResults:          m.opts.DefaultMaxResults,
		Include:             m.opts.DefaultInclude,
	}
}

func (m *Manager) normalize(req FindRequest) FindRequest {
	if !(req.Stake > 0) {
		req.Stake = m.opts.DefaultStake
	}
	if req.MaxResults <= 0 {
		req.MaxResults = m.opts.DefaultMaxResults
	}
	if req.Competitions == nil {
		req.Competitions = m.opts.DefaultCompetitions
	}
	return req
}

// --------------------------------------------------------------------------
// Pipeline
// --------------------------------------------------------------------------

type listing struct {
	venue   Venue
	markets []domain.Market
	err     error
}

// source is one side of a market comparison: a whole exchange, or a single
// bookmaker of a bookmaker venue.
type source struct {
	kind    domain.VenueKind
	label   string
	markets []domain.Market
}

type matchedPair struct {
	a, b  domain.Market
	score float64
}

type oddsResult struct {
	snap domain.OddsSnapshot
	err  error
}

// FindOptimalHedgeOpportunities runs one full scan. Venue failures never
// abort the scan: they degrade to "no data" and are reported in the result.
// The only error returned is ctx's.
func (m *Manager) FindOptimalHedgeOpportunities(ctx context.Context, req FindRequest) (domain.ScanResult, error) {
	req = m.normalize(req)
	res := domain.ScanResult{StartedAt: m.now().UTC()}

	venues := m.venues.List()
	if len(venues) == 0 {
		res.Outcome = domain.ScanDegraded
		res.Reason = "no venues configured"
		res.FinishedAt = m.now().UTC()
		return res, nil
	}

	listings := m.fetchMarkets(ctx, venues, req.Competitions)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Venues = make([]domain.VenueReport, len(listings))
	index := make(map[string]int, len(listings))
	for i, l := range listings {
		index[l.venue.Name()] = i
		res.Venues[i] = domain.VenueReport{Venue: l.venue.Name(), Markets: len(l.markets)}
		if l.err != nil {
			res.Venues[i].Error = l.err.Error()
		}
	}

	matched := m.matchAll(groupSources(listings), req.Include)
	res.MatchedMarkets = len(matched)

	keys, markets := oddsKeys(matched)
	results := m.fetchOdds(ctx, index, venues, keys)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	books := make(map[domain.OddsKey]hedge.Book, len(keys))
	for i, key := range keys {
		vi := index[key.Venue]
		if results[i].err != nil {
			res.Venues[vi].OddsFailed++
			continue
		}
		res.Venues[vi].OddsFetched++
		v := venues[vi]
		books[key] = hedge.Book{
			Venue:      v.Name(),
			Kind:       v.Kind(),
			Commission: v.Commission(),
			Market:     markets[key],
			Odds:       results[i].snap,
		}
	}

	scan, collisions := m.buildScan(keys, books, matched)
	res.Collisions = collisions

	opps := m.analyzer.FindOpportunities(scan, req.Stake, req.MinProfitPercentage, req.Include, hedge.SortByProfitPercentage)
	if len(opps) > req.MaxResults {
		opps = opps[:req.MaxResults]
	}
	found := m.now().UTC()
	for i := range opps {
		opps[i].ID = uuid.NewString()
		opps[i].FoundAt = found
	}
	res.Opportunities = opps

	m.mu.Lock()
	m.books = books
	m.lastScan = found
	m.mu.Unlock()

	if m.cache != nil && len(opps) > 0 {
		if err := m.cache.PutOpportunities(ctx, opps, m.opts.OpportunityTTL); err != nil {
			m.logger.WarnContext(ctx, "failed to cache opportunities", slog.String("error", err.Error()))
		}
	}

	res.Outcome, res.Reason = outcome(res, req.MinProfitPercentage)
	res.FinishedAt = m.now().UTC()

	m.logger.InfoContext(ctx, "scan complete",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("matched_markets", res.MatchedMarkets),
		slog.Int("books", len(books)),
		slog.Int("opportunities", len(opps)),
		slog.Int("selection_collisions", collisions),
		slog.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

// fetchMarkets lists markets on every venue concurrently. Results keep the
// venue order regardless of completion order.
func (m *Manager) fetchMarkets(ctx context.Context, venues []Venue, competitions []string) []listing {
	out := make([]listing, len(venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range venues {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, m.opts.FetchTimeout)
			defer cancel()
			markets, err := v.ListLiveMarkets(fctx, competitions)
			if err != nil {
				m.logger.WarnContext(ctx, "market listing failed",
					slog.String("venue", v.Name()),
					slog.String("error", err.Error()),
				)
				markets = nil
			}
			out[i] = listing{venue: v, markets: markets, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// groupSources splits bookmaker venues by bookmaker so that bookmakers
// behind one aggregator can be compared with each other.
func groupSources(listings []listing) []source {
	var out []source
	for _, l := range listings {
		if l.venue.Kind() != domain.VenueBookmaker {
			out = append(out, source{kind: l.venue.Kind(), label: l.venue.Name(), markets: l.markets})
			continue
		}
		pos := make(map[string]int)
		for _, mk := range l.markets {
			label := mk.Bookmaker
			if label == "" {
				label = l.venue.Name()
			}
			i, ok := pos[label]
			if !ok {
				i = len(out)
				pos[label] = i
				out = append(out, source{kind: domain.VenueBookmaker, label: label})
			}
			out[i].markets = append(out[i].markets, mk)
		}
	}
	return out
}

func wanted(a, b domain.VenueKind, in hedge.Include) bool {
	switch {
	case a == domain.VenueExchange && b == domain.VenueExchange:
		return in.CrossExchange || in.MultiLeg || in.ExchangeInternal
	case a == domain.VenueBookmaker && b == domain.VenueBookmaker:
		return in.BookmakerBookmaker
	default:
		return in.BookmakerExchange || in.MultiLeg || in.ExchangeInternal
	}
}

// matchAll runs the market matcher over every pair of sources whose hedge
// type is switched on.
func (m *Manager) matchAll(sources []source, in hedge.Include) []matchedPair {
	var out []matchedPair
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			a, b := sources[i], sources[j]
			if !wanted(a.kind, b.kind, in) {
				continue
			}
			for _, mm := range m.matcher.MatchMarkets(a.markets, b.markets) {
				out = append(out, matchedPair{a: mm.Markets[0], b: mm.Markets[1], score: mm.Score})
			}
		}
	}
	return out
}

// oddsKeys returns every distinct market referenced by the matched pairs in
// first-seen order.
func oddsKeys(matched []matchedPair) ([]domain.OddsKey, map[domain.OddsKey]domain.Market) {
	var keys []domain.OddsKey
	markets := make(map[domain.OddsKey]domain.Market)
	add := func(mk domain.Market) {
		k := domain.OddsKey{Venue: mk.Venue, MarketID: mk.ID}
		if _, ok := markets[k]; ok {
			return
		}
		markets[k] = mk
		keys = append(keys, k)
	}
	for _, p := range matched {
		add(p.a)
		add(p.b)
	}
	return keys, markets
}

// fetchOdds fetches every key concurrently, bounded by FetchConcurrency.
// Each goroutine writes only its own slot.
func (m *Manager) fetchOdds(ctx context.Context, index map[string]int, venues []Venue, keys []domain.OddsKey) []oddsResult {
	out := make([]oddsResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.FetchConcurrency)
	for i, key := range keys {
		vi, ok := index[key.Venue]
		if !ok {
			out[i].err = fmt.Errorf("venue %q: %w", key.Venue, domain.ErrVenueUnavailable)
			continue
		}
		v := venues[vi]
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, m.opts.FetchTimeout)
			defer cancel()
			snap, err := v.GetMarketOdds(fctx, key.MarketID)
			if err != nil {
				m.logger.WarnContext(ctx, "odds fetch failed",
					slog.String("venue", key.Venue),
					slog.String("market_id", key.MarketID),
					slog.String("error", err.Error()),
				)
			}
			out[i] = oddsResult{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *Manager) buildScan(keys []domain.OddsKey, books map[domain.OddsKey]hedge.Book, matched []matchedPair) (hedge.Scan, int) {
	var scan hedge.Scan
	for _, k := range keys {
		if b, ok := books[k]; ok && b.Kind == domain.VenueExchange {
			scan.Books = append(scan.Books, b)
		}
	}

	collisions := 0
	for _, mp := range matched {
		a, okA := books[domain.OddsKey{Venue: mp.a.Venue, MarketID: mp.a.ID}]
		b, okB := books[domain.OddsKey{Venue: mp.b.Venue, MarketID: mp.b.ID}]
		if !okA || !okB {
			continue
		}
		idx := m.matcher.MatchSelections(a.Odds.Selections, b.Odds.Selections)
		collisions += idx.Collisions()
		if idx.Len() == 0 {
			continue
		}
		scan.Pairs = append(scan.Pairs, hedge.Pair{A: a, B: b, Selections: idx.Pairs(), Score: mp.score})
	}
	return scan, collisions
}

func outcome(res domain.ScanResult, minPct float64) (domain.ScanOutcome, string) {
	var failed []string
	fetched, oddsFailed := 0, 0
	for _, v := range res.Venues {
		if v.Error != "" {
			failed = append(failed, v.Venue)
		}
		fetched += v.OddsFetched
		oddsFailed += v.OddsFailed
	}

	switch {
	case len(res.Opportunities) > 0:
		if len(failed) > 0 {
			return domain.ScanOK, "venues unavailable: " + strings.Join(failed, ", ")
		}
		return domain.ScanOK, ""
	case len(failed) == len(res.Venues):
		return domain.ScanDegraded, "all venues unavailable"
	case len(failed) > 0:
		return domain.ScanDegraded, fmt.Sprintf("%d of %d venues unavailable: %s", len(failed), len(res.Venues), strings.Join(failed, ", "))
	case oddsFailed > 0 && fetched == 0:
		return domain.ScanDegraded, "odds unavailable for every matched market"
	case res.MatchedMarkets == 0:
		return domain.ScanNoOpportunities, "no markets matched across venues"
	default:
		return domain.ScanNoOpportunities, fmt.Sprintf("no opportunity reached the minimum profit of %.2f%%", minPct)
	}
}

// --------------------------------------------------------------------------
// Cached state
// --------------------------------------------------------------------------

// CacheCounts returns the number of odds snapshots held per venue from the
// last scan.
func (m *Manager) CacheCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for k := range m.books {
		out[k.Venue]++
	}
	return out
}

// LastScan returns when the last scan finished, or zero.
func (m *Manager) LastScan() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastScan
}

// ThreeWay returns the configured three-way calculator.
func (m *Manager) ThreeWay() *hedge.ThreeWayCalculator { return m.threeWay }

// FindThreeWayOpportunities runs the three-way calculator over every
// exchange snapshot of the last scan, using each venue's own commission.
// Results are ordered by profit, best first.
func (m *Manager) FindThreeWayOpportunities(baseStake float64) []domain.ThreeWayHedgeResult {
	if !(baseStake > 0) {
		baseStake = m.opts.DefaultStake
	}
	m.mu.RLock()
	books := make([]hedge.Book, 0, len(m.books))
	for _, key := range slices.SortedFunc(maps.Keys(m.books), compareOddsKeys) {
		if b := m.books[key]; b.Kind == domain.VenueExchange {
			books = append(books, b)
		}
	}
	m.mu.RUnlock()

	var out []domain.ThreeWayHedgeResult
	for _, b := range books {
		opts := m.threeWay.Options()
		opts.Commission = b.Commission
		snap := b.Odds
		if snap.EventName == "" {
			snap.EventName = b.Market.EventName
		}
		if snap.Competition == "" {
			snap.Competition = b.Market.Competition
		}
		if r, ok := hedge.NewThreeWayCalculator(opts).FindOpportunities(snap, baseStake); ok {
			out = append(out, r)
		}
	}
	hedge.SortThreeWay(out)
	return out
}

func compareOddsKeys(a, b domain.OddsKey) int {
	if n := strings.Compare(a.Venue, b.Venue); n != 0 {
		return n
	}
	return strings.Compare(a.MarketID, b.MarketID)
}
