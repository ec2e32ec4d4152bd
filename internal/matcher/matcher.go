package matcher

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Strategy selects how B-side markets are shared between A-side markets.
type Strategy string

const (
	// StrategyGreedy lets a B market be picked by more than one A market.
	StrategyGreedy Strategy = "greedy"
	// StrategyExclusive removes a B market from the pool once an A market
	// has claimed it. Still order-dependent, not an optimal assignment.
	StrategyExclusive Strategy = "exclusive"
)

// CollisionPolicy decides what happens when two A selections resolve to the
// same B selection.
type CollisionPolicy string

const (
	CollisionLog    CollisionPolicy = "log"
	CollisionReject CollisionPolicy = "reject"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyGreedy:
		return StrategyGreedy, nil
	case StrategyExclusive:
		return StrategyExclusive, nil
	}
	return "", fmt.Errorf("matcher: unknown strategy %q", s)
}

// ParseCollisionPolicy validates a collision policy name.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(s)) {
	case CollisionLog:
		return CollisionLog, nil
	case CollisionReject:
		return CollisionReject, nil
	}
	return "", fmt.Errorf("matcher: unknown collision policy %q", s)
}

// Options tunes market and selection matching.
type Options struct {
	MarketThreshold    float64
	SelectionThreshold float64
	StartTimeTolerance time.Duration
	Strategy           Strategy
	OnCollision        CollisionPolicy
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		MarketThreshold:    0.8,
		SelectionThreshold: 0.7,
		StartTimeTolerance: time.Hour,
		Strategy:           StrategyGreedy,
		OnCollision:        CollisionLog,
	}
}

// Matcher performs cross-venue entity resolution. It holds no mutable state
// and is safe for concurrent use.
type Matcher struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Matcher. Zero-valued options fall back to the defaults.
func New(opts Options, logger *slog.Logger) *Matcher {
	def := DefaultOptions()
	if opts.MarketThreshold <= 0 {
		opts.MarketThreshold = def.MarketThreshold
	}
	if opts.SelectionThreshold <= 0 {
		opts.SelectionThreshold = def.SelectionThreshold
	}
	if opts.StartTimeTolerance <= 0 {
		opts.StartTimeTolerance = def.StartTimeTolerance
	}
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	if opts.OnCollision == "" {
		opts.OnCollision = def.OnCollision
	}
	return &Matcher{
		opts:   opts,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Options returns the effective options.
func (m *Matcher) Options() Options {
	return m.opts
}

type candidate struct {
	market     domain.Market
	home, away string
}

func matchOddsCandidates(markets []domain.Market) []candidate {
	out := make([]candidate, 0, len(markets))
	for _, mk := range markets {
		if NormalizeMarketType(mk.MarketType) != CanonicalMatchOdds {
			continue
		}
		home, away := ExtractTeams(mk.EventName)
		out = append(out, candidate{market: mk, home: home, away: away})
	}
	return out
}

// MatchMarkets pairs every match-result market in a with its best-scoring
// counterpart in b using the configured market threshold.
func (m *Matcher) MatchMarkets(a, b []domain.Market) []domain.MatchedMarket {
	return m.MatchMarketsThreshold(a, b, m.opts.MarketThreshold)
}

// MatchMarketsThreshold is MatchMarkets with an explicit threshold. For each A
// market the single best B candidate with score >= threshold is chosen; ties
// keep the first-seen candidate. Pairs whose start times are both known and
// differ by more than the tolerance are never considered.
func (m *Matcher) MatchMarketsThreshold(a, b []domain.Market, threshold float64) []domain.MatchedMarket {
	as := matchOddsCandidates(a)
	bs := matchOddsCandidates(b)
	claimed := make([]bool, len(bs))

	var out []domain.MatchedMarket
	for _, ca := range as {
		best := -1
		bestScore := 0.0
		for j, cb := range bs {
			if claimed[j] {
				continue
			}
			if !m.startTimesCompatible(ca.market, cb.market) {
				continue
			}
			score := (Similarity(ca.home, cb.home) + Similarity(ca.away, cb.away)) / 2
			if score > bestScore && score >= threshold {
				best = j
				bestScore = score
			}
		}
		if best < 0 {
			continue
		}
		if m.opts.Strategy == StrategyExclusive {
			claimed[best] = true
		}
		out = append(out, domain.MatchedMarket{
			Markets: []domain.Market{ca.market, bs[best].market},
			Score:   bestScore,
		})
	}

	m.logger.Debug("markets matched",
		slog.Int("left", len(as)),
		slog.Int("right", len(bs)),
		slog.Int("matched", len(out)),
	)
	return out
}

func (m *Matcher) startTimesCompatible(a, b domain.Market) bool {
	if !a.HasStartTime() || !b.HasStartTime() {
		return true
	}
	diff := a.StartTime.Sub(b.StartTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.opts.StartTimeTolerance
}

// MatchSelections maps each selection in a to its most similar selection in b
// using the configured selection threshold.
func (m *Matcher) MatchSelections(a, b []domain.Selection) *SelectionIndex {
	return m.MatchSelectionsThreshold(a, b, m.opts.SelectionThreshold)
}

// MatchSelectionsThreshold is MatchSelections with an explicit threshold.
// When two A selections resolve to the same B selection the collision is
// counted and, under CollisionReject, the later mapping is dropped.
func (m *Matcher) MatchSelectionsThreshold(a, b []domain.Selection, threshold float64) *SelectionIndex {
	idx := newSelectionIndex()
	bNames := make([]string, len(b))
	for i, s := range b {
		bNames[i] = NormalizeName(s.Name)
	}

	for _, sa := range a {
		name := NormalizeName(sa.Name)
		best := -1
		bestScore := 0.0
		for j := range b {
			score := Similarity(name, bNames[j])
			if score > bestScore && score >= threshold {
				best = j
				bestScore = score
			}
		}
		if best < 0 {
			continue
		}
		if err := idx.add(sa.ID, b[best].ID, m.opts.OnCollision); err != nil {
			m.logger.Debug("selection collision",
				slog.String("selection", sa.Name),
				slog.String("target", b[best].Name),
				slog.String("policy", string(m.opts.OnCollision)),
			)
		}
	}

	if idx.collisions > 0 {
		m.logger.Warn("non-injective selection match",
			slog.Int("collisions", idx.collisions),
			slog.String("policy", string(m.opts.OnCollision)),
		)
	}
	return idx
}
