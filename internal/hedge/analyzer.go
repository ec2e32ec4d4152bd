package hedge

import (
	"cmp"
	"log/slog"
	"math"
	"slices"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/matcher"
)

// SortOrder picks the ranking key for a set of opportunities.
type SortOrder int

const (
	SortByProfit SortOrder = iota
	SortByProfitPercentage
)

// Include switches individual hedge types on or off for a scan.
type Include struct {
	ExchangeInternal   bool `json:"include_exchange_internal"`
	CrossExchange      bool `json:"include_cross_exchange"`
	BookmakerExchange  bool `json:"include_bookmaker_exchange"`
	BookmakerBookmaker bool `json:"include_bookmaker_bookmaker"`
	MultiLeg           bool `json:"include_multi_leg"`
}

// DefaultInclude enables the plain back/lay types only.
func DefaultInclude() Include {
	return Include{ExchangeInternal: true, CrossExchange: true, BookmakerExchange: true}
}

// Allows reports whether hedge type t is switched on.
func (in Include) Allows(t domain.HedgeType) bool {
	switch t {
	case domain.HedgeExchangeInternal:
		return in.ExchangeInternal
	case domain.HedgeCrossExchange:
		return in.CrossExchange
	case domain.HedgeBookmakerExchange:
		return in.BookmakerExchange
	case domain.HedgeBookmakerBookmaker:
		return in.BookmakerBookmaker
	case domain.HedgeMultiLeg:
		return in.MultiLeg
	}
	return false
}

// Analyzer finds profitable opportunities, one method per hedge type. Every
// method returns only opportunities with a positive profit, sorted by
// profit descending. Analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With(slog.String("component", "hedge_analyzer"))}
}

// AnalyzeSameVenue looks for crossed prices inside one order book: a runner
// whose best back price exceeds its best lay price. The venue's commission
// applies to both legs.
func (a *Analyzer) AnalyzeSameVenue(book Book, stake float64) []domain.HedgeOpportunity {
	var out []domain.HedgeOpportunity
	for _, sel := range book.Odds.Selections {
		back, okBack := sel.Back()
		lay, okLay := sel.Lay()
		if !okBack || !okLay || back <= lay {
			continue
		}
		r, ok := CalculateHedge(back, lay, stake, book.Commission, book.Commission)
		if !ok || r.Profit <= 0 {
			continue
		}
		out = append(out, twoLeg(domain.HedgeExchangeInternal, book, sel, book, sel, back, lay, stake, r))
	}
	SortOpportunities(out, SortByProfit)
	return out
}

// AnalyzeCrossVenue evaluates every matched selection in both directions:
// back on A and lay on B, then back on B and lay on A. Each leg carries its
// own venue's commission.
func (a *Analyzer) AnalyzeCrossVenue(p Pair, stake float64) []domain.HedgeOpportunity {
	out := a.backLay(domain.HedgeCrossExchange, p, stake)
	out = append(out, a.backLay(domain.HedgeCrossExchange, p.swapped(), stake)...)
	SortOpportunities(out, SortByProfit)
	return out
}

// AnalyzeBookmakerVsVenue backs the bookmaker price in p.A and lays the
// exchange price in p.B. The bookmaker leg pays no commission.
func (a *Analyzer) AnalyzeBookmakerVsVenue(p Pair, stake float64) []domain.HedgeOpportunity {
	p.A.Commission = 0
	out := a.backLay(domain.HedgeBookmakerExchange, p, stake)
	SortOpportunities(out, SortByProfit)
	return out
}

func (a *Analyzer) backLay(t domain.HedgeType, p Pair, stake float64) []domain.HedgeOpportunity {
	var out []domain.HedgeOpportunity
	for _, m := range p.Selections {
		backSel, ok := p.A.Odds.Selection(m.A)
		if !ok {
			continue
		}
		laySel, ok := p.B.Odds.Selection(m.B)
		if !ok {
			continue
		}
		back, okBack := backSel.Back()
		lay, okLay := laySel.Lay()
		if !okBack || !okLay {
			continue
		}
		r, ok := CalculateHedge(back, lay, stake, p.A.Commission, p.B.Commission)
		if !ok || r.Profit <= 0 {
			continue
		}
		out = append(out, twoLeg(t, p.A, backSel, p.B, laySel, back, lay, stake, r))
	}
	return out
}

func twoLeg(t domain.HedgeType, backBook Book, backSel domain.Selection, layBook Book, laySel domain.Selection,
	back, lay, stake float64, r Result) domain.HedgeOpportunity {
	return domain.HedgeOpportunity{
		Type:             t,
		EventName:        backBook.EventName(),
		Competition:      backBook.competition(),
		RunnerName:       backSel.Name,
		BackVenue:        backBook.Venue,
		BackExchange:     backBook.DisplayName(),
		BackMarketID:     backBook.MarketID(),
		BackSelectionID:  backSel.ID,
		BackOdds:         back,
		BackStake:        stake,
		BackCommission:   backBook.Commission,
		LayVenue:         layBook.Venue,
		LayExchange:      layBook.DisplayName(),
		LayMarketID:      layBook.MarketID(),
		LaySelectionID:   laySel.ID,
		LayOdds:          lay,
		LayStake:         r.LayStake,
		LayLiability:     r.LayLiability,
		LayCommission:    layBook.Commission,
		Profit:           r.Profit,
		ProfitPercentage: r.ProfitPercentage,
		LegCount:         2,
	}
}

// OpposingSelections pairs each selection of A with the B selection of the
// other outcome. Only two-outcome markets qualify: in a market with a draw,
// two back bets cannot cover every result.
func OpposingSelections(p Pair) []matcher.SelectionPair {
	if len(p.A.Odds.Selections) != 2 || len(p.B.Odds.Selections) != 2 {
		return nil
	}
	var out []matcher.SelectionPair
	for _, m := range p.Selections {
		for _, sel := range p.B.Odds.Selections {
			if sel.ID != m.B {
				out = append(out, matcher.SelectionPair{A: m.A, B: sel.ID})
			}
		}
	}
	return out
}

// AnalyzeBookmakerVsBookmaker treats opposing outcomes at two bookmakers as a
// two-way arbitrage. The stake is split in inverse proportion to the odds so
// the return is the same whichever side wins.
func (a *Analyzer) AnalyzeBookmakerVsBookmaker(bm1, bm2 Book, opposing []matcher.SelectionPair, stake float64) []domain.HedgeOpportunity {
	var out []domain.HedgeOpportunity
	for _, m := range opposing {
		s1, ok := bm1.Odds.Selection(m.A)
		if !ok {
			continue
		}
		s2, ok := bm2.Odds.Selection(m.B)
		if !ok {
			continue
		}
		o1, ok1 := s1.Back()
		o2, ok2 := s2.Back()
		if !ok1 || !ok2 {
			continue
		}
		stake1, stake2, profit, maxReturn, ok := splitBackBack(o1, o2, stake)
		if !ok || round2(profit) <= 0 {
			continue
		}

		out = append(out, domain.HedgeOpportunity{
			Type:             domain.HedgeBookmakerBookmaker,
			EventName:        bm1.EventName(),
			Competition:      bm1.competition(),
			RunnerName:       s1.Name + " vs " + s2.Name,
			BackVenue:        bm1.Venue,
			BackExchange:     bm1.DisplayName(),
			BackMarketID:     bm1.MarketID(),
			BackSelectionID:  s1.ID,
			BackOdds:         o1,
			BackStake:        round2(stake1),
			LayVenue:         bm2.Venue,
			LayExchange:      bm2.DisplayName(),
			LayMarketID:      bm2.MarketID(),
			LaySelectionID:   s2.ID,
			LayOdds:          o2,
			LayStake:         round2(stake2),
			Profit:           round2(profit),
			ProfitPercentage: round2(profit / stake * 100),
			LegCount:         2,
			OpposingSelections: []domain.BetLeg{
				{Selection: s1.Name, Venue: bm1.Venue, MarketID: bm1.MarketID(), SelectionID: s1.ID, Odds: o1, Stake: round2(stake1)},
				{Selection: s2.Name, Venue: bm2.Venue, MarketID: bm2.MarketID(), SelectionID: s2.ID, Odds: o2, Stake: round2(stake2)},
			},
			TotalLiability: round2(stake),
			MaxReturn:      round2(maxReturn),
		})
	}
	SortOpportunities(out, SortByProfit)
	return out
}

// AnalyzeMultiLeg backs one main selection and tries to cover its return with
// a single counter-leg taken from each related market on its own. The
// counter-leg is the first priced selection of the related market: the lay
// price on an exchange, the back price at a bookmaker. This is a narrow
// heuristic, not a cover-every-outcome solver.
func (a *Analyzer) AnalyzeMultiLeg(main Book, mainSelectionID string, related []Book, stake float64) []domain.HedgeOpportunity {
	sel, ok := main.Odds.Selection(mainSelectionID)
	if !ok {
		return nil
	}
	odds, ok := sel.Back()
	if !ok || !(stake > 0) {
		return nil
	}
	mainCommission := main.Commission
	if main.Kind == domain.VenueBookmaker {
		mainCommission = 0
	}
	mainReturn := stake * odds * (1 - mainCommission)

	var out []domain.HedgeOpportunity
	for _, rel := range related {
		leg, ok := firstCounterLeg(rel)
		if !ok {
			continue
		}
		required, minReturn, minProfit := coverReturn(mainReturn, stake, leg.odds, leg.commission)
		if round2(minProfit) <= 0 {
			continue
		}

		hedgeLeg := domain.BetLeg{
			Selection:   leg.sel.Name,
			Venue:       rel.Venue,
			MarketID:    rel.MarketID(),
			SelectionID: leg.sel.ID,
			Odds:        leg.odds,
			Stake:       round2(required),
		}
		out = append(out, domain.HedgeOpportunity{
			Type:             domain.HedgeMultiLeg,
			EventName:        main.EventName(),
			Competition:      main.competition(),
			RunnerName:       sel.Name,
			BackVenue:        main.Venue,
			BackExchange:     main.DisplayName(),
			BackMarketID:     main.MarketID(),
			BackSelectionID:  sel.ID,
			BackOdds:         odds,
			BackStake:        stake,
			BackCommission:   mainCommission,
			LayVenue:         "multiple",
			LayExchange:      "Multiple",
			LayStake:         round2(required),
			LayCommission:    leg.commission,
			Profit:           round2(minProfit),
			ProfitPercentage: round2(minProfit / stake * 100),
			LegCount:         2,
			OpposingSelections: []domain.BetLeg{
				{Selection: sel.Name, Venue: main.Venue, MarketID: main.MarketID(), SelectionID: sel.ID, Odds: odds, Stake: stake},
				hedgeLeg,
			},
			TotalLiability: round2(stake + required),
			MaxReturn:      round2(math.Max(mainReturn, minReturn)),
		})
	}
	SortOpportunities(out, SortByProfit)
	return out
}

type counterLeg struct {
	sel        domain.Selection
	odds       float64
	commission float64
}

func firstCounterLeg(b Book) (counterLeg, bool) {
	for _, s := range b.Odds.Selections {
		if b.Kind == domain.VenueExchange {
			if lay, ok := s.Lay(); ok {
				return counterLeg{sel: s, odds: lay, commission: b.Commission}, true
			}
			continue
		}
		if back, ok := s.Back(); ok {
			return counterLeg{sel: s, odds: back}, true
		}
	}
	return counterLeg{}, false
}

// FindOpportunities runs every enabled analyzer over a scan, keeps the
// opportunities at or above minProfitPct and ranks them by order.
func (a *Analyzer) FindOpportunities(scan Scan, stake, minProfitPct float64, include Include, order SortOrder) []domain.HedgeOpportunity {
	var all []domain.HedgeOpportunity

	if include.ExchangeInternal {
		for _, b := range scan.Books {
			if b.Kind == domain.VenueExchange {
				all = append(all, a.AnalyzeSameVenue(b, stake)...)
			}
		}
	}

	for _, p := range scan.Pairs {
		switch {
		case p.A.Kind == domain.VenueExchange && p.B.Kind == domain.VenueExchange:
			if include.CrossExchange && p.A.Venue != p.B.Venue {
				all = append(all, a.AnalyzeCrossVenue(p, stake)...)
			}
		case p.A.Kind == domain.VenueBookmaker && p.B.Kind == domain.VenueExchange:
			if include.BookmakerExchange {
				all = append(all, a.AnalyzeBookmakerVsVenue(p, stake)...)
			}
		case p.A.Kind == domain.VenueExchange && p.B.Kind == domain.VenueBookmaker:
			if include.BookmakerExchange {
				all = append(all, a.AnalyzeBookmakerVsVenue(p.swapped(), stake)...)
			}
		default:
			if include.BookmakerBookmaker && p.A.DisplayName() != p.B.DisplayName() {
				all = append(all, a.AnalyzeBookmakerVsBookmaker(p.A, p.B, OpposingSelections(p), stake)...)
			}
		}

		if include.MultiLeg {
			all = append(all, a.multiLeg(p, stake)...)
			all = append(all, a.multiLeg(p.swapped(), stake)...)
		}
	}

	out := all[:0]
	for _, o := range all {
		if o.ProfitPercentage >= minProfitPct {
			out = append(out, o)
		}
	}
	SortOpportunities(out, order)

	a.logger.Debug("opportunities analysed",
		slog.Int("books", len(scan.Books)),
		slog.Int("pairs", len(scan.Pairs)),
		slog.Int("found", len(all)),
		slog.Int("kept", len(out)),
	)
	return out
}

// multiLeg backs each matched selection of A and covers it with the matched
// selection on B. Only exchange counterparts are used since a bookmaker
// offers no lay side for the same outcome.
func (a *Analyzer) multiLeg(p Pair, stake float64) []domain.HedgeOpportunity {
	if p.B.Kind != domain.VenueExchange {
		return nil
	}
	var out []domain.HedgeOpportunity
	for _, m := range p.Selections {
		rel, ok := p.B.only(m.B)
		if !ok {
			continue
		}
		out = append(out, a.AnalyzeMultiLeg(p.A, m.A, []Book{rel}, stake)...)
	}
	return out
}

// SortOpportunities orders opps in place, best first. Ties keep their
// original order.
func SortOpportunities(opps []domain.HedgeOpportunity, order SortOrder) {
	slices.SortStableFunc(opps, func(x, y domain.HedgeOpportunity) int {
		if order == SortByProfitPercentage {
			return cmp.Compare(y.ProfitPercentage, x.ProfitPercentage)
		}
		return cmp.Compare(y.Profit, x.Profit)
	})
}
