package hedge

import (
	"cmp"
	"math"
	"slices"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ThreeWayOptions tunes the three-way calculator.
type ThreeWayOptions struct {
	Commission         float64 // charged on laid-outcome wins
	OverroundTolerance float64 // reject when the implied-probability sum exceeds 1 + tolerance
	MinProfit          float64
	MinROI             float64
}

// DefaultThreeWayOptions returns the stock three-way settings.
func DefaultThreeWayOptions() ThreeWayOptions {
	return ThreeWayOptions{
		Commission:         0.05,
		OverroundTolerance: 0.03,
		MinProfit:          1.0,
		MinROI:             1.0,
	}
}

// ThreeWayCalculator backs one outcome of a 1X2 market and lays the other two.
type ThreeWayCalculator struct {
	opts ThreeWayOptions
}

// NewThreeWayCalculator creates a calculator. A zero tolerance falls back to
// the default; a zero commission is honoured.
func NewThreeWayCalculator(opts ThreeWayOptions) *ThreeWayCalculator {
	if opts.OverroundTolerance <= 0 {
		opts.OverroundTolerance = DefaultThreeWayOptions().OverroundTolerance
	}
	return &ThreeWayCalculator{opts: opts}
}

// Options returns the effective options.
func (c *ThreeWayCalculator) Options() ThreeWayOptions {
	return c.opts
}

// Calculate tries each outcome as the backed leg and keeps the most
// profitable balanced allocation. It returns false unless there are exactly
// three outcomes with every price above 1.0 and at least one choice yields
// a positive worst-case profit.
func (c *ThreeWayCalculator) Calculate(names []string, backOdds, layOdds []float64, baseStake float64) (domain.ThreeWayHedgeResult, bool) {
	if len(names) != 3 || len(backOdds) != 3 || len(layOdds) != 3 || !(baseStake > 0) {
		return domain.ThreeWayHedgeResult{}, false
	}
	for i := 0; i < 3; i++ {
		if !(backOdds[i] > 1) || !(layOdds[i] > 1) || math.IsInf(backOdds[i], 0) || math.IsInf(layOdds[i], 0) {
			return domain.ThreeWayHedgeResult{}, false
		}
	}

	var best domain.ThreeWayHedgeResult
	found := false
	for i := 0; i < 3; i++ {
		j, k := (i+1)%3, (i+2)%3
		r, ok := c.balance(names[i], names[j], names[k], backOdds[i], layOdds[j], layOdds[k], baseStake)
		if ok && (!found || r.Profit > best.Profit) {
			best = r
			found = true
		}
	}
	return best, found
}

func (c *ThreeWayCalculator) balance(backName, lay1Name, lay2Name string, back, lay1, lay2, base float64) (domain.ThreeWayHedgeResult, bool) {
	probSum := 1/back + 1/lay1 + 1/lay2
	if probSum > 1+c.opts.OverroundTolerance {
		return domain.ThreeWayHedgeResult{}, false
	}

	backStake := base * (1 / back) / probSum
	backReturn := backStake * back
	layStake1 := backReturn / lay1
	layStake2 := backReturn / lay2
	liability1 := layStake1 * (lay1 - 1)
	liability2 := layStake2 * (lay2 - 1)

	ifBack := backStake*(back-1) - liability1 - liability2
	ifLay1 := (layStake1 - backStake - liability2) * (1 - c.opts.Commission)
	ifLay2 := (layStake2 - backStake - liability1) * (1 - c.opts.Commission)
	profit := math.Min(ifBack, math.Min(ifLay1, ifLay2))
	if profit <= 0 {
		return domain.ThreeWayHedgeResult{}, false
	}
	total := backStake + liability1 + liability2

	return domain.ThreeWayHedgeResult{
		Back:                  domain.ThreeWayLeg{Name: backName, Odds: back, Stake: round2(backStake), ProfitIfWins: round2(ifBack)},
		Lay1:                  domain.ThreeWayLeg{Name: lay1Name, Odds: lay1, Stake: round2(layStake1), ProfitIfWins: round2(ifLay1)},
		Lay2:                  domain.ThreeWayLeg{Name: lay2Name, Odds: lay2, Stake: round2(layStake2), ProfitIfWins: round2(ifLay2)},
		Profit:                round2(profit),
		ROI:                   round2(profit / total * 100),
		TotalStake:            round2(total),
		ImpliedProbabilitySum: roundTo(probSum, 4),
		Overround:             roundTo(probSum-1, 4),
	}, true
}

// FindOpportunities applies the calculator to an exchange snapshot with
// exactly three fully priced runners. A result is returned only when it
// meets both the minimum profit and the minimum ROI.
func (c *ThreeWayCalculator) FindOpportunities(snap domain.OddsSnapshot, baseStake float64) (domain.ThreeWayHedgeResult, bool) {
	if len(snap.Selections) != 3 {
		return domain.ThreeWayHedgeResult{}, false
	}
	names := make([]string, 3)
	back := make([]float64, 3)
	lay := make([]float64, 3)
	for i, s := range snap.Selections {
		b, okBack := s.Back()
		l, okLay := s.Lay()
		if !okBack || !okLay {
			return domain.ThreeWayHedgeResult{}, false
		}
		names[i], back[i], lay[i] = s.Name, b, l
	}

	r, ok := c.Calculate(names, back, lay, baseStake)
	if !ok || r.Profit < c.opts.MinProfit || r.ROI < c.opts.MinROI {
		return domain.ThreeWayHedgeResult{}, false
	}
	r.Venue = snap.Venue
	r.EventName = snap.EventName
	r.MarketID = snap.MarketID
	r.Competition = snap.Competition
	return r, true
}

// SortThreeWay orders results by profit, best first.
func SortThreeWay(rs []domain.ThreeWayHedgeResult) {
	slices.SortStableFunc(rs, func(x, y domain.ThreeWayHedgeResult) int {
		return cmp.Compare(y.Profit, x.Profit)
	})
}
