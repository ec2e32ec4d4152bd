package hedge

import (
	"math"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// splitBackBack divides total across two opposing back bets so that either
// winner returns the same amount.
func splitBackBack(o1, o2, total float64) (stake1, stake2, profit, maxReturn float64, ok bool) {
	if !(o1 > 1) || !(o2 > 1) || !(total > 0) {
		return 0, 0, 0, 0, false
	}
	stake1 = total * o2 / (o1 + o2)
	stake2 = total - stake1
	ret1 := stake1 * o1
	ret2 := stake2 * o2
	return stake1, stake2, math.Min(ret1, ret2) - total, math.Max(ret1, ret2), true
}

// coverReturn sizes a counter-leg so that it returns mainReturn, and reports
// the worst-case return and profit across both legs.
func coverReturn(mainReturn, stake, odds, commission float64) (required, minReturn, minProfit float64) {
	required = mainReturn / odds
	minReturn = math.Min(mainReturn, required*odds*(1-commission))
	return required, minReturn, minReturn - (stake + required)
}

// Revalue recomputes an opportunity's guaranteed profit from fresh prices of
// its two legs: back is the backed selection and counter the selection of
// the covering leg (domain.HedgeOpportunity.CounterLeg). ok is false when a
// required price is missing.
func Revalue(o domain.HedgeOpportunity, back, counter domain.Selection) (profit float64, ok bool) {
	backOdds, ok := back.Back()
	if !ok {
		return 0, false
	}

	switch o.Type {
	case domain.HedgeBookmakerBookmaker:
		o2, ok := counter.Back()
		if !ok {
			return 0, false
		}
		total := o.TotalLiability
		if total <= 0 {
			total = o.BackStake + o.LayStake
		}
		_, _, p, _, ok := splitBackBack(backOdds, o2, total)
		if !ok {
			return 0, false
		}
		return round2(p), true

	case domain.HedgeMultiLeg:
		lay, ok := counter.Lay()
		if !ok || !(o.BackStake > 0) {
			return 0, false
		}
		mainReturn := o.BackStake * backOdds * (1 - o.BackCommission)
		_, _, p := coverReturn(mainReturn, o.BackStake, lay, o.LayCommission)
		return round2(p), true

	default:
		lay, ok := counter.Lay()
		if !ok {
			return 0, false
		}
		r, ok := CalculateHedge(backOdds, lay, o.BackStake, o.BackCommission, o.LayCommission)
		if !ok {
			return 0, false
		}
		return r.Profit, true
	}
}
