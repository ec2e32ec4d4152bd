// Package hedge prices back/lay hedges and classifies the profitable ones by
// how their legs are spread across venues.
package hedge

import (
	"math"

	"github.com/shopspring/decimal"
)

// Result is the outcome of a two-leg back/lay calculation. Every field is
// rounded to two decimal places.
type Result struct {
	LayStake         float64 `json:"lay_stake"`
	LayLiability     float64 `json:"lay_liability"`
	ProfitIfBackWins float64 `json:"profit_if_back_wins"`
	ProfitIfLayWins  float64 `json:"profit_if_lay_wins"`
	Profit           float64 `json:"profit"`
	ProfitPercentage float64 `json:"profit_percentage"`
}

// CalculateHedge sizes the lay leg that balances a back bet of stake at
// backOdds and reports the guaranteed profit. Commission is charged on net
// winnings of each leg. It returns false when the inputs cannot be priced;
// a non-positive profit is still a valid result.
func CalculateHedge(backOdds, layOdds, stake, backCommission, layCommission float64) (Result, bool) {
	if !(backOdds > 0) || !(layOdds > 1) || !(stake > 0) {
		return Result{}, false
	}
	if math.IsInf(backOdds, 0) || math.IsInf(layOdds, 0) || math.IsInf(stake, 0) {
		return Result{}, false
	}

	backWinnings := stake * (backOdds - 1) * (1 - backCommission)
	layStake := stake * backOdds / layOdds
	liability := layStake * (layOdds - 1)
	ifBack := backWinnings - liability
	ifLay := layStake*(1-layCommission) - stake
	profit := math.Min(ifBack, ifLay)

	return Result{
		LayStake:         round2(layStake),
		LayLiability:     round2(liability),
		ProfitIfBackWins: round2(ifBack),
		ProfitIfLayWins:  round2(ifLay),
		Profit:           round2(profit),
		ProfitPercentage: round2(profit / stake * 100),
	}, true
}

// CalculateBookmakerHedge is CalculateHedge for a fixed-odds back bet, which
// carries no commission.
func CalculateBookmakerHedge(backOdds, layOdds, stake, layCommission float64) (Result, bool) {
	return CalculateHedge(backOdds, layOdds, stake, 0, layCommission)
}

func round2(v float64) float64 {
	return roundTo(v, 2)
}

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
