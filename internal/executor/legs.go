package executor

import "github.com/alanyoungcy/hedgebot/internal/domain"

// legOrders splits an opportunity into the two orders placed for it, back
// leg first.
func legOrders(o domain.HedgeOpportunity) (back, counter domain.LegOrder) {
	b, c := o.BackLeg(), o.CounterLeg()
	back = domain.LegOrder{
		Venue:       b.Venue,
		MarketID:    b.MarketID,
		SelectionID: b.SelectionID,
		Selection:   b.Selection,
		Side:        domain.SideBack,
		Odds:        b.Odds,
		Stake:       b.Stake,
	}
	counter = domain.LegOrder{
		Venue:       c.Venue,
		MarketID:    c.MarketID,
		SelectionID: c.SelectionID,
		Selection:   c.Selection,
		Side:        o.CounterSide(),
		Odds:        c.Odds,
		Stake:       c.Stake,
	}
	return back, counter
}

// terminalStatus maps the outcome of both placements to a final status.
func terminalStatus(backPlaced, counterPlaced bool) domain.ExecutionStatus {
	switch {
	case backPlaced && counterPlaced:
		return domain.ExecCompleted
	case backPlaced || counterPlaced:
		return domain.ExecPartiallyCompleted
	default:
		return domain.ExecFailed
	}
}
