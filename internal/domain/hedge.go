package domain

import (
	"fmt"
	"time"
)

// HedgeType classifies how the legs of an opportunity are spread across venues.
type HedgeType string

const (
	HedgeExchangeInternal   HedgeType = "exchange_internal"
	HedgeCrossExchange      HedgeType = "cross_exchange"
	HedgeBookmakerExchange  HedgeType = "bookmaker_exchange"
	HedgeBookmakerBookmaker HedgeType = "bookmaker_bookmaker"
	HedgeMultiLeg           HedgeType = "multi_leg"
)

// AllHedgeTypes lists every hedge type in reporting order.
var AllHedgeTypes = []HedgeType{
	HedgeExchangeInternal,
	HedgeCrossExchange,
	HedgeBookmakerExchange,
	HedgeBookmakerBookmaker,
	HedgeMultiLeg,
}

// ParseHedgeType validates a hedge type name.
func ParseHedgeType(s string) (HedgeType, error) {
	for _, t := range AllHedgeTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("domain: unknown hedge type %q", s)
}

// BetLeg is one bet of a multi-bet opportunity.
type BetLeg struct {
	Selection   string  `json:"selection"`
	Venue       string  `json:"platform,omitempty"`
	MarketID    string  `json:"market_id,omitempty"`
	SelectionID string  `json:"selection_id,omitempty"`
	Odds        float64 `json:"odds"`
	Stake       float64 `json:"stake"`
}

// HedgeOpportunity is a profitable back/lay (or back/back) combination. It is
// created fresh on every analysis pass and never mutated afterwards, apart
// from the id and timestamp assigned when it is registered.
type HedgeOpportunity struct {
	ID          string    `json:"id"`
	Type        HedgeType `json:"hedge_type"`
	EventName   string    `json:"event_name"`
	Competition string    `json:"competition,omitempty"`
	RunnerName  string    `json:"runner_name"`

	BackVenue       string  `json:"back_platform"`
	BackExchange    string  `json:"back_exchange"`
	BackMarketID    string  `json:"back_market_id"`
	BackSelectionID string  `json:"back_selection_id"`
	BackOdds        float64 `json:"back_odds"`
	BackStake       float64 `json:"stake"`
	BackCommission  float64 `json:"back_commission"`

	LayVenue       string  `json:"lay_platform"`
	LayExchange    string  `json:"lay_exchange"`
	LayMarketID    string  `json:"lay_market_id"`
	LaySelectionID string  `json:"lay_selection_id"`
	LayOdds        float64 `json:"lay_odds"`
	LayStake       float64 `json:"lay_stake"`
	LayLiability   float64 `json:"lay_liability"`
	LayCommission  float64 `json:"lay_commission"`

	Profit           float64 `json:"profit"`
	ProfitPercentage float64 `json:"profit_percentage"`

	LegCount           int      `json:"leg_count"`
	OpposingSelections []BetLeg `json:"opposing_selections,omitempty"`
	TotalLiability     float64  `json:"total_liability,omitempty"`
	MaxReturn          float64  `json:"max_return,omitempty"`

	FoundAt time.Time `json:"found_at"`
}

// IsMultiLeg reports whether the opportunity is not a plain back/lay pair.
func (o HedgeOpportunity) IsMultiLeg() bool {
	return o.Type == HedgeBookmakerBookmaker || o.Type == HedgeMultiLeg
}

// BackLeg returns the backed selection.
func (o HedgeOpportunity) BackLeg() BetLeg {
	if o.IsMultiLeg() && len(o.OpposingSelections) > 0 {
		return o.OpposingSelections[0]
	}
	return BetLeg{
		Selection:   o.RunnerName,
		Venue:       o.BackVenue,
		MarketID:    o.BackMarketID,
		SelectionID: o.BackSelectionID,
		Odds:        o.BackOdds,
		Stake:       o.BackStake,
	}
}

// CounterLeg returns the bet covering the back leg: the lay leg, the
// opposing back bet, or for multi-leg hedges the chosen counter selection.
func (o HedgeOpportunity) CounterLeg() BetLeg {
	if o.IsMultiLeg() && len(o.OpposingSelections) > 1 {
		return o.OpposingSelections[1]
	}
	return BetLeg{
		Selection:   o.RunnerName,
		Venue:       o.LayVenue,
		MarketID:    o.LayMarketID,
		SelectionID: o.LaySelectionID,
		Odds:        o.LayOdds,
		Stake:       o.LayStake,
	}
}

// CounterSide is the side of the counter leg: a lay, except when two
// bookmakers are backed against each other.
func (o HedgeOpportunity) CounterSide() BetSide {
	if o.Type == HedgeBookmakerBookmaker {
		return SideBack
	}
	return SideLay
}

// Instructions renders the opportunity as a human-readable bet slip.
func (o HedgeOpportunity) Instructions() string {
	if o.Type == HedgeBookmakerBookmaker {
		return fmt.Sprintf("Place £%.2f on %s at %s with odds of %.2f, and £%.2f on the opposing outcome at %s with odds of %.2f",
			o.BackStake, o.RunnerName, o.BackExchange, o.BackOdds, o.LayStake, o.LayExchange, o.LayOdds)
	}
	return fmt.Sprintf("Place £%.2f back bet on %s at %s with odds of %.2f, and £%.2f lay bet at %s with odds of %.2f",
		o.BackStake, o.RunnerName, o.BackExchange, o.BackOdds, o.LayStake, o.LayExchange, o.LayOdds)
}

// ThreeWayLeg is one selection of a three-way hedge. ProfitIfWins is the
// hedge's net result when this selection is the winner.
type ThreeWayLeg struct {
	Name         string  `json:"selection"`
	Odds         float64 `json:"odds"`
	Stake        float64 `json:"stake"`
	ProfitIfWins float64 `json:"profit_if_wins"`
}

// ThreeWayHedgeResult backs one outcome of a 1X2 market and lays the other two.
type ThreeWayHedgeResult struct {
	Back ThreeWayLeg `json:"back"`
	Lay1 ThreeWayLeg `json:"lay1"`
	Lay2 ThreeWayLeg `json:"lay2"`

	Profit                float64 `json:"profit"`
	ROI                   float64 `json:"roi"`
	TotalStake            float64 `json:"total_stake"`
	ImpliedProbabilitySum float64 `json:"implied_probability_sum"`
	Overround             float64 `json:"overround"`

	Venue       string `json:"venue,omitempty"`
	EventName   string `json:"event_name,omitempty"`
	MarketID    string `json:"market_id,omitempty"`
	Competition string `json:"competition,omitempty"`
}
