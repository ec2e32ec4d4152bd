package domain

import "time"

// ExecutionStatus is the lifecycle state of a hedge execution.
type ExecutionStatus string

const (
	ExecPending            ExecutionStatus = "pending"
	ExecInProgress         ExecutionStatus = "in_progress"
	ExecCompleted          ExecutionStatus = "completed"
	ExecPartiallyCompleted ExecutionStatus = "partially_completed"
	ExecFailed             ExecutionStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecCompleted || s == ExecPartiallyCompleted || s == ExecFailed
}

// BetSide is the side of a single bet.
type BetSide string

const (
	SideBack BetSide = "back"
	SideLay  BetSide = "lay"
)

// LegOrder is what an execution backend is asked to place.
type LegOrder struct {
	Venue       string  `json:"venue"`
	MarketID    string  `json:"market_id"`
	SelectionID string  `json:"selection_id"`
	Selection   string  `json:"selection"`
	Side        BetSide `json:"side"`
	Odds        float64 `json:"odds"`
	Stake       float64 `json:"stake"`
}

// LegFill is a backend's report for one placed leg.
type LegFill struct {
	Order     LegOrder  `json:"order"`
	Backend   string    `json:"backend"`
	Reference string    `json:"reference"`
	Odds      float64   `json:"odds"`
	Message   string    `json:"message,omitempty"`
	PlacedAt  time.Time `json:"placed_at"`
}

// Execution tracks one attempt to place both legs of an opportunity.
type Execution struct {
	ID            string           `json:"execution_id"`
	OpportunityID string           `json:"opportunity_id"`
	Status        ExecutionStatus  `json:"status"`
	Opportunity   HedgeOpportunity `json:"opportunity"`
	BackLeg       *LegFill         `json:"back_bet"`
	LayLeg        *LegFill         `json:"lay_bet"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
