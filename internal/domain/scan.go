package domain

import "time"

// ScanOutcome lets callers tell "nothing profitable" apart from "degraded".
type ScanOutcome string

const (
	ScanOK              ScanOutcome = "ok"
	ScanNoOpportunities ScanOutcome = "no_opportunities"
	ScanDegraded        ScanOutcome = "degraded"
)

// VenueReport summarises what one venue contributed to a cycle.
type VenueReport struct {
	Venue       string `json:"venue"`
	Markets     int    `json:"markets"`
	OddsFetched int    `json:"odds_fetched"`
	OddsFailed  int    `json:"odds_failed"`
	Error       string `json:"error,omitempty"`
}

// ScanResult is the outcome of one full pipeline run.
type ScanResult struct {
	Opportunities  []HedgeOpportunity `json:"opportunities"`
	Outcome        ScanOutcome        `json:"outcome"`
	Reason         string             `json:"reason,omitempty"`
	Venues         []VenueReport      `json:"venues"`
	MatchedMarkets int                `json:"matched_markets"`
	Collisions     int                `json:"selection_collisions"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}
