package domain

import "time"

// VenueKind distinguishes peer-to-peer exchanges (back and lay) from
// fixed-odds bookmakers (back only).
type VenueKind string

const (
	VenueExchange  VenueKind = "exchange"
	VenueBookmaker VenueKind = "bookmaker"
)

// Market is one venue's listing of a real-world market. It is an immutable
// snapshot: venues re-fetch, never mutate in place.
type Market struct {
	Venue       string    `json:"venue"`
	ID          string    `json:"market_id"`
	EventName   string    `json:"event_name"`
	Competition string    `json:"competition"`
	StartTime   time.Time `json:"start_time"` // zero when the venue does not report one
	MarketType  string    `json:"market_type"`
	Bookmaker   string    `json:"bookmaker,omitempty"`
}

// HasStartTime reports whether the venue supplied a scheduled start.
func (m Market) HasStartTime() bool {
	return !m.StartTime.IsZero()
}

// Selection is one outcome (runner) inside a market. Odds values of 1.0 or
// below are invalid and are treated as absent.
type Selection struct {
	ID       string  `json:"selection_id"`
	Name     string  `json:"runner_name"`
	BackOdds float64 `json:"back_odds,omitempty"`
	LayOdds  float64 `json:"lay_odds,omitempty"`
}

// Back returns the best back price and whether it is present.
func (s Selection) Back() (float64, bool) {
	return s.BackOdds, s.BackOdds > 1.0
}

// Lay returns the best lay price and whether it is present.
func (s Selection) Lay() (float64, bool) {
	return s.LayOdds, s.LayOdds > 1.0
}

// OddsSnapshot is the price state of one market at fetch time.
type OddsSnapshot struct {
	Venue       string      `json:"venue"`
	MarketID    string      `json:"market_id"`
	EventName   string      `json:"event_name,omitempty"`
	Competition string      `json:"competition,omitempty"`
	Bookmaker   string      `json:"bookmaker,omitempty"`
	Selections  []Selection `json:"runners"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// Selection looks a runner up by its venue-local id.
func (o OddsSnapshot) Selection(id string) (Selection, bool) {
	for _, s := range o.Selections {
		if s.ID == id {
			return s, true
		}
	}
	return Selection{}, false
}

// MatchedMarket associates the markets (one per venue) that describe the same
// real-world market. Score is the match confidence in [0,1].
type MatchedMarket struct {
	Markets []Market `json:"markets"`
	Score   float64  `json:"similarity_score"`
}

// OddsKey addresses one entry of the per-cycle odds cache.
type OddsKey struct {
	Venue    string
	MarketID string
}
