package hedge

import (
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/matcher"
)

// Book is one venue's priced market: the unit every analyzer works on.
type Book struct {
	Venue      string
	Kind       domain.VenueKind
	Commission float64
	Market     domain.Market
	Odds       domain.OddsSnapshot
}

// EventName prefers the name reported with the odds over the listing.
func (b Book) EventName() string {
	if b.Odds.EventName != "" {
		return b.Odds.EventName
	}
	return b.Market.EventName
}

// MarketID returns the venue-local market id.
func (b Book) MarketID() string {
	if b.Market.ID != "" {
		return b.Market.ID
	}
	return b.Odds.MarketID
}

// DisplayName is the name shown to a bettor: the bookmaker title for
// bookmaker books, otherwise the capitalised venue name.
func (b Book) DisplayName() string {
	if b.Market.Bookmaker != "" {
		return b.Market.Bookmaker
	}
	if b.Odds.Bookmaker != "" {
		return b.Odds.Bookmaker
	}
	if b.Venue == "" {
		return ""
	}
	return strings.ToUpper(b.Venue[:1]) + b.Venue[1:]
}

func (b Book) competition() string {
	if b.Market.Competition != "" {
		return b.Market.Competition
	}
	return b.Odds.Competition
}

// only returns a copy of b restricted to the selection with the given id.
func (b Book) only(selectionID string) (Book, bool) {
	sel, ok := b.Odds.Selection(selectionID)
	if !ok {
		return Book{}, false
	}
	out := b
	out.Odds.Selections = []domain.Selection{sel}
	return out, true
}

// Pair is a matched market across two venues with its resolved selection
// mapping. Selections map ids of A onto ids of B.
type Pair struct {
	A          Book
	B          Book
	Selections []matcher.SelectionPair
	Score      float64
}

func (p Pair) swapped() Pair {
	sel := make([]matcher.SelectionPair, len(p.Selections))
	for i, s := range p.Selections {
		sel[i] = matcher.SelectionPair{A: s.B, B: s.A}
	}
	return Pair{A: p.B, B: p.A, Selections: sel, Score: p.Score}
}

// Scan is the input of one analysis pass: every priced exchange book (for
// same-venue checks) and every matched pair.
type Scan struct {
	Books []Book
	Pairs []Pair
}
