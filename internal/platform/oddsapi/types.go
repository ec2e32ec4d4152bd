package oddsapi

// Event is one fixture returned by the /sports/{league}/odds endpoint.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime string      `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Bookmaker carries one bookmaker's markets for an event.
type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []Market `json:"markets"`
}

// Market is a bookmaker market such as h2h.
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Outcome is a priced outcome in decimal odds.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (e Event) h2h(bookmakerKey string) (Bookmaker, Market, bool) {
	for _, b := range e.Bookmakers {
		if b.Key != bookmakerKey {
			continue
		}
		for _, m := range b.Markets {
			if m.Key == "h2h" {
				return b, m, true
			}
		}
	}
	return Bookmaker{}, Market{}, false
}
