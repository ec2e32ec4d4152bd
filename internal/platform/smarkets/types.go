package smarkets

// --------------------------------------------------------------------------
// Smarkets v3 API DTOs
// --------------------------------------------------------------------------

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AppKey   string `json:"app_key"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// Event is a Smarkets event or competition node.
type Event struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ParentID      string `json:"parent_id"`
	State         string `json:"state"`
	Type          string `json:"type"`
	StartDatetime string `json:"start_datetime"`
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

// Market is a Smarkets market inside an event.
type Market struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	EventID  string `json:"event_id"`
	TypeName string `json:"type_name"`
}

type marketsResponse struct {
	Markets []Market `json:"markets"`
}

// Quote is one price level on a contract. Side "buy" is the back side and
// "sell" the lay side; Price is the decimal price in hundredths.
type Quote struct {
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type quotesResponse struct {
	Quotes map[string][]Quote `json:"quotes"`
}

// Contract is one outcome of a market.
type Contract struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MarketID string `json:"market_id"`
}

type contractsResponse struct {
	Contracts []Contract `json:"contracts"`
}

type errorResponse struct {
	Error string `json:"error"`
	Data  any    `json:"data"`
}
