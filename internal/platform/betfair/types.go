package betfair

import "encoding/json"

// --------------------------------------------------------------------------
// Betfair Exchange API DTOs
// --------------------------------------------------------------------------

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	LoginStatus  string `json:"loginStatus"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		APINGException struct {
			ErrorCode    string `json:"errorCode"`
			ErrorDetails string `json:"errorDetails"`
		} `json:"APINGException"`
	} `json:"data"`
}

func (e *rpcError) errorCode() string {
	if e.Data.APINGException.ErrorCode != "" {
		return e.Data.APINGException.ErrorCode
	}
	return e.Message
}

// marketFilter is the subset of the Betfair MarketFilter this client sends.
type marketFilter struct {
	EventTypeIDs    []string `json:"eventTypeIds,omitempty"`
	MarketTypeCodes []string `json:"marketTypeCodes,omitempty"`
	InPlayOnly      *bool    `json:"inPlayOnly,omitempty"`
	CompetitionIDs  []string `json:"competitionIds,omitempty"`
	MarketIDs       []string `json:"marketIds,omitempty"`
}

type catalogueParams struct {
	Filter           marketFilter `json:"filter"`
	MaxResults       int          `json:"maxResults"`
	MarketProjection []string     `json:"marketProjection"`
}

type bookParams struct {
	MarketIDs       []string        `json:"marketIds"`
	PriceProjection priceProjection `json:"priceProjection"`
}

type priceProjection struct {
	PriceData []string `json:"priceData"`
}

// MarketCatalogue is one entry of listMarketCatalogue.
type MarketCatalogue struct {
	MarketID        string `json:"marketId"`
	MarketName      string `json:"marketName"`
	MarketStartTime string `json:"marketStartTime"`
	Competition     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"competition"`
	Event struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"event"`
	Runners []RunnerCatalog `json:"runners"`
}

// RunnerCatalog describes one runner of a catalogue entry.
type RunnerCatalog struct {
	SelectionID int64  `json:"selectionId"`
	RunnerName  string `json:"runnerName"`
}

// MarketBook is one entry of listMarketBook.
type MarketBook struct {
	MarketID string       `json:"marketId"`
	Status   string       `json:"status"`
	InPlay   bool         `json:"inplay"`
	Runners  []RunnerBook `json:"runners"`
}

// RunnerBook carries a runner's best available prices.
type RunnerBook struct {
	SelectionID int64  `json:"selectionId"`
	Status      string `json:"status"`
	Ex          struct {
		AvailableToBack []PriceSize `json:"availableToBack"`
		AvailableToLay  []PriceSize `json:"availableToLay"`
	} `json:"ex"`
}

// PriceSize is a single price level.
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

func bestPrice(levels []PriceSize) float64 {
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Price
}
