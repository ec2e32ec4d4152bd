package handler

import (
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/hedge"
)

type calculateRequest struct {
	BackOdds       float64 `json:"back_odds"`
	LayOdds        float64 `json:"lay_odds"`
	Stake          float64 `json:"stake"`
	BackCommission float64 `json:"back_commission"`
	LayCommission  float64 `json:"lay_commission"`
	Bookmaker      bool    `json:"bookmaker"`
}

type calculateResponse struct {
	calculateRequest
	hedge.Result
	Profitable bool `json:"profitable"`
}

// Calculate runs the two-leg formula on the given prices. A bookmaker back
// bet carries no commission.
// POST /api/hedge/calculate
func (h *HedgeHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bookmaker {
		req.BackCommission = 0
	}
	if req.BackCommission < 0 || req.BackCommission >= 1 || req.LayCommission < 0 || req.LayCommission >= 1 {
		writeError(w, http.StatusBadRequest, "commission must be in [0, 1)")
		return
	}

	var res hedge.Result
	var ok bool
	if req.Bookmaker {
		res, ok = hedge.CalculateBookmakerHedge(req.BackOdds, req.LayOdds, req.Stake, req.LayCommission)
	} else {
		res, ok = hedge.CalculateHedge(req.BackOdds, req.LayOdds, req.Stake, req.BackCommission, req.LayCommission)
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "lay odds must exceed 1.0 and back odds and stake must be positive")
		return
	}
	writeJSON(w, http.StatusOK, calculateResponse{calculateRequest: req, Result: res, Profitable: res.Profit > 0})
}

type threeWayOutcome struct {
	Name     string  `json:"name"`
	BackOdds float64 `json:"back_odds"`
	LayOdds  float64 `json:"lay_odds"`
}

type threeWayRequest struct {
	Outcomes  []threeWayOutcome `json:"outcomes"`
	BaseStake float64           `json:"base_stake"`
}

// CalculateThreeWay balances a back bet against lays of the two other
// outcomes of a 1X2 market.
// POST /api/hedge/calculate-three-way
func (h *HedgeHandler) CalculateThreeWay(w http.ResponseWriter, r *http.Request) {
	req := threeWayRequest{BaseStake: 100}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Outcomes) != 3 {
		writeError(w, http.StatusBadRequest, "exactly three outcomes are required")
		return
	}
	names := make([]string, 3)
	backs := make([]float64, 3)
	lays := make([]float64, 3)
	for i, o := range req.Outcomes {
		names[i], backs[i], lays[i] = o.Name, o.BackOdds, o.LayOdds
	}

	res, ok := h.manager.ThreeWay().Calculate(names, backs, lays, req.BaseStake)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"profitable": false,
			"reason":     "no back outcome yields a positive worst-case profit",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profitable": true, "result": res})
}

// ThreeWayScan runs the three-way calculator over the last cycle's exchange
// books.
// GET /api/hedge/three-way?base_stake=
func (h *HedgeHandler) ThreeWayScan(w http.ResponseWriter, r *http.Request) {
	base := floatQuery(r, "base_stake", 100)
	if !(base > 0) {
		writeError(w, http.StatusBadRequest, "base_stake must be positive")
		return
	}
	results := h.manager.FindThreeWayOpportunities(base)
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": results,
		"total_count":   len(results),
		"base_stake":    base,
	})
}
