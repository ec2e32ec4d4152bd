package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

// ChannelExecutions carries every finished execution on the signal bus.
const ChannelExecutions = "ch:executions"

// HedgeDeps wires the hedge endpoints. History, Bus and Cycles are optional.
type HedgeDeps struct {
	Manager  *strategy.Manager
	Executor *executor.Executor
	History  domain.OpportunityStore
	Bus      domain.SignalBus
	Cycles   CycleReporter
	Mode     string

	// Checks report the health of backing services by name for the status endpoint.
	Checks map[string]func(context.Context) error
}

// HedgeHandler serves /api/hedge/*.
type HedgeHandler struct {
	manager  *strategy.Manager
	executor *executor.Executor
	history  domain.OpportunityStore
	bus      domain.SignalBus
	cycles   CycleReporter
	mode     string
	checks   map[string]func(context.Context) error
	logger   *slog.Logger
}

// NewHedgeHandler creates a HedgeHandler.
func NewHedgeHandler(deps HedgeDeps, logger *slog.Logger) *HedgeHandler {
	return &HedgeHandler{
		manager:  deps.Manager,
		executor: deps.Executor,
		history:  deps.History,
		bus:      deps.Bus,
		cycles:   deps.Cycles,
		mode:     deps.Mode,
		checks:   deps.Checks,
		logger:   logger.With(slog.String("handler", "hedge")),
	}
}

// opportunityView adds the bet slip text to an opportunity.
type opportunityView struct {
	domain.HedgeOpportunity
	Instructions string `json:"instructions"`
}

func viewsOf(opps []domain.HedgeOpportunity) []opportunityView {
	out := make([]opportunityView, len(opps))
	for i, o := range opps {
		out[i] = opportunityView{HedgeOpportunity: o, Instructions: o.Instructions()}
	}
	return out
}

type findResponse struct {
	Opportunities  []opportunityView    `json:"opportunities"`
	TotalCount     int                  `json:"total_count"`
	RequestParams  strategy.FindRequest `json:"request_params"`
	Outcome        domain.ScanOutcome   `json:"outcome"`
	Reason         string               `json:"reason,omitempty"`
	Venues         []domain.VenueReport `json:"venues"`
	MatchedMarkets int                  `json:"matched_markets"`
}

// FindOpportunities runs a scan with the request's parameters laid over the
// configured defaults. "Nothing found" is a 200 with an outcome and reason.
// POST /api/hedge/find-opportunities
func (h *HedgeHandler) FindOpportunities(w http.ResponseWriter, r *http.Request) {
	req := h.manager.NewFindRequest()
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case req.Stake < 0:
		writeError(w, http.StatusBadRequest, "stake must be positive")
		return
	case req.MinProfitPercentage < 0:
		writeError(w, http.StatusBadRequest, "min_profit_percentage must not be negative")
		return
	case req.MaxResults < 0:
		writeError(w, http.StatusBadRequest, "max_results must not be negative")
		return
	}

	res, err := h.manager.FindOptimalHedgeOpportunities(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, findResponse{
		Opportunities:  viewsOf(res.Opportunities),
		TotalCount:     len(res.Opportunities),
		RequestParams:  req,
		Outcome:        res.Outcome,
		Reason:         res.Reason,
		Venues:         res.Venues,
		MatchedMarkets: res.MatchedMarkets,
	})
}

// ValidateOpportunity re-prices a cached opportunity.
// POST /api/hedge/validate-opportunity?opportunity_id=
func (h *HedgeHandler) ValidateOpportunity(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("opportunity_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}
	v, err := h.manager.ValidateOpportunity(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type executeRequest struct {
	OpportunityID string `json:"opportunity_id"`
	Validated     bool   `json:"validated"`
}

type executeResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
	Details     domain.Execution       `json:"details"`
}

// Execute places both legs of a cached opportunity. With validated set the
// opportunity is re-priced first and refused when no longer profitable.
// POST /api/hedge/execute
func (h *HedgeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OpportunityID == "" {
		writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}

	opp, err := h.manager.Opportunity(r.Context(), req.OpportunityID)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	if req.Validated {
		v, err := h.manager.ValidateOpportunity(r.Context(), req.OpportunityID)
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		if !v.Valid {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":      "opportunity is no longer valid",
				"reason":     v.Reason,
				"validation": v,
			})
			return
		}
	}

	exec, err := h.executor.ExecuteHedgeBet(r.Context(), opp)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "opportunity is already being executed")
			return
		}
		h.logger.ErrorContext(r.Context(), "execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "execution failed")
		return
	}
	h.publishExecution(r, exec)
	writeJSON(w, http.StatusOK, executeResponse{ExecutionID: exec.ID, Status: exec.Status, Details: exec})
}

func (h *HedgeHandler) publishExecution(r *http.Request, exec domain.Execution) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": "execution", "execution": exec})
	if err == nil {
		err = h.bus.Publish(r.Context(), ChannelExecutions, payload)
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "execution publish failed", slog.String("error", err.Error()))
	}
}

// ExecutionStatus returns one execution record.
// GET /api/hedge/execution-status/{id}
func (h *HedgeHandler) ExecutionStatus(w http.ResponseWriter, r *http.Request) {
	exec, err := h.executor.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// History lists stored opportunities, newest first.
// GET /api/hedge/history?limit=&offset=&type=&since=
func (h *HedgeHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity history is not enabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opps, err := h.history.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": viewsOf(opps),
		"count":         len(opps),
		"limit":         opts.Limit,
		"offset":        opts.Offset,
	})
}

// Opportunities lists the opportunities still live in the cache, newest
// first.
// GET /api/hedge/opportunities?limit=
func (h *HedgeHandler) Opportunities(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opps, err := h.manager.LiveOpportunities(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "opportunity cache read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "opportunity cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": viewsOf(opps),
		"count":         len(opps),
	})
}

// writeLookupError maps unknown ids to 404 and venue failures to 502.
func (h *HedgeHandler) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// Executions lists recent executions, newest first.
// GET /api/hedge/executions?limit=
func (h *HedgeHandler) Executions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	execs, err := h.executor.List(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "execution list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "execution list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}
