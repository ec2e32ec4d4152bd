package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/pipeline"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

const pingTimeout = 5 * time.Second

// CycleReporter exposes the periodic scanner's last cycle.
type CycleReporter interface {
	LastCycle() (pipeline.Cycle, bool)
}

type statusResponse struct {
	Mode             string               `json:"mode"`
	Venues           []strategy.VenueInfo `json:"venues"`
	CacheCounts      map[string]int       `json:"cache_counts"`
	LastScan         *time.Time           `json:"last_scan,omitempty"`
	LastCycle        *pipeline.Cycle      `json:"last_cycle,omitempty"`
	ExecutionBackend string               `json:"execution_backend"`
	Services         map[string]string    `json:"services,omitempty"`
}

// Status reports venue connectivity, the odds cache and the last cycle.
// GET /api/hedge/status
func (h *HedgeHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:             h.mode,
		Venues:           h.manager.Venues().ListInfo(r.Context(), pingTimeout),
		CacheCounts:      h.manager.CacheCounts(),
		ExecutionBackend: h.executor.Backend(),
		Services:         h.serviceHealth(r.Context()),
	}
	if t := h.manager.LastScan(); !t.IsZero() {
		resp.LastScan = &t
	}
	if h.cycles != nil {
		if c, ok := h.cycles.LastCycle(); ok {
			resp.LastCycle = &c
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// serviceHealth runs every configured check, reporting "ok" or the error.
func (h *HedgeHandler) serviceHealth(ctx context.Context) map[string]string {
	if len(h.checks) == 0 {
		return nil
	}
	out := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := check(cctx); err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
		cancel()
	}
	return out
}
