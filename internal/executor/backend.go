package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

// Backend names accepted by NewBackend.
const (
	BackendSimulated = "simulated"
	BackendAPI       = "api"
	BackendBrowser   = "browser"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Kind            string
	BrowserEndpoint string
	PriceTolerance  float64
	HTTPClient      *http.Client
}

// NewBackend builds the backend named by cfg.Kind.
func NewBackend(cfg BackendConfig, venues VenueLookup) (Backend, error) {
	switch cfg.Kind {
	case "", BackendSimulated:
		return NewSimulatedBackend(), nil
	case BackendAPI:
		if venues == nil {
			return nil, fmt.Errorf("executor: api backend needs a venue registry")
		}
		return NewAPIBackend(venues, cfg.PriceTolerance), nil
	case BackendBrowser:
		if cfg.BrowserEndpoint == "" {
			return nil, fmt.Errorf("executor: browser backend needs an endpoint")
		}
		return NewBrowserBackend(cfg.BrowserEndpoint, cfg.HTTPClient), nil
	default:
		return nil, fmt.Errorf("executor: unknown backend %q", cfg.Kind)
	}
}

// ---------------------------------------------------------------------------
// Simulated
// ---------------------------------------------------------------------------

// SimulatedBackend fills every leg immediately at the requested odds.
type SimulatedBackend struct {
	now func() time.Time
}

// NewSimulatedBackend returns a SimulatedBackend.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{now: time.Now}
}

func (b *SimulatedBackend) Name() string { return BackendSimulated }

func (b *SimulatedBackend) PlaceLeg(ctx context.Context, order domain.LegOrder) (domain.LegFill, error) {
	if err := ctx.Err(); err != nil {
		return domain.LegFill{}, err
	}
	return domain.LegFill{
		Order:     order,
		Backend:   BackendSimulated,
		Reference: "sim-" + uuid.New().String(),
		Odds:      order.Odds,
		PlacedAt:  b.now().UTC(),
	}, nil
}

// ---------------------------------------------------------------------------
// API re-quote
// ---------------------------------------------------------------------------

// VenueLookup resolves a venue by name.
type VenueLookup interface {
	Get(name string) (strategy.Venue, error)
}

// APIBackend re-quotes each leg through its venue and accepts it when the
// current price is no worse than the requested one by more than tolerance
// (a fraction, 0.02 = 2%). It does not route orders.
type APIBackend struct {
	venues    VenueLookup
	tolerance float64
	now       func() time.Time
}

// NewAPIBackend returns an APIBackend.
func NewAPIBackend(venues VenueLookup, tolerance float64) *APIBackend {
	return &APIBackend{venues: venues, tolerance: tolerance, now: time.Now}
}

func (b *APIBackend) Name() string { return BackendAPI }

func (b *APIBackend) PlaceLeg(ctx context.Context, order domain.LegOrder) (domain.LegFill, error) {
	v, err := b.venues.Get(order.Venue)
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: api: %w", err)
	}
	snap, err := v.GetMarketOdds(ctx, order.MarketID)
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: api: quote %s/%s: %w", order.Venue, order.MarketID, err)
	}
	sel, ok := snap.Selection(order.SelectionID)
	if !ok {
		return domain.LegFill{}, fmt.Errorf("executor: api: selection %s: %w", order.SelectionID, domain.ErrOpportunityExpired)
	}

	var price float64
	var priced, acceptable bool
	if order.Side == domain.SideLay {
		price, priced = sel.Lay()
		acceptable = price <= order.Odds*(1+b.tolerance)
	} else {
		price, priced = sel.Back()
		acceptable = price >= order.Odds*(1-b.tolerance)
	}
	if !priced {
		return domain.LegFill{}, fmt.Errorf("executor: api: %s %s unpriced: %w", order.Side, order.Selection, domain.ErrOpportunityExpired)
	}
	if !acceptable {
		return domain.LegFill{}, fmt.Errorf("executor: api: %s %s at %.2f, wanted %.2f: %w",
			order.Side, order.Selection, price, order.Odds, domain.ErrPriceMoved)
	}
	return domain.LegFill{
		Order:     order,
		Backend:   BackendAPI,
		Reference: "quote-" + uuid.New().String(),
		Odds:      price,
		Message:   fmt.Sprintf("re-quoted at %.2f", price),
		PlacedAt:  b.now().UTC(),
	}, nil
}

// ---------------------------------------------------------------------------
// Browser automation
// ---------------------------------------------------------------------------

type browserRequest struct {
	Order domain.LegOrder `json:"order"`
}

type browserResponse struct {
	Success   bool    `json:"success"`
	Reference string  `json:"bet_id"`
	Odds      float64 `json:"odds"`
	Message   string  `json:"message"`
}

// BrowserBackend hands each leg to an automation worker over HTTP.
type BrowserBackend struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// NewBrowserBackend returns a BrowserBackend posting to endpoint.
func NewBrowserBackend(endpoint string, hc *http.Client) *BrowserBackend {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &BrowserBackend{endpoint: endpoint, httpClient: hc, now: time.Now}
}

func (b *BrowserBackend) Name() string { return BackendBrowser }

func (b *BrowserBackend) PlaceLeg(ctx context.Context, order domain.LegOrder) (domain.LegFill, error) {
	body, err := json.Marshal(browserRequest{Order: order})
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: browser: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: browser: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: browser: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: browser: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return domain.LegFill{}, fmt.Errorf("executor: browser: status %d: %s", resp.StatusCode, string(data))
	}

	var out browserResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.LegFill{}, fmt.Errorf("executor: browser: decode: %w", err)
	}
	if !out.Success {
		return domain.LegFill{}, fmt.Errorf("executor: browser: rejected: %s", out.Message)
	}
	odds := out.Odds
	if odds == 0 {
		odds = order.Odds
	}
	return domain.LegFill{
		Order:     order,
		Backend:   BackendBrowser,
		Reference: out.Reference,
		Odds:      odds,
		Message:   out.Message,
		PlacedAt:  b.now().UTC(),
	}, nil
}
