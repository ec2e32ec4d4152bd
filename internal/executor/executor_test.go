package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func crossOpp() domain.HedgeOpportunity {
	return domain.HedgeOpportunity{
		ID:              "opp-1",
		Type:            domain.HedgeCrossExchange,
		EventName:       "Liverpool v Arsenal",
		RunnerName:      "Arsenal",
		BackVenue:       "betfair",
		BackExchange:    "Betfair",
		BackMarketID:    "1.1",
		BackSelectionID: "ars",
		BackOdds:        3.4,
		BackStake:       100,
		LayVenue:        "smarkets",
		LayExchange:     "Smarkets",
		LayMarketID:     "m1",
		LaySelectionID:  "c-ars",
		LayOdds:         3.0,
		LayStake:        112.93,
	}
}

// scriptedBackend fails the legs whose side is listed in fail and can block
// until release is closed.
type scriptedBackend struct {
	mu      sync.Mutex
	fail    map[domain.BetSide]bool
	placed  []domain.LegOrder
	started chan struct{}
	release chan struct{}
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) PlaceLeg(ctx context.Context, order domain.LegOrder) (domain.LegFill, error) {
	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	b.placed = append(b.placed, order)
	b.mu.Unlock()
	if b.fail[order.Side] {
		return domain.LegFill{}, errors.New("venue rejected bet")
	}
	return domain.LegFill{Order: order, Backend: "scripted", Reference: "ref-" + string(order.Side), Odds: order.Odds}, nil
}

type memStore struct {
	mu       sync.Mutex
	statuses []domain.ExecutionStatus
	recs     map[string]domain.Execution
}

func newMemStore() *memStore { return &memStore{recs: make(map[string]domain.Execution)} }

func (s *memStore) Upsert(_ context.Context, e domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, e.Status)
	s.recs[e.ID] = e
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.recs[id]
	if !ok {
		return domain.Execution{}, domain.ErrNotFound
	}
	return e, nil
}

func (s *memStore) ListRecent(_ context.Context, limit int) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Execution
	for _, e := range s.recs {
		out = append(out, e)
	}
	return out, nil
}

func TestExecuteHedgeBetStatuses(t *testing.T) {
	tests := []struct {
		name       string
		fail       map[domain.BetSide]bool
		wantStatus domain.ExecutionStatus
		wantPlaced int
	}{
		{"both legs", nil, domain.ExecCompleted, 2},
		{"lay rejected", map[domain.BetSide]bool{domain.SideLay: true}, domain.ExecPartiallyCompleted, 2},
		{"back rejected", map[domain.BetSide]bool{domain.SideBack: true}, domain.ExecFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedBackend{fail: tt.fail}
			store := newMemStore()
			e := New(Config{Backend: backend, Store: store}, testLogger())

			rec, err := e.ExecuteHedgeBet(context.Background(), crossOpp())
			if err != nil {
				t.Fatalf("ExecuteHedgeBet: %v", err)
			}
			if rec.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", rec.Status, tt.wantStatus)
			}
			if len(backend.placed) != tt.wantPlaced {
				t.Errorf("placed %d legs, want %d", len(backend.placed), tt.wantPlaced)
			}
			if rec.ID == "" || rec.OpportunityID != "opp-1" {
				t.Errorf("record ids = %q/%q", rec.ID, rec.OpportunityID)
			}
			if tt.wantStatus != domain.ExecCompleted && rec.Error == "" {
				t.Error("failed leg left no error")
			}

			want := []domain.ExecutionStatus{domain.ExecPending, domain.ExecInProgress, tt.wantStatus}
			if len(store.statuses) != len(want) {
				t.Fatalf("store saw %v, want %v", store.statuses, want)
			}
			for i := range want {
				if store.statuses[i] != want[i] {
					t.Errorf("transition %d = %s, want %s", i, store.statuses[i], want[i])
				}
			}

			got, err := e.Get(context.Background(), rec.ID)
			if err != nil || got.Status != tt.wantStatus {
				t.Errorf("Get = %+v, %v", got, err)
			}
		})
	}
}

func TestExecuteHedgeBetLegOrders(t *testing.T) {
	backend := &scriptedBackend{}
	e := New(Config{Backend: backend}, testLogger())
	if _, err := e.ExecuteHedgeBet(context.Background(), crossOpp()); err != nil {
		t.Fatal(err)
	}
	back, lay := backend.placed[0], backend.placed[1]
	if back.Side != domain.SideBack || back.Venue != "betfair" || back.Stake != 100 || back.Odds != 3.4 {
		t.Errorf("back order = %+v", back)
	}
	if lay.Side != domain.SideLay || lay.Venue != "smarkets" || lay.SelectionID != "c-ars" || lay.Stake != 112.93 {
		t.Errorf("lay order = %+v", lay)
	}
}

func TestExecuteHedgeBetBookmakerPairBacksBoth(t *testing.T) {
	opp := domain.HedgeOpportunity{
		ID:   "opp-bb",
		Type: domain.HedgeBookmakerBookmaker,
		OpposingSelections: []domain.BetLeg{
			{Selection: "Nadal", Venue: "oddsapi", MarketID: "ev_bet365", SelectionID: "Nadal", Odds: 2.2, Stake: 47.62},
			{Selection: "Federer", Venue: "oddsapi", MarketID: "ev_williamhill", SelectionID: "Federer", Odds: 2.1, Stake: 52.38},
		},
	}
	backend := &scriptedBackend{}
	e := New(Config{Backend: backend}, testLogger())
	rec, err := e.ExecuteHedgeBet(context.Background(), opp)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.ExecCompleted {
		t.Fatalf("status = %s", rec.Status)
	}
	for _, o := range backend.placed {
		if o.Side != domain.SideBack {
			t.Errorf("order %+v is not a back bet", o)
		}
	}
	if backend.placed[1].MarketID != "ev_williamhill" {
		t.Errorf("counter order = %+v", backend.placed[1])
	}
}

func TestExecuteHedgeBetRejectsConcurrentDuplicate(t *testing.T) {
	backend := &scriptedBackend{started: make(chan struct{}, 1), release: make(chan struct{})}
	e := New(Config{Backend: backend}, testLogger())

	done := make(chan domain.Execution)
	go func() {
		rec, _ := e.ExecuteHedgeBet(context.Background(), crossOpp())
		done <- rec
	}()
	<-backend.started

	if _, err := e.ExecuteHedgeBet(context.Background(), crossOpp()); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second execution err = %v, want ErrAlreadyExists", err)
	}
	close(backend.release)
	if rec := <-done; rec.Status != domain.ExecCompleted {
		t.Errorf("first execution status = %s", rec.Status)
	}

	if _, err := e.ExecuteHedgeBet(context.Background(), crossOpp()); err != nil {
		t.Errorf("execution after release: %v", err)
	}
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestExecuteHedgeBetLockHeldElsewhere(t *testing.T) {
	e := New(Config{Backend: &scriptedBackend{}, Locks: heldLocks{}}, testLogger())
	if _, err := e.ExecuteHedgeBet(context.Background(), crossOpp()); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetUnknown(t *testing.T) {
	e := New(Config{}, testLogger())
	if _, err := e.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	e = New(Config{Store: newMemStore()}, testLogger())
	if _, err := e.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("store err = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	e := New(Config{}, testLogger())
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	e.now = func() time.Time { return now }

	first, _ := e.ExecuteHedgeBet(context.Background(), crossOpp())
	now = base.Add(time.Minute)
	opp := crossOpp()
	opp.ID = "opp-2"
	second, _ := e.ExecuteHedgeBet(context.Background(), opp)

	list, err := e.List(context.Background(), 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = %s, %s", list[0].ID, list[1].ID)
	}

	now = base.Add(48 * time.Hour)
	e.prune()
	if list, _ := e.List(context.Background(), 10); len(list) != 0 {
		t.Errorf("pruned list = %+v", list)
	}
}

func TestDedupTTL(t *testing.T) {
	d := NewDedup(time.Minute)
	base := time.Now()
	now := base
	d.now = func() time.Time { return now }

	if !d.Claim("a") {
		t.Fatal("first claim refused")
	}
	if d.Claim("a") {
		t.Error("claim while in flight accepted")
	}
	d.Release("a")
	if d.Claim("a") {
		t.Error("claim within ttl accepted")
	}
	now = base.Add(2 * time.Minute)
	d.Cleanup()
	if !d.Claim("a") {
		t.Error("claim after ttl refused")
	}
}

type quoteVenue struct {
	snap domain.OddsSnapshot
}

func (v quoteVenue) Name() string               { return v.snap.Venue }
func (v quoteVenue) Kind() domain.VenueKind     { return domain.VenueExchange }
func (v quoteVenue) Commission() float64        { return 0 }
func (v quoteVenue) Ping(context.Context) error { return nil }
func (v quoteVenue) ListLiveMarkets(context.Context, []string) ([]domain.Market, error) {
	return nil, nil
}
func (v quoteVenue) GetMarketOdds(context.Context, string) (domain.OddsSnapshot, error) {
	return v.snap, nil
}

func TestAPIBackendTolerance(t *testing.T) {
	reg := strategy.NewRegistry()
	reg.Register(quoteVenue{snap: domain.OddsSnapshot{
		Venue:      "smarkets",
		MarketID:   "m1",
		Selections: []domain.Selection{{ID: "c-ars", Name: "Arsenal", BackOdds: 3.3, LayOdds: 3.05}},
	}})
	b := NewAPIBackend(reg, 0.02)

	tests := []struct {
		name    string
		order   domain.LegOrder
		wantErr error
		odds    float64
	}{
		{"lay within tolerance", domain.LegOrder{Venue: "smarkets", MarketID: "m1", SelectionID: "c-ars", Side: domain.SideLay, Odds: 3.0}, nil, 3.05},
		{"lay drifted", domain.LegOrder{Venue: "smarkets", MarketID: "m1", SelectionID: "c-ars", Side: domain.SideLay, Odds: 2.9}, domain.ErrPriceMoved, 0},
		{"back within tolerance", domain.LegOrder{Venue: "smarkets", MarketID: "m1", SelectionID: "c-ars", Side: domain.SideBack, Odds: 3.35}, nil, 3.3},
		{"back shortened", domain.LegOrder{Venue: "smarkets", MarketID: "m1", SelectionID: "c-ars", Side: domain.SideBack, Odds: 3.5}, domain.ErrPriceMoved, 0},
		{"selection gone", domain.LegOrder{Venue: "smarkets", MarketID: "m1", SelectionID: "c-liv", Side: domain.SideBack, Odds: 2}, domain.ErrOpportunityExpired, 0},
		{"unknown venue", domain.LegOrder{Venue: "matchbook", MarketID: "m1", SelectionID: "c-ars", Side: domain.SideBack, Odds: 2}, domain.ErrVenueUnavailable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill, err := b.PlaceLeg(context.Background(), tt.order)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlaceLeg: %v", err)
			}
			if fill.Odds != tt.odds {
				t.Errorf("fill odds = %v, want %v", fill.Odds, tt.odds)
			}
		})
	}
}

func TestBrowserBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req browserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Order.Selection == "Draw" {
			json.NewEncoder(w).Encode(browserResponse{Success: false, Message: "market suspended"})
			return
		}
		json.NewEncoder(w).Encode(browserResponse{Success: true, Reference: "B-77", Odds: 3.45})
	}))
	defer srv.Close()

	b := NewBrowserBackend(srv.URL, srv.Client())
	fill, err := b.PlaceLeg(context.Background(), domain.LegOrder{Selection: "Arsenal", Side: domain.SideBack, Odds: 3.4, Stake: 10})
	if err != nil {
		t.Fatalf("PlaceLeg: %v", err)
	}
	if fill.Reference != "B-77" || fill.Odds != 3.45 || fill.Backend != BackendBrowser {
		t.Errorf("fill = %+v", fill)
	}

	if _, err := b.PlaceLeg(context.Background(), domain.LegOrder{Selection: "Draw", Side: domain.SideBack, Odds: 3.4}); err == nil {
		t.Error("rejected leg returned no error")
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		cfg     BackendConfig
		want    string
		wantErr bool
	}{
		{BackendConfig{}, BackendSimulated, false},
		{BackendConfig{Kind: "api"}, BackendAPI, false},
		{BackendConfig{Kind: "browser"}, "", true},
		{BackendConfig{Kind: "browser", BrowserEndpoint: "http://localhost:9000/place"}, BackendBrowser, false},
		{BackendConfig{Kind: "carrier-pigeon"}, "", true},
	}
	for _, tt := range tests {
		b, err := NewBackend(tt.cfg, strategy.NewRegistry())
		if tt.wantErr {
			if err == nil {
				t.Errorf("%+v: expected error", tt.cfg)
			}
			continue
		}
		if err != nil || b.Name() != tt.want {
			t.Errorf("%+v: got %v, %v", tt.cfg, b, err)
		}
	}
}
