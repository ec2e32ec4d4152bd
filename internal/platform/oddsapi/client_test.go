package oddsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const eplOdds = `[{
  "id":"ev1","sport_key":"soccer_epl","commence_time":"2026-03-14T15:00:00Z",
  "home_team":"Liverpool","away_team":"Arsenal",
  "bookmakers":[
    {"key":"bet365","title":"Bet365","markets":[{"key":"h2h","outcomes":[
      {"name":"Liverpool","price":2.2},{"name":"Arsenal","price":3.4},{"name":"draw","price":3.5}]}]},
    {"key":"william_hill","title":"William Hill","markets":[{"key":"h2h","outcomes":[
      {"name":"Liverpool","price":2.1},{"name":"Arsenal","price":3.6},{"name":"Draw","price":3.3}]}]},
    {"key":"spreadonly","title":"Spread Only","markets":[{"key":"spreads","outcomes":[]}]}
  ]}]`

type fakeOddsAPI struct {
	hits atomic.Int32
}

func (f *fakeOddsAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sports/{league}/odds", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apiKey") != "key" || q.Get("markets") != "h2h" || q.Get("oddsFormat") != "decimal" || q.Get("regions") != "uk" {
			t.Errorf("unexpected query %v", q)
		}
		f.hits.Add(1)
		w.Header().Set("x-requests-remaining", "497")
		switch r.PathValue("league") {
		case "soccer_epl":
			_, _ = io.WriteString(w, eplOdds)
		case "soccer_england_championship":
			_, _ = io.WriteString(w, `[]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /sports", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `[{"key":"soccer_epl"}]`)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeOddsAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		APIKey:  "key",
		BaseURL: srv.URL,
		Leagues: map[string]string{
			"soccer_epl":                  "Premier League",
			"soccer_england_championship": "Championship",
		},
		CacheTTL:   time.Minute,
		HTTPClient: srv.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestSplitMarketID(t *testing.T) {
	tests := []struct {
		id        string
		event, bm string
		ok        bool
	}{
		{"ev1_bet365", "ev1", "bet365", true},
		{"ev1_william_hill", "ev1", "william_hill", true},
		{"ev1", "", "", false},
		{"_bet365", "", "", false},
		{"ev1_", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ev, bm, ok := SplitMarketID(tt.id)
			if ev != tt.event || bm != tt.bm || ok != tt.ok {
				t.Errorf("SplitMarketID(%q) = %q, %q, %v", tt.id, ev, bm, ok)
			}
		})
	}
}

func TestListLiveMarkets(t *testing.T) {
	f := &fakeOddsAPI{}
	c := newTestClient(t, f)

	markets, err := c.ListLiveMarkets(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2 (spreads-only bookmaker dropped)", len(markets))
	}
	m := markets[0]
	if m.ID != "ev1_bet365" || m.EventName != "Liverpool vs Arsenal" || m.Competition != "Premier League" ||
		m.Bookmaker != "Bet365" || m.MarketType != "Match Odds" || m.Venue != "oddsapi" {
		t.Errorf("market = %+v", m)
	}
	if !m.HasStartTime() {
		t.Error("start time missing")
	}
	if n := f.hits.Load(); n != 2 {
		t.Errorf("league downloads = %d, want 2", n)
	}

	filtered, err := c.ListLiveMarkets(context.Background(), []string{"Championship"})
	if err != nil {
		t.Fatalf("ListLiveMarkets filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("filtered = %+v, want none", filtered)
	}
}

func TestGetMarketOddsUsesLeagueCache(t *testing.T) {
	f := &fakeOddsAPI{}
	c := newTestClient(t, f)
	if _, err := c.ListLiveMarkets(context.Background(), []string{"Premier League"}); err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}
	before := f.hits.Load()

	snap, err := c.GetMarketOdds(context.Background(), "ev1_william_hill")
	if err != nil {
		t.Fatalf("GetMarketOdds: %v", err)
	}
	if f.hits.Load() != before {
		t.Errorf("odds lookup re-downloaded the league")
	}
	if snap.Bookmaker != "William Hill" || snap.Competition != "Premier League" || len(snap.Selections) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, s := range snap.Selections {
		if _, ok := s.Lay(); ok {
			t.Errorf("%s has a lay price on a bookmaker", s.Name)
		}
	}

	bet365, err := c.GetMarketOdds(context.Background(), "ev1_bet365")
	if err != nil {
		t.Fatalf("GetMarketOdds: %v", err)
	}
	draw, ok := bet365.Selection("Draw")
	if !ok || draw.BackOdds != 3.5 {
		t.Errorf("draw = %+v, %v; lowercase draw should be canonicalised", draw, ok)
	}
}

func TestGetMarketOddsRefreshesStaleCache(t *testing.T) {
	f := &fakeOddsAPI{}
	c := newTestClient(t, f)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	if _, err := c.GetMarketOdds(context.Background(), "ev1_bet365"); err != nil {
		t.Fatalf("cold lookup: %v", err)
	}
	cold := f.hits.Load()
	if cold == 0 {
		t.Fatal("cold lookup did not download")
	}

	now = base.Add(2 * time.Minute)
	if _, err := c.GetMarketOdds(context.Background(), "ev1_bet365"); err != nil {
		t.Fatalf("stale lookup: %v", err)
	}
	if got := f.hits.Load() - cold; got != 1 {
		t.Errorf("stale lookup downloads = %d, want 1 (only the event's league)", got)
	}
}

func TestGetMarketOddsUnknown(t *testing.T) {
	c := newTestClient(t, &fakeOddsAPI{})
	tests := []string{"nope", "ev9_bet365", "ev1_unknownbook"}
	for _, id := range tests {
		if _, err := c.GetMarketOdds(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetMarketOdds(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &fakeOddsAPI{})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
