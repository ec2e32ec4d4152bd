package smarkets

import (
	"context"
	"encoding/json"
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

type noWait struct{ calls atomic.Int32 }

func (n *noWait) Wait(ctx context.Context, key string) error {
	n.calls.Add(1)
	return ctx.Err()
}

type fakeSmarkets struct {
	sessions    atomic.Int32
	rejectFirst atomic.Bool
	denyLogin   bool
	lastAuth    atomic.Value
}

func (f *fakeSmarkets) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/", func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode session request: %v", err)
		}
		if f.denyLogin {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"INVALID_CREDENTIALS"}`)
			return
		}
		if req.Username != "user" || req.Password != "pass" || req.AppKey != "app" {
			t.Errorf("unexpected session request %+v", req)
		}
		n := f.sessions.Add(1)
		token := "tok-1"
		if n > 1 {
			token = "tok-2"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.lastAuth.Store(r.Header.Get("Authorization"))
			if f.rejectFirst.CompareAndSwap(true, false) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /events/", authed(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("type_name") == "competition":
			if q.Get("sport_name") != "football" {
				t.Errorf("sport_name = %q", q.Get("sport_name"))
			}
			_, _ = io.WriteString(w, `{"events":[
				{"id":"c1","name":"Premier League","type":"football_competition"},
				{"id":"c2","name":"La Liga","type":"football_competition"}]}`)
		case q.Get("parent_id") == "c1":
			if q.Get("state") != "upcoming" {
				t.Errorf("state = %q", q.Get("state"))
			}
			_, _ = io.WriteString(w, `{"events":[
				{"id":"e1","name":"Liverpool vs Arsenal","parent_id":"c1","start_datetime":"2026-03-14T15:00:00Z"}]}`)
		case q.Get("parent_id") == "c2":
			_, _ = io.WriteString(w, `{"events":[
				{"id":"e2","name":"Sevilla vs Betis","parent_id":"c2","start_datetime":"2026-03-14T20:00:00Z"}]}`)
		default:
			t.Errorf("unexpected events query %v", q)
		}
	}))
	mux.HandleFunc("GET /events/{id}/markets/", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "e1":
			_, _ = io.WriteString(w, `{"markets":[
				{"id":"m1","name":"Full-time result","event_id":"e1","type_name":"1x2"},
				{"id":"m9","name":"Over/under 2.5","event_id":"e1","type_name":"over_under"}]}`)
		case "e2":
			_, _ = io.WriteString(w, `{"markets":[{"id":"m2","name":"Winner","event_id":"e2","type_name":"winner"}]}`)
		}
	}))
	mux.HandleFunc("GET /markets/{id}/quotes/", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"quotes":{
			"k1":[{"side":"buy","price":210,"quantity":5},{"side":"buy","price":208,"quantity":9},
			      {"side":"sell","price":216,"quantity":3},{"side":"sell","price":212,"quantity":4}],
			"k2":[{"side":"buy","price":350,"quantity":2}]}}`)
	}))
	mux.HandleFunc("GET /markets/{id}/contracts/", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			_, _ = io.WriteString(w, `{"contracts":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"contracts":[
			{"id":"k1","name":"Liverpool"},{"id":"k2","name":"Arsenal"},{"id":"k3","name":"Draw"}]}`)
	}))
	return mux
}

func newTestClient(t *testing.T, f *fakeSmarkets) (*Client, *noWait) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	lim := &noWait{}
	c, err := New(Config{
		Username:   "user",
		Password:   "pass",
		AppKey:     "app",
		BaseURL:    srv.URL,
		Commission: 0.02,
		Limiter:    lim,
		HTTPClient: srv.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, lim
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Username: "user"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestListLiveMarkets(t *testing.T) {
	f := &fakeSmarkets{}
	c, lim := newTestClient(t, f)

	markets, err := c.ListLiveMarkets(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2 (over/under dropped): %+v", len(markets), markets)
	}
	m := markets[0]
	if m.ID != "m1" || m.EventName != "Liverpool vs Arsenal" || m.Competition != "Premier League" || m.MarketType != "1x2" {
		t.Errorf("market = %+v", m)
	}
	if m.StartTime.Hour() != 15 {
		t.Errorf("start = %v", m.StartTime)
	}
	if got := f.lastAuth.Load(); got != "Token tok-1" {
		t.Errorf("Authorization = %v", got)
	}
	if lim.calls.Load() == 0 {
		t.Error("requests were not paced")
	}

	filtered, err := c.ListLiveMarkets(context.Background(), []string{"premier"})
	if err != nil {
		t.Fatalf("ListLiveMarkets filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "m1" {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestGetMarketOdds(t *testing.T) {
	f := &fakeSmarkets{}
	c, _ := newTestClient(t, f)
	if _, err := c.ListLiveMarkets(context.Background(), nil); err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}

	snap, err := c.GetMarketOdds(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMarketOdds: %v", err)
	}
	if snap.Venue != "smarkets" || snap.EventName != "Liverpool vs Arsenal" || len(snap.Selections) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	home := snap.Selections[0]
	if home.Name != "Liverpool" || home.BackOdds != 2.1 || home.LayOdds != 2.12 {
		t.Errorf("home = %+v, want back 2.1 lay 2.12", home)
	}
	away := snap.Selections[1]
	if away.BackOdds != 3.5 {
		t.Errorf("away back = %v", away.BackOdds)
	}
	if _, ok := away.Lay(); ok {
		t.Errorf("away lay should be absent, got %v", away.LayOdds)
	}
	if _, ok := snap.Selections[2].Back(); ok {
		t.Errorf("unquoted contract should have no back price")
	}

	_, err = c.GetMarketOdds(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("empty contracts: err = %v, want ErrNotFound", err)
	}
}

func TestUnauthorizedRetriesOnce(t *testing.T) {
	f := &fakeSmarkets{}
	c, _ := newTestClient(t, f)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	f.rejectFirst.Store(true)
	if _, err := c.GetMarketOdds(context.Background(), "m1"); err != nil {
		t.Fatalf("GetMarketOdds after 401: %v", err)
	}
	if n := f.sessions.Load(); n != 2 {
		t.Errorf("sessions = %d, want 2", n)
	}
	if got := f.lastAuth.Load(); got != "Token tok-2" {
		t.Errorf("retry used %v, want Token tok-2", got)
	}
}

func TestSessionRefreshedAfterTTL(t *testing.T) {
	f := &fakeSmarkets{}
	c, _ := newTestClient(t, f)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	now = base.Add(22 * time.Hour)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if n := f.sessions.Load(); n != 1 {
		t.Errorf("sessions within ttl = %d, want 1", n)
	}
	now = base.Add(24 * time.Hour)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if n := f.sessions.Load(); n != 2 {
		t.Errorf("sessions after ttl = %d, want 2", n)
	}
}

func TestLoginRejected(t *testing.T) {
	f := &fakeSmarkets{denyLogin: true}
	c, _ := newTestClient(t, f)
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestIntervalPacer(t *testing.T) {
	p := NewIntervalPacer(20 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background(), "k"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three calls took %v, want at least 40ms", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewIntervalPacer(time.Hour)
	_ = slow.Wait(context.Background(), "k")
	if err := slow.Wait(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait: err = %v", err)
	}
}
