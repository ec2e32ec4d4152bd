package betfair

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

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type fakeExchange struct {
	logins      atomic.Int32
	expireFirst atomic.Bool
	loginStatus string
	catalogue   string
	book        string
	lastAppKey  atomic.Value
	lastSession atomic.Value
	lastMethod  atomic.Value
}

func (f *fakeExchange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse login form: %v", err)
		}
		if r.Form.Get("username") != "user" || r.Form.Get("password") != "pass" {
			t.Errorf("unexpected login form %v", r.Form)
		}
		n := f.logins.Add(1)
		status := f.loginStatus
		if status == "" {
			status = "SUCCESS"
		}
		token := "tok-1"
		if n > 1 {
			token = "tok-2"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionToken": token, "loginStatus": status})
	})
	mux.HandleFunc("POST /rpc", func(w http.ResponseWriter, r *http.Request) {
		f.lastAppKey.Store(r.Header.Get("X-Application"))
		f.lastSession.Store(r.Header.Get("X-Authentication"))

		var req rpcRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode rpc: %v", err)
		}
		f.lastMethod.Store(req.Method)

		if f.expireFirst.CompareAndSwap(true, false) {
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32099,"message":"ANGX-0003","data":{"APINGException":{"errorCode":"INVALID_SESSION_INFORMATION"}}}}`)
			return
		}
		switch req.Method {
		case methodCatalogue:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":`+f.catalogue+`}`)
		case methodBook:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":`+f.book+`}`)
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	})
	return mux
}

const testCatalogue = `[
 {"marketId":"1.101","marketName":"Match Odds","marketStartTime":"2026-03-14T15:00:00.000Z",
  "competition":{"id":"31","name":"English Premier League"},"event":{"id":"9","name":"Liverpool v Arsenal"},
  "runners":[{"selectionId":11,"runnerName":"Liverpool"},{"selectionId":22,"runnerName":"Arsenal"},{"selectionId":58805,"runnerName":"The Draw"}]},
 {"marketId":"1.102","marketName":"Match Odds","competition":{"id":"33","name":"English Championship"},
  "event":{"id":"10","name":"Test Team v Other"},"runners":[]},
 {"marketId":"1.103","marketName":"Match Odds","competition":{"id":"0","name":"Unknown"},
  "event":{"id":"11","name":"Leeds v Hull"},"runners":[]},
 {"marketId":"1.104","marketName":"Match Odds","competition":{"id":"35","name":"English League 1"},
  "event":{"id":"12","name":"Wigan v Bolton"},"runners":[]}
]`

const testBook = `[{"marketId":"1.101","status":"OPEN","inplay":true,"runners":[
 {"selectionId":11,"status":"ACTIVE","ex":{"availableToBack":[{"price":2.1,"size":50},{"price":2.08,"size":10}],"availableToLay":[{"price":2.12,"size":30}]}},
 {"selectionId":22,"status":"ACTIVE","ex":{"availableToBack":[{"price":3.5,"size":5}],"availableToLay":[]}},
 {"selectionId":58805,"status":"ACTIVE","ex":{"availableToBack":[],"availableToLay":[{"price":3.4,"size":7}]}}
]}]`

func newTestClient(t *testing.T, f *fakeExchange) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Username:    "user",
		Password:    "pass",
		AppKey:      "app-key",
		LoginURL:    srv.URL + "/login",
		ExchangeURL: srv.URL + "/rpc",
		Commission:  0.05,
		HTTPClient:  srv.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Username: "user"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	_, err = New(Config{Username: "u", Password: "p", AppKey: "k"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("missing certificate: err = %v, want ErrMissingCredentials", err)
	}
}

func TestListLiveMarkets(t *testing.T) {
	f := &fakeExchange{catalogue: testCatalogue, book: testBook}
	c := newTestClient(t, f)

	markets, err := c.ListLiveMarkets(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2 (test and unknown dropped)", len(markets))
	}
	m := markets[0]
	if m.ID != "1.101" || m.EventName != "Liverpool v Arsenal" || m.Competition != "English Premier League" {
		t.Errorf("market = %+v", m)
	}
	if !m.HasStartTime() || m.StartTime.Hour() != 15 {
		t.Errorf("start time = %v", m.StartTime)
	}
	if markets[1].HasStartTime() {
		t.Errorf("market without start time should report none, got %v", markets[1].StartTime)
	}
	if got := f.lastAppKey.Load(); got != "app-key" {
		t.Errorf("X-Application = %v", got)
	}
	if got := f.lastSession.Load(); got != "tok-1" {
		t.Errorf("X-Authentication = %v", got)
	}

	filtered, err := c.ListLiveMarkets(context.Background(), []string{"premier league"})
	if err != nil {
		t.Fatalf("ListLiveMarkets filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "1.101" {
		t.Errorf("filtered = %+v", filtered)
	}
	if n := f.logins.Load(); n != 1 {
		t.Errorf("logins = %d, want 1", n)
	}
}

func TestGetMarketOdds(t *testing.T) {
	f := &fakeExchange{catalogue: testCatalogue, book: testBook}
	c := newTestClient(t, f)

	if _, err := c.ListLiveMarkets(context.Background(), nil); err != nil {
		t.Fatalf("ListLiveMarkets: %v", err)
	}
	snap, err := c.GetMarketOdds(context.Background(), "1.101")
	if err != nil {
		t.Fatalf("GetMarketOdds: %v", err)
	}
	if snap.Venue != "betfair" || snap.MarketID != "1.101" || len(snap.Selections) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	home := snap.Selections[0]
	if home.ID != "11" || home.Name != "Liverpool" || home.BackOdds != 2.1 || home.LayOdds != 2.12 {
		t.Errorf("home = %+v", home)
	}
	if _, ok := snap.Selections[1].Lay(); ok {
		t.Errorf("empty lay ladder should be absent, got %+v", snap.Selections[1])
	}
	if _, ok := snap.Selections[2].Back(); ok {
		t.Errorf("empty back ladder should be absent, got %+v", snap.Selections[2])
	}
	if snap.Selections[2].Name != "The Draw" {
		t.Errorf("draw name = %q", snap.Selections[2].Name)
	}
}

func TestGetMarketOddsLooksUpNamesForUnlistedMarket(t *testing.T) {
	f := &fakeExchange{catalogue: testCatalogue, book: testBook}
	c := newTestClient(t, f)

	snap, err := c.GetMarketOdds(context.Background(), "1.101")
	if err != nil {
		t.Fatalf("GetMarketOdds: %v", err)
	}
	if got := f.lastMethod.Load(); got != methodCatalogue {
		t.Errorf("last method = %v, want a catalogue lookup for names", got)
	}
	// The fake returns the whole catalogue; the first entry is 1.101.
	if snap.Selections[0].Name != "Liverpool" {
		t.Errorf("name = %q", snap.Selections[0].Name)
	}
}

func TestSessionExpiryRetriesOnce(t *testing.T) {
	f := &fakeExchange{catalogue: testCatalogue, book: testBook}
	c := newTestClient(t, f)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	f.expireFirst.Store(true)
	markets, err := c.ListLiveMarkets(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListLiveMarkets after expiry: %v", err)
	}
	if len(markets) != 2 {
		t.Errorf("got %d markets", len(markets))
	}
	if n := f.logins.Load(); n != 2 {
		t.Errorf("logins = %d, want 2", n)
	}
	if got := f.lastSession.Load(); got != "tok-2" {
		t.Errorf("retry used session %v, want tok-2", got)
	}
}

func TestLoginFailure(t *testing.T) {
	f := &fakeExchange{loginStatus: "INVALID_USERNAME_OR_PASSWORD"}
	c := newTestClient(t, f)
	err := c.Ping(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
