// Package oddsapi is a bookmaker price client for The Odds API (v4).
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const DefaultBaseURL = "https://api.the-odds-api.com/v4"

// DefaultLeagues maps Odds API sport keys to competition names.
func DefaultLeagues() map[string]string {
	return map[string]string{
		"soccer_epl":                   "Premier League",
		"soccer_england_championship":  "Championship",
		"soccer_fa_cup":                "FA Cup",
		"soccer_league_cup":            "EFL Cup",
		"soccer_england_league1":       "League One",
		"soccer_england_league2":       "League Two",
		"soccer_spl":                   "Scottish Premiership",
		"soccer_scotland_championship": "Scottish Championship",
		"soccer_scotland_league_one":   "Scottish League One",
		"soccer_scotland_league_two":   "Scottish League Two",
	}
}

// Config holds the API key and the leagues to scan.
type Config struct {
	APIKey     string
	BaseURL    string
	Regions    string
	Leagues    map[string]string
	Commission float64

	// CacheTTL bounds how long one league download serves odds lookups.
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

type cachedEvent struct {
	league    string
	event     Event
	fetchedAt time.Time
}

// Client implements the venue capability for bookmaker prices. Each
// (event, bookmaker) pair is exposed as one market. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	events map[string]cachedEvent // event id -> last download
}

// New validates the API key and returns a client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oddsapi: api key required: %w", domain.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Regions == "" {
		cfg.Regions = "uk"
	}
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = DefaultLeagues()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:        cfg,
		httpClient: hc,
		logger:     logger.With(slog.String("component", "oddsapi")),
		now:        time.Now,
		events:     make(map[string]cachedEvent),
	}, nil
}

// Name returns the venue identifier.
func (c *Client) Name() string { return "oddsapi" }

// Kind reports that this venue prices fixed-odds bookmakers.
func (c *Client) Kind() domain.VenueKind { return domain.VenueBookmaker }

// Commission returns the configured commission, normally zero.
func (c *Client) Commission() float64 { return c.cfg.Commission }

// Ping lists sports, which costs no request quota.
func (c *Client) Ping(ctx context.Context) error {
	var sports []json.RawMessage
	if err := c.get(ctx, "/sports", nil, &sports); err != nil {
		return fmt.Errorf("oddsapi: ping: %w", err)
	}
	return nil
}

// ListLiveMarkets downloads every configured league whose name matches the
// competition filter and returns one market per (event, bookmaker) pair
// offering head-to-head prices.
func (c *Client) ListLiveMarkets(ctx context.Context, competitions []string) ([]domain.Market, error) {
	var (
		markets []domain.Market
		failed  int
		lastErr error
	)
	leagues := c.leagueKeys(competitions)
	for _, league := range leagues {
		events, err := c.fetchLeague(ctx, league)
		if err != nil {
			failed++
			lastErr = err
			c.logger.WarnContext(ctx, "league unavailable",
				slog.String("league", league),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, ev := range events {
			for _, b := range ev.Bookmakers {
				if _, _, ok := ev.h2h(b.Key); !ok {
					continue
				}
				markets = append(markets, c.toDomainMarket(league, ev, b))
			}
		}
	}
	if failed > 0 && failed == len(leagues) {
		return nil, fmt.Errorf("oddsapi: list markets: %w", lastErr)
	}

	c.logger.InfoContext(ctx, "markets listed",
		slog.Int("leagues", len(leagues)),
		slog.Int("markets", len(markets)),
	)
	return markets, nil
}

// GetMarketOdds returns the bookmaker's head-to-head prices for one market.
// Lookups are served from the last league download while it is fresh.
func (c *Client) GetMarketOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	eventID, bookmakerKey, ok := SplitMarketID(marketID)
	if !ok {
		return domain.OddsSnapshot{}, fmt.Errorf("oddsapi: malformed market id %q: %w", marketID, domain.ErrNotFound)
	}

	ce, err := c.cachedEvent(ctx, eventID)
	if err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("oddsapi: odds %s: %w", marketID, err)
	}
	b, m, ok := ce.event.h2h(bookmakerKey)
	if !ok {
		return domain.OddsSnapshot{}, fmt.Errorf("oddsapi: odds %s: %w", marketID, domain.ErrNotFound)
	}

	snap := domain.OddsSnapshot{
		Venue:       c.Name(),
		MarketID:    marketID,
		EventName:   eventName(ce.event),
		Competition: c.cfg.Leagues[ce.league],
		Bookmaker:   b.Title,
		FetchedAt:   ce.fetchedAt,
	}
	for _, o := range m.Outcomes {
		name := canonicalOutcome(o.Name)
		snap.Selections = append(snap.Selections, domain.Selection{
			ID:       name,
			Name:     name,
			BackOdds: o.Price,
		})
	}
	return snap, nil
}

// SplitMarketID separates a "{eventId}_{bookmakerKey}" market id at the
// first underscore. Bookmaker keys may contain underscores themselves.
func SplitMarketID(marketID string) (eventID, bookmakerKey string, ok bool) {
	eventID, bookmakerKey, ok = strings.Cut(marketID, "_")
	if !ok || eventID == "" || bookmakerKey == "" {
		return "", "", false
	}
	return eventID, bookmakerKey, true
}

func (c *Client) cachedEvent(ctx context.Context, eventID string) (cachedEvent, error) {
	c.mu.Lock()
	ce, ok := c.events[eventID]
	c.mu.Unlock()
	if ok && c.now().Sub(ce.fetchedAt) < c.cfg.CacheTTL {
		return ce, nil
	}

	leagues := c.leagueKeys(nil)
	if ok {
		leagues = []string{ce.league}
	}
	for _, league := range leagues {
		events, err := c.fetchLeague(ctx, league)
		if err != nil {
			return cachedEvent{}, err
		}
		for _, ev := range events {
			if ev.ID == eventID {
				c.mu.Lock()
				defer c.mu.Unlock()
				return c.events[eventID], nil
			}
		}
	}
	return cachedEvent{}, domain.ErrNotFound
}

func (c *Client) fetchLeague(ctx context.Context, league string) ([]Event, error) {
	q := url.Values{
		"regions":    {c.cfg.Regions},
		"markets":    {"h2h"},
		"oddsFormat": {"decimal"},
		"dateFormat": {"iso"},
	}
	var events []Event
	if err := c.get(ctx, "/sports/"+url.PathEscape(league)+"/odds", q, &events); err != nil {
		return nil, err
	}

	now := c.now()
	c.mu.Lock()
	for _, ev := range events {
		c.events[ev.ID] = cachedEvent{league: league, event: ev, fetchedAt: now}
	}
	c.mu.Unlock()
	return events, nil
}

// leagueKeys returns the configured sport keys in a stable order, restricted
// to leagues whose name contains one of the competition filters.
func (c *Client) leagueKeys(competitions []string) []string {
	keys := make([]string, 0, len(c.cfg.Leagues))
	for key, name := range c.cfg.Leagues {
		if competitionMatches(name, competitions) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (c *Client) toDomainMarket(league string, ev Event, b Bookmaker) domain.Market {
	m := domain.Market{
		Venue:       c.Name(),
		ID:          ev.ID + "_" + b.Key,
		EventName:   eventName(ev),
		Competition: c.cfg.Leagues[league],
		MarketType:  "Match Odds",
		Bookmaker:   b.Title,
	}
	if t, err := time.Parse(time.RFC3339, ev.CommenceTime); err == nil {
		m.StartTime = t.UTC()
	}
	return m
}

func eventName(ev Event) string {
	return ev.HomeTeam + " vs " + ev.AwayTeam
}

func canonicalOutcome(name string) string {
	if strings.EqualFold(strings.TrimSpace(name), "draw") {
		return "Draw"
	}
	return name
}

func competitionMatches(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, f := range filter {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("x-requests-remaining"); remaining != "" {
		c.logger.DebugContext(ctx, "request quota",
			slog.String("path", path),
			slog.String("remaining", remaining),
			slog.String("used", resp.Header.Get("x-requests-used")),
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("HTTP 401: %w", domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
