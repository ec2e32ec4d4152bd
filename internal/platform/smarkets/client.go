// Package smarkets is a client for the Smarkets v3 REST API.
package smarkets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	DefaultBaseURL    = "https://api.smarkets.com/v3"
	DefaultSessionTTL = 23 * time.Hour

	limiterKey = "venue:smarkets"
)

// Limiter paces outgoing requests. The Redis sliding-window limiter and the
// local interval pacer both satisfy it.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Config holds Smarkets credentials and listing parameters.
type Config struct {
	Username   string
	Password   string
	AppKey     string
	BaseURL    string
	Commission float64

	// RequestInterval is the minimum spacing between requests when no
	// shared Limiter is configured.
	RequestInterval time.Duration
	SessionTTL      time.Duration

	MaxCompetitions         int
	MaxEventsPerCompetition int

	Limiter    Limiter
	HTTPClient *http.Client
}

// Client implements the venue capability for Smarkets. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    Limiter
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	loginAt   time.Time
	eventName map[string]string // market id -> event name
}

// New validates credentials and returns a client. The session is
// established lazily on first use.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smarkets: username and password required: %w", domain.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxCompetitions <= 0 {
		cfg.MaxCompetitions = 5
	}
	if cfg.MaxEventsPerCompetition <= 0 {
		cfg.MaxEventsPerCompetition = 10
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	lim := cfg.Limiter
	if lim == nil {
		lim = NewIntervalPacer(cfg.RequestInterval)
	}

	return &Client{
		cfg:        cfg,
		httpClient: hc,
		limiter:    lim,
		logger:     logger.With(slog.String("component", "smarkets")),
		now:        time.Now,
		eventName:  make(map[string]string),
	}, nil
}

// Name returns the venue identifier.
func (c *Client) Name() string { return "smarkets" }

// Kind reports that Smarkets is an exchange.
func (c *Client) Kind() domain.VenueKind { return domain.VenueExchange }

// Commission returns the configured commission on net winnings.
func (c *Client) Commission() float64 { return c.cfg.Commission }

// Ping makes sure a session can be established.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// ListLiveMarkets walks football competitions, their upcoming events and
// each event's match-result markets. When competitions is non-empty only
// competitions whose name contains one of the entries are visited.
func (c *Client) ListLiveMarkets(ctx context.Context, competitions []string) ([]domain.Market, error) {
	var comps eventsResponse
	q := url.Values{"type_name": {"competition"}, "sport_name": {"football"}}
	if err := c.request(ctx, http.MethodGet, "/events/", q, nil, &comps); err != nil {
		return nil, fmt.Errorf("smarkets: list competitions: %w", err)
	}

	var selected []Event
	for _, comp := range comps.Events {
		if !competitionMatches(comp.Name, competitions) {
			continue
		}
		selected = append(selected, comp)
		if len(selected) == c.cfg.MaxCompetitions {
			break
		}
	}

	var markets []domain.Market
	for _, comp := range selected {
		var events eventsResponse
		q := url.Values{"parent_id": {comp.ID}, "state": {"upcoming"}, "limit": {"100"}}
		if err := c.request(ctx, http.MethodGet, "/events/", q, nil, &events); err != nil {
			c.logger.WarnContext(ctx, "events unavailable",
				slog.String("competition", comp.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		evs := events.Events
		if len(evs) > c.cfg.MaxEventsPerCompetition {
			evs = evs[:c.cfg.MaxEventsPerCompetition]
		}
		for _, ev := range evs {
			var mr marketsResponse
			if err := c.request(ctx, http.MethodGet, "/events/"+url.PathEscape(ev.ID)+"/markets/", nil, nil, &mr); err != nil {
				c.logger.WarnContext(ctx, "markets unavailable",
					slog.String("event", ev.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			for _, m := range mr.Markets {
				if !isMatchResult(m.TypeName) {
					continue
				}
				c.mu.Lock()
				c.eventName[m.ID] = ev.Name
				c.mu.Unlock()
				markets = append(markets, toDomainMarket(m, ev, comp))
			}
		}
	}

	c.logger.InfoContext(ctx, "markets listed",
		slog.Int("competitions", len(selected)),
		slog.Int("markets", len(markets)),
	)
	return markets, nil
}

// GetMarketOdds fetches quotes and contract names for a market. The best
// back price is the highest buy quote and the best lay price the lowest
// sell quote.
func (c *Client) GetMarketOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	path := "/markets/" + url.PathEscape(marketID)

	var quotes quotesResponse
	if err := c.request(ctx, http.MethodGet, path+"/quotes/", nil, nil, &quotes); err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("smarkets: quotes %s: %w", marketID, err)
	}
	var contracts contractsResponse
	if err := c.request(ctx, http.MethodGet, path+"/contracts/", nil, nil, &contracts); err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("smarkets: contracts %s: %w", marketID, err)
	}
	if len(contracts.Contracts) == 0 {
		return domain.OddsSnapshot{}, fmt.Errorf("smarkets: contracts %s: %w", marketID, domain.ErrNotFound)
	}

	c.mu.Lock()
	event := c.eventName[marketID]
	c.mu.Unlock()

	snap := domain.OddsSnapshot{
		Venue:     c.Name(),
		MarketID:  marketID,
		EventName: event,
		FetchedAt: c.now().UTC(),
	}
	for _, ct := range contracts.Contracts {
		back, lay := bestQuotes(quotes.Quotes[ct.ID])
		snap.Selections = append(snap.Selections, domain.Selection{
			ID:       ct.ID,
			Name:     ct.Name,
			BackOdds: back,
			LayOdds:  lay,
		})
	}

	c.logger.DebugContext(ctx, "odds fetched",
		slog.String("market_id", marketID),
		slog.Int("contracts", len(snap.Selections)),
	)
	return snap, nil
}

// bestQuotes converts a contract's quote list into decimal back and lay
// prices. Missing sides are returned as 0.
func bestQuotes(qs []Quote) (back, lay float64) {
	for _, q := range qs {
		price := q.Price / 100
		switch q.Side {
		case "buy":
			if price > back {
				back = price
			}
		case "sell":
			if lay == 0 || price < lay {
				lay = price
			}
		}
	}
	return back, lay
}

func isMatchResult(typeName string) bool {
	switch strings.ToLower(typeName) {
	case "1x2", "winner":
		return true
	}
	return false
}

func toDomainMarket(m Market, ev, comp Event) domain.Market {
	dm := domain.Market{
		Venue:       "smarkets",
		ID:          m.ID,
		EventName:   ev.Name,
		Competition: comp.Name,
		MarketType:  m.TypeName,
	}
	if t, err := time.Parse(time.RFC3339, ev.StartDatetime); err == nil {
		dm.StartTime = t.UTC()
	}
	return dm
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
// Session and transport
// --------------------------------------------------------------------------

func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, at := c.token, c.loginAt
	c.mu.Unlock()
	if token != "" && c.now().Sub(at) < c.cfg.SessionTTL {
		return token, nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	var sr sessionResponse
	body := sessionRequest{Username: c.cfg.Username, Password: c.cfg.Password, AppKey: c.cfg.AppKey}
	if err := c.do(ctx, "", http.MethodPost, "/sessions/", nil, body, &sr); err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			err = domain.ErrUnauthorized
		}
		return "", fmt.Errorf("smarkets: login: %w", err)
	}
	if sr.Token == "" {
		return "", fmt.Errorf("smarkets: login returned no token: %w", domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.token = sr.Token
	c.loginAt = c.now()
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "session established")
	return sr.Token, nil
}

func (c *Client) dropSession(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

// request performs an authenticated call, logging in again and retrying
// exactly once on HTTP 401.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, token, method, path, query, in, out)
	if !errors.Is(err, domain.ErrAuthExpired) {
		return err
	}

	c.logger.WarnContext(ctx, "session rejected, logging in again", slog.String("path", path))
	c.dropSession(token)
	if token, err = c.login(ctx); err != nil {
		return err
	}
	return c.do(ctx, token, method, path, query, in, out)
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("HTTP 401: %w", domain.ErrAuthExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, er.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
