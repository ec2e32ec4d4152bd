// Package betfair is a client for the Betfair Exchange JSON-RPC betting API.
package betfair

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	DefaultLoginURL    = "https://identitysso-cert.betfair.com/api/certlogin"
	DefaultExchangeURL = "https://api.betfair.com/exchange/betting/json-rpc/v1"

	methodCatalogue = "SportsAPING/v1.0/listMarketCatalogue"
	methodBook      = "SportsAPING/v1.0/listMarketBook"
)

// Config holds Betfair credentials and listing parameters.
type Config struct {
	Username       string
	Password       string
	AppKey         string
	CertPath       string
	KeyPath        string
	LoginURL       string
	ExchangeURL    string
	Commission     float64
	EventTypeID    string
	CompetitionIDs []string
	InPlay         bool
	MaxResults     int

	// HTTPClient replaces the certificate-authenticated client. Tests use it
	// to talk to an httptest server.
	HTTPClient *http.Client
}

// Client implements the venue capability for Betfair. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	session string
	runners map[string]map[int64]string // market id -> selection id -> name
}

// New validates credentials, loads the client certificate and returns a
// client. The session is established lazily on first use.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" || cfg.AppKey == "" {
		return nil, fmt.Errorf("betfair: username, password and app key required: %w", domain.ErrMissingCredentials)
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.ExchangeURL == "" {
		cfg.ExchangeURL = DefaultExchangeURL
	}
	if cfg.EventTypeID == "" {
		cfg.EventTypeID = "1"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}

	hc := cfg.HTTPClient
	if hc == nil {
		if cfg.CertPath == "" || cfg.KeyPath == "" {
			return nil, fmt.Errorf("betfair: cert_path and key_path required: %w", domain.ErrMissingCredentials)
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("betfair: load client certificate: %w", err)
		}
		hc = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: hc,
		logger:     logger.With(slog.String("component", "betfair")),
		runners:    make(map[string]map[int64]string),
	}, nil
}

// Name returns the venue identifier.
func (c *Client) Name() string { return "betfair" }

// Kind reports that Betfair is an exchange.
func (c *Client) Kind() domain.VenueKind { return domain.VenueExchange }

// Commission returns the configured commission on net winnings.
func (c *Client) Commission() float64 { return c.cfg.Commission }

// Ping makes sure a session can be established.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// ListLiveMarkets returns the match-odds markets of the configured
// competitions. When competitions is non-empty, only markets whose
// competition name contains one of the entries (case-insensitive) are kept.
func (c *Client) ListLiveMarkets(ctx context.Context, competitions []string) ([]domain.Market, error) {
	params := catalogueParams{
		Filter: marketFilter{
			EventTypeIDs:    []string{c.cfg.EventTypeID},
			MarketTypeCodes: []string{"MATCH_ODDS"},
			CompetitionIDs:  c.cfg.CompetitionIDs,
		},
		MaxResults:       c.cfg.MaxResults,
		MarketProjection: []string{"COMPETITION", "EVENT", "EVENT_TYPE", "MARKET_START_TIME", "RUNNER_DESCRIPTION"},
	}
	if c.cfg.InPlay {
		inPlay := true
		params.Filter.InPlayOnly = &inPlay
	}

	var catalogue []MarketCatalogue
	if err := c.call(ctx, methodCatalogue, params, &catalogue); err != nil {
		return nil, fmt.Errorf("betfair: list markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(catalogue))
	for _, mc := range catalogue {
		if strings.Contains(strings.ToLower(mc.Event.Name), "test") {
			continue
		}
		if mc.Competition.Name == "" || strings.Contains(strings.ToLower(mc.Competition.Name), "unknown") {
			continue
		}
		if !competitionMatches(mc.Competition.Name, competitions) {
			continue
		}
		c.rememberRunners(mc)
		markets = append(markets, toDomainMarket(mc))
	}

	c.logger.InfoContext(ctx, "markets listed",
		slog.Int("catalogue", len(catalogue)),
		slog.Int("kept", len(markets)),
	)
	return markets, nil
}

// GetMarketOdds fetches the best back and lay price of every runner.
func (c *Client) GetMarketOdds(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	params := bookParams{
		MarketIDs:       []string{marketID},
		PriceProjection: priceProjection{PriceData: []string{"EX_BEST_OFFERS"}},
	}
	var books []MarketBook
	if err := c.call(ctx, methodBook, params, &books); err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("betfair: market book %s: %w", marketID, err)
	}
	if len(books) == 0 {
		return domain.OddsSnapshot{}, fmt.Errorf("betfair: market book %s: %w", marketID, domain.ErrNotFound)
	}

	names := c.runnerNames(ctx, marketID)
	book := books[0]
	snap := domain.OddsSnapshot{
		Venue:     c.Name(),
		MarketID:  marketID,
		FetchedAt: time.Now().UTC(),
	}
	for _, r := range book.Runners {
		id := strconv.FormatInt(r.SelectionID, 10)
		name, ok := names[r.SelectionID]
		if !ok {
			name = id
		}
		snap.Selections = append(snap.Selections, domain.Selection{
			ID:       id,
			Name:     name,
			BackOdds: bestPrice(r.Ex.AvailableToBack),
			LayOdds:  bestPrice(r.Ex.AvailableToLay),
		})
	}

	c.logger.DebugContext(ctx, "odds fetched",
		slog.String("market_id", marketID),
		slog.Int("runners", len(snap.Selections)),
	)
	return snap, nil
}

func (c *Client) rememberRunners(mc MarketCatalogue) {
	names := make(map[int64]string, len(mc.Runners))
	for _, r := range mc.Runners {
		names[r.SelectionID] = r.RunnerName
	}
	c.mu.Lock()
	c.runners[mc.MarketID] = names
	c.mu.Unlock()
}

// runnerNames returns the cached runner names of a market, looking the
// catalogue entry up once when the market was never listed.
func (c *Client) runnerNames(ctx context.Context, marketID string) map[int64]string {
	c.mu.Lock()
	names, ok := c.runners[marketID]
	c.mu.Unlock()
	if ok {
		return names
	}

	params := catalogueParams{
		Filter:           marketFilter{MarketIDs: []string{marketID}},
		MaxResults:       1,
		MarketProjection: []string{"RUNNER_DESCRIPTION"},
	}
	var catalogue []MarketCatalogue
	if err := c.call(ctx, methodCatalogue, params, &catalogue); err != nil || len(catalogue) == 0 {
		c.logger.WarnContext(ctx, "runner names unavailable", slog.String("market_id", marketID))
		return nil
	}
	c.rememberRunners(catalogue[0])
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runners[marketID]
}

func toDomainMarket(mc MarketCatalogue) domain.Market {
	m := domain.Market{
		Venue:       "betfair",
		ID:          mc.MarketID,
		EventName:   mc.Event.Name,
		Competition: mc.Competition.Name,
		MarketType:  mc.MarketName,
	}
	if m.MarketType == "" {
		m.MarketType = "Match Odds"
	}
	if t, err := time.Parse(time.RFC3339, mc.MarketStartTime); err == nil {
		m.StartTime = t.UTC()
	}
	return m
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
	token := c.session
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("betfair: create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.cfg.AppKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("betfair: login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("betfair: read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("betfair: login: HTTP %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", fmt.Errorf("betfair: decode login response: %w", err)
	}
	if lr.LoginStatus != "SUCCESS" || lr.SessionToken == "" {
		return "", fmt.Errorf("betfair: login status %s: %w", lr.LoginStatus, domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.session = lr.SessionToken
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "session established")
	return lr.SessionToken, nil
}

func (c *Client) dropSession(token string) {
	c.mu.Lock()
	if c.session == token {
		c.session = ""
	}
	c.mu.Unlock()
}

// call performs one JSON-RPC request, logging in again and retrying exactly
// once when the session has expired.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, token, method, params, out)
	if !errors.Is(err, domain.ErrAuthExpired) {
		return err
	}

	c.logger.WarnContext(ctx, "session expired, logging in again", slog.String("method", method))
	c.dropSession(token)
	if token, err = c.login(ctx); err != nil {
		return err
	}
	return c.do(ctx, token, method, params, out)
}

func (c *Client) do(ctx context.Context, token, method string, params, out any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ExchangeURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("X-Authentication", token)

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
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rr.Error != nil {
		code := rr.Error.errorCode()
		if code == "INVALID_SESSION_INFORMATION" || code == "NO_SESSION" {
			return fmt.Errorf("%s: %w", code, domain.ErrAuthExpired)
		}
		return fmt.Errorf("api error %d: %s", rr.Error.Code, code)
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
