// Package server exposes the hedge API over HTTP and a WebSocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/middleware"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// RateLimit is the per-client request budget per RateWindow. Zero, or a
	// nil limiter, disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Server is the hedge API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain: logging, CORS, auth, rate limit. hub and limiter may be nil.
func NewServer(cfg Config, hedge *handler.HedgeHandler, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, hedge, hub)

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// A find-opportunities scan can take most of a minute.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Routes registers the API on mux.
func Routes(mux *http.ServeMux, hedge *handler.HedgeHandler, hub *ws.Hub) {
	mux.HandleFunc("GET /api/health", handler.HealthCheck)

	mux.HandleFunc("GET /api/hedge/status", hedge.Status)
	mux.HandleFunc("POST /api/hedge/find-opportunities", hedge.FindOpportunities)
	mux.HandleFunc("GET /api/hedge/opportunities", hedge.Opportunities)
	mux.HandleFunc("POST /api/hedge/validate-opportunity", hedge.ValidateOpportunity)
	mux.HandleFunc("POST /api/hedge/execute", hedge.Execute)
	mux.HandleFunc("GET /api/hedge/execution-status/{id}", hedge.ExecutionStatus)
	mux.HandleFunc("GET /api/hedge/executions", hedge.Executions)
	mux.HandleFunc("POST /api/hedge/calculate", hedge.Calculate)
	mux.HandleFunc("POST /api/hedge/calculate-three-way", hedge.CalculateThreeWay)
	mux.HandleFunc("GET /api/hedge/three-way", hedge.ThreeWayScan)
	mux.HandleFunc("GET /api/hedge/history", hedge.History)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start listens until the server is shut down. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
