package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/middleware"
)

func TestServerChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(Config{Port: 8080, APIKey: "k"}, handler.NewHedgeHandler(handler.HedgeDeps{}, logger), nil, nil, logger)
	if s.Addr() != ":8080" {
		t.Errorf("addr = %q", s.Addr())
	}
	h := s.httpServer.Handler

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"health open", http.MethodGet, "/api/health", "", http.StatusOK},
		{"status needs key", http.MethodGet, "/api/hedge/status", "", http.StatusUnauthorized},
		{"wrong method", http.MethodGet, "/api/hedge/calculate", "k", http.StatusMethodNotAllowed},
		{"history disabled", http.MethodGet, "/api/hedge/history", "k", http.StatusServiceUnavailable},
		{"no ws without hub", http.MethodGet, "/ws", "k", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("request id missing")
			}
		})
	}
}
