package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishOpportunities(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w, DefaultTopic, slog.New(slog.NewTextHandler(io.Discard, nil)))
	found := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	opps := []domain.HedgeOpportunity{
		{ID: "a", Type: domain.HedgeCrossExchange, EventName: "Liverpool v Arsenal", Profit: 9.79, FoundAt: found},
		{ID: "b", Type: domain.HedgeExchangeInternal, EventName: "Leeds v Hull", Profit: 1.2, FoundAt: found},
	}
	if err := p.PublishOpportunities(context.Background(), opps); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "Liverpool v Arsenal" || !m.Time.Equal(found) {
		t.Errorf("message key/time = %q %v", m.Key, m.Time)
	}
	var got domain.HedgeOpportunity
	if err := json.Unmarshal(m.Value, &got); err != nil || got.ID != "a" || got.Profit != 9.79 {
		t.Errorf("value = %+v, %v", got, err)
	}
	if len(m.Headers) != 2 || string(m.Headers[0].Value) != "cross_exchange" {
		t.Errorf("headers = %+v", m.Headers)
	}

	if err := p.PublishOpportunities(context.Background(), nil); err != nil || len(w.msgs) != 2 {
		t.Errorf("empty publish wrote messages: %v", err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Error("Close did not close the writer")
	}
}

func TestPublishOpportunitiesWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := newPublisher(&captureWriter{err: boom}, DefaultTopic, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.PublishOpportunities(context.Background(), []domain.HedgeOpportunity{{ID: "a"}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestNewPublisherNeedsBrokers(t *testing.T) {
	if _, err := NewPublisher(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error without brokers")
	}
}
