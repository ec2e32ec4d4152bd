package domain

import (
	"context"
	"time"
)

// OpportunityCache keeps recently found opportunities addressable by id so
// that they can be validated and executed after the scan that found them.
type OpportunityCache interface {
	PutOpportunities(ctx context.Context, opps []HedgeOpportunity, ttl time.Duration) error
	GetOpportunity(ctx context.Context, id string) (HedgeOpportunity, error)
	ListOpportunities(ctx context.Context, limit int) ([]HedgeOpportunity, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
