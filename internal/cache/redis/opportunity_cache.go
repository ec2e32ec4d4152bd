package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// OpportunityCache implements domain.OpportunityCache with one JSON string
// per opportunity and a recency index.
//
// Key schema:
//
//	hedgebot:opp:{id}      - JSON-encoded HedgeOpportunity, expires after ttl
//	hedgebot:opp:recent    - sorted set of ids scored by found time (unix ms)
type OpportunityCache struct {
	rdb *redis.Client
}

// NewOpportunityCache creates an OpportunityCache backed by the given Client.
func NewOpportunityCache(c *Client) *OpportunityCache {
	return &OpportunityCache{rdb: c.Underlying()}
}

func opportunityKey(id string) string { return keyPrefix + "opp:" + id }

const recentKey = keyPrefix + "opp:recent"

// PutOpportunities stores opps for ttl and indexes them by found time.
// Index entries older than ttl are pruned in the same transaction.
func (oc *OpportunityCache) PutOpportunities(ctx context.Context, opps []domain.HedgeOpportunity, ttl time.Duration) error {
	if len(opps) == 0 {
		return nil
	}
	pipe := oc.rdb.TxPipeline()
	for _, o := range opps {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("redis: marshal opportunity %s: %w", o.ID, err)
		}
		pipe.Set(ctx, opportunityKey(o.ID), data, ttl)
		pipe.ZAdd(ctx, recentKey, redis.Z{Score: float64(o.FoundAt.UnixMilli()), Member: o.ID})
	}
	pipe.ZRemRangeByScore(ctx, recentKey, "-inf", staleBound(time.Now(), ttl))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put %d opportunities: %w", len(opps), err)
	}
	return nil
}

// GetOpportunity returns domain.ErrNotFound once the opportunity expired.
func (oc *OpportunityCache) GetOpportunity(ctx context.Context, id string) (domain.HedgeOpportunity, error) {
	data, err := oc.rdb.Get(ctx, opportunityKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.HedgeOpportunity{}, domain.ErrNotFound
		}
		return domain.HedgeOpportunity{}, fmt.Errorf("redis: get opportunity %s: %w", id, err)
	}
	var o domain.HedgeOpportunity
	if err := json.Unmarshal(data, &o); err != nil {
		return domain.HedgeOpportunity{}, fmt.Errorf("redis: unmarshal opportunity %s: %w", id, err)
	}
	return o, nil
}

// ListOpportunities returns up to limit live opportunities, newest first.
func (oc *OpportunityCache) ListOpportunities(ctx context.Context, limit int) ([]domain.HedgeOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := oc.rdb.ZRevRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list opportunities: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = opportunityKey(id)
	}
	vals, err := oc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list opportunities: %w", err)
	}

	return decodeOpportunities(vals), nil
}

// staleBound is the exclusive ZREMRANGEBYSCORE upper bound for index
// entries found more than ttl before now.
func staleBound(now time.Time, ttl time.Duration) string {
	return fmt.Sprintf("(%d", now.Add(-ttl).UnixMilli())
}

// decodeOpportunities turns MGET replies into opportunities, skipping ids
// whose key expired (nil) or holds undecodable data.
func decodeOpportunities(vals []any) []domain.HedgeOpportunity {
	out := make([]domain.HedgeOpportunity, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var o domain.HedgeOpportunity
		if err := json.Unmarshal([]byte(s), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

var _ domain.OpportunityCache = (*OpportunityCache)(nil)
