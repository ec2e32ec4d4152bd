package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// The searchable fields are columns; the full record is kept as JSONB.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// InsertBatch inserts opportunities in a single batch. Ids already stored
// are skipped.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.HedgeOpportunity) error {
	if len(opps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO hedge_opportunities (
			id, hedge_type, event_name, competition, runner_name,
			back_venue, back_odds, back_stake,
			lay_venue, lay_odds, lay_stake,
			profit, profit_percentage, payload, found_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range opps {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("postgres: marshal opportunity %s: %w", o.ID, err)
		}
		batch.Queue(query,
			o.ID, string(o.Type), o.EventName, o.Competition, o.RunnerName,
			o.BackVenue, o.BackOdds, o.BackStake,
			o.LayVenue, o.LayOdds, o.LayStake,
			o.Profit, o.ProfitPercentage, payload, o.FoundAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns opportunities newest first, filtered by opts.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.HedgeOpportunity, error) {
	query, args := listRecentQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunityRows(rows)
}

// ListBefore returns every opportunity found strictly before the given time,
// oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.HedgeOpportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM hedge_opportunities WHERE found_at < $1 ORDER BY found_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before: %w", err)
	}
	defer rows.Close()
	return scanOpportunityRows(rows)
}

// DeleteBefore deletes opportunities found before the given time and returns
// the number removed.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hedge_opportunities WHERE found_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func listRecentQuery(opts domain.ListOpts) (string, []any) {
	query := `SELECT payload FROM hedge_opportunities WHERE TRUE`
	var args []any
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND hedge_type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND found_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND found_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY found_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

func scanOpportunityRows(rows pgx.Rows) ([]domain.HedgeOpportunity, error) {
	var out []domain.HedgeOpportunity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		var o domain.HedgeOpportunity
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("postgres: decode opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
