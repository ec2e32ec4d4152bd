package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/hedge"
)

// Validation compares an opportunity's profit at discovery with its profit
// at current prices.
type Validation struct {
	OpportunityID      string                  `json:"opportunity_id"`
	Valid              bool                    `json:"valid"`
	Reason             string                  `json:"reason,omitempty"`
	OriginalProfit     float64                 `json:"original_profit"`
	CurrentProfit      float64                 `json:"current_profit"`
	CurrentBackOdds    float64                 `json:"current_back_odds"`
	CurrentCounterOdds float64                 `json:"current_counter_odds"`
	Opportunity        domain.HedgeOpportunity `json:"opportunity"`
	CheckedAt          time.Time               `json:"checked_at"`
}

// Opportunity looks a previously found opportunity up by id.
func (m *Manager) Opportunity(ctx context.Context, id string) (domain.HedgeOpportunity, error) {
	if m.cache == nil {
		return domain.HedgeOpportunity{}, fmt.Errorf("strategy: opportunity %s: %w", id, domain.ErrNotFound)
	}
	o, err := m.cache.GetOpportunity(ctx, id)
	if err != nil {
		return domain.HedgeOpportunity{}, fmt.Errorf("strategy: opportunity %s: %w", id, err)
	}
	return o, nil
}

// LiveOpportunities returns up to limit unexpired opportunities from the
// cache, newest first.
func (m *Manager) LiveOpportunities(ctx context.Context, limit int) ([]domain.HedgeOpportunity, error) {
	if m.cache == nil {
		return nil, nil
	}
	opps, err := m.cache.ListOpportunities(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("strategy: list opportunities: %w", err)
	}
	return opps, nil
}

// ValidateOpportunity re-fetches the current prices of both legs and
// recomputes the hedge. A venue failure is an error; a leg that is no longer
// priced makes the opportunity invalid.
func (m *Manager) ValidateOpportunity(ctx context.Context, id string) (Validation, error) {
	o, err := m.Opportunity(ctx, id)
	if err != nil {
		return Validation{}, err
	}

	backLeg, counterLeg := o.BackLeg(), o.CounterLeg()
	var backSnap, counterSnap domain.OddsSnapshot
	sameBook := backLeg.Venue == counterLeg.Venue && backLeg.MarketID == counterLeg.MarketID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.currentOdds(gctx, backLeg)
		backSnap = s
		return err
	})
	if !sameBook {
		g.Go(func() error {
			s, err := m.currentOdds(gctx, counterLeg)
			counterSnap = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Validation{}, fmt.Errorf("strategy: validate %s: %w", id, err)
	}
	if sameBook {
		counterSnap = backSnap
	}

	v := Validation{
		OpportunityID:  o.ID,
		OriginalProfit: o.Profit,
		Opportunity:    o,
		CheckedAt:      m.now().UTC(),
	}
	backSel, okBack := backSnap.Selection(backLeg.SelectionID)
	counterSel, okCounter := counterSnap.Selection(counterLeg.SelectionID)
	if !okBack || !okCounter {
		v.Reason = "selection no longer listed"
		return v, nil
	}
	v.CurrentBackOdds = backSel.BackOdds
	if o.CounterSide() == domain.SideBack {
		v.CurrentCounterOdds = counterSel.BackOdds
	} else {
		v.CurrentCounterOdds = counterSel.LayOdds
	}

	profit, ok := hedge.Revalue(o, backSel, counterSel)
	switch {
	case !ok:
		v.Reason = "leg no longer priced"
	case profit <= 0:
		v.CurrentProfit = profit
		v.Reason = "price moved"
	default:
		v.CurrentProfit = profit
		v.Valid = true
	}

	m.logger.InfoContext(ctx, "opportunity validated",
		slog.String("opportunity_id", id),
		slog.Bool("valid", v.Valid),
		slog.Float64("original_profit", v.OriginalProfit),
		slog.Float64("current_profit", v.CurrentProfit),
	)
	return v, nil
}

func (m *Manager) currentOdds(ctx context.Context, leg domain.BetLeg) (domain.OddsSnapshot, error) {
	v, err := m.venues.Get(leg.Venue)
	if err != nil {
		return domain.OddsSnapshot{}, err
	}
	fctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()
	return v.GetMarketOdds(fctx, leg.MarketID)
}
