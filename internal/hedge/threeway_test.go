package hedge

import (
	"math"
	"testing"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestThreeWayCalculate(t *testing.T) {
	names := []string{"Home", "Draw", "Away"}
	back := []float64{200, 2.0, 1.96}
	lay := []float64{210, 2.0, 1.96}

	t.Run("without commission every outcome pays the same", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{Commission: 0, OverroundTolerance: 0.03})
		r, ok := c.Calculate(names, back, lay, 100)
		if !ok {
			t.Fatal("expected a result")
		}
		if r.Back.Name != "Home" || r.Lay1.Name != "Draw" || r.Lay2.Name != "Away" {
			t.Errorf("legs = %s/%s/%s", r.Back.Name, r.Lay1.Name, r.Lay2.Name)
		}
		approx(t, "profit", r.Profit, 0.51)
		approx(t, "back stake", r.Back.Stake, 0.49)
		approx(t, "lay1 stake", r.Lay1.Stake, 49.25)
		approx(t, "lay2 stake", r.Lay2.Stake, 50.26)
		approx(t, "total stake", r.TotalStake, 97.99)
		approx(t, "roi", r.ROI, 0.52)
		approx(t, "implied probability sum", r.ImpliedProbabilitySum, 1.0152)
		approx(t, "overround", r.Overround, 0.0152)

		for _, leg := range []domain.ThreeWayLeg{r.Lay1, r.Lay2} {
			if math.Abs(leg.ProfitIfWins-r.Back.ProfitIfWins) > 0.011 {
				t.Errorf("%s pays %.2f, back pays %.2f", leg.Name, leg.ProfitIfWins, r.Back.ProfitIfWins)
			}
		}

		// Every outcome nets backStake * (b/l1 + b/l2 - b - 1).
		b, l1, l2 := 200.0, 2.0, 1.96
		backStake := 100 * (1 / b) / (1/b + 1/l1 + 1/l2)
		if want := backStake * (b/l1 + b/l2 - b - 1); math.Abs(r.Back.ProfitIfWins-want) > 0.006 {
			t.Errorf("profit if back wins = %.2f, want %.4f", r.Back.ProfitIfWins, want)
		}
	})

	t.Run("commission only reduces the laid outcomes", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{Commission: 0.05})
		r, ok := c.Calculate(names, back, lay, 100)
		if !ok {
			t.Fatal("expected a result")
		}
		home := r.Back.ProfitIfWins
		for _, laid := range []domain.ThreeWayLeg{r.Lay1, r.Lay2} {
			if math.Abs(laid.ProfitIfWins-home*0.95) > 0.011 {
				t.Errorf("%s pays %.2f, want %.2f", laid.Name, laid.ProfitIfWins, home*0.95)
			}
		}
		approx(t, "profit", r.Profit, 0.49)
	})

	t.Run("unnamed runners keep their own results", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{Commission: 0.05})
		r, ok := c.Calculate([]string{"", "", ""}, back, lay, 100)
		if !ok {
			t.Fatal("expected a result")
		}
		if r.Back.Odds != 200 || r.Lay1.Odds != 2.0 || r.Lay2.Odds != 1.96 {
			t.Errorf("legs out of order: %+v", r)
		}
		if r.Back.ProfitIfWins <= r.Lay1.ProfitIfWins || r.Lay1.ProfitIfWins == 0 || r.Lay2.ProfitIfWins == 0 {
			t.Errorf("per-outcome profits = %.2f/%.2f/%.2f", r.Back.ProfitIfWins, r.Lay1.ProfitIfWins, r.Lay2.ProfitIfWins)
		}
	})
}

func TestThreeWayCalculateRejects(t *testing.T) {
	c := NewThreeWayCalculator(DefaultThreeWayOptions())
	names := []string{"Home", "Draw", "Away"}

	tests := []struct {
		name      string
		names     []string
		back, lay []float64
	}{
		{"implied probability above tolerance", names, []float64{1.5, 3.0, 4.0}, []float64{1.52, 3.1, 4.1}},
		{"balanced but unprofitable", names, []float64{2.0, 3.5, 4.0}, []float64{2.02, 3.6, 4.1}},
		{"two outcomes", names[:2], []float64{2.0, 2.0}, []float64{2.0, 2.0}},
		{"odds of one", names, []float64{1.0, 3.0, 4.0}, []float64{1.1, 3.1, 4.1}},
		{"missing lay", names, []float64{2.0, 3.0, 4.0}, []float64{2.1, 0, 4.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := c.Calculate(tt.names, tt.back, tt.lay, 100); ok {
				t.Error("expected no result")
			}
		})
	}
}

func TestThreeWayFindOpportunities(t *testing.T) {
	snap := domain.OddsSnapshot{
		Venue:       "betfair",
		MarketID:    "1.555",
		EventName:   "Leeds vs Hull",
		Competition: "Championship",
		Selections: []domain.Selection{
			{ID: "1", Name: "Leeds", BackOdds: 200, LayOdds: 210},
			{ID: "2", Name: "The Draw", BackOdds: 2.0, LayOdds: 2.0},
			{ID: "3", Name: "Hull", BackOdds: 1.96, LayOdds: 1.96},
		},
	}

	t.Run("default thresholds reject a thin roi", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{MinProfit: 1, MinROI: 1})
		if _, ok := c.FindOpportunities(snap, 10000); ok {
			t.Error("expected the roi threshold to filter the result")
		}
	})

	t.Run("annotated when thresholds pass", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{MinProfit: 1, MinROI: 0.5})
		r, ok := c.FindOpportunities(snap, 10000)
		if !ok {
			t.Fatal("expected a result")
		}
		if r.MarketID != "1.555" || r.EventName != "Leeds vs Hull" || r.Competition != "Championship" || r.Venue != "betfair" {
			t.Errorf("annotation = %+v", r)
		}
		approx(t, "profit", r.Profit, 51.26)
	})

	t.Run("two-runner market is skipped", func(t *testing.T) {
		c := NewThreeWayCalculator(ThreeWayOptions{})
		short := snap
		short.Selections = snap.Selections[:2]
		if _, ok := c.FindOpportunities(short, 100); ok {
			t.Error("expected no result")
		}
	})
}
