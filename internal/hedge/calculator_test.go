package hedge

import (
	"math"
	"testing"
)

func TestCalculateHedge(t *testing.T) {
	tests := []struct {
		name          string
		back, lay     float64
		stake         float64
		cBack, cLay   float64
		wantLayStake  float64
		wantLiability float64
		wantIfBack    float64
		wantIfLay     float64
		wantProfit    float64
		wantPct       float64
	}{
		{
			name: "no commission", back: 2.0, lay: 1.9, stake: 100,
			wantLayStake: 105.26, wantLiability: 94.74,
			wantIfBack: 5.26, wantIfLay: 5.26, wantProfit: 5.26, wantPct: 5.26,
		},
		{
			name: "profit is the worse leg", back: 2.0, lay: 1.9, stake: 100, cBack: 0.05, cLay: 0.02,
			wantLayStake: 105.26, wantLiability: 94.74,
			wantIfBack: 0.26, wantIfLay: 3.16, wantProfit: 0.26, wantPct: 0.26,
		},
		{
			name: "losing hedge is still a result", back: 1.9, lay: 2.0, stake: 100,
			wantLayStake: 95, wantLiability: 95,
			wantIfBack: -5, wantIfLay: -5, wantProfit: -5, wantPct: -5,
		},
		{
			name: "percentage scales with stake", back: 2.0, lay: 1.9, stake: 50,
			wantLayStake: 52.63, wantLiability: 47.37,
			wantIfBack: 2.63, wantIfLay: 2.63, wantProfit: 2.63, wantPct: 5.26,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := CalculateHedge(tt.back, tt.lay, tt.stake, tt.cBack, tt.cLay)
			if !ok {
				t.Fatal("expected a result")
			}
			checks := []struct {
				field     string
				got, want float64
			}{
				{"lay stake", r.LayStake, tt.wantLayStake},
				{"lay liability", r.LayLiability, tt.wantLiability},
				{"profit if back wins", r.ProfitIfBackWins, tt.wantIfBack},
				{"profit if lay wins", r.ProfitIfLayWins, tt.wantIfLay},
				{"profit", r.Profit, tt.wantProfit},
				{"profit percentage", r.ProfitPercentage, tt.wantPct},
			}
			for _, c := range checks {
				if math.Abs(c.got-c.want) > 0.001 {
					t.Errorf("%s = %.4f, want %.2f", c.field, c.got, c.want)
				}
			}
		})
	}
}

func TestCalculateHedgeProperties(t *testing.T) {
	for _, back := range []float64{1.01, 1.5, 2.0, 3.25, 7.5, 15} {
		for _, lay := range []float64{1.02, 1.4, 2.1, 3.3, 8, 21} {
			for _, stake := range []float64{1, 10, 100, 2500} {
				r, ok := CalculateHedge(back, lay, stake, 0, 0)
				if !ok {
					t.Fatalf("back=%v lay=%v stake=%v: expected a result", back, lay, stake)
				}
				if r.Profit != math.Min(r.ProfitIfBackWins, r.ProfitIfLayWins) {
					t.Errorf("back=%v lay=%v stake=%v: profit %v is not the minimum of %v and %v",
						back, lay, stake, r.Profit, r.ProfitIfBackWins, r.ProfitIfLayWins)
				}
				if math.Abs(r.ProfitIfBackWins-r.ProfitIfLayWins) > 0.011 {
					t.Errorf("back=%v lay=%v stake=%v: legs differ without commission: %v vs %v",
						back, lay, stake, r.ProfitIfBackWins, r.ProfitIfLayWins)
				}
				wantPct := r.Profit / stake * 100
				if math.Abs(r.ProfitPercentage-wantPct) > 0.01/stake*100+0.005 {
					t.Errorf("back=%v lay=%v stake=%v: percentage %v, want ~%v", back, lay, stake, r.ProfitPercentage, wantPct)
				}
			}
		}
	}
}

func TestCalculateHedgeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name             string
		back, lay, stake float64
	}{
		{"lay of exactly one", 2.0, 1.0, 100},
		{"lay below one", 2.0, 0.5, 100},
		{"zero back", 0, 1.9, 100},
		{"negative back", -2, 1.9, 100},
		{"zero stake", 2.0, 1.9, 0},
		{"nan lay", 2.0, math.NaN(), 100},
		{"infinite back", math.Inf(1), 1.9, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := CalculateHedge(tt.back, tt.lay, tt.stake, 0, 0); ok {
				t.Error("expected no result")
			}
		})
	}
}

func TestCalculateBookmakerHedge(t *testing.T) {
	got, ok := CalculateBookmakerHedge(2.1, 2.0, 100, 0.02)
	if !ok {
		t.Fatal("expected a result")
	}
	want, _ := CalculateHedge(2.1, 2.0, 100, 0, 0.02)
	if got != want {
		t.Errorf("bookmaker hedge = %+v, want %+v", got, want)
	}
	if math.Abs(got.Profit-2.9) > 0.001 {
		t.Errorf("profit = %v, want 2.90", got.Profit)
	}
}
