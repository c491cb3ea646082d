package capacity

import (
	"math"
	"testing"
	"time"
)

func intp(v int) *int { return &v }

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func newTestPredictor() *Predictor {
	return NewPredictor(6, 0.95, 3)
}

func TestApplyMergesNilFields(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{
		TotalBeds:    intp(100),
		OccupiedBeds: intp(60),
		ICUTotal:     intp(10),
		ICUOccupied:  intp(4),
		Ventilators:  intp(8),
		OxygenUnits:  intp(40),
	}, t0)

	// partial update: only occupancy changes, the rest must survive
	p.Apply("F1", "East", Observation{OccupiedBeds: intp(62)}, t0.Add(time.Hour))

	s, ok := p.Status("F1")
	if !ok {
		t.Fatal("facility not found")
	}
	if s.TotalBeds != 100 || s.OccupiedBeds != 62 || s.ICUTotal != 10 || s.Ventilators != 8 || s.OxygenUnits != 40 {
		t.Fatalf("partial update clobbered state: %+v", s)
	}
	if s.BedsAvailable() != 38 {
		t.Fatalf("BedsAvailable = %d, want 38", s.BedsAvailable())
	}
}

func TestVelocityAndRemainingHours(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(80)}, t0)
	pred, _ := p.Apply("F1", "East", Observation{OccupiedBeds: intp(90)}, t0.Add(2*time.Hour))

	if pred.AdmissionVelocity != 5 {
		t.Fatalf("velocity = %v, want 5 beds/hr", pred.AdmissionVelocity)
	}
	if pred.BedsRemainingHours != 2.0 {
		t.Fatalf("remaining = %v, want 2.0", pred.BedsRemainingHours)
	}
	if !pred.CrisisLikely {
		t.Fatal("2.0h remaining within 6h horizon must flag crisis")
	}
}

func TestVelocityMovingAverage(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(200), OccupiedBeds: intp(100)}, t0)

	// rates 2, 4, 6 then 8; with 3 samples the window is [4 6 8] -> 6
	occ := 100
	rates := []int{2, 4, 6, 8}
	ts := t0
	var pred Prediction
	for _, r := range rates {
		occ += r
		ts = ts.Add(time.Hour)
		pred, _ = p.Apply("F1", "East", Observation{OccupiedBeds: intp(occ)}, ts)
	}
	if pred.AdmissionVelocity != 6 {
		t.Fatalf("velocity = %v, want 6 (average of last 3 samples)", pred.AdmissionVelocity)
	}
}

func TestExactHorizonIsNotCrisis(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(65)}, t0)
	pred, _ := p.Apply("F1", "East", Observation{OccupiedBeds: intp(70)}, t0.Add(time.Hour))

	if pred.BedsRemainingHours != 6.0 {
		t.Fatalf("remaining = %v, want exactly 6.0", pred.BedsRemainingHours)
	}
	if pred.CrisisLikely {
		t.Fatal("exactly at the horizon must not flag crisis")
	}
}

func TestOccupancyCeilingIsInclusive(t *testing.T) {
	p := newTestPredictor()
	pred, _ := p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(94)}, t0)
	if pred.CrisisLikely {
		t.Fatal("occupancy 0.94 below ceiling must not flag crisis")
	}

	pred, _ = p.Apply("F2", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(95)}, t0)
	if !pred.CrisisLikely {
		t.Fatal("occupancy exactly 0.95 must flag crisis")
	}
}

func TestZeroVelocityMeansInfiniteRunway(t *testing.T) {
	p := newTestPredictor()
	pred, _ := p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(50)}, t0)

	if !math.IsInf(pred.BedsRemainingHours, 1) {
		t.Fatalf("remaining = %v, want +Inf with no admission velocity", pred.BedsRemainingHours)
	}
	if pred.CrisisLikely {
		t.Fatal("infinite runway below ceiling must not flag crisis")
	}
	if got := pred.DisplayHours(); got != 999.0 {
		t.Fatalf("DisplayHours = %v, want 999.0 cap", got)
	}
}

func TestDischargesExtendRunway(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(90)}, t0)
	pred, _ := p.Apply("F1", "East", Observation{OccupiedBeds: intp(80)}, t0.Add(time.Hour))

	if pred.AdmissionVelocity != -10 {
		t.Fatalf("velocity = %v, want -10", pred.AdmissionVelocity)
	}
	if !math.IsInf(pred.BedsRemainingHours, 1) {
		t.Fatalf("net discharges must give infinite runway, got %v", pred.BedsRemainingHours)
	}
}

func TestCrisisTransitionFlag(t *testing.T) {
	p := newTestPredictor()
	_, changed := p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(50)}, t0)
	if changed {
		t.Fatal("initial non-crisis state is not a transition")
	}

	_, changed = p.Apply("F1", "East", Observation{OccupiedBeds: intp(96)}, t0.Add(time.Hour))
	if !changed {
		t.Fatal("entering crisis must report a transition")
	}

	_, changed = p.Apply("F1", "East", Observation{OccupiedBeds: intp(97)}, t0.Add(2*time.Hour))
	if changed {
		t.Fatal("staying in crisis is not a transition")
	}
}

func TestResourceCrisis(t *testing.T) {
	tests := []struct {
		name string
		obs  Observation
		want bool
	}{
		{"healthy", Observation{TotalBeds: intp(100), OccupiedBeds: intp(50), ICUTotal: intp(10), ICUOccupied: intp(2), OxygenUnits: intp(40)}, false},
		{"beds below floor", Observation{TotalBeds: intp(100), OccupiedBeds: intp(96), ICUTotal: intp(10), ICUOccupied: intp(2), OxygenUnits: intp(40)}, true},
		{"icu below floor", Observation{TotalBeds: intp(100), OccupiedBeds: intp(50), ICUTotal: intp(10), ICUOccupied: intp(9), OxygenUnits: intp(40)}, true},
		{"oxygen below floor", Observation{TotalBeds: intp(100), OccupiedBeds: intp(50), ICUTotal: intp(10), ICUOccupied: intp(2), OxygenUnits: intp(4)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPredictor()
			pred, _ := p.Apply("F1", "East", tt.obs, t0)
			if pred.ResourceCrisis != tt.want {
				t.Fatalf("ResourceCrisis = %v, want %v", pred.ResourceCrisis, tt.want)
			}
		})
	}
}

func TestCityTotals(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(96), ICUTotal: intp(10), ICUOccupied: intp(4), Ventilators: intp(6), OxygenUnits: intp(30)}, t0)
	p.Apply("F2", "West", Observation{TotalBeds: intp(50), OccupiedBeds: intp(20), ICUTotal: intp(5), ICUOccupied: intp(1), Ventilators: intp(2), OxygenUnits: intp(10)}, t0)

	tot := p.CityTotals()
	if tot.Facilities != 2 || tot.TotalBeds != 150 || tot.OccupiedBeds != 116 {
		t.Fatalf("bed totals wrong: %+v", tot)
	}
	if tot.TotalICU != 15 || tot.ICUOccupied != 5 || tot.TotalVentilators != 8 || tot.TotalOxygen != 40 {
		t.Fatalf("resource totals wrong: %+v", tot)
	}
	if tot.CrisisFacilities != 1 {
		t.Fatalf("CrisisFacilities = %d, want 1", tot.CrisisFacilities)
	}
}

func TestWardSummary(t *testing.T) {
	p := newTestPredictor()
	p.Apply("F1", "East", Observation{TotalBeds: intp(100), OccupiedBeds: intp(96), ICUTotal: intp(10), ICUOccupied: intp(9)}, t0)
	p.Apply("F2", "East", Observation{TotalBeds: intp(50), OccupiedBeds: intp(20), ICUTotal: intp(5), ICUOccupied: intp(1)}, t0)
	p.Apply("F3", "West", Observation{TotalBeds: intp(50), OccupiedBeds: intp(10), ICUTotal: intp(8), ICUOccupied: intp(2)}, t0)

	sum := p.Ward("East")
	if sum.Facilities != 2 || sum.ICUTotal != 15 || sum.ICUOccupied != 10 {
		t.Fatalf("ward aggregate wrong: %+v", sum)
	}
	if sum.CrisisFacilities != 1 {
		t.Fatalf("CrisisFacilities = %d, want 1", sum.CrisisFacilities)
	}
}

func TestDisplayHoursRounding(t *testing.T) {
	pred := Prediction{BedsRemainingHours: 2.04}
	if got := pred.DisplayHours(); got != 2.0 {
		t.Fatalf("DisplayHours = %v, want 2.0", got)
	}
	pred.BedsRemainingHours = 1234.5
	if got := pred.DisplayHours(); got != 999.0 {
		t.Fatalf("DisplayHours = %v, want 999.0 cap", got)
	}
}
