package detect

import (
	"math"
	"testing"
	"time"

	"github.com/solapur-gov/healthgrid/internal/baseline"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snapshotFor(scope baseline.Scope, scopeID string, values ...float64) baseline.Snapshot {
	return baseline.Snapshot{
		Key:         baseline.Key{Scope: scope, ScopeID: scopeID, Indicator: "Dengue Cases"},
		Values:      values,
		BucketCount: len(values),
	}
}

func TestOutbreakColdStartReportsInsufficientHistory(t *testing.T) {
	d := OutbreakDetector{Threshold: 2.0, MinHistory: 3}

	for _, values := range [][]float64{{}, {50}, {50, 60}, {50, 60, 500}} {
		snap := snapshotFor(baseline.ScopeFacility, "HSP-001", values...)
		result := d.Evaluate(snap, now)
		if result.Outcome != OutcomeInsufficientHistory {
			t.Errorf("with %d buckets expected INSUFFICIENT_HISTORY, got %s (alerts must not fire on cold start)",
				len(values), result.Outcome)
		}
		if result.Alert != nil {
			t.Error("no alert may be emitted before minimum history")
		}
	}
}

func TestOutbreakFiresBeyondThreshold(t *testing.T) {
	d := OutbreakDetector{Threshold: 2.0, MinHistory: 3}

	// Baseline 10, 12, 14, 12 (mean 12, stddev ~1.41); current 20 is
	// well past two standard deviations.
	snap := snapshotFor(baseline.ScopeFacility, "HSP-001", 10, 12, 14, 12, 20)
	result := d.Evaluate(snap, now)

	if result.Outcome != OutcomeAlert {
		t.Fatalf("expected ALERT, got %s (score %g)", result.Outcome, result.DeviationScore)
	}
	alert := result.Alert
	if alert == nil {
		t.Fatal("expected alert payload")
	}
	if alert.FacilityID != "HSP-001" {
		t.Errorf("expected facility HSP-001, got %q", alert.FacilityID)
	}
	if alert.ObservedValue != 20 {
		t.Errorf("expected observed 20, got %g", alert.ObservedValue)
	}
	if math.Abs(alert.BaselineMean-12) > 1e-9 {
		t.Errorf("expected baseline mean 12, got %g", alert.BaselineMean)
	}
	if alert.DeviationScore < 2.0 {
		t.Errorf("deviation score %g should be >= threshold", alert.DeviationScore)
	}
	if alert.ID.IsZero() {
		t.Error("alert ID should be set")
	}
}

func TestOutbreakQuietSeriesNoSignal(t *testing.T) {
	d := OutbreakDetector{Threshold: 2.0, MinHistory: 3}

	snap := snapshotFor(baseline.ScopeWard, "W-04", 10, 12, 14, 12, 13)
	result := d.Evaluate(snap, now)

	if result.Outcome != OutcomeNoSignal {
		t.Errorf("expected NO_SIGNAL, got %s", result.Outcome)
	}
	if result.Alert != nil {
		t.Error("no alert expected below threshold")
	}
}

func TestOutbreakFlatBaselineEpsilon(t *testing.T) {
	d := OutbreakDetector{Threshold: 2.0, MinHistory: 3}

	// Perfectly flat history: stddev 0, epsilon guards the division.
	// Any real increase is a very large deviation.
	snap := snapshotFor(baseline.ScopeFacility, "PHC-007", 10, 10, 10, 100)
	result := d.Evaluate(snap, now)

	if result.Outcome != OutcomeAlert {
		t.Fatalf("expected ALERT on flat baseline surge, got %s", result.Outcome)
	}
	if math.IsInf(result.DeviationScore, 0) || math.IsNaN(result.DeviationScore) {
		t.Errorf("deviation score must stay finite, got %g", result.DeviationScore)
	}
}

func TestOutbreakWardScopeAlert(t *testing.T) {
	d := OutbreakDetector{Threshold: 2.0, MinHistory: 3}

	snap := snapshotFor(baseline.ScopeWard, "W-09", 20, 22, 18, 90)
	result := d.Evaluate(snap, now)
	if result.Outcome != OutcomeAlert {
		t.Fatalf("expected ALERT, got %s", result.Outcome)
	}
	if result.Alert.Ward != "W-09" {
		t.Errorf("expected ward W-09, got %q", result.Alert.Ward)
	}
	if result.Alert.FacilityID != "" {
		t.Errorf("ward-scope alert should not carry a facility, got %q", result.Alert.FacilityID)
	}
}

func TestSpikeColdStart(t *testing.T) {
	d := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	snap := snapshotFor(baseline.ScopeFacility, "HSP-001", 5, 500)
	result := d.Evaluate(snap, now)
	if result.Outcome != OutcomeInsufficientHistory {
		t.Errorf("expected INSUFFICIENT_HISTORY with 2 buckets, got %s", result.Outcome)
	}
}

func TestSpikeFires(t *testing.T) {
	d := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	snap := snapshotFor(baseline.ScopeFacility, "HSP-001", 5, 5, 5, 11)
	result := d.Evaluate(snap, now)

	if result.Outcome != OutcomeAlert {
		t.Fatalf("expected ALERT, got %s", result.Outcome)
	}
	if result.Alert.ObservedValue != 11 {
		t.Errorf("expected observed 11, got %g", result.Alert.ObservedValue)
	}
	if math.Abs(result.Alert.BaselineMean-5) > 1e-9 {
		t.Errorf("expected short-term mean 5, got %g", result.Alert.BaselineMean)
	}
	if math.Abs(result.Alert.SurgeFactor-2.2) > 1e-9 {
		t.Errorf("expected surge factor 2.2, got %g", result.Alert.SurgeFactor)
	}
}

func TestSpikeExactMultipleDoesNotFire(t *testing.T) {
	d := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	// Exactly 2x the short-term mean is not an exceedance
	snap := snapshotFor(baseline.ScopeFacility, "HSP-001", 10, 10, 10, 20)
	result := d.Evaluate(snap, now)
	if result.Outcome != OutcomeNoSignal {
		t.Errorf("expected NO_SIGNAL at exactly the multiplier, got %s", result.Outcome)
	}
}

func TestSpikeFloorSuppressesNoise(t *testing.T) {
	d := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	// 1 -> 4 is a 4x jump but far below the absolute floor
	snap := snapshotFor(baseline.ScopeFacility, "PHC-002", 1, 1, 1, 4)
	result := d.Evaluate(snap, now)
	if result.Outcome != OutcomeNoSignal {
		t.Errorf("near-zero noise must not flag, got %s", result.Outcome)
	}
}

func TestSpikeUsesShortHorizonOnly(t *testing.T) {
	d := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	// Old history is high, recent 3 buckets are low: the spike
	// detector must only see the recent ones.
	snap := snapshotFor(baseline.ScopeFacility, "HSP-003", 100, 100, 100, 5, 5, 5, 15)
	result := d.Evaluate(snap, now)
	if result.Outcome != OutcomeAlert {
		t.Fatalf("expected ALERT from short horizon, got %s", result.Outcome)
	}
	if math.Abs(result.ShortTermMean-5) > 1e-9 {
		t.Errorf("short-term mean should ignore old buckets, got %g", result.ShortTermMean)
	}
}

func TestOutbreakAndSpikeIndependent(t *testing.T) {
	outbreak := OutbreakDetector{Threshold: 2.0, MinHistory: 3}
	spike := SpikeDetector{Lookback: 3, Multiplier: 2.0, CaseFloor: 10}

	// Sudden jump over a long flat baseline trips both detectors for
	// different reasons.
	snap := snapshotFor(baseline.ScopeFacility, "HSP-001", 5, 5, 5, 5, 5, 60)
	ob := outbreak.Evaluate(snap, now)
	sp := spike.Evaluate(snap, now)

	if ob.Outcome != OutcomeAlert {
		t.Errorf("outbreak should fire, got %s", ob.Outcome)
	}
	if sp.Outcome != OutcomeAlert {
		t.Errorf("spike should fire, got %s", sp.Outcome)
	}
}
