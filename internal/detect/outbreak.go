// Package detect derives anomaly signals from rolling baseline
// snapshots. Outbreak and spike detection are independent,
// non-exclusive signals with different time constants: outbreak
// compares against the full retained baseline, spike against the last
// few buckets only.
package detect

import (
	"math"
	"time"

	"github.com/solapur-gov/healthgrid/internal/baseline"
	"github.com/solapur-gov/healthgrid/internal/shared/types"
)

// epsilon floors the baseline stddev so a perfectly flat history never
// divides by zero.
const epsilon = 1e-6

// OutbreakDetector flags indicators whose current bucket deviates from
// the historical baseline by more than Threshold standard deviations.
type OutbreakDetector struct {
	// Threshold in standard-deviation units (default 2.0)
	Threshold float64
	// MinHistory is the number of baseline buckets (excluding the
	// current one) required before evaluation
	MinHistory int
}

// OutbreakResult carries the evaluation outcome and, when the
// threshold was crossed, the alert itself.
type OutbreakResult struct {
	Outcome        Outcome
	DeviationScore float64
	BaselineMean   float64
	Alert          *OutbreakAlert
}

// Evaluate scores the newest bucket of snap against the baseline
// formed by every earlier retained bucket. The current bucket is
// excluded from the baseline so a surge cannot dilute its own
// comparison point.
func (d OutbreakDetector) Evaluate(snap baseline.Snapshot, now time.Time) OutbreakResult {
	history := snap.Values
	if len(history) == 0 {
		return OutbreakResult{Outcome: OutcomeInsufficientHistory}
	}
	current := history[len(history)-1]
	history = history[:len(history)-1]

	if len(history) < d.MinHistory {
		return OutbreakResult{Outcome: OutcomeInsufficientHistory}
	}

	mean, stddev := meanStdDev(history)
	score := (current - mean) / math.Max(stddev, epsilon)

	result := OutbreakResult{
		DeviationScore: score,
		BaselineMean:   mean,
		Outcome:        OutcomeNoSignal,
	}
	if score < d.Threshold {
		return result
	}

	result.Outcome = OutcomeAlert
	alert := &OutbreakAlert{
		ID:             types.NewID(),
		Indicator:      snap.Key.Indicator,
		ObservedValue:  current,
		BaselineMean:   mean,
		DeviationScore: score,
		TriggeredAt:    now.UTC(),
	}
	switch snap.Key.Scope {
	case baseline.ScopeFacility:
		alert.FacilityID = snap.Key.ScopeID
	case baseline.ScopeWard:
		alert.Ward = snap.Key.ScopeID
	}
	result.Alert = alert
	return result
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
