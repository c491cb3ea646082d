package detect

import (
	"time"

	"github.com/solapur-gov/healthgrid/internal/baseline"
	"github.com/solapur-gov/healthgrid/internal/shared/types"
)

// SpikeDetector flags a sudden jump: the newest bucket exceeding the
// mean of the immediately preceding Lookback buckets by Multiplier,
// and also clearing an absolute floor so near-zero noise never flags.
type SpikeDetector struct {
	// Lookback is the number of preceding buckets forming the
	// short-term average (default 3)
	Lookback int
	// Multiplier the current bucket must exceed (default 2.0)
	Multiplier float64
	// CaseFloor is the absolute minimum current value
	CaseFloor float64
}

// SpikeResult carries the evaluation outcome and, when flagged, the
// alert itself.
type SpikeResult struct {
	Outcome       Outcome
	ShortTermMean float64
	SurgeFactor   float64
	Alert         *SpikeAlert
}

// Evaluate compares the newest bucket of snap against the short-term
// average of the Lookback buckets before it.
func (d SpikeDetector) Evaluate(snap baseline.Snapshot, now time.Time) SpikeResult {
	values := snap.Values
	if len(values) < d.Lookback+1 {
		return SpikeResult{Outcome: OutcomeInsufficientHistory}
	}

	current := values[len(values)-1]
	recent := values[len(values)-1-d.Lookback : len(values)-1]

	var sum float64
	for _, v := range recent {
		sum += v
	}
	shortMean := sum / float64(d.Lookback)

	result := SpikeResult{
		Outcome:       OutcomeNoSignal,
		ShortTermMean: shortMean,
	}
	if shortMean > 0 {
		result.SurgeFactor = current / shortMean
	}

	if current < d.CaseFloor || current <= shortMean*d.Multiplier {
		return result
	}

	result.Outcome = OutcomeAlert
	alert := &SpikeAlert{
		ID:            types.NewID(),
		Indicator:     snap.Key.Indicator,
		ObservedValue: current,
		BaselineMean:  shortMean,
		SurgeFactor:   result.SurgeFactor,
		TriggeredAt:   now.UTC(),
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
