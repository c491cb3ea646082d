package detect

import (
	"time"

	"github.com/solapur-gov/healthgrid/internal/shared/types"
)

// Outcome classifies a detector evaluation. InsufficientHistory is
// deliberately distinct from NoSignal so dashboards never read a
// cold-start series as "all clear".
type Outcome string

const (
	OutcomeInsufficientHistory Outcome = "INSUFFICIENT_HISTORY"
	OutcomeNoSignal            Outcome = "NO_SIGNAL"
	OutcomeAlert               Outcome = "ALERT"
)

// OutbreakAlert is emitted when an indicator drifts beyond its
// historical baseline. Terminal once emitted; consumers decide
// disposition.
type OutbreakAlert struct {
	ID             types.ID  `json:"id"`
	FacilityID     string    `json:"facility_id,omitempty"`
	Ward           string    `json:"ward,omitempty"`
	Indicator      string    `json:"indicator"`
	ObservedValue  float64   `json:"observed_value"`
	BaselineMean   float64   `json:"baseline_mean"`
	DeviationScore float64   `json:"deviation_score"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// SpikeAlert is emitted on a sudden short-horizon jump, independent of
// the long baseline.
type SpikeAlert struct {
	ID            types.ID  `json:"id"`
	FacilityID    string    `json:"facility_id,omitempty"`
	Ward          string    `json:"ward,omitempty"`
	Indicator     string    `json:"indicator"`
	ObservedValue float64   `json:"observed_value"`
	BaselineMean  float64   `json:"baseline_mean"` // short-term mean of the preceding buckets
	SurgeFactor   float64   `json:"surge_factor"`
	TriggeredAt   time.Time `json:"triggered_at"`
}
