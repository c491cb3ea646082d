package capacity

import (
	"math"
	"time"
)

// FacilityStatus is the live resource state of one facility. At most
// one writer mutates a given facility at a time; readers get copies.
type FacilityStatus struct {
	FacilityID   string    `json:"facility_id"`
	Ward         string    `json:"ward"`
	TotalBeds    int       `json:"total_beds"`
	OccupiedBeds int       `json:"occupied_beds"`
	ICUTotal     int       `json:"icu_total"`
	ICUOccupied  int       `json:"icu_occupied"`
	Ventilators  int       `json:"ventilators"`
	OxygenUnits  int       `json:"oxygen_units"`
	LastUpdated  time.Time `json:"last_updated"`
}

// BedsAvailable returns free general beds, floored at zero
func (s FacilityStatus) BedsAvailable() int {
	if n := s.TotalBeds - s.OccupiedBeds; n > 0 {
		return n
	}
	return 0
}

// ICUAvailable returns free ICU beds, floored at zero
func (s FacilityStatus) ICUAvailable() int {
	if n := s.ICUTotal - s.ICUOccupied; n > 0 {
		return n
	}
	return 0
}

// OccupancyRatio returns occupied/total, or 0 with no registered beds
func (s FacilityStatus) OccupancyRatio() float64 {
	if s.TotalBeds <= 0 {
		return 0
	}
	return float64(s.OccupiedBeds) / float64(s.TotalBeds)
}

// ResourceCrisis reports scarcity of consumables independent of the
// depletion forecast: nearly no beds, ICU slots, or oxygen left.
func (s FacilityStatus) ResourceCrisis() bool {
	return s.BedsAvailable() < 5 || s.ICUAvailable() < 2 || s.OxygenUnits < 5
}

// Observation is a partial status update. Nil fields mean "no change".
type Observation struct {
	TotalBeds    *int
	OccupiedBeds *int
	ICUTotal     *int
	ICUOccupied  *int
	Ventilators  *int
	OxygenUnits  *int
}

// displayHoursCeiling is the sentinel shown in place of an unbounded
// beds_remaining_hours. Internal math keeps +Inf.
const displayHoursCeiling = 999.0

// Prediction is the derived bed-capacity forecast for one facility.
// It is a view over FacilityStatus, recomputed on every update, never
// stored independently.
type Prediction struct {
	FacilityID string `json:"facility_id"`
	Ward       string `json:"ward"`
	// BedsRemainingHours is +Inf when the depletion rate is <= 0
	BedsRemainingHours float64   `json:"-"`
	AdmissionVelocity  float64   `json:"admission_velocity"` // beds per hour
	CrisisLikely       bool      `json:"crisis_likely"`
	ResourceCrisis     bool      `json:"resource_crisis"`
	ComputedAt         time.Time `json:"computed_at"`
}

// DisplayHours returns BedsRemainingHours capped and rounded for JSON
// and dashboards, since +Inf does not serialize.
func (p Prediction) DisplayHours() float64 {
	if math.IsInf(p.BedsRemainingHours, 1) || p.BedsRemainingHours > displayHoursCeiling {
		return displayHoursCeiling
	}
	return math.Round(p.BedsRemainingHours*10) / 10
}
