// Package capacity tracks live facility bed state and projects hours
// until bed exhaustion from admission velocity. Updates are
// incremental per facility: no history rescans.
package capacity

import (
	"math"
	"sync"
	"time"
)

// entry pairs one facility's status with its velocity samples under
// its own lock, so facilities update in parallel.
type entry struct {
	mu         sync.Mutex
	status     FacilityStatus
	prediction Prediction
	// rates is a short ring of per-interval occupied-bed deltas in
	// beds/hour; their average smooths single noisy samples
	rates []float64
	next  int
	full  bool
}

// Predictor owns all facility status state and derives predictions.
type Predictor struct {
	mu      sync.RWMutex
	entries map[string]*entry

	crisisHorizonHours float64
	occupancyCeiling   float64
	velocitySamples    int
}

// NewPredictor creates a predictor with the given crisis thresholds
// and velocity smoothing depth.
func NewPredictor(crisisHorizonHours, occupancyCeiling float64, velocitySamples int) *Predictor {
	return &Predictor{
		entries:            make(map[string]*entry),
		crisisHorizonHours: crisisHorizonHours,
		occupancyCeiling:   occupancyCeiling,
		velocitySamples:    velocitySamples,
	}
}

func (p *Predictor) get(facilityID, ward string) *entry {
	p.mu.RLock()
	e, ok := p.entries[facilityID]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[facilityID]; ok {
		return e
	}
	e = &entry{
		status: FacilityStatus{FacilityID: facilityID, Ward: ward},
		rates:  make([]float64, velocityRingSize(p.velocitySamples)),
	}
	p.entries[facilityID] = e
	return e
}

func velocityRingSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Apply merges an observation into the facility status, records a
// velocity sample when occupancy moved, and recomputes the prediction.
// The returned bool reports whether crisis_likely flipped.
func (p *Predictor) Apply(facilityID, ward string, obs Observation, ts time.Time) (Prediction, bool) {
	e := p.get(facilityID, ward)
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.status
	if ward != "" {
		s.Ward = ward
	}

	prevOccupied := s.OccupiedBeds
	prevSeen := s.LastUpdated

	if obs.TotalBeds != nil {
		s.TotalBeds = *obs.TotalBeds
	}
	if obs.OccupiedBeds != nil {
		s.OccupiedBeds = *obs.OccupiedBeds
	}
	if obs.ICUTotal != nil {
		s.ICUTotal = *obs.ICUTotal
	}
	if obs.ICUOccupied != nil {
		s.ICUOccupied = *obs.ICUOccupied
	}
	if obs.Ventilators != nil {
		s.Ventilators = *obs.Ventilators
	}
	if obs.OxygenUnits != nil {
		s.OxygenUnits = *obs.OxygenUnits
	}
	s.LastUpdated = ts

	// One velocity sample per occupancy observation with a measurable
	// interval since the previous one.
	if obs.OccupiedBeds != nil && !prevSeen.IsZero() {
		hours := ts.Sub(prevSeen).Hours()
		if hours > 0 {
			rate := float64(s.OccupiedBeds-prevOccupied) / hours
			e.rates[e.next] = rate
			e.next = (e.next + 1) % len(e.rates)
			if e.next == 0 {
				e.full = true
			}
		}
	}

	wasCrisis := e.prediction.CrisisLikely
	e.prediction = p.predictLocked(e, ts)
	return e.prediction, e.prediction.CrisisLikely != wasCrisis
}

// predictLocked derives the prediction from current state. Caller
// holds e.mu.
func (p *Predictor) predictLocked(e *entry, ts time.Time) Prediction {
	s := e.status

	velocity := e.velocityLocked()
	remaining := math.Inf(1)
	if velocity > 0 {
		remaining = float64(s.BedsAvailable()) / velocity
	}

	crisis := remaining < p.crisisHorizonHours || s.OccupancyRatio() >= p.occupancyCeiling

	return Prediction{
		FacilityID:         s.FacilityID,
		Ward:               s.Ward,
		BedsRemainingHours: remaining,
		AdmissionVelocity:  velocity,
		CrisisLikely:       crisis,
		ResourceCrisis:     s.ResourceCrisis(),
		ComputedAt:         ts.UTC(),
	}
}

func (e *entry) velocityLocked() float64 {
	n := len(e.rates)
	if !e.full {
		n = e.next
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += e.rates[i]
	}
	return sum / float64(n)
}

// Status returns a copy of one facility's live status
func (p *Predictor) Status(facilityID string) (FacilityStatus, bool) {
	p.mu.RLock()
	e, ok := p.entries[facilityID]
	p.mu.RUnlock()
	if !ok {
		return FacilityStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// Prediction returns the last derived prediction for one facility
func (p *Predictor) Prediction(facilityID string) (Prediction, bool) {
	p.mu.RLock()
	e, ok := p.entries[facilityID]
	p.mu.RUnlock()
	if !ok {
		return Prediction{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prediction, true
}

// Predictions returns the current prediction for every known facility
func (p *Predictor) Predictions() []Prediction {
	entries := p.snapshotEntries()
	out := make([]Prediction, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.prediction)
		e.mu.Unlock()
	}
	return out
}

// Totals sums live resources over all known facilities
type Totals struct {
	Facilities       int `json:"facilities"`
	TotalBeds        int `json:"total_beds"`
	OccupiedBeds     int `json:"occupied_beds"`
	TotalICU         int `json:"total_icu"`
	ICUOccupied      int `json:"icu_occupied"`
	TotalVentilators int `json:"total_ventilators"`
	TotalOxygen      int `json:"total_oxygen"`
	CrisisFacilities int `json:"crisis_facilities"`
}

// CityTotals aggregates every facility. O(facility count).
func (p *Predictor) CityTotals() Totals {
	var t Totals
	for _, e := range p.snapshotEntries() {
		e.mu.Lock()
		s := e.status
		crisis := e.prediction.CrisisLikely
		e.mu.Unlock()

		t.Facilities++
		t.TotalBeds += s.TotalBeds
		t.OccupiedBeds += s.OccupiedBeds
		t.TotalICU += s.ICUTotal
		t.ICUOccupied += s.ICUOccupied
		t.TotalVentilators += s.Ventilators
		t.TotalOxygen += s.OxygenUnits
		if crisis {
			t.CrisisFacilities++
		}
	}
	return t
}

// WardSummary aggregates the facilities of a single ward
type WardSummary struct {
	Ward             string
	Facilities       int
	ICUTotal         int
	ICUOccupied      int
	CrisisFacilities int
}

// Ward aggregates live state for one ward without touching any other
// ward's facilities beyond a key scan.
func (p *Predictor) Ward(ward string) WardSummary {
	sum := WardSummary{Ward: ward}
	for _, e := range p.snapshotEntries() {
		e.mu.Lock()
		s := e.status
		crisis := e.prediction.CrisisLikely
		e.mu.Unlock()

		if s.Ward != ward {
			continue
		}
		sum.Facilities++
		sum.ICUTotal += s.ICUTotal
		sum.ICUOccupied += s.ICUOccupied
		if crisis {
			sum.CrisisFacilities++
		}
	}
	return sum
}

func (p *Predictor) snapshotEntries() []*entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}
