// Package risk scores wards on a 0-100 scale by combining case load,
// ICU pressure and how many of the ward's facilities are in a bed
// crisis. Scoring is scoped to one ward per update.
package risk

import (
	"math"
	"sync"
	"time"
)

// Level buckets a risk score into the operational bands shown on
// dispatch dashboards.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// LevelFor maps a score to its band. Bands are half-open so every
// score lands in exactly one.
func LevelFor(score float64) Level {
	switch {
	case score < 25:
		return LevelLow
	case score < 50:
		return LevelMedium
	case score < 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Weights controls how the three components combine. They must sum
// to 1; config validation enforces that before a Scorer is built.
type Weights struct {
	Case   float64
	ICU    float64
	Crisis float64
}

// WardRiskRecord is the derived per-ward view served to callers.
type WardRiskRecord struct {
	Ward        string    `json:"ward"`
	RiskScore   float64   `json:"risk_score"`
	RiskLevel   Level     `json:"risk_level"`
	ICUPressure float64   `json:"icu_pressure"`
	RecentCases int       `json:"recent_cases"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Input carries everything the scorer needs about one ward at one
// moment. RecentCases and BaselineMean come from the ward-scope
// rolling window; the facility counts come from the capacity layer.
type Input struct {
	RecentCases      float64
	BaselineMean     float64
	ICUTotal         int
	ICUOccupied      int
	Facilities       int
	CrisisFacilities int
}

// Scorer keeps the latest record per ward.
type Scorer struct {
	weights    Weights
	saturation float64

	mu      sync.RWMutex
	records map[string]WardRiskRecord
}

// NewScorer builds a scorer. saturation is the multiple of baseline
// case load at which case pressure saturates to 100.
func NewScorer(weights Weights, saturation float64) *Scorer {
	return &Scorer{
		weights:    weights,
		saturation: saturation,
		records:    make(map[string]WardRiskRecord),
	}
}

// Update rescores a single ward and stores the result.
func (s *Scorer) Update(ward string, in Input, ts time.Time) WardRiskRecord {
	casePressure := s.casePressure(in.RecentCases, in.BaselineMean)
	icuPressure := ratioPercent(in.ICUOccupied, in.ICUTotal)
	crisisDensity := ratioPercent(in.CrisisFacilities, in.Facilities)

	score := Compose(s.weights, casePressure, icuPressure, crisisDensity)

	rec := WardRiskRecord{
		Ward:        ward,
		RiskScore:   score,
		RiskLevel:   LevelFor(score),
		ICUPressure: round1(icuPressure),
		RecentCases: int(math.Round(in.RecentCases)),
		ComputedAt:  ts.UTC(),
	}

	s.mu.Lock()
	s.records[ward] = rec
	s.mu.Unlock()
	return rec
}

// Compose is the pure weighted sum over already-normalized 0-100
// components, clamped back into [0,100].
func Compose(w Weights, casePressure, icuPressure, crisisDensity float64) float64 {
	score := w.Case*clamp(casePressure) + w.ICU*clamp(icuPressure) + w.Crisis*clamp(crisisDensity)
	return clamp(score)
}

// casePressure scales recent case load against the ward's own
// baseline: at saturation multiples of baseline it pegs at 100. A
// ward with no history reads as fully pressured the moment cases
// appear, which errs on the loud side for new wards.
func (s *Scorer) casePressure(recent, baseline float64) float64 {
	if baseline <= 0 {
		if recent > 0 {
			return 100
		}
		return 0
	}
	return clamp(recent / (baseline * s.saturation) * 100)
}

func ratioPercent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Record returns the latest record for one ward.
func (s *Scorer) Record(ward string) (WardRiskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ward]
	return rec, ok
}

// All returns the latest record for every scored ward.
func (s *Scorer) All() []WardRiskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WardRiskRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
