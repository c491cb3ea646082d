package risk

import (
	"math"
	"testing"
	"time"
)

var defaultWeights = Weights{Case: 0.4, ICU: 0.4, Crisis: 0.2}

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func TestComposeWeightedSum(t *testing.T) {
	// case 60, icu 90, crisis 50 -> 24 + 36 + 10 = 70
	score := Compose(defaultWeights, 60, 90, 50)
	if score != 70 {
		t.Fatalf("score = %v, want 70", score)
	}
	if LevelFor(score) != LevelHigh {
		t.Fatalf("level = %v, want HIGH", LevelFor(score))
	}
}

func TestLevelBandsPartitionExhaustive(t *testing.T) {
	// every score in [0,100] maps to exactly one band, with the
	// documented boundaries half-open
	for score := 0.0; score <= 100.0; score += 0.5 {
		got := LevelFor(score)
		var want Level
		switch {
		case score < 25:
			want = LevelLow
		case score < 50:
			want = LevelMedium
		case score < 75:
			want = LevelHigh
		default:
			want = LevelCritical
		}
		if got != want {
			t.Fatalf("LevelFor(%v) = %v, want %v", score, got, want)
		}
	}

	boundaries := map[float64]Level{
		0: LevelLow, 24.999: LevelLow,
		25: LevelMedium, 49.999: LevelMedium,
		50: LevelHigh, 74.999: LevelHigh,
		75: LevelCritical, 100: LevelCritical,
	}
	for score, want := range boundaries {
		if got := LevelFor(score); got != want {
			t.Fatalf("LevelFor(%v) = %v, want %v", score, got, want)
		}
	}
}

func TestCasePressureSaturation(t *testing.T) {
	s := NewScorer(defaultWeights, 2.0)

	tests := []struct {
		name     string
		recent   float64
		baseline float64
		want     float64
	}{
		{"at baseline", 10, 10, 50},
		{"at saturation multiple", 20, 10, 100},
		{"beyond saturation caps", 50, 10, 100},
		{"quiet ward", 0, 10, 0},
		{"no history no cases", 0, 0, 0},
		{"no history with cases", 5, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.casePressure(tt.recent, tt.baseline); got != tt.want {
				t.Fatalf("casePressure(%v, %v) = %v, want %v", tt.recent, tt.baseline, got, tt.want)
			}
		})
	}
}

func TestUpdateStoresRecord(t *testing.T) {
	s := NewScorer(defaultWeights, 2.0)
	rec := s.Update("East", Input{
		RecentCases:      30,
		BaselineMean:     10,
		ICUTotal:         10,
		ICUOccupied:      9,
		Facilities:       4,
		CrisisFacilities: 2,
	}, t0)

	// case pressure saturates at 100, icu 90, crisis 50
	want := 0.4*100 + 0.4*90 + 0.2*50
	if math.Abs(rec.RiskScore-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", rec.RiskScore, want)
	}
	if rec.RiskLevel != LevelCritical {
		t.Fatalf("level = %v, want CRITICAL", rec.RiskLevel)
	}
	if rec.ICUPressure != 90 || rec.RecentCases != 30 {
		t.Fatalf("record fields wrong: %+v", rec)
	}

	got, ok := s.Record("East")
	if !ok || got.RiskScore != rec.RiskScore {
		t.Fatalf("stored record mismatch: %+v", got)
	}
}

func TestUpdateScopedToWard(t *testing.T) {
	s := NewScorer(defaultWeights, 2.0)
	s.Update("East", Input{RecentCases: 40, BaselineMean: 10, ICUTotal: 10, ICUOccupied: 10, Facilities: 2, CrisisFacilities: 2}, t0)
	s.Update("West", Input{RecentCases: 1, BaselineMean: 10, ICUTotal: 10, ICUOccupied: 1, Facilities: 2}, t0)

	east, _ := s.Record("East")
	west, _ := s.Record("West")
	if east.RiskLevel != LevelCritical {
		t.Fatalf("East level = %v, want CRITICAL", east.RiskLevel)
	}
	if west.RiskLevel != LevelLow {
		t.Fatalf("West level = %v, want LOW", west.RiskLevel)
	}

	// rescoring West must not move East
	s.Update("West", Input{RecentCases: 50, BaselineMean: 10, ICUTotal: 10, ICUOccupied: 10, Facilities: 2, CrisisFacilities: 2}, t0.Add(time.Hour))
	after, _ := s.Record("East")
	if after != east {
		t.Fatalf("East record changed by West update: %+v", after)
	}

	if len(s.All()) != 2 {
		t.Fatalf("All() = %d records, want 2", len(s.All()))
	}
}

func TestEmptyWardScoresZero(t *testing.T) {
	s := NewScorer(defaultWeights, 2.0)
	rec := s.Update("Quiet", Input{}, t0)
	if rec.RiskScore != 0 || rec.RiskLevel != LevelLow {
		t.Fatalf("empty ward should score 0 LOW, got %+v", rec)
	}
}
