// Package engine is the aggregation façade over the baseline store,
// the detectors, the capacity predictor, the ward risk scorer and the
// fleet index. External callers touch only this package; on each
// normalized record it updates exactly the series, facility and ward
// the record names, never performing a global recompute.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/solapur-gov/healthgrid/internal/baseline"
	"github.com/solapur-gov/healthgrid/internal/capacity"
	"github.com/solapur-gov/healthgrid/internal/detect"
	"github.com/solapur-gov/healthgrid/internal/fleet"
	"github.com/solapur-gov/healthgrid/internal/risk"
	"github.com/solapur-gov/healthgrid/internal/shared/config"
	"github.com/solapur-gov/healthgrid/internal/shared/errors"
	"github.com/solapur-gov/healthgrid/internal/shared/events"
	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
)

// Archiver persists facts and alerts out of the hot path. The engine
// treats archiving as best effort; implementations queue internally
// and must not block.
type Archiver interface {
	ArchiveRecord(ctx context.Context, rec HealthRecord)
	ArchiveStatus(ctx context.Context, status capacity.FacilityStatus)
	ArchiveAlert(ctx context.Context, kind string, payload any)
}

// Engine owns all live state. One instance per process, created at
// startup and stopped with it, never package-level.
type Engine struct {
	cfg config.EngineConfig

	baselines *baseline.Store
	outbreak  detect.OutbreakDetector
	spike     detect.SpikeDetector
	capacity  *capacity.Predictor
	risk      *risk.Scorer
	fleet     *fleet.Index

	publisher events.Publisher
	archiver  Archiver

	mu      sync.Mutex
	seen    map[string]struct{}
	seenQ   []string
	seenCap int

	now func() time.Time
}

// dedupeRingCap bounds duplicate-suppression memory when the feature
// is enabled.
const dedupeRingCap = 4096

// New wires an engine from validated config. publisher may be a
// no-op; archiver may be nil.
func New(cfg config.EngineConfig, publisher events.Publisher, archiver Archiver) *Engine {
	return &Engine{
		cfg:       cfg,
		baselines: baseline.NewStore(cfg.WindowBuckets, cfg.BucketGranularity),
		outbreak: detect.OutbreakDetector{
			Threshold:  cfg.OutbreakThreshold,
			MinHistory: cfg.MinHistoryBuckets,
		},
		spike: detect.SpikeDetector{
			Lookback:   cfg.SpikeLookback,
			Multiplier: cfg.SpikeMultiplier,
			CaseFloor:  cfg.SpikeCaseFloor,
		},
		capacity:  capacity.NewPredictor(cfg.CrisisHorizonHours, cfg.OccupancyCeiling, cfg.VelocitySamples),
		risk:      risk.NewScorer(risk.Weights{Case: cfg.CaseWeight, ICU: cfg.ICUWeight, Crisis: cfg.CrisisWeight}, cfg.CasePressureSaturation),
		fleet:     fleet.NewIndex(cfg.FleetFreshness),
		publisher: publisher,
		archiver:  archiver,
		seen:      make(map[string]struct{}),
		seenCap:   dedupeRingCap,
		now:       time.Now,
	}
}

// Ingest consumes one normalized record: baseline updates, detector
// evaluation, capacity and ward risk recomputation scoped to the
// record's facility and ward, then broadcast. Returns what changed.
func (e *Engine) Ingest(ctx context.Context, rec HealthRecord) (IngestResult, error) {
	if err := rec.Validate(); err != nil {
		metrics.RecordRejected(string(rec.FacilityType), "validation")
		return IngestResult{}, err
	}

	if e.cfg.DedupeSubmissions && e.isDuplicate(rec) {
		metrics.RecordDuplicateSuppressed()
		return IngestResult{Duplicate: true}, nil
	}

	// Validate guarantees ambulance records carry a position, so a
	// vehicle update can never leak into the case baselines.
	if rec.FacilityType == FacilityAmbulance {
		e.ingestVehicle(ctx, rec)
		metrics.RecordIngested(string(rec.FacilityType), rec.Ward)
		return IngestResult{}, nil
	}

	result := IngestResult{}

	facilitySnap, err := e.baselines.Update(baseline.Key{
		Scope:     baseline.ScopeFacility,
		ScopeID:   rec.FacilityID,
		Indicator: rec.Indicator,
	}, rec.Timestamp, float64(rec.CaseCount))
	if err != nil {
		if errors.IsStale(err) {
			// too old for the window, contributes nothing
			return IngestResult{Stale: true}, nil
		}
		return IngestResult{}, err
	}

	// The ward series can be ahead of this facility when its other
	// facilities already reported newer buckets. A ward-stale drop
	// skips ward-level detection only; the store returns the ward's
	// current snapshot either way, so the served risk view never
	// rewinds.
	wardSnap, err := e.baselines.Update(baseline.Key{
		Scope:     baseline.ScopeWard,
		ScopeID:   rec.Ward,
		Indicator: rec.Indicator,
	}, rec.Timestamp, float64(rec.CaseCount))
	wardDetect := wardSnap
	if err != nil {
		if !errors.IsStale(err) {
			return IngestResult{}, err
		}
		wardDetect = baseline.Snapshot{}
	}

	now := e.now()
	e.runDetectors(ctx, rec, facilitySnap, wardDetect, now, &result)

	if rec.HasStatus() {
		pred, transitioned := e.capacity.Apply(rec.FacilityID, rec.Ward, rec.Observation(), rec.Timestamp)
		result.Prediction = &pred
		if transitioned {
			metrics.RecordCrisisTransition(pred.CrisisLikely)
			e.publish(ctx, events.NewEvent(events.TypeCrisisUpdate, rec.FacilityID, pred))
			e.archiveAlert(ctx, events.TypeCrisisUpdate, pred)
		}
		if e.archiver != nil {
			if status, ok := e.capacity.Status(rec.FacilityID); ok {
				e.archiver.ArchiveStatus(ctx, status)
			}
		}
	}

	wardRec := e.rescoreWard(rec.Ward, wardSnap, now)
	result.WardRisk = &wardRec

	metrics.RecordIngested(string(rec.FacilityType), rec.Ward)
	e.publish(ctx, events.NewEvent(ingestEventType(rec.FacilityType), rec.FacilityID, rec))
	if e.archiver != nil {
		e.archiver.ArchiveRecord(ctx, rec)
	}
	return result, nil
}

func (e *Engine) ingestVehicle(ctx context.Context, rec HealthRecord) {
	status := rec.VehicleStatus
	if !fleet.ValidStatus(status) {
		status = fleet.StatusAvailable
	}
	amb := fleet.Ambulance{
		VehicleID:   rec.FacilityID,
		Ward:        rec.Ward,
		Lat:         *rec.Lat,
		Lng:         *rec.Lng,
		Status:      status,
		LastUpdated: rec.Timestamp,
	}
	e.fleet.Upsert(amb)
	e.publish(ctx, events.NewEvent(events.TypeIngestAmbulance, rec.FacilityID, amb))
}

// runDetectors evaluates outbreak at facility and ward granularity
// and spike at facility granularity. The two signals are independent;
// both may fire for the same record.
func (e *Engine) runDetectors(ctx context.Context, rec HealthRecord, facilitySnap, wardSnap baseline.Snapshot, now time.Time, result *IngestResult) {
	for _, snap := range []baseline.Snapshot{facilitySnap, wardSnap} {
		if snap.BucketCount == 0 {
			continue
		}
		if res := e.outbreak.Evaluate(snap, now); res.Alert != nil {
			result.OutbreakAlerts = append(result.OutbreakAlerts, *res.Alert)
			metrics.RecordAlert("outbreak", rec.Ward)
			e.publish(ctx, events.NewEvent(events.TypeAlertOutbreak, rec.FacilityID, res.Alert))
			e.archiveAlert(ctx, events.TypeAlertOutbreak, res.Alert)
		}
	}

	if res := e.spike.Evaluate(facilitySnap, now); res.Alert != nil {
		result.SpikeAlerts = append(result.SpikeAlerts, *res.Alert)
		metrics.RecordAlert("spike", rec.Ward)
		e.publish(ctx, events.NewEvent(events.TypeAlertSpike, rec.FacilityID, res.Alert))
		e.archiveAlert(ctx, events.TypeAlertSpike, res.Alert)
	}
}

// rescoreWard recomputes risk for a single ward from its case series
// and its facilities' live capacity state.
func (e *Engine) rescoreWard(ward string, wardSnap baseline.Snapshot, now time.Time) risk.WardRiskRecord {
	sum := e.capacity.Ward(ward)

	var recent, mean float64
	if len(wardSnap.Values) > 0 {
		recent = wardSnap.Values[len(wardSnap.Values)-1]
		mean = priorMean(wardSnap.Values)
	}

	return e.risk.Update(ward, risk.Input{
		RecentCases:      recent,
		BaselineMean:     mean,
		ICUTotal:         sum.ICUTotal,
		ICUOccupied:      sum.ICUOccupied,
		Facilities:       sum.Facilities,
		CrisisFacilities: sum.CrisisFacilities,
	}, now)
}

// priorMean averages every value except the newest, so a surge does
// not inflate its own comparison point.
func priorMean(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values[:len(values)-1] {
		sum += v
	}
	return sum / float64(len(values)-1)
}

func ingestEventType(t FacilityType) string {
	switch t {
	case FacilityPHC:
		return events.TypeIngestPHC
	case FacilityLab:
		return events.TypeIngestLab
	case FacilityAmbulance:
		return events.TypeIngestAmbulance
	default:
		return events.TypeIngestHospital
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Printf("engine: publish %s failed: %v", event.Type, err)
	}
}

func (e *Engine) archiveAlert(ctx context.Context, kind string, payload any) {
	if e.archiver != nil {
		e.archiver.ArchiveAlert(ctx, kind, payload)
	}
}

func (e *Engine) isDuplicate(rec HealthRecord) bool {
	key := fmt.Sprintf("%s|%s|%d", rec.FacilityID, rec.Indicator, rec.Timestamp.UnixNano())
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[key]; ok {
		return true
	}
	e.seen[key] = struct{}{}
	e.seenQ = append(e.seenQ, key)
	if len(e.seenQ) > e.seenCap {
		oldest := e.seenQ[0]
		e.seenQ = e.seenQ[1:]
		delete(e.seen, oldest)
	}
	return false
}

// --- Query views ---

// CityTotals sums live capacity over every known facility.
func (e *Engine) CityTotals() capacity.Totals {
	return e.capacity.CityTotals()
}

// PredictedCapacity returns the current prediction for every facility.
func (e *Engine) PredictedCapacity() []capacity.Prediction {
	return e.capacity.Predictions()
}

// WardRisk returns the latest risk record for every scored ward.
func (e *Engine) WardRisk() []risk.WardRiskRecord {
	return e.risk.All()
}

// AmbulanceStatus returns the fleet-wide status breakdown.
func (e *Engine) AmbulanceStatus() fleet.Summary {
	return e.fleet.StatusSummary()
}

// AmbulanceNearest ranks available vehicles by distance from a point.
func (e *Engine) AmbulanceNearest(lat, lng float64, k int, availableOnly bool) ([]fleet.NearestResult, []fleet.StaleVehicle) {
	return e.fleet.Nearest(lat, lng, k, availableOnly)
}

// BaselineSnapshot exposes one series for diagnostics.
func (e *Engine) BaselineSnapshot(key baseline.Key) (baseline.Snapshot, bool) {
	return e.baselines.Snapshot(key)
}

// Backfill seeds a series with a historical observation, used by the
// HIS import on startup. Stale drops are expected there and ignored.
func (e *Engine) Backfill(key baseline.Key, ts time.Time, value float64) error {
	_, err := e.baselines.Update(key, ts, value)
	if errors.IsStale(err) {
		return nil
	}
	return err
}
