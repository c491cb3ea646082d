// Package fleet maintains live ambulance positions and answers
// k-nearest-available queries over them. The fleet is small, hundreds
// of vehicles at most, so queries scan a snapshot linearly.
package fleet

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
)

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	lat1 *= degToRad
	lng1 *= degToRad
	lat2 *= degToRad
	lng2 *= degToRad
	dlat := lat2 - lat1
	dlng := lng2 - lng1
	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Index holds fleet state. Writers serialize on mu and publish a
// fresh immutable snapshot; queries read the snapshot without locks,
// so a concurrent update is either fully visible or not at all.
type Index struct {
	mu       sync.Mutex
	vehicles map[string]Ambulance
	snap     atomic.Pointer[[]Ambulance]

	freshness time.Duration
	now       func() time.Time
}

// NewIndex creates an index. freshness bounds how old a position
// report may be before the vehicle stops being a dispatch candidate.
func NewIndex(freshness time.Duration) *Index {
	idx := &Index{
		vehicles:  make(map[string]Ambulance),
		freshness: freshness,
		now:       time.Now,
	}
	empty := make([]Ambulance, 0)
	idx.snap.Store(&empty)
	return idx
}

// Upsert records a position or status report for one vehicle.
func (idx *Index) Upsert(amb Ambulance) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vehicles[amb.VehicleID] = amb
	idx.publishLocked()
}

func (idx *Index) publishLocked() {
	snap := make([]Ambulance, 0, len(idx.vehicles))
	for _, v := range idx.vehicles {
		snap = append(snap, v)
	}
	idx.snap.Store(&snap)
}

// Get returns one vehicle's last known state.
func (idx *Index) Get(vehicleID string) (Ambulance, bool) {
	for _, v := range *idx.snap.Load() {
		if v.VehicleID == vehicleID {
			return v, true
		}
	}
	return Ambulance{}, false
}

// Nearest ranks vehicles by great-circle distance from the query
// point, ascending, ties broken by vehicle_id. availableOnly keeps
// only AVAILABLE vehicles with a fresh position; vehicles dropped for
// staleness are reported separately so dispatchers see why a unit is
// missing. An empty fleet yields an empty result, not an error.
func (idx *Index) Nearest(lat, lng float64, k int, availableOnly bool) ([]NearestResult, []StaleVehicle) {
	start := idx.now()
	defer func() { metrics.ObserveNearestQuery(time.Since(start)) }()

	cutoff := start.Add(-idx.freshness)

	type ranked struct {
		amb  Ambulance
		dist float64
	}
	var stale []StaleVehicle
	candidates := make([]ranked, 0, k)
	for _, v := range *idx.snap.Load() {
		if availableOnly {
			if v.Status != StatusAvailable {
				continue
			}
			if v.LastUpdated.Before(cutoff) {
				stale = append(stale, StaleVehicle{
					VehicleID:   v.VehicleID,
					Reason:      "STALE",
					LastUpdated: v.LastUpdated,
				})
				continue
			}
		}
		candidates = append(candidates, ranked{amb: v, dist: haversineKm(lat, lng, v.Lat, v.Lng)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].amb.VehicleID < candidates[j].amb.VehicleID
	})

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]NearestResult, len(candidates))
	for i, c := range candidates {
		out[i] = NearestResult{
			VehicleID:  c.amb.VehicleID,
			Ward:       c.amb.Ward,
			Status:     c.amb.Status,
			DistanceKm: math.Round(c.dist*100) / 100,
			Lat:        c.amb.Lat,
			Lng:        c.amb.Lng,
		}
	}
	return out, stale
}

// StatusSummary counts the fleet by status. O(fleet size).
func (idx *Index) StatusSummary() Summary {
	snap := *idx.snap.Load()
	sum := Summary{
		Total: len(snap),
		ByStatus: map[Status]int{
			StatusAvailable: 0,
			StatusBusy:      0,
			StatusOffline:   0,
		},
	}
	for _, v := range snap {
		sum.ByStatus[v.Status]++
	}
	if sum.Total > 0 {
		sum.AvailabilityRate = math.Round(float64(sum.ByStatus[StatusAvailable])/float64(sum.Total)*1000) / 10
	}
	return sum
}
