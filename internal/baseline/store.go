// Package baseline maintains per-series rolling statistics with a
// fixed memory footprint. Every detector in the engine reads from the
// snapshots this store produces.
package baseline

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/solapur-gov/healthgrid/internal/shared/errors"
	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
)

// Scope is the aggregation granularity of a series
type Scope string

const (
	ScopeFacility Scope = "FACILITY"
	ScopeWard     Scope = "WARD"
	ScopeCity     Scope = "CITY"
)

// Key identifies one rolling series
type Key struct {
	Scope     Scope
	ScopeID   string // facility_id, ward name, or "" for city
	Indicator string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Scope, k.ScopeID, k.Indicator)
}

// Snapshot is the detector-facing view of one series
type Snapshot struct {
	Key         Key
	Mean        float64
	StdDev      float64
	Latest      float64 // value of the newest bucket
	LatestStart time.Time
	BucketCount int
	WindowFloor time.Time
	// Values holds retained bucket values, oldest first. Length is
	// bounded by the configured window capacity.
	Values []float64
}

// series pairs a window with its own lock, so updates serialize per
// key while distinct keys proceed in parallel.
type series struct {
	mu  sync.Mutex
	win *window
}

// Store holds every tracked rolling window. The map lock only guards
// series creation and lookup; bucket mutation happens under the
// per-series lock.
type Store struct {
	mu          sync.RWMutex
	series      map[Key]*series
	capacity    int
	granularity time.Duration
}

// NewStore creates a store with the given window capacity (bucket
// count) and bucket granularity.
func NewStore(capacity int, granularity time.Duration) *Store {
	return &Store{
		series:      make(map[Key]*series),
		capacity:    capacity,
		granularity: granularity,
	}
}

func (s *Store) get(key Key) *series {
	s.mu.RLock()
	sr, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[key]; ok {
		return sr
	}
	sr = &series{win: newWindow(s.capacity)}
	s.series[key] = sr
	metrics.SetTrackedWindows(len(s.series))
	return sr
}

// Update folds (ts, value) into the series and returns the resulting
// snapshot. A timestamp in the current bucket accumulates; a later
// bucket rolls the window forward, zero-filling skipped buckets; an
// in-window historical bucket accumulates in place. A timestamp older
// than the window floor is dropped with errors.ErrStaleData and the
// window never rewinds.
func (s *Store) Update(key Key, ts time.Time, value float64) (Snapshot, error) {
	sr := s.get(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	w := sr.win
	start := ts.UTC().Truncate(s.granularity)

	switch {
	case w.count == 0:
		w.push(start, value)

	case start.After(w.newest().start):
		// Roll forward, zero-filling any skipped buckets. The gap is
		// capped at the capacity: anything older would be evicted
		// immediately anyway.
		gap := int(start.Sub(w.newest().start) / s.granularity)
		if gap > w.capacity() {
			fill := start.Add(-time.Duration(w.capacity()) * s.granularity)
			for i := 0; i < w.capacity()-1; i++ {
				fill = fill.Add(s.granularity)
				w.push(fill, 0)
			}
		} else {
			for next := w.newest().start.Add(s.granularity); next.Before(start); next = next.Add(s.granularity) {
				w.push(next, 0)
			}
		}
		w.push(start, value)

	default:
		// Out-of-order submission: accept into its historical bucket
		// when still retained, otherwise drop.
		i := w.find(start)
		if i < 0 {
			metrics.RecordStaleDrop()
			log.Printf("baseline: dropped stale bucket %s for %s (window floor %s)",
				start.Format(time.RFC3339), key, w.floor().Format(time.RFC3339))
			return s.snapshotLocked(key, w), errors.ErrStaleData
		}
		w.accumulate(i, value)
	}

	return s.snapshotLocked(key, w), nil
}

// Snapshot returns the current state of a series. The second return is
// false when the series has never been updated.
func (s *Store) Snapshot(key Key) (Snapshot, bool) {
	s.mu.RLock()
	sr, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{Key: key}, false
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	return s.snapshotLocked(key, sr.win), true
}

func (s *Store) snapshotLocked(key Key, w *window) Snapshot {
	snap := Snapshot{
		Key:         key,
		Mean:        w.mean(),
		StdDev:      w.stddev(),
		BucketCount: w.count,
		WindowFloor: w.floor(),
		Values:      w.values(),
	}
	if w.count > 0 {
		snap.Latest = w.newest().value
		snap.LatestStart = w.newest().start
	}
	return snap
}

// Len returns the number of tracked series
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
