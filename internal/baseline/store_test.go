package baseline

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/solapur-gov/healthgrid/internal/shared/errors"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func facilityKey(id string) Key {
	return Key{Scope: ScopeFacility, ScopeID: id, Indicator: "Dengue Cases"}
}

func TestAccumulateWithinBucket(t *testing.T) {
	store := NewStore(24, time.Hour)
	key := facilityKey("HSP-001")

	store.Update(key, t0, 5)
	store.Update(key, t0.Add(10*time.Minute), 3)
	snap, err := store.Update(key, t0.Add(59*time.Minute), 2)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if snap.BucketCount != 1 {
		t.Fatalf("expected 1 bucket, got %d", snap.BucketCount)
	}
	if snap.Latest != 10 {
		t.Errorf("expected accumulated value 10, got %g", snap.Latest)
	}
	if snap.Mean != 10 {
		t.Errorf("expected mean 10, got %g", snap.Mean)
	}
}

func TestWindowRollEvictsOldest(t *testing.T) {
	store := NewStore(3, time.Hour)
	key := facilityKey("HSP-001")

	for i := 0; i < 5; i++ {
		store.Update(key, t0.Add(time.Duration(i)*time.Hour), float64(i+1))
	}

	snap, ok := store.Snapshot(key)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snap.BucketCount != 3 {
		t.Fatalf("expected 3 buckets after roll, got %d", snap.BucketCount)
	}
	// Values 3, 4, 5 retained
	want := []float64{3, 4, 5}
	for i, v := range snap.Values {
		if v != want[i] {
			t.Errorf("bucket %d: expected %g, got %g", i, want[i], v)
		}
	}
	if snap.WindowFloor != t0.Add(2*time.Hour) {
		t.Errorf("expected floor %s, got %s", t0.Add(2*time.Hour), snap.WindowFloor)
	}
}

func TestBucketCountNeverExceedsCapacity(t *testing.T) {
	store := NewStore(6, time.Hour)
	key := facilityKey("PHC-042")

	for i := 0; i < 100; i++ {
		snap, _ := store.Update(key, t0.Add(time.Duration(i)*time.Hour), float64(i%7))
		if snap.BucketCount > 6 {
			t.Fatalf("bucket count %d exceeds capacity at step %d", snap.BucketCount, i)
		}
	}
}

func TestRunningMeanMatchesArithmeticMean(t *testing.T) {
	store := NewStore(8, time.Hour)
	key := facilityKey("HSP-002")

	inputs := []float64{4, 9, 1, 16, 25, 3, 7, 12, 8, 2, 30, 5}
	var snap Snapshot
	for i, v := range inputs {
		snap, _ = store.Update(key, t0.Add(time.Duration(i)*time.Hour), v)
	}

	var sum float64
	for _, v := range snap.Values {
		sum += v
	}
	want := sum / float64(len(snap.Values))
	if math.Abs(snap.Mean-want) > 1e-9 {
		t.Errorf("running mean %g diverged from arithmetic mean %g", snap.Mean, want)
	}

	var sq float64
	for _, v := range snap.Values {
		sq += (v - want) * (v - want)
	}
	wantDev := math.Sqrt(sq / float64(len(snap.Values)))
	if math.Abs(snap.StdDev-wantDev) > 1e-9 {
		t.Errorf("running stddev %g diverged from direct stddev %g", snap.StdDev, wantDev)
	}
}

func TestOutOfOrderInWindowAccumulates(t *testing.T) {
	store := NewStore(24, time.Hour)
	key := facilityKey("HSP-003")

	store.Update(key, t0, 5)
	store.Update(key, t0.Add(2*time.Hour), 7)

	// Late arrival for the first bucket
	snap, err := store.Update(key, t0.Add(30*time.Minute), 4)
	if err != nil {
		t.Fatalf("in-window historical update should succeed, got %v", err)
	}
	if snap.Values[0] != 9 {
		t.Errorf("expected historical bucket to accumulate to 9, got %g", snap.Values[0])
	}
	// Newest bucket untouched
	if snap.Latest != 7 {
		t.Errorf("expected latest 7, got %g", snap.Latest)
	}
}

func TestStaleUpdateDroppedWithoutRewind(t *testing.T) {
	store := NewStore(3, time.Hour)
	key := facilityKey("HSP-004")

	for i := 0; i < 5; i++ {
		store.Update(key, t0.Add(time.Duration(i)*time.Hour), 10)
	}
	before, _ := store.Snapshot(key)

	// Older than the retained floor
	_, err := store.Update(key, t0, 99)
	if !errors.IsStale(err) {
		t.Fatalf("expected ErrStaleData, got %v", err)
	}

	after, _ := store.Snapshot(key)
	if after.BucketCount != before.BucketCount || after.Mean != before.Mean {
		t.Error("stale update must not change window state")
	}
	if !after.WindowFloor.Equal(before.WindowFloor) {
		t.Error("stale update must not rewind the window floor")
	}
}

func TestGapZeroFills(t *testing.T) {
	store := NewStore(24, time.Hour)
	key := facilityKey("LAB-001")

	store.Update(key, t0, 6)
	snap, _ := store.Update(key, t0.Add(3*time.Hour), 12)

	if snap.BucketCount != 4 {
		t.Fatalf("expected 4 buckets (2 zero-filled), got %d", snap.BucketCount)
	}
	want := []float64{6, 0, 0, 12}
	for i, v := range snap.Values {
		if v != want[i] {
			t.Errorf("bucket %d: expected %g, got %g", i, want[i], v)
		}
	}
}

func TestHugeGapResetsWithinCapacity(t *testing.T) {
	store := NewStore(4, time.Hour)
	key := facilityKey("HSP-005")

	store.Update(key, t0, 50)
	snap, _ := store.Update(key, t0.Add(1000*time.Hour), 7)

	if snap.BucketCount != 4 {
		t.Fatalf("expected full window after huge gap, got %d buckets", snap.BucketCount)
	}
	if snap.Latest != 7 {
		t.Errorf("expected latest 7, got %g", snap.Latest)
	}
	// The pre-gap bucket is long evicted
	for i := 0; i < snap.BucketCount-1; i++ {
		if snap.Values[i] != 0 {
			t.Errorf("expected zero-filled bucket at %d, got %g", i, snap.Values[i])
		}
	}
}

func TestSnapshotUnknownKey(t *testing.T) {
	store := NewStore(24, time.Hour)
	if _, ok := store.Snapshot(facilityKey("nope")); ok {
		t.Error("expected ok=false for unknown key")
	}
}

func TestConcurrentUpdatesAcrossKeys(t *testing.T) {
	store := NewStore(24, time.Hour)

	var wg sync.WaitGroup
	for f := 0; f < 8; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			key := facilityKey(string(rune('A' + f)))
			for i := 0; i < 200; i++ {
				store.Update(key, t0.Add(time.Duration(i%30)*time.Hour), 1)
			}
		}(f)
	}
	wg.Wait()

	if store.Len() != 8 {
		t.Errorf("expected 8 tracked series, got %d", store.Len())
	}
	for f := 0; f < 8; f++ {
		snap, ok := store.Snapshot(facilityKey(string(rune('A' + f))))
		if !ok {
			t.Fatalf("missing series %d", f)
		}
		if snap.BucketCount > 24 {
			t.Errorf("series %d exceeded capacity: %d", f, snap.BucketCount)
		}
	}
}

func TestConcurrentSameKeyNoTornState(t *testing.T) {
	store := NewStore(12, time.Hour)
	key := facilityKey("HSP-CONC")

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				store.Update(key, t0, 1)
			}
		}()
	}
	wg.Wait()

	snap, _ := store.Snapshot(key)
	if snap.Latest != 1000 {
		t.Errorf("expected 1000 accumulated into one bucket, got %g", snap.Latest)
	}
	if snap.BucketCount != 1 {
		t.Errorf("expected 1 bucket, got %d", snap.BucketCount)
	}
}
