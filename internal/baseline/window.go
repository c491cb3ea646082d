package baseline

import (
	"math"
	"time"
)

// bucket is one granularity-aligned accumulation slot
type bucket struct {
	start time.Time
	value float64
}

// window is a fixed-capacity circular buffer of buckets with running
// sum and sum-of-squares, so mean and variance update in O(1) per
// bucket change instead of rescanning history.
type window struct {
	buckets []bucket
	head    int // index of the oldest bucket
	count   int
	sum     float64
	sumSq   float64
}

func newWindow(capacity int) *window {
	return &window{buckets: make([]bucket, capacity)}
}

func (w *window) capacity() int { return len(w.buckets) }

// at returns the i-th retained bucket, oldest first
func (w *window) at(i int) *bucket {
	return &w.buckets[(w.head+i)%len(w.buckets)]
}

func (w *window) newest() *bucket {
	return w.at(w.count - 1)
}

// floor returns the start of the oldest retained bucket
func (w *window) floor() time.Time {
	if w.count == 0 {
		return time.Time{}
	}
	return w.at(0).start
}

// push appends a bucket, evicting the oldest when full
func (w *window) push(start time.Time, value float64) {
	if w.count == len(w.buckets) {
		oldest := w.at(0)
		w.sum -= oldest.value
		w.sumSq -= oldest.value * oldest.value
		w.head = (w.head + 1) % len(w.buckets)
		w.count--
	}
	*w.at(w.count) = bucket{start: start, value: value}
	w.count++
	w.sum += value
	w.sumSq += value * value
}

// accumulate adds value into the i-th retained bucket
func (w *window) accumulate(i int, value float64) {
	b := w.at(i)
	old := b.value
	b.value += value
	w.sum += value
	w.sumSq += b.value*b.value - old*old
}

// find returns the index of the retained bucket with the given start,
// or -1 when it is not retained
func (w *window) find(start time.Time) int {
	for i := 0; i < w.count; i++ {
		if w.at(i).start.Equal(start) {
			return i
		}
	}
	return -1
}

func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

func (w *window) stddev() float64 {
	if w.count == 0 {
		return 0
	}
	m := w.mean()
	// Guard against tiny negative variance from float rounding
	variance := w.sumSq/float64(w.count) - m*m
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// values returns the retained bucket values, oldest first
func (w *window) values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.at(i).value
	}
	return out
}
