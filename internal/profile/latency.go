// Package profile records how long named scopes take and summarises the
// recent history of each scope as mean, P95 and max.
package profile

import "sort"

// windowSize is the number of recent samples a LatencyWindow keeps.
const windowSize = 100

// LatencyWindow is a fixed-size ring buffer of latency samples in
// milliseconds.
//
// It is a plain value: copying a window copies its samples. It is not safe
// for concurrent use; callers serialize access or publish copies through an
// atomic.Pointer.
type LatencyWindow struct {
	Samples [windowSize]float64
	Index   int // next write position
	Count   int // valid samples, capped at len(Samples)
}

// AddSample appends a sample, overwriting the oldest one when full.
func (w *LatencyWindow) AddSample(ms float64) {
	w.Samples[w.Index] = ms
	w.Index = (w.Index + 1) % len(w.Samples)
	if w.Count < len(w.Samples) {
		w.Count++
	}
}

// GetStats returns mean, P95 and max of the stored samples.
// An empty window returns zeros.
func (w *LatencyWindow) GetStats() (mean, p95, max float64) {
	if w.Count == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, w.Count)
	copy(sorted, w.Samples[:w.Count])
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean = sum / float64(w.Count)

	p95 = sorted[int(float64(w.Count-1)*0.95)]
	max = sorted[w.Count-1]
	return mean, p95, max
}
