package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of the mean. 60 FPS is stable while stddev < 9 FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected inter-frame interval. 60 FPS (16.7ms) is stable while
	// mean jitter < 3.3ms.
	jitterStabilityThreshold = 0.20

	// minIntervals is the number of inter-frame intervals needed before a
	// source can be called stable.
	minIntervals = 2
)

// Stats describes delivery timing observed during warm-up.
type Stats struct {
	FramesReceived int           // frames seen during warm-up
	Duration       time.Duration // wall time of the warm-up
	FPSMean        float64       // frames per second over the first-to-last span
	FPSStdDev      float64       // stddev of instantaneous FPS
	FPSMin         float64       // slowest instantaneous FPS
	FPSMax         float64       // fastest instantaneous FPS
	IsStable       bool          // stddev < 15% of mean AND jitter < 20% of interval
	JitterMean     float64       // mean deviation from the expected interval (seconds)
	JitterStdDev   float64       // stddev of that deviation (seconds)
	JitterMax      float64       // worst deviation (seconds)
}

// Analyze computes timing statistics from frame arrival times.
//
// The mean rate is taken over the span between the first and last frame,
// so time spent waiting for the first frame does not lower it. Fewer than
// two frames give no rate. When all frames share one timestamp the rate
// falls back to frames/total.
func Analyze(frameTimes []time.Time, total time.Duration) *Stats {
	stats := &Stats{
		FramesReceived: len(frameTimes),
		Duration:       total,
	}
	if len(frameTimes) < 2 {
		return stats
	}

	intervals := make([]float64, 0, len(frameTimes)-1)
	for i := 1; i < len(frameTimes); i++ {
		if d := frameTimes[i].Sub(frameTimes[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}

	if len(intervals) == 0 {
		if total > 0 {
			stats.FPSMean = float64(len(frameTimes)) / total.Seconds()
		}
		return stats
	}

	var span float64
	for _, d := range intervals {
		span += d
	}
	stats.FPSMean = float64(len(intervals)) / span

	instantaneous := make([]float64, len(intervals))
	for i, d := range intervals {
		instantaneous[i] = 1.0 / d
	}
	stats.FPSMin, stats.FPSMax = minMax(instantaneous)
	stats.FPSStdDev = stdDevAround(instantaneous, stats.FPSMean)

	expected := 1.0 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, d := range intervals {
		jitters[i] = math.Abs(d - expected)
	}
	stats.JitterMean = mean(jitters)
	_, stats.JitterMax = minMax(jitters)
	stats.JitterStdDev = stdDevAround(jitters, stats.JitterMean)

	fpsStable := stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold
	jitterStable := stats.JitterMean < expected*jitterStabilityThreshold
	stats.IsStable = len(intervals) >= minIntervals && fpsStable && jitterStable

	return stats
}

// SuggestedRate caps a consumer's polling rate to what the source delivers.
//
// If the source is slower than maxRate the result is 90% of the measured
// rate, otherwise maxRate.
func SuggestedRate(stats *Stats, maxRate float64) float64 {
	if stats == nil || stats.FPSMean <= 0 {
		return maxRate
	}
	if stats.FPSMean < maxRate {
		return stats.FPSMean * 0.9
	}
	return maxRate
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDevAround(xs []float64, center float64) float64 {
	var sq float64
	for _, x := range xs {
		d := x - center
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
