package warmup

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"testing/quick"
	"time"
)

// TestAnalyze_StabilityThresholds checks the stability criteria:
// FPS stddev < 15% of mean AND jitter < 20% of interval.
func TestAnalyze_StabilityThresholds(t *testing.T) {
	t.Run("stable source", func(t *testing.T) {
		frameTimes := generateFrameTimes(120, 60.0, 0.05)
		stats := Analyze(frameTimes, 2*time.Second)

		if !stats.IsStable {
			t.Errorf("Expected stable source, got IsStable=false (FPS stddev: %.2f%%, jitter: %.2f%%)",
				(stats.FPSStdDev/stats.FPSMean)*100,
				(stats.JitterMean*stats.FPSMean)*100,
			)
		}
	})

	t.Run("unstable source", func(t *testing.T) {
		frameTimes := generateFrameTimes(60, 1.0, 0.45)
		stats := Analyze(frameTimes, 60*time.Second)

		if stats.IsStable {
			t.Errorf("Expected unstable source (high jitter), got IsStable=true (jitter: %.2f%%)",
				(stats.JitterMean*stats.FPSMean)*100,
			)
		}
	})
}

// TestAnalyze_MonotonicRelationship: once jitter makes a source unstable,
// more jitter keeps it unstable.
func TestAnalyze_MonotonicRelationship(t *testing.T) {
	jitterLevels := []float64{0.05, 0.10, 0.20, 0.30, 0.45}
	previousStable := true

	for i, jitter := range jitterLevels {
		stats := Analyze(generateFrameTimes(50, 1.0, jitter), 50*time.Second)

		t.Logf("Jitter %.0f%% → IsStable=%v (FPS stddev: %.2f%%)",
			jitter*100, stats.IsStable, (stats.FPSStdDev/stats.FPSMean)*100)

		if i > 0 && !previousStable && stats.IsStable {
			t.Errorf("Monotonic violation: jitter %.0f%% → %.0f%% flipped stability back to true",
				jitterLevels[i-1]*100, jitter*100)
		}
		previousStable = stats.IsStable
	}
}

func TestAnalyze_EdgeCases(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		frameTimes []time.Time
		duration   time.Duration
		wantStable bool
		wantFPS    float64
	}{
		{"zero frames", nil, time.Second, false, 0},
		{"one frame", []time.Time{base}, time.Second, false, 0},
		{"one frame after a long wait", []time.Time{base}, 10 * time.Millisecond, false, 0},
		{"two frames", []time.Time{base, base.Add(time.Second)}, time.Second, false, 1},
		{"same timestamp", []time.Time{base, base, base}, time.Second, false, 3},
		{"three even frames", []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}, 2 * time.Second, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Analyze(tt.frameTimes, tt.duration)

			if stats == nil {
				t.Fatal("Analyze returned nil")
			}
			if stats.FPSStdDev < 0 || stats.JitterMean < 0 || stats.JitterMax < 0 {
				t.Errorf("Negative spread: %+v", stats)
			}
			if stats.IsStable != tt.wantStable {
				t.Errorf("Expected IsStable=%v, got %v", tt.wantStable, stats.IsStable)
			}
			if math.Abs(stats.FPSMean-tt.wantFPS) > 1e-9 {
				t.Errorf("Expected FPSMean=%.2f, got %.2f", tt.wantFPS, stats.FPSMean)
			}
		})
	}
}

// Property: jitter metrics are non-negative and max >= mean.
func TestAnalyze_JitterBounds(t *testing.T) {
	f := func(fps float64, numFrames uint8) bool {
		if fps < 0.1 || fps > 60.0 || numFrames < 2 || numFrames > 200 {
			return true
		}

		stats := Analyze(generateFrameTimes(int(numFrames), fps, 0.1), 0)

		if stats.JitterMean < 0 || stats.JitterStdDev < 0 || stats.JitterMax < 0 {
			t.Logf("FAIL: negative jitter with fps=%.2f, frames=%d", fps, numFrames)
			return false
		}
		if stats.JitterMax < stats.JitterMean {
			t.Logf("FAIL: JitterMax (%.6f) < JitterMean (%.6f)", stats.JitterMax, stats.JitterMean)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: FPSMin <= FPSMean <= FPSMax. The span-based mean is a harmonic
// mean of the instantaneous rates, so it always lies between them.
func TestAnalyze_FPSBounds(t *testing.T) {
	f := func(fps float64, numFrames uint8) bool {
		if fps < 0.1 || fps > 60.0 || numFrames < 2 || numFrames > 200 {
			return true
		}

		stats := Analyze(generateFrameTimes(int(numFrames), fps, 0.1), 0)

		const tolerance = 1e-6
		if stats.FPSMin > stats.FPSMean+tolerance || stats.FPSMax < stats.FPSMean-tolerance {
			t.Logf("FAIL: min=%.4f mean=%.4f max=%.4f", stats.FPSMin, stats.FPSMean, stats.FPSMax)
			return false
		}
		return stats.FPSStdDev >= 0
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: the measured mean tracks the generated rate.
func TestAnalyze_RateConsistency(t *testing.T) {
	f := func(fps float64, numFrames uint8) bool {
		if fps < 0.1 || fps > 60.0 || numFrames < 10 {
			return true
		}

		stats := Analyze(generateFrameTimes(int(numFrames), fps, 0.05), 0)
		if math.Abs(stats.FPSMean-fps) > fps*0.10 {
			t.Logf("FAIL: FPSMean (%.2f) deviates from %.2f by more than 10%%", stats.FPSMean, fps)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

func TestSuggestedRate(t *testing.T) {
	if got := SuggestedRate(nil, 30); got != 30 {
		t.Errorf("nil stats: got %.2f", got)
	}
	if got := SuggestedRate(&Stats{FPSMean: 60}, 30); got != 30 {
		t.Errorf("fast source: got %.2f", got)
	}
	if got := SuggestedRate(&Stats{FPSMean: 10}, 30); math.Abs(got-9) > 1e-9 {
		t.Errorf("slow source: got %.2f", got)
	}
}

func TestMeasureWith_StableSource(t *testing.T) {
	type event struct {
		n  uint64
		at time.Time
	}

	source := make(chan event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		var n uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n++
				select {
				case source <- event{n: n, at: now}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stats, err := MeasureWith(ctx, source, 200*time.Millisecond, func(e event) Tick {
		return Tick{Seq: e.n, Timestamp: e.at}
	})
	if err != nil && !errors.Is(err, ErrUnstable) {
		t.Fatalf("MeasureWith failed: %v", err)
	}
	if stats == nil || stats.FramesReceived < 2 {
		t.Fatalf("Expected frames, got %+v", stats)
	}
}

func TestMeasure_Errors(t *testing.T) {
	t.Run("closed source", func(t *testing.T) {
		ticks := make(chan Tick)
		close(ticks)

		_, err := Measure(context.Background(), ticks, time.Second)
		if !errors.Is(err, ErrSourceClosed) {
			t.Errorf("Expected ErrSourceClosed, got %v", err)
		}
	})

	t.Run("silent source", func(t *testing.T) {
		_, err := Measure(context.Background(), make(chan Tick), 20*time.Millisecond)
		if !errors.Is(err, ErrNotEnoughFrames) {
			t.Errorf("Expected ErrNotEnoughFrames, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Measure(ctx, make(chan Tick), time.Second)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

// generateFrameTimes produces arrivals at targetFPS with uniform jitter of
// ±jitterFraction of the interval.
func generateFrameTimes(numFrames int, targetFPS, jitterFraction float64) []time.Time {
	if numFrames < 1 {
		return nil
	}

	interval := 1.0 / targetFPS
	frameTimes := make([]time.Time, numFrames)
	frameTimes[0] = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rng := rand.New(rand.NewSource(42))
	for i := 1; i < numFrames; i++ {
		offset := (rng.Float64()*2 - 1) * jitterFraction * interval
		frameTimes[i] = frameTimes[i-1].Add(time.Duration((interval + offset) * float64(time.Second)))
	}
	return frameTimes
}

func BenchmarkAnalyze(b *testing.B) {
	frameTimes := generateFrameTimes(120, 60.0, 0.1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Analyze(frameTimes, 2*time.Second)
	}
}
