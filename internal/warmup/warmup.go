// Package warmup measures how steadily a shared-memory source delivers
// frames before consumers start relying on it.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// adapterBufferSize is the buffer of the channel between an adapted source
// and the measurement loop.
const adapterBufferSize = 10

var (
	// ErrSourceClosed is returned when the tick channel closes early.
	ErrSourceClosed = errors.New("warmup: source closed during warm-up")

	// ErrNotEnoughFrames is returned when fewer than two frames arrive.
	ErrNotEnoughFrames = errors.New("warmup: not enough frames")

	// ErrUnstable is returned when delivery timing is outside thresholds.
	ErrUnstable = errors.New("warmup: delivery rate unstable")
)

// Tick is one frame arrival.
type Tick struct {
	Seq       uint64
	Timestamp time.Time
}

// Measure consumes ticks for duration and reports delivery statistics.
//
// Stats are returned alongside ErrUnstable so callers can log them and
// decide whether to continue anyway. Cancelling ctx ends the measurement
// early with ctx.Err().
func Measure(ctx context.Context, ticks <-chan Tick, duration time.Duration) (*Stats, error) {
	slog.Info("warmup: measuring delivery", "duration", duration)

	start := time.Now()
	frameTimes := make([]time.Time, 0, 128)

	timer := time.NewTimer(duration)
	defer timer.Stop()

collect:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			break collect

		case tick, ok := <-ticks:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w after %d frames", ErrSourceClosed, len(frameTimes))
			}
			frameTimes = append(frameTimes, tick.Timestamp)
			slog.Debug("warmup: frame", "seq", tick.Seq, "collected", len(frameTimes))
		}
	}

	if len(frameTimes) < 2 {
		return nil, fmt.Errorf("%w: got %d, need at least 2", ErrNotEnoughFrames, len(frameTimes))
	}

	stats := Analyze(frameTimes, time.Since(start))

	slog.Info("warmup: complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.4fs", stats.JitterMean),
		"stable", stats.IsStable,
	)

	if !stats.IsStable {
		return stats, fmt.Errorf("%w (mean=%.2f Hz, stddev=%.2f, jitter=%.4fs)",
			ErrUnstable, stats.FPSMean, stats.FPSStdDev, stats.JitterMean)
	}
	return stats, nil
}

// MeasureWith adapts a channel of any event type into ticks and measures it.
func MeasureWith[T any](
	ctx context.Context,
	source <-chan T,
	duration time.Duration,
	toTick func(T) Tick,
) (*Stats, error) {
	ticks := make(chan Tick, adapterBufferSize)

	adapterCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer close(ticks)
		for {
			select {
			case <-adapterCtx.Done():
				return
			case ev, ok := <-source:
				if !ok {
					return
				}
				select {
				case ticks <- toTick(ev):
				case <-adapterCtx.Done():
					return
				}
			}
		}
	}()

	return Measure(ctx, ticks, duration)
}
