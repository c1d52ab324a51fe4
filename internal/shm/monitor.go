package shm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// busPollInterval bounds how long a monitor waits for a bus message before
// rechecking its context.
const busPollInterval = 50 * time.Millisecond

// errEndOfStream is returned by MonitorBus when the peer stops publishing.
var errEndOfStream = errors.New("end of stream")

// MonitorBus polls the pipeline bus until ctx ends or the pipeline breaks.
//
// This function:
//  1. Polls the bus with a short timeout for responsive shutdown
//  2. Classifies and counts errors
//  3. Resets the reconnect state when the pipeline reaches PLAYING
//
// Returns nil on cancellation, an error on EOS or pipeline error.
func MonitorBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	label string,
	counters *ErrorCounters,
	state *ReconnectState,
) error {
	if pipeline == nil {
		return fmt.Errorf("shm: pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("shm: context cancelled, stopping bus monitor", "pipeline", label)
			return nil
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("shm: end of stream", "pipeline", label, "uptime", time.Since(started))
			return errEndOfStream

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			if counters != nil {
				counters.Add(category)
			}

			slog.Error("shm: pipeline error",
				"pipeline", label,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"uptime", time.Since(started),
			)
			return fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			slog.Warn("shm: pipeline warning", "pipeline", label, "warning", gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				slog.Debug("shm: pipeline state changed", "pipeline", label, "from", old, "to", next)

				if next == gst.StatePlaying && state != nil {
					state.Reset()
				}
			}
		}
	}
}

// destroyPipeline stops a pipeline and releases its resources. Safe on nil.
func destroyPipeline(p *gst.Pipeline) error {
	if p == nil {
		return nil
	}
	if err := p.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("shm: failed to set pipeline to NULL: %w", err)
	}
	return nil
}
