package shm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// stopTimeout bounds how long Close waits for the session goroutine.
const stopTimeout = 3 * time.Second

// ReaderStats is a snapshot of reader transport counters.
type ReaderStats struct {
	Deliveries   uint64
	BytesRead    uint64
	EmptySamples uint64
	Sessions     uint64
	Reconnects   uint64
	Errors       ErrorStats
	Running      bool
}

type readerElements struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
}

// GstReader receives frames from a shmsink socket.
type GstReader struct {
	name      string
	reconnect ReconnectConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	seq          atomic.Uint64
	bytesRead    atomic.Uint64
	emptySamples atomic.Uint64
	sessions     atomic.Uint64
	errors       ErrorCounters
	state        ReconnectState
}

// NewGstReader returns an idle reader. name labels its logs.
func NewGstReader(name string, reconnect ReconnectConfig) *GstReader {
	return &GstReader{name: name, reconnect: reconnect}
}

// Start binds the reader to path and begins delivering frames to handler.
//
// The pipeline is built synchronously so missing elements fail here. The
// socket itself may not exist yet: connecting happens in the background and
// retries with backoff until a writer shows up.
func (r *GstReader) Start(path string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrAlreadyStarted
	}

	first, err := r.buildPipeline(path, handler)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportOpen, path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, path, handler, first)

	slog.Info("shm: reader started", "reader", r.name, "path", path)
	return nil
}

func (r *GstReader) run(ctx context.Context, path string, handler Handler, first *readerElements) {
	defer close(r.done)

	session := func(ctx context.Context) error {
		el := first
		first = nil
		if el == nil {
			var err error
			if el, err = r.buildPipeline(path, handler); err != nil {
				return err
			}
		}
		defer func() {
			if err := destroyPipeline(el.pipeline); err != nil {
				slog.Warn("shm: reader teardown failed", "reader", r.name, "error", err)
			}
		}()

		r.sessions.Add(1)
		if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
			r.errors.Add(ErrCategoryTransport)
			return fmt.Errorf("shm: cannot play %s: %w", path, err)
		}
		return MonitorBus(ctx, el.pipeline, r.name, &r.errors, &r.state)
	}

	err := RunWithReconnect(ctx, session, r.reconnect, &r.state)
	if err != nil && ctx.Err() == nil {
		slog.Error("shm: reader stopped after reconnection failure",
			"reader", r.name,
			"path", path,
			"error", err,
			"deliveries", r.seq.Load(),
			"reconnects", r.state.Reconnects(),
		)
	}

	// a first pipeline that never ran still holds resources
	if first != nil {
		_ = destroyPipeline(first.pipeline)
	}
}

// buildPipeline creates shmsrc ! gdpdepay ! appsink, configured but not
// started.
func (r *GstReader) buildPipeline(path string, handler Handler) (*readerElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("shmsrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create shmsrc: %w", err)
	}
	src.SetProperty("socket-path", path)
	src.SetProperty("is-live", true)

	depay, err := gst.NewElement("gdpdepay")
	if err != nil {
		return nil, fmt.Errorf("failed to create gdpdepay: %w", err)
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)

	if err := pipeline.AddMany(src, depay, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, depay, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link reader pipeline: %w", err)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return r.onNewSample(s, handler)
		},
	})

	return &readerElements{pipeline: pipeline, sink: sink}, nil
}

// onNewSample hands one sample to the handler.
//
// This callback:
//  1. Pulls the sample and its caps
//  2. Maps the buffer read-only (no copy)
//  3. Calls the handler synchronously
//  4. Unmaps the buffer once, whatever the handler did
//
// A bad sample is skipped rather than failing the stream.
func (r *GstReader) onNewSample(sink *app.Sink, handler Handler) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("shm: failed to pull sample, skipping", "reader", r.name)
		return gst.FlowOK
	}

	var capability string
	if caps := sample.GetCaps(); caps != nil {
		capability = caps.String()
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("shm: sample without buffer, skipping", "reader", r.name)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		r.emptySamples.Add(1)
		slog.Debug("shm: empty buffer received", "reader", r.name)
		return gst.FlowOK
	}

	seq := r.seq.Add(1)
	r.bytesRead.Add(uint64(len(data)))

	d := NewDelivery(capability, data, seq, buffer.Unmap)
	defer d.Release()

	handler(d)
	return gst.FlowOK
}

// Stats returns a snapshot of the counters.
func (r *GstReader) Stats() ReaderStats {
	r.mu.Lock()
	running := r.cancel != nil
	r.mu.Unlock()

	return ReaderStats{
		Deliveries:   r.seq.Load(),
		BytesRead:    r.bytesRead.Load(),
		EmptySamples: r.emptySamples.Load(),
		Sessions:     r.sessions.Load(),
		Reconnects:   r.state.Reconnects(),
		Errors:       r.errors.Snapshot(),
		Running:      running,
	}
}

// Close stops the session and tears the pipeline down. Idempotent.
func (r *GstReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		slog.Warn("shm: reader stop timeout exceeded", "reader", r.name)
	}

	r.cancel = nil
	slog.Info("shm: reader stopped", "reader", r.name, "deliveries", r.seq.Load())
	return nil
}

// Available reports whether the shm and gdp elements can be created.
func Available() error {
	gst.Init(nil)

	for _, factory := range []string{"shmsrc", "shmsink", "gdppay", "gdpdepay", "appsrc", "appsink"} {
		elem, err := gst.NewElement(factory)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotAvailable, factory, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}
