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

// WriterStats is a snapshot of writer transport counters.
type WriterStats struct {
	Pushed      uint64
	BytesPushed uint64
	PushErrors  uint64
	Opens       uint64
	Errors      ErrorStats
	Open        bool
}

type writerElements struct {
	pipeline *gst.Pipeline
	src      *app.Source
	cancel   context.CancelFunc
	done     chan struct{}
}

// GstWriter publishes frames on a shmsink socket.
//
// Open, Push and Close are safe for concurrent use but the frame writer
// above serializes them anyway.
type GstWriter struct {
	name string

	mu  sync.Mutex
	cur *writerElements

	pushed      atomic.Uint64
	bytesPushed atomic.Uint64
	pushErrors  atomic.Uint64
	opens       atomic.Uint64
	errors      ErrorCounters
}

// NewGstWriter returns a closed writer. name labels its logs.
func NewGstWriter(name string) *GstWriter {
	return &GstWriter{name: name}
}

// Open binds the writer to path, announcing caps. Any previous binding is
// closed first.
func (w *GstWriter) Open(path, caps string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeLocked()

	el, err := buildWriterPipeline(path, caps)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportOpen, path, err)
	}

	if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
		w.errors.Add(ErrCategoryTransport)
		_ = destroyPipeline(el.pipeline)
		return fmt.Errorf("%w: %s: %v", ErrTransportOpen, path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	el.cancel = cancel
	el.done = make(chan struct{})
	go func() {
		defer close(el.done)
		if err := MonitorBus(ctx, el.pipeline, w.name, &w.errors, nil); err != nil {
			slog.Warn("shm: writer pipeline stopped", "writer", w.name, "path", path, "error", err)
		}
	}()

	w.cur = el
	w.opens.Add(1)
	slog.Info("shm: writer opened", "writer", w.name, "path", path, "caps", caps)
	return nil
}

// buildWriterPipeline creates appsrc ! gdppay ! shmsink.
func buildWriterPipeline(path, caps string) (*writerElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(caps))
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("is-live", true)

	pay, err := gst.NewElement("gdppay")
	if err != nil {
		return nil, fmt.Errorf("failed to create gdppay: %w", err)
	}

	sink, err := gst.NewElement("shmsink")
	if err != nil {
		return nil, fmt.Errorf("failed to create shmsink: %w", err)
	}
	sink.SetProperty("socket-path", path)
	sink.SetProperty("wait-for-connection", false)
	sink.SetProperty("sync", false)

	if err := pipeline.AddMany(src.Element, pay, sink); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, pay, sink); err != nil {
		return nil, fmt.Errorf("failed to link writer pipeline: %w", err)
	}

	return &writerElements{pipeline: pipeline, src: src}, nil
}

// Push publishes one frame with presentation timestamp pts.
func (w *GstWriter) Push(data []byte, pts time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cur == nil {
		return ErrNotOpen
	}

	buffer := gst.NewBufferFromBytes(data)
	buffer.SetPresentationTimestamp(pts)

	if ret := w.cur.src.PushBuffer(buffer); ret != gst.FlowOK {
		w.pushErrors.Add(1)
		return fmt.Errorf("shm: push failed: %v", ret)
	}

	w.pushed.Add(1)
	w.bytesPushed.Add(uint64(len(data)))
	return nil
}

// Close unbinds the writer. Idempotent.
func (w *GstWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeLocked()
	return nil
}

func (w *GstWriter) closeLocked() {
	el := w.cur
	if el == nil {
		return
	}
	w.cur = nil

	el.src.EndStream()
	el.cancel()
	select {
	case <-el.done:
	case <-time.After(stopTimeout):
		slog.Warn("shm: writer monitor stop timeout exceeded", "writer", w.name)
	}

	if err := destroyPipeline(el.pipeline); err != nil {
		slog.Warn("shm: writer teardown failed", "writer", w.name, "error", err)
	}
	slog.Debug("shm: writer closed", "writer", w.name)
}

// Stats returns a snapshot of the counters.
func (w *GstWriter) Stats() WriterStats {
	w.mu.Lock()
	open := w.cur != nil
	w.mu.Unlock()

	return WriterStats{
		Pushed:      w.pushed.Load(),
		BytesPushed: w.bytesPushed.Load(),
		PushErrors:  w.pushErrors.Load(),
		Opens:       w.opens.Load(),
		Errors:      w.errors.Snapshot(),
		Open:        open,
	}
}
