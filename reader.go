package shmbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/colorconv"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/framebuf"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/mailbox"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/profile"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/warmup"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/workerpool"
)

// DefaultWorkers is the conversion pool size and row band count used when
// ReaderConfig.Workers is zero.
const DefaultWorkers = colorconv.DefaultBands

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// Name labels logs and the profiling scope. Defaults to a generated id.
	Name string
	// Workers is the number of row bands converted in parallel for planar
	// frames. Zero means DefaultWorkers.
	Workers int
	// Reconnect controls the default GStreamer transport. The zero value
	// means shm.DefaultReconnectConfig.
	Reconnect ReconnectConfig
	// Transport overrides the GStreamer transport.
	Transport ReaderTransport
	// Executor overrides the internal worker pool. The Reader does not
	// close an injected executor.
	Executor Executor
}

// Reader receives frames from a shared-memory socket and keeps the latest
// complete frame for consumers.
//
// The transport goroutine fills a producer buffer, then swaps it with the
// consumer buffer under mu. Consumers only ever see complete frames.
type Reader struct {
	name      string
	scope     string
	transport ReaderTransport
	profiler  *profile.Recorder
	converter *colorconv.Converter
	pool      *workerpool.Pool // owned, nil when an executor is injected

	attachMu sync.Mutex
	path     string
	closed   atomic.Bool

	// deliverMu serializes deliveries across transport restarts and guards
	// parser and producer.
	deliverMu sync.Mutex
	parser    *caps.Parser
	producer  *FrameBuffer

	mu         sync.Mutex
	consumer   *FrameBuffer
	updated    bool
	lastUpdate time.Time

	descriptor atomic.Pointer[PixelDescriptor]
	events     *mailbox.Mailbox[FrameEvent]

	deliveries      atomic.Uint64
	frames          atomic.Uint64
	maskConflicts   atomic.Uint64
	dropIncomplete  atomic.Uint64
	dropUnsupported atomic.Uint64
	dropLayout      atomic.Uint64
	dropPattern     atomic.Uint64
	dropShort       atomic.Uint64
	dropConversion  atomic.Uint64
}

// NewReader creates a detached Reader. Call Attach to start receiving.
//
// Validation:
//   - Workers must not be negative
//   - GStreamer shm plugins must be available when no Transport is given
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, cfg.Workers)
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	name := cfg.Name
	if name == "" {
		name = "reader-" + uuid.NewString()[:8]
	}

	transport := cfg.Transport
	if transport == nil {
		if err := shm.Available(); err != nil {
			return nil, fmt.Errorf("shm-bridge: %w", err)
		}
		reconnect := cfg.Reconnect
		if reconnect == (ReconnectConfig{}) {
			reconnect = shm.DefaultReconnectConfig()
		}
		transport = shm.NewGstReader(name, reconnect)
	}

	r := &Reader{
		name:      name,
		scope:     "shm-bridge " + name,
		transport: transport,
		profiler:  profile.Default(),
		parser:    caps.NewParser(),
		producer:  &framebuf.Buffer{},
		consumer:  &framebuf.Buffer{},
		events:    mailbox.New[FrameEvent](),
	}

	exec := cfg.Executor
	if exec == nil {
		pool, err := workerpool.New(workers)
		if err != nil {
			return nil, fmt.Errorf("shm-bridge: %w", err)
		}
		r.pool = pool
		exec = pool
	}

	converter, err := colorconv.New(exec, workers)
	if err != nil {
		if r.pool != nil {
			r.pool.Close()
		}
		return nil, fmt.Errorf("shm-bridge: %w", err)
	}
	r.converter = converter

	slog.Debug("shm-bridge: reader created", "reader", name, "workers", workers)
	return r, nil
}

// OpenReader creates a Reader and attaches it to path.
func OpenReader(cfg ReaderConfig, path string) (*Reader, error) {
	r, err := NewReader(cfg)
	if err != nil {
		return nil, err
	}
	if !r.Attach(path) {
		r.Close()
		return nil, fmt.Errorf("%w: %s", ErrTransportOpen, path)
	}
	return r, nil
}

// Name returns the reader name.
func (r *Reader) Name() string {
	return r.name
}

// Attach closes the current transport and starts it again bound to path.
// It reports whether the transport started; a socket without a writer yet
// still counts as started.
func (r *Reader) Attach(path string) bool {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	if r.closed.Load() {
		slog.Warn("shm-bridge: attach on closed reader", "reader", r.name, "path", path)
		return false
	}
	if path == "" {
		slog.Warn("shm-bridge: attach with empty path", "reader", r.name)
		return false
	}

	if r.path != "" {
		if err := r.transport.Close(); err != nil {
			slog.Warn("shm-bridge: failed to close previous transport", "reader", r.name, "path", r.path, "error", err)
		}
		r.path = ""
	}

	if err := r.transport.Start(path, r.onDelivery); err != nil {
		slog.Warn("shm-bridge: failed to attach", "reader", r.name, "path", path, "error", err)
		return false
	}

	r.path = path
	slog.Info("shm-bridge: reader attached", "reader", r.name, "path", path)
	return true
}

// SetInputPath is the attribute hook for the input socket path.
func (r *Reader) SetInputPath(path string) bool {
	return r.Attach(path)
}

// Path returns the attached socket path, empty when detached.
func (r *Reader) Path() string {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	return r.path
}

// onDelivery turns one transport delivery into a consumer frame.
//
// This callback:
//  1. Re-derives the descriptor when the capability string changed
//  2. Drops the frame when the descriptor is not usable or the payload
//     does not cover it
//  3. Copies packed frames or converts planar 4:2:0 frames into the
//     producer buffer
//  4. Swaps producer and consumer under mu
//  5. Publishes a FrameEvent
//
// Failed frames leave the consumer buffer untouched.
func (r *Reader) onDelivery(d *Delivery) {
	defer d.Release()

	if r.closed.Load() {
		return
	}
	defer r.profiler.Scope(r.scope)()

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.deliveries.Add(1)

	changed, err := r.parser.Update(d.Capability)
	desc := r.parser.Descriptor()
	if changed {
		r.descriptor.Store(&desc)
		r.logCapabilityChange(d.Capability, desc, err)
	}
	if err != nil || !desc.Usable() {
		r.countDrop(err)
		return
	}

	spec := desc.Spec()

	var need int
	switch {
	case desc.Is420Planar:
		need = framebuf.I420Size(spec.Width, spec.Height)
	case desc.Packed() && (desc.Channels == 3 || desc.Channels == 4):
		need = spec.Size()
	default:
		r.dropLayout.Add(1)
		slog.Debug("shm-bridge: frame dropped", "reader", r.name, "seq", d.Seq,
			"error", ErrUnsupportedChannelLayout, "descriptor", desc.String())
		return
	}

	// Size the payload before allocating anything for it.
	if need == 0 || spec.Size() == 0 {
		r.dropIncomplete.Add(1)
		slog.Debug("shm-bridge: frame dropped", "reader", r.name, "seq", d.Seq,
			"error", fmt.Errorf("%w: %s overflows", ErrIncompleteGeometry, desc.String()))
		return
	}
	if len(d.Data) < need {
		r.dropShort.Add(1)
		slog.Debug("shm-bridge: frame dropped", "reader", r.name, "seq", d.Seq,
			"error", fmt.Errorf("%w: have %d, need %d", ErrShortPayload, len(d.Data), need))
		return
	}

	r.producer.Reset(spec)
	if desc.Is420Planar {
		if err := r.converter.Convert(r.producer.Pix, d.Data, spec.Width, spec.Height); err != nil {
			if errors.Is(err, colorconv.ErrShortBuffer) {
				r.dropShort.Add(1)
				err = fmt.Errorf("%w: %v", ErrShortPayload, err)
			} else {
				r.dropConversion.Add(1)
			}
			slog.Debug("shm-bridge: frame dropped", "reader", r.name, "seq", d.Seq, "error", err)
			return
		}
	} else {
		// payload length was checked above
		_ = r.producer.CopyFrom(d.Data)
	}

	now := time.Now()
	r.mu.Lock()
	r.producer, r.consumer = r.consumer, r.producer
	r.updated = true
	r.lastUpdate = now
	r.mu.Unlock()

	seq := r.frames.Add(1)
	r.events.Publish(FrameEvent{
		Seq:       seq,
		Timestamp: now,
		TraceID:   uuid.NewString(),
		Spec:      spec,
	})
}

func (r *Reader) logCapabilityChange(capability string, desc PixelDescriptor, err error) {
	if err != nil {
		slog.Warn("shm-bridge: unusable capability",
			"reader", r.name,
			"caps", capability,
			"error", err,
		)
		return
	}

	if desc.MaskConflict {
		r.maskConflicts.Add(1)
		slog.Warn("shm-bridge: yuv capability carries rgb masks, treating as yuv",
			"reader", r.name,
			"caps", capability,
		)
	}

	slog.Info("shm-bridge: capability negotiated",
		"reader", r.name,
		"descriptor", desc.String(),
	)
}

func (r *Reader) countDrop(err error) {
	switch {
	case errors.Is(err, caps.ErrUnsupportedFormat):
		r.dropUnsupported.Add(1)
	case errors.Is(err, caps.ErrUnsupportedChannelLayout):
		r.dropLayout.Add(1)
	case errors.Is(err, caps.ErrPatternCompilation):
		r.dropPattern.Add(1)
	default:
		r.dropIncomplete.Add(1)
	}
}

// Latest returns a copy of the current frame and whether it arrived since
// the previous Latest or View call. It returns nil before the first frame.
func (r *Reader) Latest() (*FrameBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumer.Empty() {
		return nil, false
	}
	updated := r.updated
	r.updated = false
	return r.consumer.Clone(), updated
}

// View calls fn with the current frame while holding the swap lock, so fn
// must not retain fb or block. updated reports whether the frame arrived
// since the previous Latest or View call.
//
// View reports false, without calling fn, before the first frame.
func (r *Reader) View(fn func(fb *FrameBuffer, updated bool)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumer.Empty() {
		return false
	}
	updated := r.updated
	r.updated = false
	fn(r.consumer, updated)
	return true
}

// HasNewFrame reports whether a frame arrived since the previous Latest or
// View call.
func (r *Reader) HasNewFrame() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updated
}

// LastUpdate returns when the consumer buffer last changed, zero before the
// first frame.
func (r *Reader) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// Descriptor returns the last negotiated layout. It is not usable before
// the first delivery or after an unusable capability string.
func (r *Reader) Descriptor() PixelDescriptor {
	if d := r.descriptor.Load(); d != nil {
		return *d
	}
	return PixelDescriptor{}
}

// WaitFrame blocks until a frame completes, ctx ends or the reader closes.
//
// Events are held in a single slot: a frame that completes before the
// previous event was consumed replaces it and counts as a notify drop.
func (r *Reader) WaitFrame(ctx context.Context) (FrameEvent, error) {
	ev, err := r.events.Wait(ctx)
	if errors.Is(err, mailbox.ErrClosed) {
		return FrameEvent{}, ErrReaderClosed
	}
	return ev, err
}

// Warmup observes completed frames for duration and reports how steady the
// delivery rate is.
//
// Warmup consumes frame events, so concurrent WaitFrame callers miss the
// frames it sees. It returns the stats along with warmup.ErrUnstable when
// the rate is not stable.
func (r *Reader) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan FrameEvent)
	go func() {
		defer close(events)
		for {
			ev, err := r.WaitFrame(pumpCtx)
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-pumpCtx.Done():
				return
			}
		}
	}()

	slog.Info("shm-bridge: starting warm-up", "reader", r.name, "duration", duration)

	stats, err := warmup.MeasureWith(ctx, events, duration, func(ev FrameEvent) warmup.Tick {
		return warmup.Tick{Seq: ev.Seq, Timestamp: ev.Timestamp}
	})
	if errors.Is(err, warmup.ErrSourceClosed) && r.closed.Load() {
		return stats, ErrReaderClosed
	}
	if stats != nil {
		slog.Info("shm-bridge: warm-up complete",
			"reader", r.name,
			"frames", stats.FramesReceived,
			"fps_mean", stats.FPSMean,
			"stable", stats.IsStable,
		)
	}
	return stats, err
}

// Stats returns a snapshot of the reader counters.
func (r *Reader) Stats() ReaderStats {
	r.mu.Lock()
	lastUpdate := r.lastUpdate
	r.mu.Unlock()

	stats := ReaderStats{
		Name:          r.name,
		Path:          r.Path(),
		Deliveries:    r.deliveries.Load(),
		Frames:        r.frames.Load(),
		MaskConflicts: r.maskConflicts.Load(),
		NotifyDrops:   r.events.Stats().TotalDrops,
		Descriptor:    r.Descriptor(),
		LastUpdate:    lastUpdate,
		Drops: DropStats{
			IncompleteGeometry:       r.dropIncomplete.Load(),
			UnsupportedFormat:        r.dropUnsupported.Load(),
			UnsupportedChannelLayout: r.dropLayout.Load(),
			PatternCompilation:       r.dropPattern.Load(),
			ShortPayload:             r.dropShort.Load(),
			Conversion:               r.dropConversion.Load(),
		},
	}

	if s, ok := r.profiler.Summary(r.scope); ok {
		stats.Latency = LatencyStats{Calls: s.Calls, MeanMS: s.MeanMS, P95MS: s.P95MS, MaxMS: s.MaxMS}
	}
	if t, ok := r.transport.(interface{ Stats() shm.ReaderStats }); ok {
		ts := t.Stats()
		stats.Transport = &ts
	}
	return stats
}

// Close detaches the transport, wakes WaitFrame callers and releases the
// worker pool. Idempotent.
func (r *Reader) Close() error {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	if r.closed.Swap(true) {
		return nil
	}

	err := r.transport.Close()
	r.path = ""
	r.events.Close()
	if r.pool != nil {
		r.pool.Close()
	}
	r.profiler.Forget(r.scope)

	slog.Info("shm-bridge: reader closed",
		"reader", r.name,
		"deliveries", r.deliveries.Load(),
		"frames", r.frames.Load(),
	)
	if err != nil {
		return fmt.Errorf("shm-bridge: close transport: %w", err)
	}
	return nil
}
