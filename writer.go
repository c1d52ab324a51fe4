package shmbridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Name labels logs. Defaults to a generated id.
	Name string
	// Path is the socket used by Push. Write takes its own path.
	Path string
	// Transport overrides the GStreamer transport.
	Transport WriterTransport
	// Now overrides the clock used for presentation timestamps.
	Now func() time.Time
}

// Writer publishes frame buffers on a shared-memory socket.
//
// The socket is renegotiated (closed and reopened with a new encoding) only
// when the frame geometry or the target path changes. Presentation
// timestamps count milliseconds since the last renegotiation.
type Writer struct {
	name      string
	transport WriterTransport
	now       func() time.Time

	mu          sync.Mutex
	defaultPath string
	closed      bool

	// negotiated state, valid while open
	open          bool
	path          string
	spec          PixelSpec
	encoding      string
	bytesPerPixel int
	startMs       int64
	buf           []byte
	lastErr       error

	frames             uint64
	renegotiations     uint64
	openFailures       uint64
	unsupportedFormats uint64
	emptyFrames        uint64
	shortPayloads      uint64
	pushFailures       uint64
}

// NewWriter creates a Writer. No socket is opened until the first frame.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	name := cfg.Name
	if name == "" {
		name = "writer-" + uuid.NewString()[:8]
	}

	transport := cfg.Transport
	if transport == nil {
		if err := shm.Available(); err != nil {
			return nil, fmt.Errorf("shm-bridge: %w", err)
		}
		transport = shm.NewGstWriter(name)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Writer{
		name:        name,
		transport:   transport,
		now:         now,
		defaultPath: cfg.Path,
	}, nil
}

// Name returns the writer name.
func (w *Writer) Name() string {
	return w.name
}

// SetOutputPath is the attribute hook for the socket used by Push. The
// next Push renegotiates when path differs from the bound one.
func (w *Writer) SetOutputPath(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.defaultPath = path
}

// Push publishes frame on the configured path.
func (w *Writer) Push(frame *FrameBuffer) bool {
	w.mu.Lock()
	path := w.defaultPath
	w.mu.Unlock()
	return w.Write(frame, path)
}

// Write publishes frame on path, renegotiating first when needed.
//
// Write reports false when the frame has no pixels, its layout has no
// encoding, the socket cannot be opened, the frame is shorter than its
// spec or the transport refuses it. Err explains the last failure.
func (w *Writer) Write(frame *FrameBuffer, path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.lastErr = ErrWriterClosed
		return false
	}
	if frame.Empty() {
		w.emptyFrames++
		w.lastErr = ErrNoPixels
		return false
	}

	spec := frame.Spec
	if !w.open || !w.spec.SameGeometry(spec) || spec.Sample != w.spec.Sample || path != w.path {
		if !w.renegotiate(spec, path) {
			return false
		}
	}

	n := spec.Width * spec.Height * w.bytesPerPixel
	if len(frame.Pix) < n {
		w.shortPayloads++
		w.lastErr = fmt.Errorf("%w: have %d, need %d", ErrShortPayload, len(frame.Pix), n)
		return false
	}
	copy(w.buf, frame.Pix[:n])

	pts := time.Duration(w.now().UnixMilli()-w.startMs) * time.Millisecond
	if err := w.transport.Push(w.buf, pts); err != nil {
		w.pushFailures++
		w.lastErr = err
		slog.Warn("shm-bridge: push failed", "writer", w.name, "path", w.path, "error", err)
		return false
	}

	w.frames++
	w.lastErr = nil
	return true
}

// renegotiate binds the transport to path with the encoding of spec.
// Callers hold mu.
func (w *Writer) renegotiate(spec PixelSpec, path string) bool {
	encoding, bpp, err := caps.Encoding(spec)
	if err != nil {
		w.unsupportedFormats++
		w.lastErr = err
		w.closeTransportLocked()
		slog.Warn("shm-bridge: no encoding for frame", "writer", w.name, "spec", spec.String(), "error", err)
		return false
	}

	w.closeTransportLocked()

	if path == "" {
		w.openFailures++
		w.lastErr = fmt.Errorf("%w: empty path", ErrTransportOpen)
		slog.Warn("shm-bridge: no output path", "writer", w.name)
		return false
	}

	if err := w.transport.Open(path, encoding); err != nil {
		w.openFailures++
		w.lastErr = err
		slog.Warn("shm-bridge: failed to open output", "writer", w.name, "path", path, "error", err)
		return false
	}

	size := spec.Width * spec.Height * bpp
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	w.buf = w.buf[:size]

	w.open = true
	w.path = path
	w.spec = spec
	w.encoding = encoding
	w.bytesPerPixel = bpp
	w.startMs = w.now().UnixMilli()
	w.renegotiations++

	slog.Info("shm-bridge: output negotiated",
		"writer", w.name,
		"path", path,
		"encoding", encoding,
	)
	return true
}

// closeTransportLocked unbinds the transport and forgets the negotiated
// state. Callers hold mu.
func (w *Writer) closeTransportLocked() {
	if w.open {
		if err := w.transport.Close(); err != nil {
			slog.Warn("shm-bridge: failed to close output", "writer", w.name, "path", w.path, "error", err)
		}
	}
	w.open = false
	w.path = ""
	w.spec = PixelSpec{}
	w.encoding = ""
	w.bytesPerPixel = 0
}

// Encoding returns the negotiated encoding string, empty when no socket is
// open.
func (w *Writer) Encoding() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoding
}

// Err returns why the last Write failed, nil after a successful one.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	stats := WriterStats{
		Name:               w.name,
		Path:               w.path,
		Encoding:           w.encoding,
		Frames:             w.frames,
		Renegotiations:     w.renegotiations,
		OpenFailures:       w.openFailures,
		UnsupportedFormats: w.unsupportedFormats,
		EmptyFrames:        w.emptyFrames,
		ShortPayloads:      w.shortPayloads,
		PushFailures:       w.pushFailures,
	}
	w.mu.Unlock()

	if t, ok := w.transport.(interface{ Stats() shm.WriterStats }); ok {
		ts := t.Stats()
		stats.Transport = &ts
	}
	return stats
}

// Close unbinds the socket. Later writes report false. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.open {
		err = w.transport.Close()
	}
	w.open = false
	w.path = ""
	w.encoding = ""

	slog.Info("shm-bridge: writer closed", "writer", w.name, "frames", w.frames)
	if err != nil {
		return fmt.Errorf("shm-bridge: close transport: %w", err)
	}
	return nil
}
