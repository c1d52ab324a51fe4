package shmbridge

import "time"

// ReaderTransport delivers raw frames from a shared-memory socket.
//
// Implementations call handler from a single goroutine, one delivery at a
// time, and release every delivery after handler returns. Start binds the
// transport to path; Close stops delivery and must return before handler is
// called again. A closed transport can be started again.
//
// The default implementation is a GStreamer shmsrc pipeline that reconnects
// with exponential backoff while no writer is present.
type ReaderTransport interface {
	Start(path string, handler func(d *Delivery)) error
	Close() error
}

// WriterTransport publishes raw frames on a shared-memory socket.
//
// Open binds the transport to path and announces caps, closing any previous
// binding. Push publishes one frame with a presentation timestamp relative
// to the last Open. Close is idempotent.
//
// The default implementation is a GStreamer appsrc ! gdppay ! shmsink
// pipeline.
type WriterTransport interface {
	Open(path, caps string) error
	Push(data []byte, pts time.Duration) error
	Close() error
}

// Executor runs a batch of tasks and returns when all of them finished.
//
// Reader uses it to convert row bands of planar frames in parallel. A
// shared pool lets several readers bound their combined parallelism.
type Executor interface {
	Run(tasks []func()) error
}

// FrameSource is the consumer side of a Reader, as used by display layers.
type FrameSource interface {
	Latest() (*FrameBuffer, bool)
	View(fn func(fb *FrameBuffer, updated bool)) bool
	HasNewFrame() bool
	LastUpdate() time.Time
}

// FrameSink is the producer side of a Writer.
type FrameSink interface {
	Push(frame *FrameBuffer) bool
}

var (
	_ FrameSource = (*Reader)(nil)
	_ FrameSink   = (*Writer)(nil)
)
