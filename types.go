package shmbridge

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/framebuf"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/warmup"
)

// FrameBuffer is an owned, row-major, interleaved image.
type FrameBuffer = framebuf.Buffer

// PixelSpec describes the layout of a FrameBuffer.
type PixelSpec = pixel.Spec

// PixelDescriptor is the layout negotiated from a capability string.
type PixelDescriptor = pixel.Descriptor

// SampleType is the per-channel storage type.
type SampleType = pixel.SampleType

const (
	// UInt8 samples, one byte per channel
	UInt8 = pixel.UInt8
	// UInt16 samples, two big-endian bytes per channel
	UInt16 = pixel.UInt16
)

// Delivery is one frame handed over by a ReaderTransport.
type Delivery = shm.Delivery

// ReconnectConfig controls how a GStreamer reader retries a missing socket.
type ReconnectConfig = shm.ReconnectConfig

// WarmupStats contains delivery rate statistics measured by Reader.Warmup.
type WarmupStats = warmup.Stats

// NewFrameBuffer allocates a zeroed frame buffer for spec.
func NewFrameBuffer(spec PixelSpec) *FrameBuffer {
	return framebuf.New(spec)
}

// FrameEvent announces a completed frame on a Reader.
type FrameEvent struct {
	// Seq is the monotonic number of completed frames
	Seq uint64
	// Timestamp is when the frame was swapped into the consumer buffer
	Timestamp time.Time
	// TraceID is a unique identifier for distributed tracing
	TraceID string
	// Spec is the layout of the completed frame
	Spec PixelSpec
}

// DropStats counts dropped deliveries per failure kind.
type DropStats struct {
	// IncompleteGeometry counts capabilities missing width, height or bpp
	IncompleteGeometry uint64
	// UnsupportedFormat counts capabilities outside the rgb/yuv families
	UnsupportedFormat uint64
	// UnsupportedChannelLayout counts usable descriptors that are neither
	// packed RGB/RGBA nor planar 4:2:0
	UnsupportedChannelLayout uint64
	// PatternCompilation counts frames dropped because the capability
	// patterns failed to compile
	PatternCompilation uint64
	// ShortPayload counts deliveries smaller than the negotiated frame
	ShortPayload uint64
	// Conversion counts color conversion failures other than short payloads
	Conversion uint64
}

// Total returns the sum of all drop kinds.
func (d DropStats) Total() uint64 {
	return d.IncompleteGeometry + d.UnsupportedFormat + d.UnsupportedChannelLayout +
		d.PatternCompilation + d.ShortPayload + d.Conversion
}

// LatencyStats summarizes delivery callback durations.
type LatencyStats struct {
	Calls  uint64
	MeanMS float64
	P95MS  float64
	MaxMS  float64
}

// ReaderStats contains current reader statistics
type ReaderStats struct {
	// Name identifies the reader in logs and profiling scopes
	Name string
	// Path is the attached socket path, empty when detached
	Path string
	// Deliveries is the number of frames handed over by the transport
	Deliveries uint64
	// Frames is the number of frames that reached the consumer buffer
	Frames uint64
	// Drops counts rejected deliveries per kind
	Drops DropStats
	// MaskConflicts counts YUV capabilities that also carried RGB masks
	MaskConflicts uint64
	// NotifyDrops counts frame events overwritten before a WaitFrame call
	// consumed them
	NotifyDrops uint64
	// Descriptor is the last negotiated layout
	Descriptor PixelDescriptor
	// LastUpdate is when the consumer buffer last changed
	LastUpdate time.Time
	// Latency summarizes the delivery callback
	Latency LatencyStats
	// Transport holds GStreamer counters when the default transport is used
	Transport *shm.ReaderStats
}

// WriterStats contains current writer statistics
type WriterStats struct {
	// Name identifies the writer in logs
	Name string
	// Path is the bound socket path, empty when no transport is open
	Path string
	// Encoding is the negotiated encoding string
	Encoding string
	// Frames is the number of frames published
	Frames uint64
	// Renegotiations counts successful transport opens
	Renegotiations uint64
	// OpenFailures counts transport opens that failed
	OpenFailures uint64
	// UnsupportedFormats counts frames whose layout has no encoding
	UnsupportedFormats uint64
	// EmptyFrames counts frames without pixel storage
	EmptyFrames uint64
	// ShortPayloads counts frames smaller than their spec
	ShortPayloads uint64
	// PushFailures counts frames the transport refused
	PushFailures uint64
	// Transport holds GStreamer counters when the default transport is used
	Transport *shm.WriterStats
}
