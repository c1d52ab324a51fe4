package shmbridge

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/caps"
	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
)

var (
	// ErrUnsupportedFormat is reported for capability strings outside the
	// rgb and yuv families, and for frame layouts without an outgoing
	// encoding.
	ErrUnsupportedFormat = caps.ErrUnsupportedFormat

	// ErrIncompleteGeometry is reported when width, height or bpp is missing.
	ErrIncompleteGeometry = caps.ErrIncompleteGeometry

	// ErrUnsupportedChannelLayout is reported for usable descriptors that
	// are neither packed RGB/RGBA nor planar 4:2:0.
	ErrUnsupportedChannelLayout = caps.ErrUnsupportedChannelLayout

	// ErrPatternCompilation is reported when the capability patterns fail
	// to compile.
	ErrPatternCompilation = caps.ErrPatternCompilation

	// ErrTransportOpen is returned when a socket cannot be bound.
	ErrTransportOpen = shm.ErrTransportOpen

	// ErrNotAvailable is returned when GStreamer or its shm plugins are
	// missing.
	ErrNotAvailable = shm.ErrNotAvailable

	// ErrNoPixels is reported for frames without pixel storage.
	ErrNoPixels = errors.New("shm-bridge: frame has no pixels")

	// ErrShortPayload is reported when a payload is smaller than its
	// negotiated frame.
	ErrShortPayload = errors.New("shm-bridge: payload shorter than frame")

	// ErrReaderClosed is returned by WaitFrame and Warmup after Close.
	ErrReaderClosed = errors.New("shm-bridge: reader closed")

	// ErrWriterClosed is reported by Write after Close.
	ErrWriterClosed = errors.New("shm-bridge: writer closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("shm-bridge: invalid configuration")
)
