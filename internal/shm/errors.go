package shm

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
)

var (
	// ErrTransportOpen is returned when a shared-memory path cannot be opened.
	ErrTransportOpen = errors.New("shm: transport open failed")

	// ErrNotAvailable is returned when the GStreamer shm or gdp plugins are missing.
	ErrNotAvailable = errors.New("shm: gstreamer shm/gdp elements not available")

	// ErrNotOpen is returned by Push before a successful Open.
	ErrNotOpen = errors.New("shm: transport not open")

	// ErrAlreadyStarted is returned by Start on a running reader.
	ErrAlreadyStarted = errors.New("shm: reader already started")
)

// ErrorCategory classifies pipeline errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryTransport covers socket and control-channel failures
	// (writer gone, path missing). Reconnecting usually helps.
	ErrCategoryTransport ErrorCategory = iota
	// ErrCategoryNegotiation covers caps and payload format problems.
	ErrCategoryNegotiation
	// ErrCategoryResource covers memory, permission and allocation failures.
	ErrCategoryResource
	// ErrCategoryUnknown is everything else.
	ErrCategoryUnknown
)

// String returns a human-readable name for the category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	negotiationKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"gdp",
		"payload",
		"invalid header",
	}

	resourceKeywords = []string{
		"permission",
		"memory",
		"allocate",
		"no space",
		"resource busy",
		"too many open files",
		"shm_open",
		"mmap",
	}

	transportKeywords = []string{
		"socket",
		"connection",
		"could not connect",
		"control",
		"no such file",
		"broken pipe",
		"timeout",
		"not found",
		"closed",
	}
)

// ClassifyGStreamerError categorizes a bus error by message heuristics.
// go-gst's GError does not expose the domain, so only text is available.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return ClassifyMessage(gerr.Error(), gerr.DebugString())
}

// ClassifyMessage categorizes an error from its message and debug text.
//
// Negotiation is checked first because caps errors often mention the
// socket element that raised them.
func ClassifyMessage(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)

	switch {
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, transportKeywords):
		return ErrCategoryTransport
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ErrorCounters counts classified errors. Safe for concurrent use.
type ErrorCounters struct {
	Transport   atomic.Uint64
	Negotiation atomic.Uint64
	Resource    atomic.Uint64
	Unknown     atomic.Uint64
}

// Add increments the counter for c.
func (e *ErrorCounters) Add(c ErrorCategory) {
	switch c {
	case ErrCategoryTransport:
		e.Transport.Add(1)
	case ErrCategoryNegotiation:
		e.Negotiation.Add(1)
	case ErrCategoryResource:
		e.Resource.Add(1)
	default:
		e.Unknown.Add(1)
	}
}

// ErrorStats is a snapshot of ErrorCounters.
type ErrorStats struct {
	Transport   uint64
	Negotiation uint64
	Resource    uint64
	Unknown     uint64
}

// Snapshot returns the current counts.
func (e *ErrorCounters) Snapshot() ErrorStats {
	return ErrorStats{
		Transport:   e.Transport.Load(),
		Negotiation: e.Negotiation.Load(),
		Resource:    e.Resource.Load(),
		Unknown:     e.Unknown.Load(),
	}
}
