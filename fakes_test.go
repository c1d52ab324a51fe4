package shmbridge

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/shm"
)

// fakeReaderTransport hands deliveries to the reader synchronously.
type fakeReaderTransport struct {
	mu       sync.Mutex
	handler  func(*Delivery)
	path     string
	starts   int
	closes   int
	released int
	seq      uint64
	startErr error
}

func (f *fakeReaderTransport) Start(path string, handler func(d *Delivery)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.handler = handler
	f.path = path
	f.starts++
	return nil
}

func (f *fakeReaderTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.closes++
	return nil
}

// deliver runs one delivery through the handler and reports whether a
// handler was attached.
func (f *fakeReaderTransport) deliver(capability string, data []byte) bool {
	f.mu.Lock()
	h := f.handler
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	if h == nil {
		return false
	}
	d := shm.NewDelivery(capability, data, seq, func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	})
	h(d)
	return true
}

func (f *fakeReaderTransport) counts() (starts, closes, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.closes, f.released
}

type openCall struct {
	path string
	caps string
}

type pushCall struct {
	data []byte
	pts  time.Duration
}

// fakeWriterTransport records every call.
type fakeWriterTransport struct {
	mu      sync.Mutex
	opens   []openCall
	pushes  []pushCall
	closes  int
	isOpen  bool
	openErr error
	pushErr error
}

func (f *fakeWriterTransport) Open(path, caps string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens = append(f.opens, openCall{path: path, caps: caps})
	f.isOpen = true
	return nil
}

func (f *fakeWriterTransport) Push(data []byte, pts time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isOpen {
		return errors.New("fake: not open")
	}
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, pushCall{data: append([]byte(nil), data...), pts: pts})
	return nil
}

func (f *fakeWriterTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isOpen = false
	f.closes++
	return nil
}

// countingExecutor runs tasks inline and records batch sizes.
type countingExecutor struct {
	mu      sync.Mutex
	batches []int
}

func (e *countingExecutor) Run(tasks []func()) error {
	e.mu.Lock()
	e.batches = append(e.batches, len(tasks))
	e.mu.Unlock()
	for _, t := range tasks {
		t()
	}
	return nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var untypedInt = regexp.MustCompile(`=(-?\d+)([,;]|$)`)

// typed mimics GStreamer caps serialization, which tags integer fields
// with (int).
func typed(encoding string) string {
	return untypedInt.ReplaceAllString(encoding, "=(int)$1$2")
}
