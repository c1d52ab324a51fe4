// Package shm moves raw frames over GStreamer shared-memory sockets.
//
// A writer publishes through
//
//	appsrc ! gdppay ! shmsink
//
// and a reader consumes through
//
//	shmsrc ! gdpdepay ! appsink
//
// GDP payloading carries the capability string in-band, so every delivery
// arrives with the caps it was published under.
package shm

import (
	"sync"
	"time"
)

// Delivery is one frame handed to a reader callback.
//
// Data aliases transport memory and is only valid until Release. Release
// is idempotent; the transport calls it again after the handler returns, so
// a handler that forgets to release does not leak the buffer.
type Delivery struct {
	Capability string
	Data       []byte
	Received   time.Time
	Seq        uint64

	release func()
	once    sync.Once
}

// NewDelivery wraps transport memory. release may be nil.
func NewDelivery(capability string, data []byte, seq uint64, release func()) *Delivery {
	return &Delivery{
		Capability: capability,
		Data:       data,
		Received:   time.Now(),
		Seq:        seq,
		release:    release,
	}
}

// Release returns the memory to the transport. Data must not be used after.
func (d *Delivery) Release() {
	d.once.Do(func() {
		if d.release != nil {
			d.release()
		}
		d.Data = nil
	})
}

// Handler consumes deliveries. Calls are serialized per reader.
type Handler = func(d *Delivery)
