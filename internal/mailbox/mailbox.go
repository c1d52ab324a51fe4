// Package mailbox implements a single-slot, overwrite-on-publish mailbox.
//
// A publisher never blocks: if the previous value was not consumed it is
// replaced and counted as a drop. A consumer blocks until a value arrives,
// the context ends, or the mailbox closes. Values are delivered in publish
// order; an overwritten value is never delivered later.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("mailbox: closed")

// Stats is a snapshot of mailbox counters.
type Stats struct {
	Published        uint64
	Consumed         uint64
	ConsecutiveDrops uint64 // unconsumed values overwritten since the last consume
	TotalDrops       uint64
	LastConsumedAt   time.Time
}

// Mailbox is a single-slot buffer with sync.Cond blocking semantics.
//
// Thread-safety:
//   - Publish: safe for concurrent calls.
//   - Wait: safe for concurrent calls; each value goes to exactly one waiter.
//   - Close: idempotent, wakes every waiter.
type Mailbox[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	value T
	full  bool

	published        uint64
	consumed         uint64
	consecutiveDrops uint64
	totalDrops       uint64
	lastConsumedAt   time.Time

	closed bool
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores v, replacing any unconsumed value. It reports false when
// the mailbox is closed.
//
// Algorithm:
//  1. Lock
//  2. Skip if closed
//  3. Count a drop if the slot is still full
//  4. Overwrite the slot
//  5. Wake one waiter
func (m *Mailbox[T]) Publish(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	if m.full {
		m.consecutiveDrops++
		m.totalDrops++
	}

	m.value = v
	m.full = true
	m.published++

	m.cond.Signal()
	return true
}

// Wait blocks until a value is available and consumes it.
func (m *Mailbox[T]) Wait(ctx context.Context) (T, error) {
	var zero T

	// sync.Cond cannot select on a channel; wake all waiters on cancel and
	// let each recheck its own context
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}

	if m.full {
		return m.take(), nil
	}
	if m.closed {
		return zero, ErrClosed
	}
	return zero, ctx.Err()
}

// TryTake consumes the pending value without blocking.
func (m *Mailbox[T]) TryTake() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		var zero T
		return zero, false
	}
	return m.take(), true
}

// take consumes the slot. Caller holds mu.
func (m *Mailbox[T]) take() T {
	v := m.value
	var zero T
	m.value = zero
	m.full = false
	m.consumed++
	m.consecutiveDrops = 0
	m.lastConsumedAt = time.Now()
	return v
}

// Pending reports whether an unconsumed value is waiting.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// Stats returns a snapshot of the counters.
func (m *Mailbox[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Published:        m.published,
		Consumed:         m.consumed,
		ConsecutiveDrops: m.consecutiveDrops,
		TotalDrops:       m.totalDrops,
		LastConsumedAt:   m.lastConsumedAt,
	}
}

// Close wakes all waiters. A value still pending is delivered to the next
// Wait before ErrClosed is reported.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.cond.Broadcast()
}
