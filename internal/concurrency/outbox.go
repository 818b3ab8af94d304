// File: internal/concurrency/outbox.go
// Package concurrency provides the per-connection egress queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbox decouples producers (dispatch of any connection) from the single
// writer goroutine owning a socket. Push never blocks on the network.

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// Outbox errors.
var (
	ErrOutboxFull   = errors.New("outbox is full")
	ErrOutboxClosed = errors.New("outbox is closed")
)

// Outbox is an unbounded-by-default FIFO of encoded frames.
type Outbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	limit  int           // 0 = no limit
	ready  chan struct{} // capacity 1, coalesces wakeups
	closed bool
}

// NewOutbox creates an outbox holding at most limit frames (0 = unlimited).
func NewOutbox(limit int) *Outbox {
	return &Outbox{
		q:     queue.New(),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends frame and wakes the writer.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutboxClosed
	}
	if o.limit > 0 && o.q.Length() >= o.limit {
		o.mu.Unlock()
		return ErrOutboxFull
	}
	o.q.Add(frame)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest frame; ok is false when the outbox is empty.
func (o *Outbox) Pop() (frame []byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.q.Length() == 0 {
		return nil, false
	}
	return o.q.Remove().([]byte), true
}

// Ready is signalled after every Push.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

// Close rejects further pushes. Frames already queued stay poppable.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
