// ABOUTME: Unbounded FIFO of encoded frames waiting to be written to one studio.
// ABOUTME: Push never blocks; a single drainer waits on a broadcast change signal.

package studio

import (
	"context"
	"errors"
	"sync"
)

// ErrOutboxClosed is returned by Push and Next once the outbox is closed.
var ErrOutboxClosed = errors.New("outbox closed")

// Outbox queues pre-encoded frames for one connection. Any number of goroutines
// may Push; exactly one should drain it with Next, which keeps frames in order.
type Outbox struct {
	mu      sync.Mutex
	frames  [][]byte
	changed chan struct{} // closed and replaced on every Push and on Close
	closed  bool
}

// NewOutbox creates an empty, open outbox.
func NewOutbox() *Outbox {
	return &Outbox{changed: make(chan struct{})}
}

// Push appends a frame. Returns ErrOutboxClosed if the outbox is closed.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	o.frames = append(o.frames, frame)
	o.broadcastLocked()
	return nil
}

// Next removes and returns the oldest frame, waiting for one if the queue is
// empty. It returns ctx.Err() if ctx ends first and ErrOutboxClosed once the
// outbox is closed.
func (o *Outbox) Next(ctx context.Context) ([]byte, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, ErrOutboxClosed
		}
		if len(o.frames) > 0 {
			frame := o.frames[0]
			o.frames[0] = nil
			o.frames = o.frames[1:]
			o.mu.Unlock()
			return frame, nil
		}
		changed := o.changed
		o.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

// Close discards queued frames and wakes any waiting drainer. Safe to call
// multiple times.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.frames = nil
	o.broadcastLocked()
}

// broadcastLocked wakes every goroutine waiting on the current change channel.
// Must be called with mu held.
func (o *Outbox) broadcastLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}
