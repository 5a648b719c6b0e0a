// Package reload provides the rendezvous that wakes every parked reload
// stream once per successful build.
package reload

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of Await.
type Result int

const (
	// Timeout means no build completed during the wait.
	Timeout Result = iota
	// Woken means a build completed during the wait.
	Woken
	// Closed means the broadcaster shut down; the caller should exit.
	Closed
)

// String returns the string representation of the Result.
func (r Result) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case Woken:
		return "woken"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultTimeout is the default wait, which doubles as the heartbeat cadence.
const DefaultTimeout = 3 * time.Second

// Broadcaster is an edge-triggered one-to-many wake. Waiters parked when
// NotifyAll runs are woken exactly once; later waiters do not see it.
type Broadcaster struct {
	mu      sync.Mutex
	wake    chan struct{}
	closed  chan struct{}
	waiters int
	isDone  bool
}

// NewBroadcaster returns a ready broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		wake:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Await parks the caller for up to timeout, or DefaultTimeout when timeout
// is not positive. Context cancellation is reported as Closed.
func (b *Broadcaster) Await(ctx context.Context, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	b.mu.Lock()
	if b.isDone {
		b.mu.Unlock()
		return Closed
	}
	wake := b.wake
	b.waiters++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiters--
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wake:
		return Woken
	case <-b.closed:
		return Closed
	case <-ctx.Done():
		return Closed
	case <-timer.C:
		return Timeout
	}
}

// NotifyAll wakes every waiter currently parked in Await.
func (b *Broadcaster) NotifyAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isDone {
		return
	}
	close(b.wake)
	b.wake = make(chan struct{})
}

// Close releases every waiter with Closed. Subsequent calls to Await return
// Closed immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isDone {
		return
	}
	b.isDone = true
	close(b.closed)
}

// Waiters returns the number of callers parked in Await.
func (b *Broadcaster) Waiters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters
}
