// Package notifier provides a coalescing, cross-goroutine readiness signal
// backed by a pollable file descriptor.
package notifier

import (
	"sync"

	"github.com/jzx17/gocourier/pkg/types"
)

// channel is the kernel object carrying notification units.
type channel interface {
	fd() int
	write() error
	read() error
	close() error
}

// Notifier tells a consumer that at least one event happened since its last
// Drain. Any number of Raise calls before a Drain leave exactly one unit in
// the channel, so the consumer must rescan everything it watches on wakeup.
//
// The descriptor returned by Fd is for polling only. Reading it directly
// desynchronizes the outstanding flag from the channel.
type Notifier struct {
	mu      sync.Mutex
	ready   *sync.Cond
	ch      channel
	pending bool
	closed  bool

	raises int64
	writes int64
	drains int64
}

// New creates a notifier with no outstanding notification
func New() (*Notifier, error) {
	ch, err := newChannel()
	if err != nil {
		return nil, err
	}
	n := &Notifier{ch: ch}
	n.ready = sync.NewCond(&n.mu)
	return n, nil
}

// Raise marks a notification outstanding and writes one unit, unless one is
// already outstanding.
func (n *Notifier) Raise() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return types.ErrNotifierClosed
	}
	n.raises++
	if n.pending {
		return nil
	}

	if err := n.ch.write(); err != nil {
		return types.NewFatalError("notifier raise", err)
	}
	n.pending = true
	n.writes++
	n.ready.Broadcast()
	return nil
}

// Drain blocks until a notification is outstanding, consumes its unit and
// clears the flag.
func (n *Notifier) Drain() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for !n.pending && !n.closed {
		n.ready.Wait()
	}
	if n.closed {
		return types.ErrNotifierClosed
	}

	// pending guarantees a unit is in the channel, so this read does not block
	if err := n.ch.read(); err != nil {
		return types.NewFatalError("notifier drain", err)
	}
	n.pending = false
	n.drains++
	return nil
}

// Pending reports whether a notification is outstanding
func (n *Notifier) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

// Fd returns the descriptor that becomes readable while a notification is
// outstanding. It is valid until Close.
func (n *Notifier) Fd() int {
	return n.ch.fd()
}

// Stats returns raise/write/drain counters
func (n *Notifier) Stats() types.NotifierStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return types.NotifierStats{
		Raises: n.raises,
		Writes: n.writes,
		Drains: n.drains,
	}
}

// Close releases the channel and wakes any goroutine blocked in Drain.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return types.ErrNotifierClosed
	}
	n.closed = true
	n.pending = false
	n.ready.Broadcast()
	return n.ch.close()
}
