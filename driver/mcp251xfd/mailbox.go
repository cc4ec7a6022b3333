package mcp251xfd

import (
	"context"
	"fmt"
	"sync"
)

// DefaultMailboxes is the number of TX mailboxes tracked by a fresh
// Mailboxes table, matching MCP_TX_QUEUE_ITEMS's usual default.
const DefaultMailboxes = 8

// Mailboxes tracks in-flight TX slots: a bitmap of which are in use,
// guarded by mu, and a counting semaphore (sem) that bounds the number
// of outstanding sends to n.
type Mailboxes struct {
	mu       sync.Mutex
	inUse    uint16
	n        int
	sem      chan struct{}
	callback [16]func(error)
}

// NewMailboxes returns a table of n mailboxes, all free.
func NewMailboxes(n int) *Mailboxes {
	if n <= 0 {
		n = DefaultMailboxes
	}
	sem := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		sem <- struct{}{}
	}
	return &Mailboxes{n: n, sem: sem}
}

// Acquire reserves a mailbox slot for sending, blocking until one is
// free or ctx is done. It returns the slot index and records cb to be
// invoked on completion.
func (m *Mailboxes) Acquire(ctx context.Context, cb func(error)) (int, error) {
	select {
	case <-m.sem:
	case <-ctx.Done():
		return 0, fmt.Errorf("mcp251xfd: send: %w", ErrAgain)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.n; i++ {
		if m.inUse&(1<<i) == 0 {
			m.inUse |= 1 << i
			m.callback[i] = cb
			return i, nil
		}
	}
	// Semaphore accounting guarantees a free slot exists; reaching
	// here means inUse and the semaphore count have diverged.
	m.sem <- struct{}{}
	return 0, fmt.Errorf("mcp251xfd: send: %w", ErrIO)
}

// Release frees slot i without invoking its callback, used when a
// queue-full condition is detected after a slot was already reserved
// (mcp251xfd_send's -ENOMEM path).
func (m *Mailboxes) Release(i int) {
	m.mu.Lock()
	m.inUse &^= 1 << i
	m.callback[i] = nil
	m.mu.Unlock()
	m.sem <- struct{}{}
}

// Complete frees slot i and invokes its recorded callback with status.
// Called from the TEF drain handler once the mailbox's frame has left
// the bus.
func (m *Mailboxes) Complete(i int, status error) {
	m.mu.Lock()
	cb := m.callback[i]
	m.inUse &^= 1 << i
	m.callback[i] = nil
	m.mu.Unlock()
	m.sem <- struct{}{}
	if cb != nil {
		cb(status)
	}
}

// FlushAll completes every live mailbox with err, used on bus-off or
// stop().
func (m *Mailboxes) FlushAll(err error) {
	m.mu.Lock()
	live := m.inUse
	cbs := m.callback
	m.inUse = 0
	m.callback = [16]func(error){}
	m.mu.Unlock()
	for i := 0; i < m.n; i++ {
		if live&(1<<i) != 0 {
			m.sem <- struct{}{}
			if cbs[i] != nil {
				cbs[i](err)
			}
		}
	}
}

// Live returns the number of mailboxes currently in use, for the
// mailbox-conservation testable property (live + available == n).
func (m *Mailboxes) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := 0; i < m.n; i++ {
		if m.inUse&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// Available returns the semaphore's current count.
func (m *Mailboxes) Available() int { return len(m.sem) }
