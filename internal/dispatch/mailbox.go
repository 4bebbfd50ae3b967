package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoActiveWaiter means a response arrived for a pairing that is not the
// current in-flight offer. The transport layer logs and drops these.
var ErrNoActiveWaiter = errors.New("no active waiter for response")

// Verdict is how one wait resolved. Exactly one verdict is produced per wait.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictDeclined
	VerdictTimedOut
	VerdictCancelled
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictDeclined:
		return "declined"
	case VerdictTimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

// Mailbox is the rendezvous between the driving loop and response deliveries
// pushed in from transport handlers. One wait may be registered per order at
// a time, matching the single in-flight offer invariant.
type Mailbox struct {
	mu    sync.Mutex
	waits map[string]*Waiter
}

func NewMailbox() *Mailbox {
	return &Mailbox{waits: make(map[string]*Waiter)}
}

// Waiter is a single-use, single-slot handoff for one (order, farmer) offer.
type Waiter struct {
	m         *Mailbox
	orderID   string
	farmerID  string
	ch        chan bool // buffered; Submit never blocks
	delivered bool      // guarded by m.mu
}

// Register opens the response slot for the given pairing. It replaces any
// stale slot left for the same order, which cannot happen while the driving
// loop is the only registrar but keeps the map consistent regardless.
func (m *Mailbox) Register(orderID, farmerID string) *Waiter {
	w := &Waiter{m: m, orderID: orderID, farmerID: farmerID, ch: make(chan bool, 1)}
	m.mu.Lock()
	m.waits[orderID] = w
	m.mu.Unlock()
	return w
}

// Submit delivers a farmer's decision. It succeeds only when the pairing is
// the current in-flight one; a repeat delivery after the first is a no-op so
// duplicated network messages are harmless.
func (m *Mailbox) Submit(orderID, farmerID string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.waits[orderID]
	if w == nil || w.farmerID != farmerID {
		return ErrNoActiveWaiter
	}
	if w.delivered {
		return nil
	}
	w.delivered = true
	w.ch <- accepted
	return nil
}

func (m *Mailbox) unregister(w *Waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waits[w.orderID] == w {
		delete(m.waits, w.orderID)
	}
}

// Await blocks until a matching Submit, the timeout, session cancellation or
// context cancellation — whichever the loop observes first wins; a response
// losing that race is discarded. The slot is closed before returning, so a
// late Submit gets ErrNoActiveWaiter.
func (w *Waiter) Await(ctx context.Context, timeout time.Duration, cancel <-chan struct{}) Verdict {
	defer w.m.unregister(w)
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case accepted := <-w.ch:
		if accepted {
			return VerdictAccepted
		}
		return VerdictDeclined
	case <-t.C:
		return VerdictTimedOut
	case <-cancel:
		return VerdictCancelled
	case <-ctx.Done():
		return VerdictCancelled
	}
}
