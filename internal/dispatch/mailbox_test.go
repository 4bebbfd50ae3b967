package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxDeliversAccept(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	go func() {
		require.NoError(t, m.Submit("ord-1", "farmer-a", true))
	}()

	v := w.Await(context.Background(), time.Second, nil)
	assert.Equal(t, VerdictAccepted, v)
}

func TestMailboxDeliversDecline(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	require.NoError(t, m.Submit("ord-1", "farmer-a", false))
	v := w.Await(context.Background(), time.Second, nil)
	assert.Equal(t, VerdictDeclined, v)
}

func TestMailboxTimeout(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	start := time.Now()
	v := w.Await(context.Background(), 30*time.Millisecond, nil)
	assert.Equal(t, VerdictTimedOut, v)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// The slot is gone, so a late response has no waiter.
	assert.ErrorIs(t, m.Submit("ord-1", "farmer-a", true), ErrNoActiveWaiter)
}

func TestMailboxCancelInterrupts(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")
	cancel := make(chan struct{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(cancel)
	}()

	start := time.Now()
	v := w.Await(context.Background(), 5*time.Second, cancel)
	assert.Equal(t, VerdictCancelled, v)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMailboxContextCancelInterrupts(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := w.Await(ctx, 5*time.Second, nil)
	assert.Equal(t, VerdictCancelled, v)
}

func TestMailboxRejectsWrongPairing(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	assert.ErrorIs(t, m.Submit("ord-1", "farmer-b", true), ErrNoActiveWaiter)
	assert.ErrorIs(t, m.Submit("ord-2", "farmer-a", true), ErrNoActiveWaiter)

	require.NoError(t, m.Submit("ord-1", "farmer-a", false))
	assert.Equal(t, VerdictDeclined, w.Await(context.Background(), time.Second, nil))
}

func TestMailboxDuplicateSubmitIsNoop(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	require.NoError(t, m.Submit("ord-1", "farmer-a", false))
	// Duplicate network delivery: consumed without error and without effect.
	require.NoError(t, m.Submit("ord-1", "farmer-a", true))

	assert.Equal(t, VerdictDeclined, w.Await(context.Background(), time.Second, nil))
}

func TestMailboxConcurrentSubmitsDeliverOnce(t *testing.T) {
	m := NewMailbox()
	w := m.Register("ord-1", "farmer-a")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(accept bool) {
			defer wg.Done()
			_ = m.Submit("ord-1", "farmer-a", accept)
		}(i%2 == 0)
	}

	v := w.Await(context.Background(), time.Second, nil)
	wg.Wait()
	// Whichever submission won, exactly one verdict came out.
	assert.Contains(t, []Verdict{VerdictAccepted, VerdictDeclined}, v)
	assert.ErrorIs(t, m.Submit("ord-1", "farmer-a", true), ErrNoActiveWaiter)
}
