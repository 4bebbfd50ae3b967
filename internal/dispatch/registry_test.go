package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm-system/internal/domain"
)

func testSession(orderID string, farmers ...string) *Session {
	cs := make([]domain.Candidate, len(farmers))
	for i, f := range farmers {
		cs[i] = domain.Candidate{FarmerID: f}
	}
	return newSession(domain.OrderDescriptor{OrderID: orderID}, cs)
}

func TestRegistryInsertIfAbsent(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.InsertIfAbsent(testSession("ord-1", "a")))
	assert.False(t, r.InsertIfAbsent(testSession("ord-1", "b")), "second session for same order must be rejected")
	assert.True(t, r.InsertIfAbsent(testSession("ord-2", "a")))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.InsertIfAbsent(testSession("ord-1", "a")))

	r.Remove("ord-1")
	_, ok := r.Get("ord-1")
	assert.False(t, ok)

	// Removing twice is harmless, and the slot is reusable.
	r.Remove("ord-1")
	assert.True(t, r.InsertIfAbsent(testSession("ord-1", "b")))
}

func TestRegistrySnapshotOldestFirst(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 3; i++ {
		require.True(t, r.InsertIfAbsent(testSession(fmt.Sprintf("ord-%d", i), "a")))
	}

	snaps := r.Snapshot()
	require.Len(t, snaps, 3)
	for i := 1; i < len(snaps); i++ {
		assert.False(t, snaps[i].StartedAt.Before(snaps[i-1].StartedAt))
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("ord-%d", i)
			if r.InsertIfAbsent(testSession(id, "a")) {
				_, _ = r.Get(id)
				_ = r.Snapshot()
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
