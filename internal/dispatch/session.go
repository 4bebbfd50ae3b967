package dispatch

import (
	"sync"
	"time"

	"printfarm-system/internal/domain"
)

// Session tracks one order's run through its candidate list. All mutation
// happens on the session's driving goroutine; the mutex exists so status
// queries and cancellation from other goroutines see consistent state.
type Session struct {
	mu sync.Mutex

	orderID      string
	order        domain.OrderDescriptor
	candidates   []domain.Candidate
	currentIndex int
	status       domain.SessionStatus
	acceptedBy   string
	startedAt    time.Time
	updatedAt    time.Time
	offers       []domain.OfferRecord

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newSession(order domain.OrderDescriptor, candidates []domain.Candidate) *Session {
	now := time.Now().UTC()
	cs := make([]domain.Candidate, len(candidates))
	copy(cs, candidates)
	// Supplied order is the priority order; rank mirrors the position.
	for i := range cs {
		cs[i].Rank = i
	}
	return &Session{
		orderID:    order.OrderID,
		order:      order,
		candidates: cs,
		status:     domain.SessionPending,
		startedAt:  now,
		updatedAt:  now,
		cancelCh:   make(chan struct{}),
	}
}

func (s *Session) OrderID() string { return s.orderID }

// CancelCh is closed once cancellation has been requested; the driving loop
// selects on it while waiting for a response.
func (s *Session) CancelCh() <-chan struct{} { return s.cancelCh }

// signalCancel wakes the driving loop. The loop performs the actual terminal
// transition so the session keeps a single writer.
func (s *Session) signalCancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

func (s *Session) cancelRequested() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// markInFlight moves the loop onto candidate i and records the offer as sent.
func (s *Session) markInFlight(i int) domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.candidates[i]
	s.currentIndex = i
	s.status = domain.SessionOfferInFlight
	s.offers = append(s.offers, domain.OfferRecord{FarmerID: c.FarmerID, Rank: c.Rank, Outcome: domain.OutcomeSent})
	s.updatedAt = time.Now().UTC()
	return c
}

// recordOutcome overwrites the in-flight offer record with its resolution.
func (s *Session) recordOutcome(outcome domain.CandidateOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.offers); n > 0 {
		s.offers[n-1].Outcome = outcome
	}
	s.updatedAt = time.Now().UTC()
}

// terminate sets a final status. acceptedBy is only stored for Completed,
// keeping the acceptedBy<=>Completed invariant.
func (s *Session) terminate(status domain.SessionStatus, acceptedBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	if status == domain.SessionCompleted {
		s.acceptedBy = acceptedBy
	}
	s.updatedAt = time.Now().UTC()
}

// Snapshot returns a consistent read-only copy for status queries.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	offers := make([]domain.OfferRecord, len(s.offers))
	copy(offers, s.offers)
	return domain.SessionSnapshot{
		OrderID:        s.orderID,
		Status:         s.status,
		CurrentIndex:   s.currentIndex,
		CandidateCount: len(s.candidates),
		AcceptedBy:     s.acceptedBy,
		Offers:         offers,
		StartedAt:      s.startedAt,
		UpdatedAt:      s.updatedAt,
		ElapsedSeconds: time.Since(s.startedAt).Seconds(),
	}
}
