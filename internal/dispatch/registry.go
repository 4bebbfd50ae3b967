package dispatch

import (
	"sort"
	"sync"

	"printfarm-system/internal/domain"
)

// Registry maps orderID to its active session. Sessions live here only while
// non-terminal; the driving loop removes them the moment they finish.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// InsertIfAbsent registers s unless its order already has an active session.
func (r *Registry) InsertIfAbsent(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.OrderID()]; ok {
		return false
	}
	r.sessions[s.OrderID()] = s
	return true
}

func (r *Registry) Remove(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, orderID)
}

func (r *Registry) Get(orderID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[orderID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists all active sessions, oldest first, for the admin view.
func (r *Registry) Snapshot() []domain.SessionSnapshot {
	r.mu.RLock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.RUnlock()

	out := make([]domain.SessionSnapshot, 0, len(active))
	for _, s := range active {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
