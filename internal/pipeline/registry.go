package pipeline

import (
	"sort"
	"sync"
)

// Registry tracks live sessions and keeps the totals of closed ones.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	retired  Stats
	closed   int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a live session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove closes the session and folds its counters into the totals.
func (r *Registry) Remove(id string) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return
	}
	s.Close()

	st := s.Stats()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.retired.Add(st)
	r.closed++
}

// Get returns a live session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the live sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt().Before(out[j].StartedAt())
	})
	return out
}

// Summary aggregates counters over live and closed sessions.
type Summary struct {
	Active int   `json:"active_sessions"`
	Closed int64 `json:"closed_sessions"`
	Stats
}

// Summary returns the aggregated counters.
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	sum := Summary{Active: len(r.sessions), Closed: r.closed, Stats: r.retired}
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	for _, s := range live {
		sum.Stats.Add(s.Stats())
	}
	return sum
}

// CloseAll closes every live session.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		r.Remove(s.ID())
	}
}
