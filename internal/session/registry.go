package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry keeps one State per browser session, keyed by a random id.
// Sessions idle for longer than ttl are dropped on the next lookup.
type Registry struct {
	svc      Service
	recorder Recorder
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	state    *State
	lastSeen time.Time
}

// NewRegistry creates a Registry. A ttl of zero keeps sessions forever.
func NewRegistry(svc Service, recorder Recorder, ttl time.Duration) *Registry {
	return &Registry{
		svc:      svc,
		recorder: recorder,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the state for id. When id is unknown or expired a new session
// is created and its id returned; callers should hand that id back to the
// client.
func (r *Registry) Get(id string) (string, *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	if e, ok := r.sessions[id]; ok {
		e.lastSeen = now
		return id, e.state
	}

	id = uuid.New().String()
	st := New(r.svc, r.recorder)
	r.sessions[id] = &entry{state: st, lastSeen: now}
	return id, st
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) sweep(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.sessions, id)
		}
	}
}
