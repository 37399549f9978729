package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Platanus-Hack-Team-22/tiqn-backend/internal/audio"
)

// AggregatorFactory builds the per-session audio aggregator. The factory is
// validated once at startup so GetOrCreate can never fail.
type AggregatorFactory func() *audio.Aggregator

// Registry is the in-memory index of live sessions. Insert-if-absent is
// atomic: concurrent GetOrCreate calls for the same id observe the same
// session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newAgg   AggregatorFactory
}

func NewRegistry(newAgg AggregatorFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newAgg:   newAgg,
	}
}

// GetOrCreate returns the session with the given id, creating it if absent.
// The second return reports whether the session was created by this call.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, r.newAgg())
	r.sessions[id] = s
	log.Debug().Str("session_id", id).Msg("session created")
	return s, true
}

// Get returns the session with the given id, or false if absent.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes and returns the session with the given id, or false if
// absent. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions whose last update is strictly older than maxAge and
// returns them. Sessions with in-flight chunk work hold their processing
// token and are skipped; they will be reconsidered on the next pass, so the
// sweep stays idempotent and never tears down a session mid-chunk.
func (r *Registry) Sweep(maxAge time.Duration) []*Session {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*Session
	for id, s := range r.sessions {
		if now.Sub(s.LastUpdate()) <= maxAge {
			continue
		}
		if !s.tryAcquire() {
			log.Debug().Str("session_id", id).Msg("sweep skipped busy session")
			continue
		}
		delete(r.sessions, id)
		s.release()
		removed = append(removed, s)
	}
	return removed
}
