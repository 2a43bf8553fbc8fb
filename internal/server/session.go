package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/mapview"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

const sessionCookie = "forest_session"

// View is the last successfully rendered state of a session.
type View struct {
	Selection  query.Selection
	Metric     chart.Metric
	Rows       []stats.Row
	CountyRows []stats.Row
	Map        *mapview.Map
}

// Session is the per-browser UI state.
type Session struct {
	ID        string
	Selection query.Selection
	Metric    chart.Metric
	// Last is nil until a render cycle succeeds.
	Last *View

	generation uint64
	expiresAt  time.Time
}

// SessionStore keeps sessions in memory and drops them after an idle TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	initial  Session
	now      func() time.Time
}

// NewSessionStore creates a store whose new sessions start at initial.
func NewSessionStore(ttl time.Duration, initial query.Selection) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		initial:  Session{Selection: initial, Metric: chart.Cumulative},
		now:      time.Now,
	}
}

// Acquire returns a snapshot of the session for id, creating a fresh one
// when id is unknown or expired. created reports whether a cookie must be set.
func (s *SessionStore) Acquire(id string) (sess Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.sessions[id]; ok && now.Before(existing.expiresAt) {
		existing.expiresAt = now.Add(s.ttl)
		return *existing, false
	}

	fresh := s.initial
	fresh.ID = uuid.NewString()
	fresh.expiresAt = now.Add(s.ttl)
	s.sessions[fresh.ID] = &fresh
	return fresh, true
}

// Begin starts a render cycle and returns its generation. Any cycle begun
// earlier for the same session is superseded.
func (s *SessionStore) Begin(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0
	}
	sess.generation++
	return sess.generation
}

// Commit records a successful cycle. It is a no-op, returning false, when
// a newer cycle has begun since generation.
func (s *SessionStore) Commit(id string, generation uint64, view View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.generation != generation {
		return false
	}
	sess.Selection = view.Selection
	sess.Metric = view.Metric
	sess.Last = &view
	return true
}

// Len is the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many remain.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
		}
	}
	return len(s.sessions)
}
