package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/lucsky/cuid"

	"vanrank/internal/models"
)

// Registry is the process-wide keyed store of live sessions. It only
// guards the map itself; per-session mutations serialize on the session's
// own lock, so visits for unrelated routes never contend.
//
// Sessions have no automatic expiry: they accumulate until Clear is
// called, matching the day-scoped usage where a route's session is
// dropped once its supervision closes.
type Registry struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	maxRecipients int
	stepCap       float64
}

func NewRegistry(cfg models.EngineConfig) *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		maxRecipients: cfg.MaxRecipients,
		stepCap:       cfg.RedistributionStepCap,
	}
}

func sessionKey(route, date string) string {
	return route + "_" + date
}

// GetOrCreate returns the session for (route, date), creating an empty
// one on first reference. The caller initializes it from a batch.
func (r *Registry) GetOrCreate(route, date string) *Session {
	key := sessionKey(route, date)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := newSession(fmt.Sprintf("%s_%s_%s", route, date, cuid.New()), route, date, r.maxRecipients, r.stepCap)
	r.sessions[key] = s
	log.Printf("Created supervision session %s", s.ID)
	return s
}

// Get returns the session for (route, date) if one exists.
func (r *Registry) Get(route, date string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey(route, date)]
	return s, ok
}

// Clear drops the session for (route, date).
func (r *Registry) Clear(route, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey(route, date))
}
