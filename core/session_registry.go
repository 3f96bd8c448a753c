package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Lookup for unknown, destroyed or expired
// sessions. Callers treat it as "no session", never as a failure.
var ErrSessionNotFound = errors.New("session not found")

// maxCreateAttempts bounds ID regeneration on collision.
const maxCreateAttempts = 5

// Session records which principal authenticated and when.
type Session struct {
	ID        SessionID `json:"id"`
	Principal Principal `json:"principal"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRegistry maps session IDs to authenticated principals. All
// implementations are safe for concurrent use.
type SessionRegistry interface {
	// Create stores a new session for p under an ID that no live session
	// uses.
	Create(ctx context.Context, p Principal) (Session, error)
	// Lookup returns ErrSessionNotFound when id is unknown.
	Lookup(ctx context.Context, id SessionID) (Session, error)
	// Destroy is idempotent: destroying an unknown id is not an error.
	Destroy(ctx context.Context, id SessionID) error
}

// SessionExpirer is implemented by registries that need an external sweep
// to drop old sessions.
type SessionExpirer interface {
	// DestroyExpired removes sessions created before cutoff and reports how
	// many were removed.
	DestroyExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionCounter is implemented by registries that can count live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// MemorySessionRegistry keeps sessions in a map guarded by a mutex.
// Sessions are lost on restart.
type MemorySessionRegistry struct {
	ids *SessionIDs
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[SessionID]Session
}

// NewMemorySessionRegistry returns an empty registry. ttl of 0 keeps
// sessions until destroyed.
func NewMemorySessionRegistry(ids *SessionIDs, ttl time.Duration) *MemorySessionRegistry {
	return &MemorySessionRegistry{
		ids:      ids,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[SessionID]Session),
	}
}

func (r *MemorySessionRegistry) Create(ctx context.Context, p Principal) (Session, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Session{}, err
		}
		id, err := r.ids.New()
		if err != nil {
			return Session{}, err
		}
		s := Session{ID: id, Principal: p, CreatedAt: r.now().UTC()}

		r.mu.Lock()
		if _, taken := r.sessions[id]; taken {
			r.mu.Unlock()
			continue
		}
		r.sessions[id] = s
		r.mu.Unlock()
		return s, nil
	}
	return Session{}, fmt.Errorf("create session: %d id collisions", maxCreateAttempts)
}

func (r *MemorySessionRegistry) Lookup(_ context.Context, id SessionID) (Session, error) {
	if !r.ids.Check(id) {
		return Session{}, ErrSessionNotFound
	}
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	// the sweeper may not have run yet
	if r.ttl > 0 && r.now().Sub(s.CreatedAt) >= r.ttl {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemorySessionRegistry) Destroy(_ context.Context, id SessionID) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRegistry) DestroyExpired(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRegistry) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}
