package lb

import (
	"context"
	"sync"
	"time"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
)

// Session binds a session key to the instance it was last routed to, so
// subsequent requests with the same key stick to that instance until the
// session expires.
type Session struct {
	Key        string
	InstanceID string
	ContractID string
	ExpiresAt  time.Time
}

// SessionStore persists session affinity bindings. The default in-process
// implementation satisfies a single-gateway deployment; a Redis-backed
// implementation lets multiple fabric-gateway processes share affinity
// state.
type SessionStore interface {
	// Get returns the session for key if present and not expired.
	Get(ctx context.Context, key string) (Session, bool, error)
	// Put upserts a session binding that expires at sess.ExpiresAt.
	Put(ctx context.Context, sess Session) error
	// Delete removes a session binding, if present.
	Delete(ctx context.Context, key string) error
	// Purge removes all expired sessions as of now and returns the count
	// removed. Implementations without a sweep mechanism may no-op and
	// rely on Get's expiry check instead.
	Purge(ctx context.Context, now time.Time) (int, error)
	// DeleteByInstance evicts every session pinned to instanceID and
	// returns the count removed.
	DeleteByInstance(ctx context.Context, instanceID string) (int, error)
}

// memorySessionStore is a mutex-guarded map, the default SessionStore.
type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	clock    clock.Clock
}

// NewMemorySessionStore returns an in-process SessionStore.
func NewMemorySessionStore(c clock.Clock) SessionStore {
	if c == nil {
		c = clock.Real{}
	}
	return &memorySessionStore{sessions: make(map[string]Session), clock: c}
}

func (s *memorySessionStore) Get(_ context.Context, key string) (Session, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if s.clock.Now().After(sess.ExpiresAt) {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *memorySessionStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	s.sessions[sess.Key] = sess
	s.mu.Unlock()
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}

func (s *memorySessionStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, k)
			removed++
		}
	}
	return removed, nil
}

func (s *memorySessionStore) DeleteByInstance(_ context.Context, instanceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, sess := range s.sessions {
		if sess.InstanceID == instanceID {
			delete(s.sessions, k)
			removed++
		}
	}
	return removed, nil
}
