package session

import (
	"sync"
	"time"

	"github.com/conversantai/retrieval-engine/telemetry"
)

// Store is a process-wide registry of live sessions keyed by session id. It
// owns session lifetime: sessions created through a Store are automatically
// removed from the registry when their TTL expires.
type Store struct {
	log telemetry.Logger
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore constructs a Store. ttl is applied to every session the Store
// creates; pass 0 to use DefaultTTL.
func NewStore(log telemetry.Logger, ttl time.Duration) *Store {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{log: log, ttl: ttl, sessions: make(map[string]*Session)}
}

// Create allocates and registers a new Session under id, replacing any
// existing session with the same id.
func (st *Store) Create(id string) *Session {
	sess := New(id, st.log, st.ttl, st.remove)
	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return sess
}

// Get returns the session registered under id, if any.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Delete removes the session registered under id, if any, without waiting
// for its TTL to expire.
func (st *Store) Delete(id string) {
	st.remove(id)
}

// Len reports the number of currently registered sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}
