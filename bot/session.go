package bot

import (
	"sync"
	"time"
)

// Identity is the result of backend identity resolution for a session.
type Identity struct {
	Name         string
	DisplayName  string
	Capabilities []string
}

// HasCapability reports whether the identity holds the given capability
// token, either exactly or through the master capability.
func (id *Identity) HasCapability(capability string) bool {
	if id == nil {
		return false
	}
	for _, c := range id.Capabilities {
		if c == capability || c == MasterCapability {
			return true
		}
	}
	return false
}

// Session is per-user, per-channel conversational state, held in memory
// only. State is the feature-private typed state; it is cleared on feature
// entry and on reset. MenuOptions holds the feature ids offered by the
// most recent menu so replies can be resolved by index.
type Session struct {
	UserKey     string
	Step        Step
	State       any
	MenuOptions []string
	Identity    *Identity
	Asleep      bool
	LastActive  time.Time
}

// Reset returns the session to idle and drops all feature state. Identity
// and the sleep flag survive a reset.
func (s *Session) Reset() {
	s.Step = IdleStep()
	s.State = nil
	s.MenuOptions = nil
}

// Store maps a channel-specific user key to exactly one session. Sessions
// are created lazily on first contact and live until process restart;
// there is no expiry sweep (sessions are disposable, a restart simply
// makes the user re-enter their flow).
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for the user key, creating an idle one
// on first contact. The second return reports whether the session was
// just created.
func (st *Store) GetOrCreate(userKey string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[userKey]; ok {
		return s, false
	}
	s := &Session{
		UserKey:    userKey,
		Step:       IdleStep(),
		LastActive: time.Now(),
	}
	st.sessions[userKey] = s
	return s, true
}

// Get returns the session for the user key if one exists.
func (st *Store) Get(userKey string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userKey]
	return s, ok
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
