package net

// SessionStore holds the live sessions. Game loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) { st.sessions[s.ID] = s }
func (st *SessionStore) Remove(id uint64) { delete(st.sessions, id) }
func (st *SessionStore) Len() int { return len(st.sessions) }
func (st *SessionStore) Raw() map[uint64]*Session { return st.sessions }

func (st *SessionStore) Get(id uint64) (*Session, bool) {
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) ForEach(fn func(*Session)) {
	for _, s := range st.sessions {
		fn(s)
	}
}
