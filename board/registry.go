package board

import (
	"sync"

	"tavle/media"
	"tavle/models"
)

// Registry tracks live authoring sessions, at most one per user.
type Registry struct {
	mu       sync.Mutex
	uploader *media.Uploader
	store    Store
	sessions map[string]*Session // session id -> session
	byUser   map[string]string   // user id -> session id
}

func NewRegistry(uploader *media.Uploader, store Store) *Registry {
	return &Registry{
		uploader: uploader,
		store:    store,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// Open returns the user's live session, creating one if needed.
func (r *Registry) Open(user models.UserProfile) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byUser[user.ID]; ok {
		if session, ok := r.sessions[id]; ok {
			return session
		}
	}

	session := NewSession(user, r.uploader, r.store)
	r.sessions[session.ID] = session
	r.byUser[user.ID] = session.ID
	return session
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Close discards a session's draft and forgets it. Closing an unknown id is
// a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		delete(r.byUser, session.Owner())
	}
	r.mu.Unlock()

	if ok {
		session.Discard()
	}
}
