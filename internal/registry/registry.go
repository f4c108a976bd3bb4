// Package registry is the keyed collection of live bash sessions, with
// unique-name enforcement and close-on-remove lifecycle coordination.
package registry

import (
	"context"
	"sync"

	"github.com/rexsandbox/rex-runtime/internal/bashsession"
	"github.com/rexsandbox/rex-runtime/internal/logging"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

// Factory builds a new, not yet started session for name/cfg; Create starts
// it. Passed to New so callers can choose the session options.
type Factory func(name string, cfg types.SessionConfig) *bashsession.Session

// Registry maps session names to sessions. The map mutex is held only long
// enough to read or mutate the mapping; it is released before any session's
// own mutex is touched, to avoid convoying one slow session behind another.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*bashsession.Session
	newFn    Factory
}

// New builds an empty registry. newFn defaults to bashsession.New when nil.
func New(newFn Factory) *Registry {
	if newFn == nil {
		newFn = func(name string, cfg types.SessionConfig) *bashsession.Session {
			return bashsession.New(name, cfg, bashsession.Options{})
		}
	}
	return &Registry{sessions: make(map[string]*bashsession.Session), newFn: newFn}
}

// Create constructs, starts, and stores a session under name. Fails with
// SessionExistsError if the name is already taken.
func (r *Registry) Create(ctx context.Context, name string, cfg types.SessionConfig) (*bashsession.Session, error) {
	r.mu.Lock()
	if _, exists := r.sessions[name]; exists {
		r.mu.Unlock()
		return nil, &types.SessionExistsError{Session: name}
	}
	// Reserve the name before releasing the lock so a concurrent Create
	// with the same name observes it immediately.
	sess := r.newFn(name, cfg)
	r.sessions[name] = sess
	r.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.sessions, name)
		r.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// Get returns the session stored under name, or SessionDoesNotExistError.
func (r *Registry) Get(name string) (*bashsession.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		return nil, &types.SessionDoesNotExistError{Session: name}
	}
	return sess, nil
}

// Remove closes and deletes the session stored under name. A close failure
// is logged but does not prevent removal — callers cannot retry against a
// session that is already gone from the registry.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	sess, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	if !ok {
		return &types.SessionDoesNotExistError{Session: name}
	}

	if err := sess.Close(); err != nil {
		logging.Warn("session close failed during remove",
			logging.String("session", name), logging.Err(err))
	}
	return nil
}

// CloseAll closes every session in the registry, collecting (but not
// aborting on) individual close errors, and empties the map.
func (r *Registry) CloseAll() []error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*bashsession.Session)
	r.mu.Unlock()

	var errs []error
	for name, sess := range sessions {
		if err := sess.Close(); err != nil {
			logging.Warn("session close failed during close_all",
				logging.String("session", name), logging.Err(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// Len reports the number of live sessions. Used by property tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
