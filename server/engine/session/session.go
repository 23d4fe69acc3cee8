// Package session carries the per-connection state the original engine kept
// in thread-local storage (session_manager.py's `thread_local`), as an
// explicit value threaded through a context.Context instead (DESIGN NOTES
// §9 -- no goroutine-local storage). One Session is created per accepted
// connection and lives for the connection's lifetime, not per statement --
// the per-statement xid is bound separately, by txn.WithXid.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session is the state a PostgreSQL wire connection accumulates: the
// StartupMessage parameters (user, database, application_name, ...) and the
// client address, grounded on main.py's IMoocDBHandler.set_session_info.
type Session struct {
	id         string
	clientAddr string

	mu         sync.RWMutex
	parameters map[string]string
}

// New builds a session identified by a fresh UUID, replacing
// session_manager.py's `threading.get_native_id()` -- a thread id is not a
// meaningful identity once connections are goroutines, not OS threads.
func New(clientAddr string) *Session {
	return &Session{
		id:         uuid.NewString(),
		clientAddr: clientAddr,
		parameters: make(map[string]string),
	}
}

// ID returns the session's identifier, used for temp-sort-run namespacing
// (materialize.go's external sort) and SHOW/log output.
func (s *Session) ID() string { return s.id }

// ClientAddr returns the remote address the connection was accepted from.
func (s *Session) ClientAddr() string { return s.clientAddr }

// Parameter returns a StartupMessage key's value, matching
// session_manager.py's get_session_parameter.
func (s *Session) Parameter(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.parameters[key]
	return v, ok
}

// SetParameter records a StartupMessage key/value pair.
func (s *Session) SetParameter(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parameters[key] = value
}

// User is the "user" StartupMessage parameter, used by password checks.
func (s *Session) User() string {
	v, _ := s.Parameter("user")
	return v
}

// Database is the "database" StartupMessage parameter, defaulting to the
// user name the way libpq clients do when none is sent explicitly.
func (s *Session) Database() string {
	if v, ok := s.Parameter("database"); ok && v != "" {
		return v
	}
	return s.User()
}

type contextKey struct{}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext retrieves the session WithSession attached, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok
}
