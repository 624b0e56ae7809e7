// ABOUTME: Per-session studio selection: resolve, bind, describe and forget.
// ABOUTME: Sessions are created lazily and keyed by the opaque MCP session id.

package studio

import (
	"time"

	"github.com/google/uuid"
)

// UnknownSession is the session key used when the caller supplied none.
const UnknownSession = "unknown"

type session struct {
	selected  *uuid.UUID
	createdAt time.Time
}

// Selection describes a session's current binding.
type Selection struct {
	// Selected is true when the session has an explicit binding.
	Selected bool
	// Stale is true when the bound studio is no longer connected.
	Stale bool
	// StudioID is the bound id when Selected is true.
	StudioID uuid.UUID
	// Info is the bound studio's metadata when Selected is true and Stale is false.
	Info Info
}

// sessionLocked returns the session for key, creating it if needed.
// Must be called with mu held.
func (m *Manager) sessionLocked(key string) *session {
	if key == "" {
		key = UnknownSession
	}
	s, ok := m.sessions[key]
	if !ok {
		s = &session{createdAt: m.now()}
		m.sessions[key] = s
	}
	return s
}

// Resolve returns the studio a command from the given session should go to.
func (m *Manager) Resolve(sessionKey string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(sessionKey)
}

// resolveLocked applies the selection policy against the current registry.
// Must be called with mu held.
func (m *Manager) resolveLocked(sessionKey string) (uuid.UUID, error) {
	s := m.sessionLocked(sessionKey)

	if s.selected != nil {
		if _, live := m.conns[*s.selected]; live {
			return *s.selected, nil
		}
		return uuid.Nil, &StaleSelectionError{ID: *s.selected}
	}

	switch len(m.conns) {
	case 0:
		return uuid.Nil, ErrNoneConnected
	case 1:
		for id := range m.conns {
			return id, nil
		}
	}
	return uuid.Nil, &AmbiguousError{Candidates: m.candidatesLocked()}
}

// Bind sets the session's explicit selection, or clears it when id is nil.
// Binding to a studio that is not connected fails with *UnknownStudioError and
// leaves the previous selection untouched.
func (m *Manager) Bind(sessionKey string, id *uuid.UUID) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == nil {
		m.sessionLocked(sessionKey).selected = nil
		m.logger.Debug("studio selection cleared", "session", sessionKey)
		return nil, nil
	}

	conn, ok := m.conns[*id]
	if !ok {
		return nil, &UnknownStudioError{ID: *id, Available: m.candidatesLocked()}
	}

	selected := *id
	m.sessionLocked(sessionKey).selected = &selected
	m.logger.Debug("studio selected", "session", sessionKey, "studio_id", selected)

	info := conn.Info
	return &info, nil
}

// Describe reports the session's binding without creating the session.
func (m *Manager) Describe(sessionKey string) Selection {
	if sessionKey == "" {
		sessionKey = UnknownSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionKey]
	if !ok || s.selected == nil {
		return Selection{}
	}

	conn, live := m.conns[*s.selected]
	if !live {
		return Selection{Selected: true, Stale: true, StudioID: *s.selected}
	}
	return Selection{Selected: true, StudioID: conn.ID, Info: conn.Info}
}

// ForgetSession drops a session's state. Called when the MCP session ends.
func (m *Manager) ForgetSession(sessionKey string) {
	if sessionKey == "" {
		sessionKey = UnknownSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey)
}

// SessionCount returns the number of tracked sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
