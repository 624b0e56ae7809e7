// ABOUTME: In-memory MCP session table keyed by the Mcp-Session-Id header.
// ABOUTME: Sessions remember the negotiated protocol version and the authenticated owner.

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// mcpSession tracks an active MCP client session.
type mcpSession struct {
	id              string
	protocolVersion string
	owner           string // token subject; empty when auth is off
	clientName      string
	createdAt       time.Time
}

// sessionStore manages active MCP sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*mcpSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*mcpSession)}
}

func (s *sessionStore) create(protocolVersion, owner, clientName string) *mcpSession {
	sess := &mcpSession{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		owner:           owner,
		clientName:      clientName,
		createdAt:       time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*mcpSession, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return existed
}

func (s *sessionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
