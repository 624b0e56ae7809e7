// ABOUTME: Registry of connected studios, agent sessions and in-flight commands.
// ABOUTME: All three live under one mutex that is never held across a send or write.

package studio

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/wire"
)

// Recorder receives lifecycle and dispatch events, for example to keep a
// history log. It is called without the Manager lock held.
type Recorder interface {
	StudioConnected(info Info)
	StudioDisconnected(info Info, failed int)
	DispatchFinished(rec DispatchRecord)
}

// DispatchRecord summarizes one dispatch that reached a studio.
type DispatchRecord struct {
	ID       uuid.UUID
	StudioID uuid.UUID
	Session  string
	Tool     string
	Outcome  Outcome
	Started  time.Time
	Duration time.Duration
}

// Outcome classifies how a dispatch ended.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeRemoteError  Outcome = "remote_error"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeSendFailed   Outcome = "send_failed"
	OutcomeCancelled    Outcome = "cancelled"
)

// ResolvedSet remembers correlation ids that were recently resolved so a late
// duplicate response can be told apart from one that never existed.
type ResolvedSet interface {
	Mark(key string)
	Check(key string) bool
}

// Config configures a Manager.
type Config struct {
	Logger   *slog.Logger
	Recorder Recorder    // optional
	Resolved ResolvedSet // optional
}

// Manager coordinates connected studios, session selections and pending
// requests.
type Manager struct {
	mu       sync.Mutex
	conns    map[uuid.UUID]*Connection
	sessions map[string]*session
	pending  pendingTable

	logger   *slog.Logger
	recorder Recorder
	resolved ResolvedSet

	// overridable in tests
	now   func() time.Time
	newID func() uuid.UUID
}

// NewManager creates an empty Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conns:    make(map[uuid.UUID]*Connection),
		sessions: make(map[string]*session),
		pending:  make(pendingTable),
		logger:   logger,
		recorder: cfg.Recorder,
		resolved: cfg.Resolved,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// Register admits a studio that completed the handshake and returns its
// connection. The id is always minted here.
func (m *Manager) Register(reg wire.Registration, transport Transport) *Connection {
	m.mu.Lock()
	id := m.newID()
	for _, taken := m.conns[id]; taken; _, taken = m.conns[id] {
		id = m.newID()
	}
	conn := newConnection(infoFromRegistration(id, reg, transport, m.now()))
	m.conns[id] = conn
	total := len(m.conns)
	m.mu.Unlock()

	m.logger.Info("=== STUDIO CONNECTED ===",
		"studio_id", id,
		"place_id", reg.PlaceID,
		"place_name", reg.PlaceName,
		"transport", transport,
		"total_studios", total,
	)
	if m.recorder != nil {
		m.recorder.StudioConnected(conn.Info)
	}
	return conn
}

// Unregister removes a studio and fails every request it owned with
// ErrDisconnected. Returns false if the studio was not registered. Safe to call
// more than once.
func (m *Manager) Unregister(id uuid.UUID) bool {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.conns, id)
	orphaned := m.pending.removeOwnedBy(id)
	total := len(m.conns)
	m.mu.Unlock()

	conn.outbox.Close()
	for _, p := range orphaned {
		m.markResolved(p.id)
		p.done <- result{err: ErrDisconnected}
	}

	m.logger.Info("=== STUDIO DISCONNECTED ===",
		"studio_id", id,
		"place_name", conn.Info.PlaceName,
		"failed_requests", len(orphaned),
		"total_studios", total,
	)
	if m.recorder != nil {
		m.recorder.StudioDisconnected(conn.Info, len(orphaned))
	}
	return true
}

// Connection returns the registered studio with the given id.
func (m *Manager) Connection(id uuid.UUID) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	return conn, ok
}

// Count returns the number of connected studios.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// PendingCount returns the number of in-flight requests.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ListStudios returns every connected studio ordered by connect time, then id.
func (m *Manager) ListStudios() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.conns))
	for _, c := range m.sortedConnsLocked() {
		infos = append(infos, c.Info)
	}
	return infos
}

// sortedConnsLocked returns connections ordered by connect time, then id.
// Must be called with mu held.
func (m *Manager) sortedConnsLocked() []*Connection {
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool {
		a, b := conns[i].Info.ConnectedAt, conns[j].Info.ConnectedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return conns[i].ID.String() < conns[j].ID.String()
	})
	return conns
}

// candidatesLocked lists connected studios for corrective error messages.
// Must be called with mu held.
func (m *Manager) candidatesLocked() []Candidate {
	sorted := m.sortedConnsLocked()
	candidates := make([]Candidate, len(sorted))
	for i, c := range sorted {
		candidates[i] = c.candidate()
	}
	return candidates
}

// HandleResponse completes the pending request a studio answered. A response
// for an id that is not pending, or that belongs to a different studio, is
// logged and dropped and ErrUnknownCorrelationID is returned.
func (m *Manager) HandleResponse(from uuid.UUID, resp wire.Response) error {
	m.mu.Lock()
	p, ok := m.pending[resp.ID]
	if ok && p.owner != from {
		ok = false
	}
	if ok {
		delete(m.pending, resp.ID)
	}
	m.mu.Unlock()

	if !ok {
		m.logUnknownResponse(from, resp.ID)
		return fmt.Errorf("%w: %s", ErrUnknownCorrelationID, resp.ID)
	}

	m.markResolved(p.id)
	p.done <- result{resp: resp}
	return nil
}

func (m *Manager) logUnknownResponse(from, id uuid.UUID) {
	if m.resolved != nil && m.resolved.Check(id.String()) {
		m.logger.Warn("received late response for already resolved request",
			"request_id", id,
			"studio_id", from,
		)
		return
	}
	m.logger.Warn("received response for unknown request",
		"request_id", id,
		"studio_id", from,
	)
}

func (m *Manager) markResolved(id uuid.UUID) {
	if m.resolved != nil {
		m.resolved.Mark(id.String())
	}
}

// Close disconnects every studio, failing all in-flight requests. Used during
// shutdown so no caller is left waiting.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Unregister(id)
	}
	m.logger.Info("studio manager closed", "disconnected", len(ids))
}
