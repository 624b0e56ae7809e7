// ABOUTME: Table of in-flight commands keyed by correlation id.
// ABOUTME: Entries are removed exactly once; only the remover delivers a result.

package studio

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/wire"
)

// result is what a waiting dispatch receives: a response or an error.
type result struct {
	resp wire.Response
	err  error
}

// pendingRequest is one in-flight command.
type pendingRequest struct {
	id      uuid.UUID
	owner   uuid.UUID
	tool    string
	session string
	started time.Time

	// done has capacity 1 and is written only by whoever removed the entry
	// from the table, so the write never blocks and happens once.
	done chan result
}

func newPendingRequest(id, owner uuid.UUID, tool, session string, now time.Time) *pendingRequest {
	return &pendingRequest{
		id:      id,
		owner:   owner,
		tool:    tool,
		session: session,
		started: now,
		done:    make(chan result, 1),
	}
}

// pendingTable is not safe for concurrent use; Manager guards it with its mutex.
type pendingTable map[uuid.UUID]*pendingRequest

// insert adds p. Returns false without modifying the table if p.id is taken.
func (t pendingTable) insert(p *pendingRequest) bool {
	if _, exists := t[p.id]; exists {
		return false
	}
	t[p.id] = p
	return true
}

// remove deletes and returns the entry for id. The second return is false if
// the entry was already removed.
func (t pendingTable) remove(id uuid.UUID) (*pendingRequest, bool) {
	p, ok := t[id]
	if ok {
		delete(t, id)
	}
	return p, ok
}

// removeOwnedBy deletes and returns every entry owned by the given connection.
func (t pendingTable) removeOwnedBy(owner uuid.UUID) []*pendingRequest {
	var orphaned []*pendingRequest
	for id, p := range t {
		if p.owner == owner {
			delete(t, id)
			orphaned = append(orphaned, p)
		}
	}
	return orphaned
}
