// ABOUTME: Sends one command to the session's studio and waits for its answer.
// ABOUTME: The wait ends on response, studio disconnect or caller cancellation; never on a timer.

package studio

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/studio-gateway/internal/wire"
)

// Dispatch sends tool with args to the studio resolved for sessionKey and
// returns the canonical text of its answer.
//
// Resolution failures return immediately without queuing anything. A studio
// that answers with success=false yields a *RemoteError; one that disconnects
// first yields ErrDisconnected. Cancelling ctx abandons the request.
func (m *Manager) Dispatch(ctx context.Context, tool string, args any, sessionKey string) (string, error) {
	p, conn, err := m.beginDispatch(tool, sessionKey)
	if err != nil {
		return "", err
	}

	frame, err := wire.EncodeCommand(tool, args, p.id)
	if err != nil {
		m.abandon(p)
		return "", err
	}

	if err := conn.outbox.Push(frame); err != nil {
		// Teardown may already own the entry; either way the caller sees a send failure.
		m.abandon(p)
		m.logger.Warn("studio outbox closed while sending command",
			"tool", tool,
			"studio_id", conn.ID,
			"request_id", p.id,
		)
		m.record(p, OutcomeSendFailed)
		return "", ErrSendFailed
	}

	m.logger.Debug("→ command queued",
		"tool", tool,
		"studio_id", conn.ID,
		"request_id", p.id,
		"session", sessionKey,
	)

	var res result
	select {
	case res = <-p.done:
	case <-ctx.Done():
		if m.abandon(p) {
			m.logger.Debug("dispatch cancelled",
				"tool", tool,
				"studio_id", conn.ID,
				"request_id", p.id,
				"error", ctx.Err(),
			)
			m.record(p, OutcomeCancelled)
			return "", ctx.Err()
		}
		// Someone else removed the entry and is delivering its result.
		res = <-p.done
	}

	return m.finish(p, res)
}

// beginDispatch resolves the target and inserts the pending entry in one
// critical section, re-minting the correlation id on collision.
func (m *Manager) beginDispatch(tool, sessionKey string) (*pendingRequest, *Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.resolveLocked(sessionKey)
	if err != nil {
		return nil, nil, err
	}
	conn := m.conns[target]

	p := newPendingRequest(m.newID(), target, tool, sessionKey, m.now())
	for !m.pending.insert(p) {
		p.id = m.newID()
	}
	return p, conn, nil
}

// abandon removes p if it is still pending. Returns false if another path
// already removed it.
func (m *Manager) abandon(p *pendingRequest) bool {
	m.mu.Lock()
	_, ok := m.pending.remove(p.id)
	m.mu.Unlock()

	if ok {
		m.markResolved(p.id)
	}
	return ok
}

// finish converts a delivered result into the caller's return values.
func (m *Manager) finish(p *pendingRequest, res result) (string, error) {
	if res.err != nil {
		if errors.Is(res.err, ErrDisconnected) {
			m.record(p, OutcomeDisconnected)
		}
		return "", res.err
	}

	text := wire.Canonical(res.resp.Response)
	if !res.resp.Success {
		m.logger.Debug("← studio reported failure",
			"tool", p.tool,
			"studio_id", p.owner,
			"request_id", p.id,
		)
		m.record(p, OutcomeRemoteError)
		return "", &RemoteError{Message: text}
	}

	m.logger.Debug("← studio responded",
		"tool", p.tool,
		"studio_id", p.owner,
		"request_id", p.id,
		"bytes", len(text),
	)
	m.record(p, OutcomeOK)
	return text, nil
}

func (m *Manager) record(p *pendingRequest, outcome Outcome) {
	if m.recorder == nil {
		return
	}
	m.recorder.DispatchFinished(DispatchRecord{
		ID:       p.id,
		StudioID: p.owner,
		Session:  p.session,
		Tool:     p.tool,
		Outcome:  outcome,
		Started:  p.started,
		Duration: m.now().Sub(p.started),
	})
}

// DispatchJSON is Dispatch with arguments given as a JSON document. Object key
// order and integer types are preserved on the wire.
func (m *Manager) DispatchJSON(ctx context.Context, tool string, argsJSON []byte, sessionKey string) (string, error) {
	args, err := wire.FromJSON(argsJSON)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", tool, err)
	}
	return m.Dispatch(ctx, tool, args, sessionKey)
}
