// ABOUTME: Long-poll transport for studios that cannot hold a WebSocket open
// ABOUTME: Serves /poll/* and reaps poll studios that stop polling

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/studio"
	"github.com/2389/studio-gateway/internal/wire"
)

const msgpackContentType = "application/msgpack"

// pollHandler serves the pull transport. It shares the manager, and therefore
// the dispatch path, with the WebSocket handler.
type pollHandler struct {
	manager       *studio.Manager
	logger        *slog.Logger
	wait          time.Duration
	idleTimeout   time.Duration
	maxFrameBytes int64
	now           func() time.Time
}

// RegisterRoutes registers the poll endpoints on mux.
func (h *pollHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/poll/register", h.handleRegister)
	mux.HandleFunc("/poll/request", h.handleRequest)
	mux.HandleFunc("/poll/response", h.handleResponse)
	mux.HandleFunc("/poll", h.handleDisconnect)
}

// handleRegister handles POST /poll/register.
func (h *pollHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reg, err := wire.DecodeRegistration(body)
	if err != nil {
		h.logger.Warn("rejected poll registration", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, fmt.Sprintf("%v: %v", studio.ErrHandshakeInvalid, err), http.StatusBadRequest)
		return
	}

	sc := h.manager.Register(reg, studio.TransportPoll)
	sc.Touch(h.now())

	ack, err := wire.EncodeRegistered(sc.ID)
	if err != nil {
		h.manager.Unregister(sc.ID)
		http.Error(w, "encoding acknowledgement failed", http.StatusInternalServerError)
		return
	}
	_ = writeMsgpack(w, http.StatusOK, ack)
}

// handleRequest handles GET /poll/request?studio_id=X. It returns the next
// queued command, or 423 Locked when none arrives within the wait window.
func (h *pollHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sc.Touch(h.now())

	ctx, cancel := context.WithTimeout(r.Context(), h.wait)
	defer cancel()

	frame, err := sc.Outbox().Next(ctx)
	switch {
	case err == nil:
		sc.Touch(h.now())
		if err := writeMsgpack(w, http.StatusOK, frame); err != nil {
			h.logLostCommand(sc.ID, frame, err)
		}
	case errors.Is(err, studio.ErrOutboxClosed):
		http.Error(w, "studio disconnected", http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		sc.Touch(h.now())
		w.WriteHeader(http.StatusLocked)
	default:
		// Client went away; nothing to write.
		h.logger.Debug("poll request abandoned", "studio_id", sc.ID, "error", err)
	}
}

// handleResponse handles POST /poll/response?studio_id=X.
func (h *pollHandler) handleResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sc.Touch(h.now())

	body, err := h.readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := wire.DecodeResponse(body)
	if err != nil {
		h.logger.Warn("dropping malformed response frame", "studio_id", sc.ID, "bytes", len(body), "error", err)
		http.Error(w, "malformed response", http.StatusBadRequest)
		return
	}

	// Unknown ids are logged by the manager and acknowledged anyway.
	_ = h.manager.HandleResponse(sc.ID, resp)
	w.WriteHeader(http.StatusNoContent)
}

// handleDisconnect handles DELETE /poll?studio_id=X.
func (h *pollHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.manager.Unregister(sc.ID)
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the studio_id query parameter to a poll connection, writing
// the error response itself when it can't.
func (h *pollHandler) lookup(w http.ResponseWriter, r *http.Request) (*studio.Connection, bool) {
	raw := r.URL.Query().Get("studio_id")
	if raw == "" {
		http.Error(w, "studio_id is required", http.StatusBadRequest)
		return nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid studio_id", http.StatusBadRequest)
		return nil, false
	}
	sc, ok := h.manager.Connection(id)
	if !ok || sc.Info.Transport != studio.TransportPoll {
		http.Error(w, "unknown studio", http.StatusNotFound)
		return nil, false
	}
	return sc, true
}

func (h *pollHandler) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > h.maxFrameBytes {
		return nil, errors.New("frame too large")
	}
	return body, nil
}

func writeMsgpack(w http.ResponseWriter, status int, frame []byte) error {
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(status)
	_, err := w.Write(frame)
	return err
}

// logLostCommand reports a command popped from the outbox that never reached
// the studio. Its caller stays pending until teardown or the reaper.
func (h *pollHandler) logLostCommand(studioID uuid.UUID, frame []byte, err error) {
	cmd, _, decodeErr := wire.DecodeCommand(frame)
	if decodeErr != nil {
		h.logger.Warn("failed to deliver command to poll studio",
			"studio_id", studioID,
			"bytes", len(frame),
			"error", err,
		)
		return
	}
	h.logger.Warn("failed to deliver command to poll studio",
		"studio_id", studioID,
		"request_id", cmd.ID,
		"tool", cmd.Tool,
		"error", err,
	)
}

// reap evicts poll studios idle for longer than idleTimeout and returns how
// many it removed. Their pending requests fail as on a socket teardown.
func (h *pollHandler) reap(now time.Time) int {
	evicted := 0
	for _, info := range h.manager.ListStudios() {
		if info.Transport != studio.TransportPoll {
			continue
		}
		sc, ok := h.manager.Connection(info.ID)
		if !ok {
			continue
		}
		idle := now.Sub(sc.LastSeen())
		if idle <= h.idleTimeout {
			continue
		}
		if h.manager.Unregister(info.ID) {
			h.logger.Warn("evicted idle poll studio",
				"studio_id", info.ID,
				"place_name", info.PlaceName,
				"idle", idle.Round(time.Second),
			)
			evicted++
		}
	}
	return evicted
}

// runReaper calls reap periodically until ctx ends.
func (h *pollHandler) runReaper(ctx context.Context) {
	every := h.idleTimeout / 4
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap(h.now())
		}
	}
}
